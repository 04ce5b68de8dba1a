package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
	"github.com/dim-str/TheLimitOrderBook/internal/engine"
	"github.com/dim-str/TheLimitOrderBook/internal/utils"
)

const (
	defaultNWorkers    = 10
	defaultConnTimeout = 5 * time.Minute
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id   string
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// ownerInfo records which session submitted an order id and on which side,
// so execution reports can be routed back to both parties of a trade.
type ownerInfo struct {
	clientAddress string
	side          common.Side
}

type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	owners     map[uint64]ownerInfo
	ownersLock sync.Mutex
}

func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		owners:         make(map[uint64]ownerInfo),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}

	// Unblock Accept when the context is cancelled.
	t.Go(func() error {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		return nil
	})

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
		}

		// Add the client to client sessions we are tracking.
		// We expect to potentially maintain a long TCP session.
		session := s.addClientSession(conn)
		log.Info().
			Str("session", session.id).
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")

		// Pass over the connection to be read from.
		s.pool.AddTask(conn)
	}
}

// ReportTrade routes one execution to the sessions owning the taker and the
// maker order ids. Implements engine.Reporter.
func (s *Server) ReportTrade(trade common.Trade) {
	s.ownersLock.Lock()
	taker, takerOk := s.owners[trade.TakerID]
	maker, makerOk := s.owners[trade.MakerID]
	s.ownersLock.Unlock()

	send := func(owner ownerInfo, ok bool) {
		if !ok {
			return
		}
		report := Report{
			MessageType: ExecutionReport,
			Side:        owner.side,
			Timestamp:   uint64(trade.Timestamp.UnixNano()),
			Quantity:    trade.Quantity,
			Price:       trade.Price.InexactFloat64(),
			TakerID:     trade.TakerID,
			MakerID:     trade.MakerID,
		}
		if err := s.send(owner.clientAddress, report.Serialize()); err != nil {
			log.Error().Err(err).Str("address", owner.clientAddress).Msg("unable to report trade")
		}
	}

	send(taker, takerOk)
	// Self trades would otherwise be reported twice to the same session.
	if !(makerOk && takerOk && maker == taker) {
		send(maker, makerOk)
	}
}

// reportError sends an error report to one session.
func (s *Server) reportError(clientAddress string, cause error) {
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixNano()),
		Err:         cause.Error(),
	}
	if err := s.send(clientAddress, report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("unable to report error")
	}
}

func (s *Server) send(clientAddress string, payload []byte) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}
	if err := WriteFrame(client.conn, payload); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler drains incoming messages from clients and drives the
// matching engine. All submissions funnel through this single goroutine, so
// arrival order on the channel is arrival order in the book.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case clientMessage := <-s.clientMessages:
			s.handleMessage(clientMessage)
		}
	}
}

func (s *Server) handleMessage(clientMessage ClientMessage) {
	switch message := clientMessage.message.(type) {
	case NewOrderMessage:
		s.handleNewOrder(clientMessage.clientAddress, message)
	case BaseMessage:
		switch message.GetType() {
		case Heartbeat:
			log.Debug().Str("address", clientMessage.clientAddress).Msg("heartbeat")
		case BookSnapshot:
			s.handleSnapshot(clientMessage.clientAddress)
		}
	}
}

func (s *Server) handleNewOrder(clientAddress string, message NewOrderMessage) {
	// Register ownership first so reports for an immediately-matching order
	// still find their session.
	s.ownersLock.Lock()
	s.owners[message.OrderID] = ownerInfo{clientAddress: clientAddress, side: message.Side}
	s.ownersLock.Unlock()

	trades, err := s.engine.Submit(message.OrderID, message.LimitPrice(), message.Quantity, message.Side)
	if err != nil {
		s.ownersLock.Lock()
		delete(s.owners, message.OrderID)
		s.ownersLock.Unlock()

		log.Warn().
			Err(err).
			Uint64("order", message.OrderID).
			Str("owner", message.Owner).
			Msg("order rejected")
		s.reportError(clientAddress, err)
		return
	}

	log.Info().
		Uint64("order", message.OrderID).
		Str("side", message.Side.String()).
		Uint64("quantity", message.Quantity).
		Float64("price", message.Price).
		Int("trades", len(trades)).
		Msg("order submitted")
}

func (s *Server) handleSnapshot(clientAddress string) {
	snapshot := s.engine.Snapshot()
	if err := s.send(clientAddress, EncodeSnapshot(snapshot)); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("unable to send snapshot")
	}
}

// handleConnection is a short-lived worker method which reads the next frame
// off the connection, parses and passes it forward to sessionHandler. If the
// connection dies, the client session is cleaned up. Any error returned from
// here is fatal to the pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	clientAddress := conn.RemoteAddr().String()

	// Idle sessions are reaped after the read deadline.
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", clientAddress).
			Err(err).
			Msg("failed setting deadline for connection")
		s.dropClientSession(conn)
		return nil
	}

	select {
	case <-t.Dying():
		return nil
	default:
		payload, err := ReadFrame(conn)
		if err != nil {
			// A failed read usually means the client has gone away.
			log.Info().
				Err(err).
				Str("address", clientAddress).
				Msg("client session ended")
			s.dropClientSession(conn)
			return nil
		}

		message, err := ParseMessage(payload)
		if err != nil {
			log.Error().
				Err(err).
				Str("address", clientAddress).
				Msg("error parsing message")
			s.reportError(clientAddress, err)
			s.dropClientSession(conn)
			return nil
		}

		// Pass over to the message handling buffer and exit this worker.
		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: clientAddress,
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add.
func (s *Server) addClientSession(conn net.Conn) ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	session := ClientSession{
		id:   uuid.New().String(),
		conn: conn,
	}
	s.clientSessions[conn.RemoteAddr().String()] = session
	return session
}

// dropClientSession closes the connection and forgets the session along with
// any order ownership it registered.
func (s *Server) dropClientSession(conn net.Conn) {
	clientAddress := conn.RemoteAddr().String()

	s.clientSessionsLock.Lock()
	delete(s.clientSessions, clientAddress)
	s.clientSessionsLock.Unlock()

	s.ownersLock.Lock()
	for id, owner := range s.owners {
		if owner.clientAddress == clientAddress {
			delete(s.owners, id)
		}
	}
	s.ownersLock.Unlock()

	if err := conn.Close(); err != nil {
		log.Error().Str("address", clientAddress).Err(err).Msg("unable to close connection")
	}
}
