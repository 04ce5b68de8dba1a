package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidSide        = errors.New("invalid side")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	BookSnapshot
)

type ReportMessageType byte

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
	SnapshotReport
)

// Message format constants
const (
	MaxFrameSize            = 64 * 1024
	BaseMessageHeaderLen    = 2
	NewOrderMessageBodyLen  = 8 + 8 + 8 + 1 + 1
	executionReportLen      = 1 + 1 + 8 + 8 + 8 + 8 + 8
	errorReportHeaderLen    = 1 + 8 + 4
	snapshotReportHeaderLen = 1 + 4 + 4
	snapshotEntryLen        = 8 + 8 + 8
)

type Message interface {
	GetType() MessageType
}

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

// Every message and report travels in a length-prefixed frame so that one
// connection can carry any number of them back to back.

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, fmt.Errorf("%w: no header", ErrMessageTooShort)
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(msg)
	case BookSnapshot:
		return BaseMessage{TypeOf: BookSnapshot}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

type NewOrderMessage struct {
	BaseMessage
	OrderID  uint64      // 8 bytes
	Price    float64     // 8 bytes
	Quantity uint64      // 8 bytes
	Side     common.Side // 1 byte
	OwnerLen uint8       // 1 byte
	Owner    string      // n bytes
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageBodyLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.Price = math.Float64frombits(binary.BigEndian.Uint64(msg[8:16]))
	m.Quantity = binary.BigEndian.Uint64(msg[16:24])
	m.Side = common.Side(msg[24])
	m.OwnerLen = uint8(msg[25])

	if m.Side != common.Buy && m.Side != common.Sell {
		return NewOrderMessage{}, ErrInvalidSide
	}
	if len(msg) < NewOrderMessageBodyLen+int(m.OwnerLen) {
		return NewOrderMessage{}, fmt.Errorf("%w for specified username length", ErrMessageTooShort)
	}
	m.Owner = string(msg[26 : 26+m.OwnerLen])

	return m, nil
}

// LimitPrice converts the wire price to the engine's decimal representation.
func (m NewOrderMessage) LimitPrice() decimal.Decimal {
	return decimal.NewFromFloat(m.Price)
}

// EncodeNewOrder builds the wire form of a new order submission.
func EncodeNewOrder(m NewOrderMessage) []byte {
	buf := make([]byte, BaseMessageHeaderLen+NewOrderMessageBodyLen+len(m.Owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(m.Price))
	binary.BigEndian.PutUint64(buf[18:26], m.Quantity)
	buf[26] = byte(m.Side)
	buf[27] = uint8(len(m.Owner))
	copy(buf[28:], m.Owner)
	return buf
}

// EncodeSnapshotRequest builds the wire form of a book snapshot request.
func EncodeSnapshotRequest() []byte {
	buf := make([]byte, BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(BookSnapshot))
	return buf
}

// Report is one outbound execution or error notification.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Side        common.Side       // 1 byte
	Timestamp   uint64            // 8 bytes
	Quantity    uint64            // 8 bytes
	Price       float64           // 8 bytes
	TakerID     uint64            // 8 bytes
	MakerID     uint64            // 8 bytes
	Err         string            // length-prefixed, error reports only
}

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	if r.MessageType == ErrorReport {
		buf := make([]byte, errorReportHeaderLen+len(r.Err))
		buf[0] = byte(ErrorReport)
		binary.BigEndian.PutUint64(buf[1:9], r.Timestamp)
		binary.BigEndian.PutUint32(buf[9:13], uint32(len(r.Err)))
		copy(buf[13:], r.Err)
		return buf
	}

	buf := make([]byte, executionReportLen)
	buf[0] = byte(ExecutionReport)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], r.Quantity)
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(r.Price))
	binary.BigEndian.PutUint64(buf[26:34], r.TakerID)
	binary.BigEndian.PutUint64(buf[34:42], r.MakerID)
	return buf
}

// EncodeSnapshot serializes a book snapshot, asks first then bids, each side
// already in best-first order.
func EncodeSnapshot(snap common.Snapshot) []byte {
	buf := make([]byte, snapshotReportHeaderLen+snapshotEntryLen*(len(snap.Asks)+len(snap.Bids)))
	buf[0] = byte(SnapshotReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(snap.Asks)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(snap.Bids)))

	offset := snapshotReportHeaderLen
	putEntry := func(e common.BookEntry) {
		binary.BigEndian.PutUint64(buf[offset:offset+8], e.ID)
		binary.BigEndian.PutUint64(buf[offset+8:offset+16], math.Float64bits(e.Price.InexactFloat64()))
		binary.BigEndian.PutUint64(buf[offset+16:offset+24], e.Quantity)
		offset += snapshotEntryLen
	}
	for _, e := range snap.Asks {
		putEntry(e)
	}
	for _, e := range snap.Bids {
		putEntry(e)
	}
	return buf
}

// DecodeReport parses one outbound frame on the client side. It returns
// either a *Report or a *common.Snapshot depending on the report type.
func DecodeReport(payload []byte) (any, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty report", ErrMessageTooShort)
	}

	switch ReportMessageType(payload[0]) {
	case ExecutionReport:
		if len(payload) < executionReportLen {
			return nil, ErrMessageTooShort
		}
		return &Report{
			MessageType: ExecutionReport,
			Side:        common.Side(payload[1]),
			Timestamp:   binary.BigEndian.Uint64(payload[2:10]),
			Quantity:    binary.BigEndian.Uint64(payload[10:18]),
			Price:       math.Float64frombits(binary.BigEndian.Uint64(payload[18:26])),
			TakerID:     binary.BigEndian.Uint64(payload[26:34]),
			MakerID:     binary.BigEndian.Uint64(payload[34:42]),
		}, nil

	case ErrorReport:
		if len(payload) < errorReportHeaderLen {
			return nil, ErrMessageTooShort
		}
		errLen := binary.BigEndian.Uint32(payload[9:13])
		if len(payload) < errorReportHeaderLen+int(errLen) {
			return nil, ErrMessageTooShort
		}
		return &Report{
			MessageType: ErrorReport,
			Timestamp:   binary.BigEndian.Uint64(payload[1:9]),
			Err:         string(payload[13 : 13+errLen]),
		}, nil

	case SnapshotReport:
		if len(payload) < snapshotReportHeaderLen {
			return nil, ErrMessageTooShort
		}
		nAsks := binary.BigEndian.Uint32(payload[1:5])
		nBids := binary.BigEndian.Uint32(payload[5:9])
		want := snapshotReportHeaderLen + snapshotEntryLen*int(nAsks+nBids)
		if len(payload) < want {
			return nil, ErrMessageTooShort
		}

		offset := snapshotReportHeaderLen
		getEntry := func() common.BookEntry {
			e := common.BookEntry{
				ID:       binary.BigEndian.Uint64(payload[offset : offset+8]),
				Price:    decimal.NewFromFloat(math.Float64frombits(binary.BigEndian.Uint64(payload[offset+8 : offset+16]))),
				Quantity: binary.BigEndian.Uint64(payload[offset+16 : offset+24]),
			}
			offset += snapshotEntryLen
			return e
		}
		snap := &common.Snapshot{}
		for i := uint32(0); i < nAsks; i++ {
			snap.Asks = append(snap.Asks, getEntry())
		}
		for i := uint32(0); i < nBids; i++ {
			snap.Bids = append(snap.Bids, getEntry())
		}
		return snap, nil

	default:
		return nil, ErrInvalidMessageType
	}
}
