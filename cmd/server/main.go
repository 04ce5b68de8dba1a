package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dim-str/TheLimitOrderBook/internal/engine"
	"github.com/dim-str/TheLimitOrderBook/internal/net"
)

func main() {
	address := flag.String("address", "0.0.0.0", "Address to listen on")
	port := flag.Int("port", 9001, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the TCP server and the matching engine.
	eng := engine.New()
	srv := net.New(*address, *port, eng)
	eng.SetReporter(srv)

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
