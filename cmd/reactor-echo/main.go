// Command reactor-echo is a TCP echo server exercising the full reactor
// stack: a Reactor driving a netconn.Listener, whose accepted channels
// decode raw chunks and write them straight back via an outbound.Queue.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	netreactor "github.com/joeycumines/go-netreactor"
	"github.com/joeycumines/go-netreactor/decoder"
	"github.com/joeycumines/go-netreactor/netconn"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	ioRatio := flag.Int("io-ratio", 50, "reactor I/O-to-task scheduling ratio, 1-100")
	flag.Parse()

	logger := netreactor.NewDefaultLogger(netreactor.LevelInfo)

	r, err := netreactor.New(
		netreactor.WithStructuredLogger(logger),
		netreactor.WithMetrics(true),
		netreactor.WithIORatio(*ioRatio),
	)
	if err != nil {
		log.Fatalf("reactor-echo: new reactor: %v", err)
	}

	cfg := netconn.DefaultConfig()
	ln, err := netconn.Listen(r, "tcp", *addr,
		func() decoder.Handler { return echoDecoder{} },
		func() netconn.MessageHandler { return echoHandler{} },
		cfg,
	)
	if err != nil {
		log.Fatalf("reactor-echo: listen on %s: %v", *addr, err)
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("reactor-echo: listening on %s", *addr)
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("reactor-echo: run: %v", err)
	}

	snap := r.Metrics()
	log.Printf("reactor-echo: shut down, select_calls=%d tasks_executed=%d selector_rebuilds=%d",
		snap.SelectCalls, snap.TasksExecuted, snap.SelectorRebuilds)
}
