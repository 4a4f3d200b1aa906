// Command replica runs a single ledgerraft cluster member. It is
// launched with its own id as the first argument and every peer id as
// the remaining arguments; it opens a pre-bound datagram endpoint
// named by its id and runs until terminated externally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/arcflux/ledgerraft/internal/httpapi"
	"github.com/arcflux/ledgerraft/internal/metrics"
	"github.com/arcflux/ledgerraft/internal/raft"
	"github.com/arcflux/ledgerraft/internal/store"
	"github.com/arcflux/ledgerraft/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: replica <id> [peer-id ...]")
		os.Exit(1)
	}
	id := os.Args[1]
	peers := os.Args[2:]

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("replica", id))

	sockDir := os.Getenv("RAFTKV_SOCK_DIR")
	if sockDir == "" {
		sockDir = "/tmp/ledgerraft"
	}

	endpoint, err := transport.NewUnixgramEndpoint(sockDir, id)
	if err != nil {
		logger.Fatal("bind datagram endpoint", zap.Error(err))
	}
	defer endpoint.Close()

	st := store.New()
	rec := metrics.NewRecorder()
	rep := raft.New(id, peers, raft.DefaultConfig(), endpoint, st, rec, logger)

	if addr := os.Getenv("RAFTKV_HTTP_ADDR"); addr != "" {
		srv := httpapi.New(rep, rec, logger.With(zap.String("component", "httpapi")))
		go func() {
			if err := srv.Start(addr); err != nil {
				logger.Error("debug http surface exited", zap.Error(err))
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("replica starting", zap.Strings("peers", peers), zap.String("sockDir", sockDir))
	if err := rep.Run(ctx); err != nil {
		logger.Fatal("replica exited with error", zap.Error(err))
	}
}
