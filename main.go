// Command collabedit runs the collaborative document-editing server:
// HTTP document endpoints plus the WebSocket upgrade that carries
// authentication, edits, sync, and presence. Wiring mirrors teacher
// main.go's store-then-hub-then-manager-then-server order, adapted to
// this repo's session/transport/dispatch/api packages and extended with
// signal-driven graceful shutdown, grounded on
// original_source/include/server/session/server_manager.h's start/stop
// lifecycle (stop accepting new work, drain in-flight sessions, then
// tear down transports).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arashov/collabedit/internal/api"
	"github.com/arashov/collabedit/internal/config"
	"github.com/arashov/collabedit/internal/dispatch"
	"github.com/arashov/collabedit/internal/session"
	"github.com/arashov/collabedit/internal/transport"
)

const maxHistoryPerUser = 100

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.New()

	configPath, err := cfg.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Printf("collabedit: parsing flags: %v", err)

		return 1
	}

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			log.Printf("collabedit: loading config file %s: %v", configPath, err)

			return 1
		}
	}

	registry := session.NewRegistry()

	hub := transport.NewHub(func(client *transport.Client) {
		_ = registry.CloseSession(client.SessionID)
	})

	pool := dispatch.NewPool(cfg.Threads)
	dispatchers := dispatch.NewManager(hub, pool, maxHistoryPerUser)

	server := api.NewServer(api.Config{
		Registry:    registry,
		Dispatchers: dispatchers,
		Hub:         hub,
	})

	addr := ":" + strconv.Itoa(cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("collabedit: binding %s: %v", addr, err)

		return 1
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCleanup := make(chan struct{})
	go runIdleCleanup(registry, cfg.CleanupInterval, cfg.MaxIdle, stopCleanup)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		log.Printf("collabedit: listening on %s (editor mode %s, %d worker slots)", addr, cfg.EditorMode, cfg.Threads)
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("collabedit: server error: %v", err)

			return 2
		}
	case <-ctx.Done():
		log.Printf("collabedit: shutdown signal received, draining")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("collabedit: error during HTTP shutdown: %v", err)
		}
	}

	close(stopCleanup)
	dispatchers.CloseAll()

	return 0
}

// runIdleCleanup periodically evicts idle sessions until stop is closed,
// mirroring the cleanup-interval/max-idle pair spec.md's CLI section
// exposes as flags.
func runIdleCleanup(registry *session.Registry, interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := registry.CleanupIdle(maxIdle); n > 0 {
				log.Printf("collabedit: cleaned up %d idle session(s)", n)
			}
		case <-stop:
			return
		}
	}
}
