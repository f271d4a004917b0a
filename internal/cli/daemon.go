package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koltyakov/tunnelpool/internal/config"
	"github.com/koltyakov/tunnelpool/internal/debughttp"
	"github.com/koltyakov/tunnelpool/internal/httpadmin"
	"github.com/koltyakov/tunnelpool/internal/log"
	"github.com/koltyakov/tunnelpool/internal/pool"
	"github.com/koltyakov/tunnelpool/internal/transport"
)

const shutdownGrace = 5 * time.Second

// runDaemon implements the run subcommand: init, file_read, open, then
// serve the admin HTTP API until SIGINT/SIGTERM.
func runDaemon(args []string) int {
	cfg, err := config.ParsePoolFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool run:", err)
		return 2
	}

	logger := log.New(cfg.LogLevel)

	registry := transport.NewRegistry()
	registry.Register("quic", transport.NewQUIC(logger, cfg.MaxIdleTimeout))
	registry.Register("ws", transport.NewWebSocket(logger, cfg.MaxIdleTimeout))
	registry.Register("wss", transport.NewWebSocket(logger, cfg.MaxIdleTimeout))

	p := pool.New(logger, registry, pool.Config{
		CachePath:        cfg.CachePath,
		MaxActiveTunnels: cfg.MaxActiveTunnels,
		MaxRetries:       cfg.MaxRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := debughttp.StartPprofServer(ctx, cfg.DebugListen, logger, "tunnelpool"); err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool run: start debug listener:", err)
		return 1
	}

	p.FileRead()
	p.Open(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/tunnels-active.html", httpadmin.ActiveHandler(p))
	mux.HandleFunc("/tunnels-all.html", httpadmin.AllHandler(p))
	mux.HandleFunc("/tunnels-status.html", httpadmin.StatusHandler(p))
	mux.HandleFunc("/tunnels.json", httpadmin.SnapshotsHandler(p))
	mux.HandleFunc("/add", httpadmin.AddHandler(p))
	mux.HandleFunc("/delete", httpadmin.DeleteHandler(p))

	srv := &http.Server{Addr: cfg.AdminListen, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tunnelpool: admin listener starting", "addr", cfg.AdminListen)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("tunnelpool: shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("tunnelpool: admin listener failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	p.Close()
	return 0
}
