package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/httpserver"
	"github.com/parleyhq/parley/internal/meetings"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/signaling"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting parley-server",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"mongo_database", cfg.MongoDatabase,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"max_ws_message_bytes", cfg.MaxWSMessageBytes,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("no allowed origins configured; cross-origin browser requests will be rejected")
	}
	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("ice configuration deferred error", "err", err)
	}

	st, err := store.Connect(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to connect to mongodb", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(ctx); err != nil {
			logger.Error("mongodb disconnect failed", "err", err)
		}
	}()

	var turnGen *turnrest.Generator
	if cfg.TURNREST.Enabled() {
		turnGen, err = turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error("failed to configure turn rest credentials", "err", err)
			os.Exit(2)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)

	srv := httpserver.New(httpserver.Options{
		Config:    cfg,
		Logger:    logger,
		Build:     httpserver.BuildInfo{Commit: commit, BuildTime: built},
		Readiness: st.Ping,
		TURN:      turnGen,
	})

	m := metrics.New()
	registry := meetings.NewRegistry()
	verifier := auth.NewTokenVerifier(cfg.JWTSecret)

	restAPI := api.NewServer(api.Options{
		Logger:   logger,
		Store:    st,
		Meetings: registry,
		Issuer:   auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Verifier: verifier,
		Hasher:   auth.NewPasswordHasher(cfg.BcryptCost),
		Metrics:  m,
	})
	restAPI.RegisterRoutes(srv.Mux())

	sig := signaling.NewServer(cfg, logger, registry, m)
	sig.RegisterRoutes(srv.Mux())

	chatSrv := chat.NewServer(cfg, logger, verifier, st, m)
	chatSrv.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, built string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}

	return commit, built
}
