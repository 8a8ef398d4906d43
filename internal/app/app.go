package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/subscribr/web/internal/config"
	"github.com/subscribr/web/internal/events"
	"github.com/subscribr/web/internal/handlers"
	"github.com/subscribr/web/internal/httpserver"
	"github.com/subscribr/web/internal/logging"
	"github.com/subscribr/web/internal/middleware"
)

// Run bootstraps the Subscribr web frontend.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or watch")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "watch":
		return watch(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.TrustProxies(cfg.TrustedProxies)(middleware.RequestLogger(logger)(mux))

	srv := httpserver.New(cfg.AppPort, handler, logger)

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"api_base_url", cfg.APIBaseURL,
		"api_routes", cfg.APIRoutes,
	)

	return srv.Run(logging.WithLogger(ctx, logger))
}

func watch(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: watch <user-id>")
	}
	userID := strings.TrimSpace(args[0])

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	streamURL, err := client.EventsURL(userID)
	if err != nil {
		return err
	}

	logger = logger.With(slog.String("userId", userID))
	logger.Info("watching notifications", "url", streamURL)

	stream := events.NewStream(streamURL, client.HTTPClient(), cfg.EventRetry)
	err = stream.Run(logging.WithLogger(ctx, logger), func(ev events.Event) {
		n, ok := events.Notify(ev, time.Now())
		if !ok {
			logger.Debug("event ignored", "type", ev.Type, "id", ev.ID)
			return
		}
		logger.Info("notification", "type", ev.Type, "id", ev.ID, "message", n.Message)
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("stopped watching")
		return nil
	}
	return err
}
