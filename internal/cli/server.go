package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fils-quiz-bot/internal/config"
	"fils-quiz-bot/internal/telegram"
	transport "fils-quiz-bot/internal/transport/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewStartCmd serves the Telegram webhook, the dashboard and the health endpoints.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot in webhook mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// NewPollCmd runs the bot against getUpdates, for local development without a public URL.
func NewPollCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Start the bot in long-polling mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolling(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath, portFlag)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(ctx)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	if cfg.Telegram.WebhookURL != "" {
		if err := rt.client.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			rt.close()
			return err
		}
		logger.Info("webhook registered", zap.String("url", cfg.Telegram.WebhookURL))
	} else {
		logger.Warn("TELEGRAM_WEBHOOK_URL not set, expecting the webhook to be registered externally")
	}

	routes := transport.Routes{
		WebhookPath: cfg.Server.WebhookPath,
		Webhook:     transport.NewWebhookHandler(rt.updates, cfg.Telegram.WebhookSecret, logger.Named("webhook")),
		Dashboard:   rt.dashboard(),
		Ready:       rt.ready,
	}
	return serve(ctx, rt, routes, nil)
}

func runPolling(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath, portFlag)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(ctx)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	// getUpdates is refused while a webhook is set
	if err := rt.client.DeleteWebhook(ctx); err != nil {
		rt.close()
		return err
	}
	if me, err := rt.client.GetMe(ctx); err == nil {
		logger.Info("polling as bot", zap.String("username", me.Username))
	}

	poller := telegram.NewPoller(rt.client, rt.updates,
		config.TTLDuration(cfg.Telegram.PollTimeout, 30*time.Second), logger.Named("poller"))
	routes := transport.Routes{
		Dashboard: rt.dashboard(),
		Ready:     rt.ready,
	}
	return serve(ctx, rt, routes, poller.Run)
}

// serve runs the HTTP server (and an optional update loop) until ctx is cancelled, then drains the
// bot before returning.
func serve(ctx context.Context, rt *runtime, routes transport.Routes, loop func(context.Context) error) error {
	server := &http.Server{
		Addr:              ":" + rt.cfg.Server.Port,
		Handler:           transport.NewRouter(routes),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	rt.startBackground(gctx)
	g.Go(func() error {
		rt.logger.Info("starting quiz bot", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if loop != nil {
		g.Go(func() error {
			if err := loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rt.shutdown(drainCtx)
	return err
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
