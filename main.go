package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/ticrm/tire-storage-api/config"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/services"
)

func main() {
	flags := pflag.NewFlagSet("ticrm", pflag.ExitOnError)
	migrateOnly := flags.Bool("migrate-only", false, "apply database migrations and exit")
	webhookURL := flags.String("set-webhook", "", "register the Telegram webhook at this public URL and exit")
	sendReminders := flags.Bool("send-reminders", false, "send due storage reminders and exit")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLog := logger.New("ticrm", cfg.LogLevel, cfg.IsProduction())
	defer func() { _ = appLog.Sync() }()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.GoEnv}); err != nil {
			appLog.Warning("sentry disabled", logger.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := run(cfg, appLog, *migrateOnly, *webhookURL, *sendReminders); err != nil {
		appLog.Error("ticrm stopped with an error", logger.Error(err))
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLog logger.ILogger, migrateOnly bool, webhookURL string, sendReminders bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	appLog.Info("database migrations applied")
	if migrateOnly {
		return nil
	}

	if err := config.ConnectDatabase(cfg); err != nil {
		return err
	}

	store, err := services.NewPhotoStore(ctx, cfg)
	if err != nil {
		return err
	}
	app, err := newApplication(cfg, config.GetDB(), appLog, store, services.NewGeminiAnalyzer(cfg))
	if err != nil {
		return err
	}

	switch {
	case webhookURL != "":
		return app.bot.SetWebhook(webhookURL, cfg.TelegramWebhookSecret)
	case sendReminders:
		sent, err := app.orders.SendDueReminders(ctx)
		if err != nil {
			return err
		}
		appLog.Info("reminders sent", logger.Int("count", sent))
		return nil
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("server listening", logger.String("addr", srv.Addr), logger.String("storage", store.Backend()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
