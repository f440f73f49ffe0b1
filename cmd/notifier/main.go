package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/notify"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	workers := flag.Int("workers", 2, "concurrent mail workers")
	metricsAddr := flag.String("metrics-addr", ":8082", "metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" {
		slog.Error("nats.url is required for the notifier")
		os.Exit(1)
	}
	if cfg.Notify.SMTP.Host == "" {
		slog.Error("notify.smtp.host is required for the notifier")
		os.Exit(1)
	}

	slog.Info("starting attendance notifier", "workers", *workers, "smtp", cfg.Notify.SMTP.Host)

	// Contacts arrive resolved on the message, so no contact book is needed.
	mailer := notify.NewMailer(notify.NewSMTPSender(cfg.Notify.SMTP), nil, cfg.Notify.DefaultTo)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.EnsureStream(ctx); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	err = consumer.ConsumeEvents(ctx, "present-mailer", string(models.KindAttendance), func(ctx context.Context, msg dto.AttendanceMessage) error {
		if err := mailer.SendPresent(ctx, msg.Identity, msg.Contact); err != nil {
			return fmt.Errorf("mail present notice for %s: %w", msg.Identity, err)
		}
		return nil
	}, *workers)
	if err != nil {
		slog.Error("start event consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("notifier metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down notifier...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("notifier stopped")
}
