package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/backup"
	"github.com/your-org/attendance/internal/bootstrap"
	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/events"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/liveness"
	"github.com/your-org/attendance/internal/match"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/netcheck"
	"github.com/your-org/attendance/internal/notify"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/report"
	"github.com/your-org/attendance/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("attendd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting attendance daemon",
		"port", cfg.Server.Port,
		"camera", cfg.Camera.Source,
		"liveness", cfg.Liveness.Mode,
		"gallery", cfg.Gallery.Backend,
		"ledger", cfg.Ledger.Backend,
	)

	if !cfg.Network.Skip {
		if err := netcheck.New(cfg.Network).Wait(ctx); err != nil {
			return fmt.Errorf("wait for network: %w", err)
		}
	}

	if err := vision.InitRuntime(cfg.Vision.RuntimeLib); err != nil {
		return err
	}
	defer vision.DestroyRuntime()

	engine, err := vision.NewEngine(cfg.Vision)
	if err != nil {
		return fmt.Errorf("init vision engine: %w", err)
	}
	defer engine.Close()

	pool, err := bootstrap.OpenPool(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	objects, err := bootstrap.OpenObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	bus := events.NewBus(cfg.Notify.QueueSize)

	gal, err := bootstrap.OpenGallery(cfg.Gallery, pool, gallery.WithFaceModels(engine, engine))
	if err != nil {
		return fmt.Errorf("open gallery: %w", err)
	}

	led, err := bootstrap.OpenLedger(cfg.Ledger, pool, ledger.WithPublisher(bus))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	checks := map[string]handlers.Pinger{"objects": objects}
	if pool != nil {
		checks["postgres"] = pool
	}

	var sender notify.Sender
	if cfg.Notify.SMTP.Host != "" {
		sender = notify.NewSMTPSender(cfg.Notify.SMTP)
	}

	// With NATS configured the notifier process owns email delivery;
	// otherwise mail goes out from here.
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
		bus.Subscribe("nats", notify.NewNATSRelay(producer, gal).HandleEvent)
		checks["nats"] = handlers.PingFunc(func(context.Context) error { return producer.Ping() })
	} else if sender != nil {
		mailer := notify.NewMailer(sender, gal, cfg.Notify.DefaultTo)
		bus.Subscribe("mailer", mailer.HandleEvent, models.KindAttendance)
	}
	if len(cfg.Notify.SpeakCommand) > 0 {
		bus.Subscribe("speaker", notify.NewSpeaker(cfg.Notify.SpeakCommand, nil).HandleEvent)
	}
	if len(cfg.Notify.SoundCommand) > 0 {
		bus.Subscribe("sound", notify.NewSoundPlayer(cfg.Notify.SoundCommand, cfg.Notify.SoundFile, nil).HandleEvent, models.KindAttendance)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)
	bus.Subscribe("ws", notify.NewWSRelay(hub).HandleEvent)

	gate, err := liveness.New(liveness.Mode(cfg.Liveness.Mode), cfg.Liveness.VarianceThreshold, engine)
	if err != nil {
		return err
	}
	matcher, err := match.New(cfg.Match.Tolerance, match.Metric(cfg.Match.Metric), match.Policy(cfg.Match.Policy))
	if err != nil {
		return err
	}

	sessionLog, err := ledger.OpenSessionLog(cfg.Ledger.SessionLogPath)
	if err != nil {
		return err
	}
	defer sessionLog.Close()

	slot := &capture.FrameSlot{}
	pipeline, err := recognition.New(recognition.Deps{
		Detector: engine,
		Encoder:  engine,
		Gate:     gate,
		Gallery:  gal,
		Matcher:  matcher,
		Ledger:   led,
		Evidence: objects,
		Frames:   slot,
		Audit:    sessionLog,
	})
	if err != nil {
		return err
	}

	source := capture.OpenSource(cfg.Camera)
	defer source.Close()
	loop := capture.NewLoop(source, slot, capture.NewDispatcher(pipeline.HandleFrame), cfg.Capture.Tick)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("capture loop stopped", "error", err)
		}
	}()
	checks["camera"] = handlers.PingFunc(func(context.Context) error {
		f, ok := slot.Latest()
		if !ok || time.Since(f.CapturedAt) > 5*time.Second {
			return models.ErrCameraUnavailable
		}
		return nil
	})

	bk := backup.New(led, objects, cfg.Backup.Interval, cfg.Backup.Prefix)
	bk.Start(ctx)
	defer bk.Stop()

	reports, err := report.New(led, gal, sender, cfg.Notify.DefaultTo, cfg.Report.LateAfter, cfg.Report.LowAttendanceRatio)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Identities: gal,
		Sessions:   pipeline,
		Ledger:     led,
		Reports:    reports,
		Hub:        hub,
		Checks:     checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Debug("sd_notify ready", "error", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
	}

	slog.Info("shutting down attendance daemon...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	<-loopDone
	if err := bus.Close(shutdownCtx); err != nil {
		slog.Warn("event bus drain incomplete", "error", err)
	}

	slog.Info("attendance daemon stopped")
	return runErr
}
