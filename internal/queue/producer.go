package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/pkg/dto"
)

const (
	AttendanceStreamName  = "ATTENDANCE"
	AttendanceSubjectBase = "attendance"
)

// Subject returns the subject an event of the given kind is published on.
func Subject(kind string) string {
	return AttendanceSubjectBase + "." + kind
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL, "attendd")
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// StreamConfig is the ATTENDANCE stream definition shared by producer and
// consumer.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        AttendanceStreamName,
		Subjects:    []string{AttendanceSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  10 * time.Minute,
		Description: "Committed attendance and leave events",
	}
}

// EnsureStream creates the ATTENDANCE stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStream(ctx context.Context) error {
	return ensureStream(ctx, p.js)
}

func ensureStream(ctx context.Context, js jetstream.JetStream) error {
	cfg := StreamConfig()
	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishEvent publishes a committed event. The event ID doubles as the
// JetStream message ID, so a retried publish is deduplicated by the server.
func (p *Producer) PublishEvent(ctx context.Context, msg dto.AttendanceMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, Subject(msg.Kind), payload, jetstream.WithMsgID(msg.ID.String()))
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
