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

// EventHandler processes one decoded event. Returning an error naks the
// message so JetStream redelivers it, up to MaxDeliver times.
type EventHandler func(ctx context.Context, msg dto.AttendanceMessage) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL, "attendance-notifier")
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func (c *Consumer) EnsureStream(ctx context.Context) error {
	return ensureStream(ctx, c.js)
}

// ConsumeEvents starts a durable consumer on the ATTENDANCE stream.
// workerCount determines how many goroutines process messages concurrently.
// kind filters to one event kind; empty means all.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName, kind string, handler EventHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, AttendanceStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AttendanceStreamName, err)
	}

	filter := AttendanceSubjectBase + ".>"
	if kind != "" {
		filter = Subject(kind)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: filter,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handleMessage(ctx, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("event consumer started", "consumer", consumerName, "filter", filter, "workers", workerCount)
	return nil
}

func handleMessage(ctx context.Context, workerID int, msg jetstream.Msg, handler EventHandler) {
	var ev dto.AttendanceMessage
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		slog.Error("malformed event, dropping", "worker", workerID, "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := handler(ctx, ev); err != nil {
		slog.Error("process event error", "worker", workerID, "error", err, "subject", msg.Subject(), "identity", ev.Identity)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
