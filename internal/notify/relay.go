package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

// EventPublisher is satisfied by queue.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg dto.AttendanceMessage) error
}

// NATSRelay forwards committed events to JetStream for out-of-process
// consumers such as cmd/notifier.
type NATSRelay struct {
	pub      EventPublisher
	contacts ContactBook
}

func NewNATSRelay(pub EventPublisher, contacts ContactBook) *NATSRelay {
	return &NATSRelay{pub: pub, contacts: contacts}
}

func (r *NATSRelay) HandleEvent(ctx context.Context, ev models.AttendanceEvent) error {
	msg := dto.AttendanceMessage{EventResponse: dto.NewEventResponse(ev)}
	if r.contacts != nil {
		contact, err := r.contacts.Contact(ctx, ev.Identity)
		switch {
		case err == nil:
			msg.Contact = contact
		case !errors.Is(err, models.ErrIdentityNotFound):
			slog.Warn("resolve contact for relay", "identity", ev.Identity, "error", err)
		}
	}
	return r.pub.PublishEvent(ctx, msg)
}

// Broadcaster is satisfied by ws.Hub.
type Broadcaster interface {
	BroadcastEvent(event *dto.WSEvent)
}

// WSRelay pushes committed events to live WebSocket clients.
type WSRelay struct {
	hub Broadcaster
}

func NewWSRelay(hub Broadcaster) *WSRelay {
	return &WSRelay{hub: hub}
}

func (r *WSRelay) HandleEvent(_ context.Context, ev models.AttendanceEvent) error {
	r.hub.BroadcastEvent(&dto.WSEvent{
		Type: WSEventType(ev.Kind),
		Data: dto.NewEventResponse(ev),
	})
	return nil
}

func WSEventType(kind models.EventKind) string {
	if kind == models.KindLeave {
		return "leave_recorded"
	}
	return "attendance_recorded"
}
