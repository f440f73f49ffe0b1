package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

const (
	PresentSubject = "presents"
	AbsentSubject  = "absenties"
)

type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []string
}

// Sender delivers a single message. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("no recipient")

type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, path := range msg.Attachments {
		m.AttachFile(path)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// ContactBook resolves the contact address stored with an identity.
type ContactBook interface {
	Contact(ctx context.Context, identity string) (string, error)
}

// Mailer emails a "present" notice for every committed attendance event.
type Mailer struct {
	sender    Sender
	contacts  ContactBook
	defaultTo string
}

func NewMailer(sender Sender, contacts ContactBook, defaultTo string) *Mailer {
	return &Mailer{sender: sender, contacts: contacts, defaultTo: defaultTo}
}

func (m *Mailer) recipient(ctx context.Context, identity string) string {
	if m.contacts != nil {
		contact, err := m.contacts.Contact(ctx, identity)
		if err != nil && !errors.Is(err, models.ErrIdentityNotFound) {
			slog.Warn("resolve contact", "identity", identity, "error", err)
		}
		if contact != "" {
			return contact
		}
	}
	return m.defaultTo
}

// HandleEvent is an events.Handler.
func (m *Mailer) HandleEvent(ctx context.Context, ev models.AttendanceEvent) error {
	if ev.Kind != models.KindAttendance {
		return nil
	}
	return m.SendPresent(ctx, ev.Identity, m.recipient(ctx, ev.Identity))
}

// SendPresent sends the present notice for identity to addr, falling back
// to the default recipient.
func (m *Mailer) SendPresent(ctx context.Context, identity, addr string) error {
	if addr == "" {
		addr = m.defaultTo
	}
	if addr == "" {
		slog.Debug("no recipient for present notice", "identity", identity)
		return nil
	}
	return m.sender.Send(ctx, Message{
		To:      []string{addr},
		Subject: PresentSubject,
		Body:    PresentBody(identity),
	})
}

func PresentBody(identity string) string {
	return identity + " is present."
}

// AbsentBody lists absentees one per line.
func AbsentBody(names []string) string {
	body := "Absenties list:"
	for _, n := range names {
		body += "\n" + n
	}
	return body
}
