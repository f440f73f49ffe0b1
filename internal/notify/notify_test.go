package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

type contactMap map[string]string

func (c contactMap) Contact(_ context.Context, identity string) (string, error) {
	v, ok := c[identity]
	if !ok {
		return "", models.ErrIdentityNotFound
	}
	return v, nil
}

type call struct {
	name string
	args []string
}

type recordingRunner struct {
	calls []call
	err   error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, call{name: name, args: args})
	return r.err
}

func event(kind models.EventKind, identity string) models.AttendanceEvent {
	return models.NewEvent(kind, identity, "", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC))
}

func TestMailer_UsesContact(t *testing.T) {
	sender := &recordingSender{}
	m := NewMailer(sender, contactMap{"alice": "alice@example.com"}, "desk@example.com")

	require.NoError(t, m.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, []string{"alice@example.com"}, sender.msgs[0].To)
	assert.Equal(t, "presents", sender.msgs[0].Subject)
	assert.Equal(t, "alice is present.", sender.msgs[0].Body)
}

func TestMailer_FallsBackToDefault(t *testing.T) {
	sender := &recordingSender{}
	m := NewMailer(sender, contactMap{"bob": ""}, "desk@example.com")

	require.NoError(t, m.HandleEvent(context.Background(), event(models.KindAttendance, "bob")))
	require.NoError(t, m.HandleEvent(context.Background(), event(models.KindAttendance, "ghost")))

	require.Len(t, sender.msgs, 2)
	assert.Equal(t, []string{"desk@example.com"}, sender.msgs[0].To)
	assert.Equal(t, []string{"desk@example.com"}, sender.msgs[1].To)
}

func TestMailer_SkipsLeaveAndMissingRecipient(t *testing.T) {
	sender := &recordingSender{}
	m := NewMailer(sender, contactMap{}, "")

	require.NoError(t, m.HandleEvent(context.Background(), event(models.KindLeave, "alice")))
	require.NoError(t, m.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	assert.Empty(t, sender.msgs)
}

func TestMailer_PropagatesSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	m := NewMailer(sender, nil, "desk@example.com")

	err := m.HandleEvent(context.Background(), event(models.KindAttendance, "alice"))
	assert.EqualError(t, err, "smtp down")
}

func TestAbsentBody(t *testing.T) {
	assert.Equal(t, "Absenties list:\nbob\ncarol", AbsentBody([]string{"bob", "carol"}))
	assert.Equal(t, "Absenties list:", AbsentBody(nil))
}

func TestSMTPSender_NoRecipient(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "localhost", Port: 587})
	assert.ErrorIs(t, s.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipient)
}

func TestSpeaker(t *testing.T) {
	r := &recordingRunner{}
	s := NewSpeaker([]string{"espeak", "-v", "en"}, r.run)

	require.NoError(t, s.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	require.NoError(t, s.HandleEvent(context.Background(), event(models.KindLeave, "alice")))

	require.Len(t, r.calls, 2)
	assert.Equal(t, "espeak", r.calls[0].name)
	assert.Equal(t, []string{"-v", "en", "Welcome alice"}, r.calls[0].args)
	assert.Equal(t, []string{"-v", "en", "See you again alice"}, r.calls[1].args)
}

func TestSpeaker_Disabled(t *testing.T) {
	r := &recordingRunner{}
	s := NewSpeaker(nil, r.run)
	require.NoError(t, s.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	assert.Empty(t, r.calls)
}

func TestSpeaker_Error(t *testing.T) {
	r := &recordingRunner{err: errors.New("exit status 1")}
	s := NewSpeaker([]string{"espeak"}, r.run)
	assert.Error(t, s.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
}

func TestSoundPlayer(t *testing.T) {
	file := filepath.Join(t.TempDir(), "welcome.wav")
	require.NoError(t, os.WriteFile(file, []byte("RIFF"), 0o644))

	r := &recordingRunner{}
	p := NewSoundPlayer([]string{"paplay"}, file, r.run)

	require.NoError(t, p.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	require.NoError(t, p.HandleEvent(context.Background(), event(models.KindLeave, "alice")))

	require.Len(t, r.calls, 1)
	assert.Equal(t, "paplay", r.calls[0].name)
	assert.Equal(t, []string{file}, r.calls[0].args)
}

func TestSoundPlayer_MissingFile(t *testing.T) {
	r := &recordingRunner{}
	p := NewSoundPlayer([]string{"paplay"}, filepath.Join(t.TempDir(), "nope.wav"), r.run)

	require.NoError(t, p.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	assert.Empty(t, r.calls)
}

type recordingPublisher struct {
	msgs []dto.AttendanceMessage
}

func (p *recordingPublisher) PublishEvent(_ context.Context, msg dto.AttendanceMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestNATSRelay(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewNATSRelay(pub, contactMap{"alice": "alice@example.com"})

	ev := event(models.KindAttendance, "alice")
	require.NoError(t, r.HandleEvent(context.Background(), ev))
	require.NoError(t, r.HandleEvent(context.Background(), event(models.KindLeave, "ghost")))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, ev.ID, pub.msgs[0].ID)
	assert.Equal(t, "attendance", pub.msgs[0].Kind)
	assert.Equal(t, "alice@example.com", pub.msgs[0].Contact)
	assert.Equal(t, "08:30:00", pub.msgs[0].Time)
	assert.Empty(t, pub.msgs[1].Contact)
}

type recordingHub struct {
	events []*dto.WSEvent
}

func (h *recordingHub) BroadcastEvent(ev *dto.WSEvent) {
	h.events = append(h.events, ev)
}

func TestWSRelay(t *testing.T) {
	hub := &recordingHub{}
	r := NewWSRelay(hub)

	require.NoError(t, r.HandleEvent(context.Background(), event(models.KindAttendance, "alice")))
	require.NoError(t, r.HandleEvent(context.Background(), event(models.KindLeave, "alice")))

	require.Len(t, hub.events, 2)
	assert.Equal(t, "attendance_recorded", hub.events[0].Type)
	assert.Equal(t, "leave_recorded", hub.events[1].Type)
	assert.Equal(t, "alice", hub.events[1].Data.Identity)
}
