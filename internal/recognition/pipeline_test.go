package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/liveness"
	"github.com/your-org/attendance/internal/match"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
)

var testNow = time.Date(2024, 3, 1, 8, 45, 0, 0, time.Local)

type stubDetector struct {
	faces []models.Face
}

func (d *stubDetector) Detect(context.Context, image.Image) ([]models.Face, error) {
	return d.faces, nil
}

// stubEncoder maps a face to a fixed embedding keyed by the box origin.
type stubEncoder map[int]models.Embedding

func (e stubEncoder) Encode(_ context.Context, _ image.Image, f models.Face) (models.Embedding, error) {
	if emb, ok := e[f.Box.Min.X]; ok {
		return emb, nil
	}
	return models.Embedding{9, 9}, nil
}

// failingEncoder fails for faces whose box starts at one of the given X
// origins and defers to next otherwise.
type failingEncoder struct {
	fail map[int]bool
	next stubEncoder
}

func (e failingEncoder) Encode(ctx context.Context, img image.Image, f models.Face) (models.Embedding, error) {
	if e.fail[f.Box.Min.X] {
		return nil, errors.New("encoder: bad crop")
	}
	return e.next.Encode(ctx, img, f)
}

type stubGallery []gallery.Entry

func (g stubGallery) Snapshot(context.Context) ([]gallery.Entry, error) {
	return g, nil
}

func liveFace(x int) models.Face {
	box := image.Rect(x, 10, x+20, 30)
	return models.Face{
		Box:       box,
		Landmarks: []image.Point{{x + 5, 15}, {x + 15, 15}, {x + 10, 20}, {x + 6, 25}, {x + 14, 25}},
		Score:     0.9,
	}
}

func flatFace(x int) models.Face {
	return models.Face{Box: image.Rect(x, 10, x+20, 30), Score: 0.9}
}

type fixture struct {
	pipeline *Pipeline
	detector *stubDetector
	ledger   *ledger.Ledger
	evidence *storage.DirStore
	slot     *capture.FrameSlot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := ledger.OpenCSVStore(filepath.Join(dir, "attendance.csv"), filepath.Join(dir, "leave.csv"))
	require.NoError(t, err)
	led := ledger.New(store, ledger.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = led.Close() })

	evidence, err := storage.NewDirStore(filepath.Join(dir, "images"))
	require.NoError(t, err)

	det := &stubDetector{}
	gate, err := liveness.New(liveness.Landmark, 0, det)
	require.NoError(t, err)
	matcher, err := match.New(0.1, match.Euclidean, match.First)
	require.NoError(t, err)

	slot := &capture.FrameSlot{}
	p, err := New(Deps{
		Detector: det,
		Encoder: stubEncoder{
			10: {1, 0},
			50: {0, 1},
		},
		Gate: gate,
		Gallery: stubGallery{
			{Identity: "alice", Embedding: models.Embedding{1, 0}},
			{Identity: "bob", Embedding: models.Embedding{0, 1}},
		},
		Matcher:  matcher,
		Ledger:   led,
		Evidence: evidence,
		Frames:   slot,
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return &fixture{pipeline: p, detector: det, ledger: led, evidence: evidence, slot: slot}
}

func jpegFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 40)), nil))
	return buf.Bytes()
}

func (f *fixture) evidenceKeys(t *testing.T) []string {
	t.Helper()
	keys, err := f.evidence.ListObjects(context.Background(), EvidencePrefix)
	require.NoError(t, err)
	return keys
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestProcessFrame_CommitsOncePerDay(t *testing.T) {
	f := newFixture(t)
	f.detector.faces = []models.Face{liveFace(10), liveFace(50), liveFace(90)}
	frame := &capture.Frame{Seq: 1, Data: jpegFrame(t)}
	ctx := context.Background()

	evs, err := f.pipeline.ProcessFrame(ctx, frame)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "alice", evs[0].Identity)
	assert.Equal(t, "bob", evs[1].Identity)
	assert.Equal(t, "evidence/alice_20240301_084500.jpg", evs[0].EvidenceRef)
	assert.Len(t, f.evidenceKeys(t), 2)

	evs, err = f.pipeline.ProcessFrame(ctx, frame)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Len(t, f.evidenceKeys(t), 2)

	all, err := f.ledger.Attendance(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProcessFrame_SameIdentityTwiceInFrame(t *testing.T) {
	f := newFixture(t)
	// Both faces encode to alice.
	f.pipeline.Encoder = stubEncoder{10: {1, 0}, 50: {1, 0}}
	f.detector.faces = []models.Face{liveFace(10), liveFace(50)}

	evs, err := f.pipeline.ProcessFrame(context.Background(), &capture.Frame{Data: jpegFrame(t)})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "alice", evs[0].Identity)
}

func TestProcessFrame_SpoofCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.detector.faces = []models.Face{flatFace(10)}

	evs, err := f.pipeline.ProcessFrame(context.Background(), &capture.Frame{Data: jpegFrame(t)})
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Empty(t, f.evidenceKeys(t))
}

func TestProcessFrame_BadFrame(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.ProcessFrame(context.Background(), &capture.Frame{Data: []byte("garbage")})
	assert.Error(t, err)

	// HandleFrame logs and swallows the error.
	f.pipeline.HandleFrame(context.Background(), &capture.Frame{Data: []byte("garbage")})
}

func TestProcessFrame_NoEvidenceStore(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Evidence = nil
	f.detector.faces = []models.Face{liveFace(10)}

	evs, err := f.pipeline.ProcessFrame(context.Background(), &capture.Frame{Data: jpegFrame(t)})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Empty(t, evs[0].EvidenceRef)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.slot.Store(jpegFrame(t), testNow)

	f.detector.faces = []models.Face{liveFace(10)}
	res, err := f.pipeline.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, Welcome, res.Outcome)
	assert.Equal(t, "alice", res.Identity)
	require.NotNil(t, res.Event)
	assert.Equal(t, models.KindAttendance, res.Event.Kind)
	assert.Equal(t, "Welcome, alice.", res.Message())

	res, err = f.pipeline.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlreadyRecorded, res.Outcome)
	assert.Nil(t, res.Event)
	assert.Len(t, f.evidenceKeys(t), 1)
}

func TestLogout_NotDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.slot.Store(jpegFrame(t), testNow)
	f.detector.faces = []models.Face{liveFace(50)}

	for range 2 {
		res, err := f.pipeline.Logout(ctx)
		require.NoError(t, err)
		assert.Equal(t, Goodbye, res.Outcome)
		assert.Equal(t, "bob", res.Identity)
		assert.Equal(t, "See you again bob.", res.Message())
	}

	leaves, err := f.ledger.Leaves(ctx, ledger.Filter{Identity: "bob"})
	require.NoError(t, err)
	assert.Len(t, leaves, 2)
}

func TestSession_Outcomes(t *testing.T) {
	tests := []struct {
		name  string
		faces []models.Face
		want  Outcome
	}{
		{"no face", nil, NoFace},
		{"spoof", []models.Face{flatFace(10)}, Spoof},
		{"unknown", []models.Face{liveFace(90)}, Unknown},
		{"first face decides", []models.Face{liveFace(90), liveFace(10)}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.slot.Store(jpegFrame(t), testNow)
			f.detector.faces = tt.faces

			res, err := f.pipeline.Login(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.NotEmpty(t, res.Message())
		})
	}
}

func TestSession_NoFrame(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Login(context.Background())
	assert.ErrorIs(t, err, models.ErrCameraUnavailable)
}

func TestLogin_FirstFaceFailsToEncode(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Encoder = failingEncoder{
		fail: map[int]bool{10: true},
		next: stubEncoder{50: {0, 1}},
	}
	f.slot.Store(jpegFrame(t), testNow)
	f.detector.faces = []models.Face{liveFace(10), liveFace(50)}

	res, err := f.pipeline.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Outcome)
	assert.Empty(t, res.Identity)

	all, err := f.ledger.Attendance(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAnalyse_UnencodableFaceIsUnknown(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Encoder = failingEncoder{
		fail: map[int]bool{10: true},
		next: stubEncoder{50: {0, 1}},
	}
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))

	f.detector.faces = []models.Face{liveFace(10)}
	a, err := f.pipeline.analyse(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, a.results, 1)
	assert.Equal(t, models.UnknownPerson, a.results[0].Identity)

	f.detector.faces = []models.Face{liveFace(10), liveFace(50)}
	a, err = f.pipeline.analyse(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, a.results, 2)
	assert.Equal(t, models.UnknownPerson, a.results[0].Identity)
	assert.Equal(t, "bob", a.results[1].Identity)

	evs, err := f.pipeline.ProcessFrame(context.Background(), &capture.Frame{Data: jpegFrame(t)})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "bob", evs[0].Identity)
}

func TestSession_WritesAuditLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.txt")
	audit, err := ledger.OpenSessionLog(path)
	require.NoError(t, err)
	f.pipeline.Audit = audit
	f.slot.Store(jpegFrame(t), testNow)

	f.detector.faces = []models.Face{liveFace(10)}
	for range 2 {
		_, err := f.pipeline.Login(ctx)
		require.NoError(t, err)
	}
	_, err = f.pipeline.Logout(ctx)
	require.NoError(t, err)

	// Unresolved sessions leave no trace.
	f.detector.faces = []models.Face{liveFace(90)}
	_, err = f.pipeline.Login(ctx)
	require.NoError(t, err)
	require.NoError(t, audit.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"alice,2024-03-01 08:45:00.000000,in\n"+
			"alice,2024-03-01 08:45:00.000000,in\n"+
			"alice,2024-03-01 08:45:00.000000,out\n",
		string(data))
}

type brokenAudit struct{}

func (brokenAudit) Record(context.Context, string, models.EventKind, time.Time) error {
	return errors.New("disk full")
}

func TestSession_AuditFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Audit = brokenAudit{}
	f.slot.Store(jpegFrame(t), testNow)
	f.detector.faces = []models.Face{liveFace(10)}

	res, err := f.pipeline.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Welcome, res.Outcome)
}
