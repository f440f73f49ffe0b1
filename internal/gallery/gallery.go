package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"sync"

	"github.com/your-org/attendance/internal/models"
)

// Entry is one enrolled identity as seen by callers: embedding already
// decrypted.
type Entry struct {
	Identity  string           `json:"identity"`
	Embedding models.Embedding `json:"-"`
	Contact   string           `json:"contact,omitempty"`
	Encrypted bool             `json:"encrypted"`
}

// Record is the persisted unit. Embedding and contact live in one record so
// that rename and delete touch a single object. When Encrypted is set the
// embedding is only present in Sealed.
type Record struct {
	Identity  string
	Embedding models.Embedding
	Sealed    []byte
	Contact   string
	Encrypted bool
}

// Store persists records keyed by sanitised identity.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, identity string) (Record, error)
	Delete(ctx context.Context, identity string) error
	// Rename moves a record in one step, replacing any record already stored
	// under to.
	Rename(ctx context.Context, from, to string) (replaced bool, err error)
	Identities(ctx context.Context) ([]string, error)
	// All returns every readable record sorted by identity in one pass.
	All(ctx context.Context) ([]Record, error)
}

type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Face, error)
}

type FaceEncoder interface {
	Encode(ctx context.Context, img image.Image, face models.Face) (models.Embedding, error)
}

type Option func(*Gallery)

// WithCipher enables decryption of sealed records, and sealing of new ones
// when encrypt is true.
func WithCipher(c *Cipher, encrypt bool) Option {
	return func(g *Gallery) {
		g.cipher = c
		g.encrypt = encrypt && c != nil
	}
}

// WithFaceModels sets the detector and encoder used by Register.
func WithFaceModels(d FaceDetector, e FaceEncoder) Option {
	return func(g *Gallery) {
		g.detector = d
		g.encoder = e
	}
}

// Gallery maps identities to face embeddings. Writers hold the lock
// exclusively so a recognition pass never sees a half-applied rename.
type Gallery struct {
	mu       sync.RWMutex
	store    Store
	detector FaceDetector
	encoder  FaceEncoder
	cipher   *Cipher
	encrypt  bool
}

func New(store Store, opts ...Option) *Gallery {
	g := &Gallery{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func validIdentity(raw string) (string, error) {
	name := models.SanitizeIdentity(raw)
	if !models.IsResolved(name) {
		return "", fmt.Errorf("%q: %w", raw, models.ErrInvalidIdentity)
	}
	return name, nil
}

// Register extracts the first detected face in img and stores its embedding
// under identity, replacing any previous enrolment.
func (g *Gallery) Register(ctx context.Context, identity string, img image.Image, contact string) (Entry, error) {
	name, err := validIdentity(identity)
	if err != nil {
		return Entry{}, err
	}
	if g.detector == nil || g.encoder == nil {
		return Entry{}, errors.New("gallery: face models not configured")
	}

	faces, err := g.detector.Detect(ctx, img)
	if err != nil {
		return Entry{}, fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) == 0 {
		return Entry{}, models.ErrNoFaceDetected
	}
	if len(faces) > 1 {
		slog.Warn("multiple faces in enrolment image, using the first", "identity", name, "faces", len(faces))
	}

	emb, err := g.encoder.Encode(ctx, img, faces[0])
	if err != nil {
		return Entry{}, fmt.Errorf("encode face: %w", err)
	}
	return g.Put(ctx, name, emb, contact)
}

// Put stores a precomputed embedding.
func (g *Gallery) Put(ctx context.Context, identity string, emb models.Embedding, contact string) (Entry, error) {
	name, err := validIdentity(identity)
	if err != nil {
		return Entry{}, err
	}
	if len(emb) == 0 {
		return Entry{}, errors.New("gallery: empty embedding")
	}

	rec, err := g.seal(name, emb, contact)
	if err != nil {
		return Entry{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Put(ctx, rec); err != nil {
		return Entry{}, fmt.Errorf("store %s: %w", name, err)
	}

	slog.Info("identity registered", "identity", name, "encrypted", rec.Encrypted)
	return Entry{Identity: name, Embedding: emb.Clone(), Contact: contact, Encrypted: rec.Encrypted}, nil
}

func (g *Gallery) seal(name string, emb models.Embedding, contact string) (Record, error) {
	rec := Record{Identity: name, Contact: contact}
	if !g.encrypt {
		rec.Embedding = emb.Clone()
		return rec, nil
	}
	sealed, err := g.cipher.Seal(encodeEmbedding(emb))
	if err != nil {
		return Record{}, fmt.Errorf("seal %s: %w", name, err)
	}
	rec.Sealed = sealed
	rec.Encrypted = true
	return rec, nil
}

func (g *Gallery) open(rec Record) (Entry, error) {
	e := Entry{Identity: rec.Identity, Contact: rec.Contact, Encrypted: rec.Encrypted}
	if !rec.Encrypted {
		e.Embedding = rec.Embedding
		return e, nil
	}
	if g.cipher == nil {
		return Entry{}, fmt.Errorf("%s is encrypted and no key is loaded: %w", rec.Identity, models.ErrDecryption)
	}
	plain, err := g.cipher.Open(rec.Sealed)
	if err != nil {
		return Entry{}, fmt.Errorf("open %s: %w", rec.Identity, err)
	}
	emb, err := decodeEmbedding(plain)
	if err != nil {
		return Entry{}, fmt.Errorf("decode %s: %v: %w", rec.Identity, err, models.ErrDecryption)
	}
	e.Embedding = emb
	return e, nil
}

// Delete removes the embedding and contact of identity together.
func (g *Gallery) Delete(ctx context.Context, identity string) error {
	name := models.SanitizeIdentity(identity)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	slog.Info("identity deleted", "identity", name)
	return nil
}

// Rename moves identity to newIdentity, keeping its contact. It returns the
// sanitised new name. An existing newIdentity is overwritten.
func (g *Gallery) Rename(ctx context.Context, identity, newIdentity string) (string, error) {
	from := models.SanitizeIdentity(identity)
	to, err := validIdentity(newIdentity)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if from == to {
		if _, err := g.store.Get(ctx, from); err != nil {
			return "", fmt.Errorf("rename %s: %w", from, err)
		}
		return to, nil
	}

	replaced, err := g.store.Rename(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("rename %s: %w", from, err)
	}
	if replaced {
		slog.Warn("rename replaced an existing identity", "from", from, "to", to)
	}
	slog.Info("identity renamed", "from", from, "to", to)
	return to, nil
}

// List yields enrolled identities in a stable order. Each range over the
// returned sequence reads the store afresh.
func (g *Gallery) List(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		g.mu.RLock()
		names, err := g.store.Identities(ctx)
		g.mu.RUnlock()
		if err != nil {
			yield("", fmt.Errorf("list identities: %w", err))
			return
		}
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

func (g *Gallery) Load(ctx context.Context, identity string) (Entry, error) {
	name := models.SanitizeIdentity(identity)

	g.mu.RLock()
	rec, err := g.store.Get(ctx, name)
	g.mu.RUnlock()
	if err != nil {
		return Entry{}, fmt.Errorf("load %s: %w", name, err)
	}
	return g.open(rec)
}

// Contact returns the notification address stored with identity, which may
// be empty.
func (g *Gallery) Contact(ctx context.Context, identity string) (string, error) {
	name := models.SanitizeIdentity(identity)

	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, err := g.store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("contact %s: %w", name, err)
	}
	return rec.Contact, nil
}

func (g *Gallery) SetContact(ctx context.Context, identity, contact string) error {
	name := models.SanitizeIdentity(identity)

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, err := g.store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("set contact %s: %w", name, err)
	}
	rec.Contact = contact
	if err := g.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("set contact %s: %w", name, err)
	}
	return nil
}

// Snapshot returns every readable entry in List order. Entries that cannot
// be read or decrypted are logged and left out.
func (g *Gallery) Snapshot(ctx context.Context) ([]Entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	recs, err := g.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}

	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := g.open(rec)
		if err != nil {
			slog.Warn("skipping gallery entry", "identity", rec.Identity, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
