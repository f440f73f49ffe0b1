package gallery

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/your-org/attendance/internal/models"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Cipher seals gallery records with NaCl secretbox. The 24-byte nonce is
// prepended to every ciphertext.
type Cipher struct {
	key [keySize]byte
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("gallery key must be %d bytes, got %d", keySize, len(key))
	}
	c := &Cipher{}
	copy(c.key[:], key)
	return c, nil
}

// LoadOrCreateKey reads a base64 key file, generating one with mode 0600 if
// it does not exist yet.
func LoadOrCreateKey(path string) (*Cipher, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	return NewCipher(key)
}

func createKey(path string) (*Cipher, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Lost a race with another process; use its key.
			return LoadOrCreateKey(path)
		}
		return nil, fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(key) + "\n"); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync key file: %w", err)
	}
	return NewCipher(key)
}

func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &c.key), nil
}

// Open returns models.ErrDecryption when the ciphertext was produced with a
// different key or has been tampered with.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("sealed record too short: %w", models.ErrDecryption)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, models.ErrDecryption
	}
	return plain, nil
}
