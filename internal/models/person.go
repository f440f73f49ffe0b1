package models

import (
	"strings"
)

// Sentinel match results. They are never valid identities.
const (
	UnknownPerson  = "unknown_person"
	NoPersonsFound = "no_persons_found"
)

const unsafeIdentityChars = `\/:*?"<>|`

// Embedding is a fixed-length face descriptor produced by the encoder.
type Embedding []float32

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// SanitizeIdentity replaces path-unsafe characters with '_' and drops line
// breaks, so an identity can be used directly as a storage key.
func SanitizeIdentity(name string) string {
	name = strings.NewReplacer("\r", "", "\n", "").Replace(name)
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeIdentityChars, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

// IsResolved reports whether a match result names a real identity.
func IsResolved(name string) bool {
	return name != "" && name != UnknownPerson && name != NoPersonsFound
}
