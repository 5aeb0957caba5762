package encryption

import (
	"errors"
	"time"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrInvalidKey is returned when key material is not exactly KeySize bytes.
var ErrInvalidKey = errors.New("encryption: key material must be 32 bytes")

// Key is an AES-256 encryption key. Material is held privately and only
// copied out through Bytes.
type Key struct {
	ID        string
	CreatedAt time.Time
	Active    bool

	material []byte
}

// NewKey wraps existing key material, for example a key loaded from a
// secret store. The material is copied.
func NewKey(id string, material []byte, createdAt time.Time) (Key, error) {
	if len(material) != KeySize {
		return Key{}, ErrInvalidKey
	}
	m := make([]byte, KeySize)
	copy(m, material)
	return Key{ID: id, CreatedAt: createdAt, material: m}, nil
}

// Bytes returns a copy of the key material.
func (k Key) Bytes() []byte {
	out := make([]byte, len(k.material))
	copy(out, k.material)
	return out
}

// Valid reports whether the key carries usable material.
func (k Key) Valid() bool {
	return len(k.material) == KeySize
}

// String never prints material.
func (k Key) String() string {
	return "encryption.Key(" + k.ID + ")"
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
