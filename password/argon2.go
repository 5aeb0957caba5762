package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 10
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps password input when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooLong is returned for inputs above the configured byte cap.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrPasswordTooShort is returned by Hash for inputs under 10 bytes.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	// ErrMalformedHash is returned when a stored Argon2id hash cannot be decoded.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds Argon2id cost parameters.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 hashes and verifies PHC-encoded Argon2id hashes.
type Argon2 struct {
	config Config
}

// params are the cost settings embedded in a stored hash.
type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

// storedHash is a decoded PHC string.
type storedHash struct {
	params
	salt []byte
	key  []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh salted Argon2id key for password and returns it in
// PHC form. Passwords are hashed as raw bytes, without normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	p := params{memory: a.config.Memory, time: a.config.Time, parallelism: a.config.Parallelism}
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.parallelism, a.config.KeyLength)
	return encodeHash(p, salt, key), nil
}

// Verify recomputes the hash with the stored parameters and compares in
// constant time. Malformed hashes are errors, not mismatches.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1, nil
}

// Outdated reports whether encodedHash was produced with cheaper settings
// than a's, so the password should be hashed again on its next successful
// verification.
func (a *Argon2) Outdated(encodedHash string) (bool, error) {
	h, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	return h.memory < a.config.Memory ||
		h.time < a.config.Time ||
		h.parallelism < a.config.Parallelism ||
		uint32(len(h.key)) != a.config.KeyLength, nil
}

func encodeHash(p params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$%s$%s$%s",
		algorithmID,
		argon2.Version,
		p.String(),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func (p params) String() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism)
}

// decodeHash splits $argon2id$v=19$m=..,t=..,p=..$salt$key. Every segment
// must re-encode to exactly what was read, so padding variants, reordered
// parameters and trailing bytes are all rejected.
func decodeHash(encoded string) (*storedHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || fields[2] != "v="+strconv.Itoa(version) {
		return nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedHash, version)
	}

	var p params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil || fields[3] != p.String() {
		return nil, ErrMalformedHash
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	salt, err := decodeSegment(fields[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, ErrMalformedHash
	}
	key, err := decodeSegment(fields[5])
	if err != nil || len(key) == 0 {
		return nil, ErrMalformedHash
	}
	return &storedHash{params: p, salt: salt, key: key}, nil
}

// decodeSegment accepts unpadded base64, the PHC convention, and padded
// base64 for hashes written by older releases.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func (c Config) validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Memory >= minMemoryKB, "password memory must be >= 8192 KB"},
		{c.Time >= minTimeCost, "password time must be >= 1"},
		{c.Parallelism >= minParallelism, "password parallelism must be >= 1"},
		{c.SaltLength >= minSaltLength, "password salt length must be >= 16"},
		{c.KeyLength >= minKeyLength, "password key length must be >= 16"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return errors.New(chk.msg)
		}
	}
	return nil
}
