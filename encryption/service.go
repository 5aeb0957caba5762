package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/coreos-platform/seccore/errs"
)

const (
	// NonceSize is the GCM nonce length prefixed to every sealed payload.
	NonceSize = 12
	// TagSize is the GCM authentication tag length appended to every sealed payload.
	TagSize = 16
)

// Config configures a Service.
type Config struct {
	// Rand supplies key material and nonces. Defaults to crypto/rand.Reader.
	Rand io.Reader
	// Now stamps key creation times. Defaults to time.Now.
	Now func() time.Time
	// Logger receives key lifecycle events. Material is never logged.
	Logger *zap.Logger
	// InitialKey seeds the active key. When empty a fresh key is generated.
	InitialKey []byte
	// InitialKeyID names InitialKey. When empty a ULID is assigned.
	InitialKeyID string
}

type entry struct {
	key  Key
	aead cipher.AEAD
}

// keyring is immutable once published; rotation builds a new one.
type keyring struct {
	active   *entry
	previous *entry
}

// Service performs AES-256-GCM encryption with a rotating active key and a
// single retained previous key for grace-period decryption.
//
// Encrypt and Decrypt are lock-free and read a keyring snapshot. RotateKey,
// RetirePrevious and DeriveSecret serialize on an internal mutex.
type Service struct {
	mu     sync.Mutex
	ring   atomic.Pointer[keyring]
	rand   io.Reader
	now    func() time.Time
	logger *zap.Logger
}

// New builds a Service with one active key.
func New(cfg Config) (*Service, error) {
	s := &Service{
		rand:   cfg.Rand,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	var (
		k   Key
		err error
	)
	if len(cfg.InitialKey) > 0 {
		id := cfg.InitialKeyID
		if id == "" {
			if id, err = s.newID(); err != nil {
				return nil, err
			}
		}
		k, err = NewKey(id, cfg.InitialKey, s.now())
	} else {
		k, err = s.GenerateKey()
	}
	if err != nil {
		return nil, err
	}
	e, err := newEntry(k)
	if err != nil {
		return nil, err
	}
	s.ring.Store(&keyring{active: e})
	return s, nil
}

// GenerateKey returns a fresh 32-byte key. It does not change the active key.
func (s *Service) GenerateKey() (Key, error) {
	m := make([]byte, KeySize)
	if _, err := io.ReadFull(s.rand, m); err != nil {
		return Key{}, errs.ErrKeyGeneration.Wrap(err)
	}
	id, err := s.newID()
	if err != nil {
		zero(m)
		return Key{}, err
	}
	return Key{ID: id, CreatedAt: s.now().UTC(), material: m}, nil
}

func (s *Service) newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(s.now()), s.rand)
	if err != nil {
		return "", errs.ErrKeyGeneration.Wrap(err)
	}
	return id.String(), nil
}

func newEntry(k Key) (*entry, error) {
	if !k.Valid() {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(k.material)
	if err != nil {
		return nil, fmt.Errorf("encryption: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: gcm: %w", err)
	}
	return &entry{key: k, aead: aead}, nil
}

// Encrypt seals plaintext with the active key.
func (s *Service) Encrypt(plaintext []byte) (string, error) {
	return s.seal(s.ring.Load().active.aead, plaintext, nil)
}

// EncryptWithAAD seals plaintext with the active key and binds aad to the tag.
// The same aad must be presented to DecryptWithAAD.
func (s *Service) EncryptWithAAD(plaintext, aad []byte) (string, error) {
	return s.seal(s.ring.Load().active.aead, plaintext, aad)
}

// EncryptWithKey seals plaintext with an explicit key.
func (s *Service) EncryptWithKey(k Key, plaintext []byte) (string, error) {
	e, err := newEntry(k)
	if err != nil {
		return "", err
	}
	return s.seal(e.aead, plaintext, nil)
}

func (s *Service) seal(aead cipher.AEAD, plaintext, aad []byte) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", errs.ErrKeyGeneration.Wrap(fmt.Errorf("nonce: %w", err))
	}
	out := aead.Seal(nonce, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens sealed with the active key, falling back to the retained
// previous key. Any failure is reported as errs.ErrDecryptionAuthFailed and
// no plaintext is returned.
func (s *Service) Decrypt(sealed string) ([]byte, error) {
	return s.DecryptWithAAD(sealed, nil)
}

// DecryptWithAAD is Decrypt for payloads sealed by EncryptWithAAD.
func (s *Service) DecryptWithAAD(sealed string, aad []byte) ([]byte, error) {
	raw, err := decode(sealed)
	if err != nil {
		return nil, err
	}
	ring := s.ring.Load()
	if pt, err := open(ring.active.aead, raw, aad); err == nil {
		return pt, nil
	}
	if ring.previous != nil {
		if pt, err := open(ring.previous.aead, raw, aad); err == nil {
			return pt, nil
		}
	}
	return nil, errs.ErrDecryptionAuthFailed
}

// DecryptWithKey opens sealed with an explicit key only.
func (s *Service) DecryptWithKey(k Key, sealed string) ([]byte, error) {
	e, err := newEntry(k)
	if err != nil {
		return nil, errs.ErrDecryptionAuthFailed.Wrap(err)
	}
	raw, err := decode(sealed)
	if err != nil {
		return nil, err
	}
	pt, err := open(e.aead, raw, nil)
	if err != nil {
		return nil, errs.ErrDecryptionAuthFailed
	}
	return pt, nil
}

func decode(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, errs.ErrDecryptionAuthFailed.WithMessage("decryption authentication failed: malformed payload")
	}
	if len(raw) < NonceSize+TagSize {
		return nil, errs.ErrDecryptionAuthFailed.WithMessage("decryption authentication failed: payload too short")
	}
	return raw, nil
}

func open(aead cipher.AEAD, raw, aad []byte) ([]byte, error) {
	return aead.Open(nil, raw[:NonceSize], raw[NonceSize:], aad)
}

// RotateKey installs a freshly generated active key. The former active key is
// kept for decryption only; any key older than that is dropped and zeroed.
// The returned Key carries a copy of the new material so callers can persist it.
func (s *Service) RotateKey() (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := s.GenerateKey()
	if err != nil {
		s.logger.Error("encryption key rotation failed", zap.Error(err))
		return Key{}, err
	}
	e, err := newEntry(k)
	if err != nil {
		return Key{}, err
	}

	old := s.ring.Load()
	s.ring.Store(&keyring{active: e, previous: old.active})
	if old.previous != nil {
		zero(old.previous.key.material)
	}

	s.logger.Info("encryption key rotated",
		zap.String("key_id", k.ID),
		zap.String("previous_key_id", old.active.key.ID),
	)
	out := k
	out.Active = true
	out.material = k.Bytes()
	return out, nil
}

// RetirePrevious ends the grace period early. Payloads sealed under the
// previous key stop decrypting.
func (s *Service) RetirePrevious() {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.ring.Load()
	if old.previous == nil {
		return
	}
	s.ring.Store(&keyring{active: old.active})
	zero(old.previous.key.material)
	s.logger.Info("encryption key retired", zap.String("key_id", old.previous.key.ID))
}

// ActiveKey returns the active key's metadata. Material is not included.
func (s *Service) ActiveKey() Key {
	k := s.ring.Load().active.key
	return Key{ID: k.ID, CreatedAt: k.CreatedAt, Active: true}
}

// PreviousKeyID returns the id of the key retained for grace-period
// decryption, or "" when none is retained.
func (s *Service) PreviousKeyID() string {
	if p := s.ring.Load().previous; p != nil {
		return p.key.ID
	}
	return ""
}

// KeyIDs lists retained key ids, active first.
func (s *Service) KeyIDs() []string {
	ring := s.ring.Load()
	ids := []string{ring.active.key.ID}
	if ring.previous != nil {
		ids = append(ids, ring.previous.key.ID)
	}
	return ids
}

// DeriveSecret derives a 32-byte secret from the active key with HKDF-SHA256.
// info separates derived secrets by purpose. A rotation changes every
// derived secret.
func (s *Service) DeriveSecret(info string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := hkdf.New(sha256.New, s.ring.Load().active.key.material, nil, []byte(info))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("encryption: derive secret: %w", err)
	}
	return out, nil
}
