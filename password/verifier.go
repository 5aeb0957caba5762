package password

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned for stored hashes of an unknown scheme.
var ErrUnsupportedHash = errors.New("unsupported password hash scheme")

// Verifier checks a password against a stored hash of either scheme the
// credential store may hold: PHC Argon2id or bcrypt ($2a$, $2b$, $2y$).
type Verifier struct {
	argon *Argon2

	dummyOnce sync.Once
	dummy     string
}

// NewVerifier wraps an Argon2 hasher used for Argon2id hashes and for the
// dummy verification run when no user exists.
func NewVerifier(argon *Argon2) *Verifier {
	return &Verifier{argon: argon}
}

// Verify reports whether password matches encodedHash. Mismatches return
// (false, nil); only unparseable hashes produce errors.
func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return v.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		if len(password) > v.argon.config.MaxPasswordBytes {
			return false, ErrPasswordTooLong
		}
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return false, nil
		}
		return false, err
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether a hash that just verified should be replaced
// with a fresh Argon2id hash: every bcrypt hash does, as does any Argon2id
// hash produced with cheaper parameters. Unreadable hashes report false.
func (v *Verifier) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	outdated, err := v.argon.Outdated(encodedHash)
	return err == nil && outdated
}

// DummyVerify spends roughly the cost of one Argon2id verification and
// always fails. Flows call it when the user does not exist so response
// times do not reveal account existence.
func (v *Verifier) DummyVerify(password string) {
	v.dummyOnce.Do(func() {
		h, err := v.argon.Hash("dummy-password-never-matches")
		if err == nil {
			v.dummy = h
		}
	})
	if v.dummy == "" {
		return
	}
	if len(password) > v.argon.config.MaxPasswordBytes {
		password = password[:v.argon.config.MaxPasswordBytes]
	}
	_, _ = v.argon.Verify(password, v.dummy)
}

// HashBcrypt produces a bcrypt hash, for stores that still issue them.
func HashBcrypt(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}
