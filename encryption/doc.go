// Package encryption implements AES-256-GCM authenticated encryption with a
// rotating active key.
//
// # Wire format
//
// Sealed payloads are standard padded base64 of:
//
//	nonce(12) || ciphertext || tag(16)
//
// A fresh random nonce is drawn for every call.
//
// # Key retention
//
// The keyring holds exactly two generations: the active key and the key it
// replaced. [Service.RotateKey] promotes a new key, demotes the active one
// and zeroes anything older. [Service.RetirePrevious] ends the grace period
// early.
//
// # What this package must NOT do
//
//   - Log or return key material except through [Key.Bytes] on keys the caller owns.
//   - Return partial plaintext when authentication fails.
//   - Import any seccore package other than errs.
package encryption
