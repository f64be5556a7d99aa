// Package keys maps logical cache keys to storage addresses.
//
// A Codec joins an optional prefix with the key and hashes the result into a
// fixed-length hex name, so any key is safe as a file name. The hash is
// swappable; correctness only needs determinism and practical collision
// freedom.
package keys

import (
	"crypto/sha1" //nolint:gosec // naming only; keeps file names stable with existing stores
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Ext is the extension of every file the file driver owns.
const Ext = ".cache"

// Hasher turns a prefixed key into a fixed-length, filesystem-safe name.
type Hasher interface {
	Sum(s string) string
}

// SHA1 produces 40 hex chars.
type SHA1 struct{}

func (SHA1) Sum(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// SHA256 produces 64 hex chars.
type SHA256 struct{}

func (SHA256) Sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// XXHash produces 16 hex chars. Fast, but 64 bits: prefer SHA1/SHA256 for
// stores holding billions of keys.
type XXHash struct{}

func (XXHash) Sum(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// ByName resolves a hasher name as used in configuration.
func ByName(name string) (Hasher, bool) {
	switch name {
	case "", "sha1":
		return SHA1{}, true
	case "sha256":
		return SHA256{}, true
	case "xxhash":
		return XXHash{}, true
	}
	return nil, false
}

// Codec addresses keys under a fixed prefix.
type Codec struct {
	Prefix string
	Hasher Hasher // nil => SHA1
}

// Native returns the backend-native key: prefix + key.
func (c Codec) Native(key string) string {
	return c.Prefix + key
}

// File returns the file name for key: hash(prefix + key) + ".cache".
func (c Codec) File(key string) string {
	h := c.Hasher
	if h == nil {
		h = SHA1{}
	}
	return h.Sum(c.Native(key)) + Ext
}

// Path returns dir/File(key).
func (c Codec) Path(dir, key string) string {
	return filepath.Join(dir, c.File(key))
}
