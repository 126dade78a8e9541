// Package cryptox holds the small cryptographic helpers of the capture
// server: subkey derivation and content digests.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sort"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into an n-byte subkey bound to info using
// HKDF-SHA256. Different info strings yield independent keys from the same
// secret, so one configured secret can serve several purposes.
func DeriveKey(secret []byte, info string, n int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SetDigest digests a set of strings independently of their order.
// Each element is length-prefixed so ["ab","c"] and ["a","bc"] differ.
func SetDigest(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)

	h := blake3.New()
	var n [8]byte
	for _, s := range sorted {
		l := uint64(len(s))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
