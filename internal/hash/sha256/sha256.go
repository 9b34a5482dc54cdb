// Package sha256 fingerprints input datasets so a resumed run can tell
// whether the file underneath it changed.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hasher computes hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashReader streams r through the digest.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	d := sha256.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// HashFile digests the file at path without loading it into memory.
func (h *Hasher) HashFile(path string) (string, error) {
	// #nosec G304 -- the input path is operator supplied.
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return h.HashReader(f)
}
