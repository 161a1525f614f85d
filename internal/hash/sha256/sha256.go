// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"go.uber.org/zap"
)

// fileChunkSize bounds memory while hashing arbitrarily large artifacts.
const fileChunkSize = 4096

// Hasher computes SHA-256 digests over byte slices and files.
type Hasher struct {
	logger *zap.Logger
}

// New returns a SHA-256 hasher.
func New(logger *zap.Logger) *Hasher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hasher{logger: logger}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile digests the file at path, reading in fixed-size chunks so memory
// stays bounded regardless of artifact size. It returns the empty string when
// the file cannot be read; callers treat that as "no hash available" rather
// than a pipeline failure.
func (h *Hasher) HashFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("open file for hashing failed",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	defer f.Close() //nolint:errcheck

	digest := sha256.New()
	buf := make([]byte, fileChunkSize)
	if _, err := io.CopyBuffer(digest, f, buf); err != nil {
		h.logger.Error("read file for hashing failed",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	return hex.EncodeToString(digest.Sum(nil))
}
