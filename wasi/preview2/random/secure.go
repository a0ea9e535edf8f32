package random

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// Namespace is the WASI interface the host implements.
const Namespace = "wasi:random/random@0.2.0"

// MaxRandomBytes caps one GetRandomBytes call.
const MaxRandomBytes = 1 << 20

// SecureRandomHost serves random bytes from a cryptographic source. The
// WASI interface has no error result, so a failing source is logged and
// answered with an empty value.
type SecureRandomHost struct {
	source io.Reader
	log    *zap.Logger
}

// NewSecureRandomHost reads from crypto/rand and logs through w.
func NewSecureRandomHost(w *preview2.WASI) *SecureRandomHost {
	return &SecureRandomHost{source: rand.Reader, log: w.Log()}
}

// WithSource replaces the entropy source.
func (h *SecureRandomHost) WithSource(r io.Reader) *SecureRandomHost {
	h.source = r
	return h
}

func (h *SecureRandomHost) Namespace() string {
	return Namespace
}

// GetRandomBytes returns n bytes, at most MaxRandomBytes.
func (h *SecureRandomHost) GetRandomBytes(n uint64) []byte {
	n = min(n, MaxRandomBytes)
	buf := make([]byte, n)
	if !h.fill(buf) {
		return nil
	}
	return buf
}

func (h *SecureRandomHost) GetRandomU64() uint64 {
	var buf [8]byte
	if !h.fill(buf[:]) {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (h *SecureRandomHost) fill(buf []byte) bool {
	if _, err := io.ReadFull(h.source, buf); err != nil {
		h.log.Error("random source failed", zap.Int("requested", len(buf)), zap.Error(err))
		return false
	}
	return true
}
