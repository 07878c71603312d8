// Package dedup decides whether a capture repeats content that was already
// summarized.
package dedup

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the hex encoded BLAKE3-256 digest of encoded capture
// bytes.
func Fingerprint(encoded []byte) string {
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// Mode names a deduplication policy.
type Mode string

const (
	// ModeConsecutive compares only against the last retained capture.
	ModeConsecutive Mode = "consecutive"
	// ModeHistory compares against every capture retained in the session.
	ModeHistory Mode = "history"
)

// Deduplicator tracks retained fingerprints for one session.
type Deduplicator interface {
	// Duplicate reports whether fp should be discarded.
	Duplicate(fp string) bool
	// Retain records fp as the latest retained capture.
	Retain(fp string)
}

// New returns the deduplicator for mode.
func New(mode Mode) (Deduplicator, error) {
	switch mode {
	case "", ModeConsecutive:
		return &Consecutive{}, nil
	case ModeHistory:
		return NewHistory(), nil
	default:
		return nil, fmt.Errorf("unknown dedup mode %q (use %s or %s)", mode, ModeConsecutive, ModeHistory)
	}
}

// Consecutive keeps a single fingerprint. A frame identical to one two
// captures back but different from its predecessor is retained.
type Consecutive struct {
	last string
}

// Duplicate reports whether fp matches the previous retained frame.
func (c *Consecutive) Duplicate(fp string) bool {
	return c.last != "" && c.last == fp
}

// Retain makes fp the frame the next capture is compared against.
func (c *Consecutive) Retain(fp string) {
	c.last = fp
}

// History keeps every retained fingerprint in the session.
type History struct {
	seen map[string]struct{}
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{seen: make(map[string]struct{})}
}

// Duplicate reports whether fp was retained earlier in the session.
func (h *History) Duplicate(fp string) bool {
	_, ok := h.seen[fp]
	return ok
}

// Retain adds fp to the session history.
func (h *History) Retain(fp string) {
	h.seen[fp] = struct{}{}
}
