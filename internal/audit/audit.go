// Package audit records a one-entry manifest of the most recent tool
// invocation. Only a fingerprint of the input is kept, never the input
// itself.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Mode names the tool that produced an entry.
type Mode string

const (
	ModeExecute Mode = "execute"
	ModeRead    Mode = "read"
	ModeExplain Mode = "explain"
	ModeLint    Mode = "lint"
	ModeAnalyze Mode = "analyze"
	ModeSuggest Mode = "suggest"
)

// Status is the outcome of the invocation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusDenied  Status = "denied"
	StatusSkipped Status = "skipped"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// ErrNoEntry is returned by Last before anything was recorded.
var ErrNoEntry = errors.New("no manifest entry recorded")

// Entry is the manifest record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
	InputHash string    `json:"input_hash"`
	Status    Status    `json:"status"`
}

// NewEntry stamps an entry for input with the current time.
func NewEntry(mode Mode, input string, status Status) Entry {
	return Entry{
		Timestamp: time.Now().UTC(),
		Mode:      mode,
		InputHash: Fingerprint(input),
		Status:    status,
	}
}

// Fingerprint returns the first 16 hex characters of the sha256 of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Recorder persists the manifest. Each Record replaces the previous entry.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Last(ctx context.Context) (Entry, error)
}
