// Package session holds the ordered record log produced by one capture run.
//
// A Log has exactly one writer, the capture loop. Consumers never see the
// live log; they receive a Snapshot, an immutable copy taken either while
// the log is frozen or for display while capture is still running.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// TimestampLayout is the UTC, second precision layout used for record
// timestamps and artifact file names.
const TimestampLayout = "2006-01-02T15:04:05Z"

var (
	// ErrFrozen is returned when appending to a log that has been frozen.
	ErrFrozen = errors.New("session log is frozen")
	// ErrDuplicate is returned when a record repeats the previous fingerprint.
	ErrDuplicate = errors.New("record repeats the previous fingerprint")
)

// Record is one retained capture.
type Record struct {
	Timestamp    string `json:"timestamp"`
	Fingerprint  string `json:"fingerprint"`
	Summary      string `json:"summary"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// Stamp formats t as a record timestamp.
func Stamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Log is an append-only sequence of records.
type Log struct {
	mu      sync.RWMutex
	id      string
	records []Record
	frozen  bool
}

// NewLog creates an empty log for the given session id.
func NewLog(id string) *Log {
	return &Log{id: id}
}

// ID returns the session id.
func (l *Log) ID() string {
	return l.id
}

// Append adds a record. Consecutive records may not share a fingerprint.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return ErrFrozen
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("record at %s has no fingerprint", r.Timestamp)
	}
	if n := len(l.records); n > 0 && l.records[n-1].Fingerprint == r.Fingerprint {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.Fingerprint)
	}
	l.records = append(l.records, r)
	return nil
}

// Last returns the most recently appended record.
func (l *Log) Last() (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Freeze stops further appends and returns the final snapshot. Calling
// Freeze more than once returns the same contents.
func (l *Log) Freeze() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.frozen = true
	return l.snapshotLocked()
}

// Frozen reports whether Freeze has been called.
func (l *Log) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

// Snapshot returns a copy of the records appended so far.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Log) snapshotLocked() Snapshot {
	records := make([]Record, len(l.records))
	copy(records, l.records)
	return Snapshot{id: l.id, records: records, complete: l.frozen}
}

// Snapshot is a read-only view of a session's records.
type Snapshot struct {
	id       string
	records  []Record
	complete bool
}

// NewSnapshot builds a completed snapshot from stored records, e.g. when a
// past session is loaded from the store.
func NewSnapshot(id string, records []Record) Snapshot {
	cp := make([]Record, len(records))
	copy(cp, records)
	return Snapshot{id: id, records: cp, complete: true}
}

// ID returns the session id.
func (s Snapshot) ID() string { return s.id }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// Complete reports whether the snapshot was taken after capture finished.
func (s Snapshot) Complete() bool { return s.complete }

// At returns the record at position i.
func (s Snapshot) At(i int) Record { return s.records[i] }

// Records returns a copy of all records in session order.
func (s Snapshot) Records() []Record {
	cp := make([]Record, len(s.records))
	copy(cp, s.records)
	return cp
}

// Summaries returns the summary text of every record in session order.
func (s Snapshot) Summaries() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Summary
	}
	return out
}
