package store

import (
	"time"

	"github.com/felixgeelhaar/recall/internal/session"
)

// Session statuses.
const (
	StatusCapturing = "capturing"
	StatusComplete  = "complete"
	StatusAborted   = "aborted"
)

// Session represents one capture run.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
}

// Artifact represents a file written during capture, e.g. a PNG frame.
type Artifact struct {
	ID        string
	SessionID string
	Path      string // Relative path in the artifact store
	Type      string // e.g., "capture"
	CreatedAt time.Time
	Digest    string // Content fingerprint
}

// Storage defines the interface for persistence
type Storage interface {
	// Session Management
	CreateSession(session *Session) error
	GetSession(id string) (*Session, error)
	UpdateSession(session *Session) error
	ListSessions(limit int) ([]*Session, error)
	LatestSession() (*Session, error)

	// Record Management
	AppendRecord(sessionID string, position int, rec session.Record) error
	ListRecords(sessionID string) ([]session.Record, error)

	// Artifact Management
	// SaveArtifact persists the metadata and the content
	SaveArtifact(artifact *Artifact, content []byte) error
	GetArtifact(id string) (*Artifact, []byte, error)
	ListArtifacts(sessionID string) ([]*Artifact, error)

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
