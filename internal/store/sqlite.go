package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/recall/internal/session"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("not found")

// ErrArtifactExists is returned when an artifact file is already on disk.
var ErrArtifactExists = errors.New("artifact already exists")

type SQLiteStore struct {
	db          *sql.DB
	artifactDir string
}

func NewSQLiteStore(dbPath, artifactDir string) (*SQLiteStore, error) {
	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	// foreign_keys is per connection, so it rides on the DSN.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:          db,
		artifactDir: artifactDir,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// ArtifactDir returns the directory artifact paths are relative to.
func (s *SQLiteStore) ArtifactDir() string {
	return s.artifactDir
}

// SetArtifactDir moves future artifact reads and writes to dir, creating
// it if needed. Stored paths stay relative, so existing rows follow.
func (s *SQLiteStore) SetArtifactDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	s.artifactDir = dir
	return nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at DATETIME,
			updated_at DATETIME,
			status TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			summary TEXT NOT NULL,
			artifact_path TEXT,
			PRIMARY KEY (session_id, position),
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			path TEXT,
			type TEXT,
			created_at DATETIME,
			digest TEXT,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

// GetConfig returns "" for keys that were never set.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Session Implementation

func (s *SQLiteStore) CreateSession(sess *Session) error {
	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = sess.CreatedAt
	}
	query := `INSERT INTO sessions (id, created_at, updated_at, status, metadata) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, sess.ID, sess.CreatedAt.UTC(), updated.UTC(), sess.Status, string(metaJSON))
	return err
}

const sessionColumns = `id, created_at, updated_at, status, metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var metaJSON string
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt, &sess.Status, &metaJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

func (s *SQLiteStore) UpdateSession(sess *Session) error {
	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `UPDATE sessions SET updated_at = ?, status = ?, metadata = ? WHERE id = ?`
	res, err := s.db.Exec(query, time.Now().UTC(), sess.Status, string(metaJSON), sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

// ListSessions returns the most recent sessions first. A limit <= 0
// returns all of them.
func (s *SQLiteStore) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) LatestSession() (*Session, error) {
	sessions, err := s.ListSessions(1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions recorded: %w", ErrNotFound)
	}
	return sessions[0], nil
}

// Record Implementation

func (s *SQLiteStore) AppendRecord(sessionID string, position int, rec session.Record) error {
	query := `INSERT INTO records (session_id, position, timestamp, fingerprint, summary, artifact_path) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, sessionID, position, rec.Timestamp, rec.Fingerprint, rec.Summary, rec.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to append record %d: %w", position, err)
	}
	return nil
}

// ListRecords returns a session's records in capture order.
func (s *SQLiteStore) ListRecords(sessionID string) ([]session.Record, error) {
	query := `SELECT timestamp, fingerprint, summary, COALESCE(artifact_path, '') FROM records WHERE session_id = ? ORDER BY position`
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var r session.Record
		if err := rows.Scan(&r.Timestamp, &r.Fingerprint, &r.Summary, &r.ArtifactPath); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Artifact Implementation

// SaveArtifact writes content under ArtifactDir and records its metadata.
// An existing file is never overwritten, and the file is removed again if
// the row cannot be inserted.
func (s *SQLiteStore) SaveArtifact(artifact *Artifact, content []byte) error {
	fullPath := filepath.Join(s.artifactDir, artifact.Path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrArtifactExists, artifact.Path)
		}
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	_, err = f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write artifact content: %w", err)
	}

	query := `INSERT INTO artifacts (id, session_id, path, type, created_at, digest) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, artifact.ID, artifact.SessionID, artifact.Path, artifact.Type, artifact.CreatedAt.UTC(), artifact.Digest); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetArtifact(id string) (*Artifact, []byte, error) {
	// 1. Get metadata
	query := `SELECT id, session_id, path, type, created_at, digest FROM artifacts WHERE id = ?`
	row := s.db.QueryRow(query, id)

	var artifact Artifact
	if err := row.Scan(&artifact.ID, &artifact.SessionID, &artifact.Path, &artifact.Type, &artifact.CreatedAt, &artifact.Digest); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return nil, nil, err
	}

	// 2. Get content
	fullPath := filepath.Join(s.artifactDir, artifact.Path)
	content, err := os.ReadFile(fullPath) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact content: %w", err)
	}

	return &artifact, content, nil
}

func (s *SQLiteStore) ListArtifacts(sessionID string) ([]*Artifact, error) {
	query := `SELECT id, session_id, path, type, created_at, digest FROM artifacts WHERE session_id = ? ORDER BY created_at, rowid`
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Path, &a.Type, &a.CreatedAt, &a.Digest); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}
