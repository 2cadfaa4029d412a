// Package archive persists captured frames to sqlite and runs the
// background worker pool that writes them off the hot capture path.
package archive

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the sqlite frame archive.
type Store struct {
	*sql.DB
}

// Open opens the archive at path, running migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			captured_at TEXT NOT NULL,
			size INTEGER NOT NULL,
			data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_frames_captured ON frames(captured_at);
	`)
	return err
}

// Frame is one archived capture.
type Frame struct {
	ID         int64
	CapturedAt time.Time
	Data       []byte
}

// Insert stores one frame stamped with the current time.
func (s *Store) Insert(data []byte) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.Exec("INSERT INTO frames (captured_at, size, data) VALUES (?, ?, ?)", now, len(data), data)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FrameByID returns one frame or nil.
func (s *Store) FrameByID(id int64) (*Frame, error) {
	var f Frame
	var t string
	err := s.QueryRow("SELECT id, captured_at, data FROM frames WHERE id = ?", id).Scan(&f.ID, &t, &f.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.CapturedAt, _ = time.Parse(time.RFC3339Nano, t)
	return &f, nil
}

// Count returns the number of archived frames.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.QueryRow("SELECT COUNT(*) FROM frames").Scan(&n)
	return n, err
}

// PruneBefore deletes frames captured before cutoff and reports how
// many went.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.Exec("DELETE FROM frames WHERE captured_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
