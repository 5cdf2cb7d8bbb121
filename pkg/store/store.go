// Package store archives captures in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/itohio/isc0901/pkg/acq"
	"github.com/itohio/isc0901/pkg/stream"
)

// ErrNotFound is returned for an unknown capture ID.
var ErrNotFound = errors.New("capture not found")

// Capture describes one archived capture.
type Capture struct {
	ID        string
	Variant   string
	Width     int
	Height    int
	Frames    int
	Attempts  int
	CreatedAt time.Time
}

// Store is a capture archive.
type Store struct {
	*sql.DB
}

// Open opens or creates the archive at path. Use ":memory:" for a private
// in-memory archive.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// Every connection to ":memory:" is a fresh database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS captures (
			capture_id        TEXT PRIMARY KEY,
			variant           TEXT,
			width             INTEGER,
			height            INTEGER,
			frame_count       INTEGER,
			attempts          INTEGER,
			created_at        INTEGER
		);
		CREATE TABLE IF NOT EXISTS frames (
			capture_id        TEXT,
			seq               INTEGER,
			timestamp         INTEGER,
			pixels            BLOB,
			PRIMARY KEY(capture_id, seq),
			FOREIGN KEY(capture_id) REFERENCES captures(capture_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Store{db}, nil
}

// SaveCapture archives the frames of res under a new capture ID.
func (s *Store) SaveCapture(ctx context.Context, variant string, res *stream.Result) (string, error) {
	if res == nil || len(res.Frames) == 0 {
		return "", errors.New("empty capture")
	}
	first := res.Frames[0]
	id := uuid.New().String()

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO captures (capture_id, variant, width, height, frame_count, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, variant, first.Width, first.Height, len(res.Frames), res.Attempts, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert capture: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (capture_id, seq, timestamp, pixels) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range res.Frames {
		if _, err := stmt.ExecContext(ctx, id, f.Seq, f.Timestamp.UnixNano(), stream.Encode(f)); err != nil {
			return "", fmt.Errorf("failed to insert frame %d: %w", f.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit capture: %w", err)
	}
	return id, nil
}

// Captures lists archived captures, newest first.
func (s *Store) Captures(ctx context.Context) ([]Capture, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT capture_id, variant, width, height, frame_count, attempts, created_at
		 FROM captures ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var created int64
		if err := rows.Scan(&c.ID, &c.Variant, &c.Width, &c.Height, &c.Frames, &c.Attempts, &created); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		c.CreatedAt = time.Unix(0, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the capture with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Capture, error) {
	c := Capture{ID: id}
	var created int64
	err := s.QueryRowContext(ctx,
		`SELECT variant, width, height, frame_count, attempts, created_at FROM captures WHERE capture_id = ?`, id).
		Scan(&c.Variant, &c.Width, &c.Height, &c.Frames, &c.Attempts, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Capture{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Capture{}, fmt.Errorf("failed to query capture: %w", err)
	}
	c.CreatedAt = time.Unix(0, created)
	return c, nil
}

// Frames loads the frames of a capture in sequence order.
func (s *Store) Frames(ctx context.Context, id string) ([]*stream.Frame, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.QueryContext(ctx,
		`SELECT seq, timestamp, pixels FROM frames WHERE capture_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	frames := make([]*stream.Frame, 0, c.Frames)
	for rows.Next() {
		var ts int64
		var pixels []byte
		f := stream.NewFrame(c.Width, c.Height)
		if err := rows.Scan(&f.Seq, &ts, &pixels); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		if len(pixels) != len(f.Pix)*acq.BytesPerSample/2 {
			return nil, fmt.Errorf("frame %d: %w", f.Seq, stream.ErrShortFrame)
		}
		var b [acq.BytesPerSample]byte
		for i := 0; i < len(f.Pix); i += 2 {
			copy(b[:], pixels[i*2:])
			smp := acq.Decode(b)
			f.Pix[i], f.Pix[i+1] = smp.Even, smp.Odd
		}
		f.Timestamp = time.Unix(0, ts)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Delete removes a capture and its frames.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE capture_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE capture_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete capture: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}
