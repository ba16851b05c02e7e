package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/meetings/internal/clock"
)

// MarkerStore keeps expiring "already sent" markers in sqlite.
type MarkerStore struct {
	db    *sql.DB
	clock clock.Clock
}

func NewMarkerStore(db *sql.DB, clk clock.Clock) *MarkerStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MarkerStore{db: db, clock: clk}
}

// Claim creates key with the given ttl unless a live marker already exists.
// It reports whether this call created the marker. The check and the write
// are a single statement, so concurrent callers cannot both win.
func (s *MarkerStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_markers (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at
		 WHERE sent_markers.expires_at <= ?`,
		key, now.Add(ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("claim marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim marker rows: %w", err)
	}
	return n == 1, nil
}

// Cleanup deletes expired markers and returns how many were removed.
func (s *MarkerStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sent_markers WHERE expires_at <= ?`, s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup markers: %w", err)
	}
	return res.RowsAffected()
}
