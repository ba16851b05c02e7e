package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/meetings/internal/model"
)

type MailingListStore struct {
	db *sql.DB
}

func NewMailingListStore(db *sql.DB) *MailingListStore {
	return &MailingListStore{db: db}
}

// Join adds email to the mailing list. The first meeting that sourced the
// address is kept.
func (s *MailingListStore) Join(ctx context.Context, email, meetingID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mailing_list (email, meeting_id) VALUES (?, ?)`,
		model.NormalizeEmail(email), meetingID,
	)
	if err != nil {
		return fmt.Errorf("join mailing list: %w", err)
	}
	return nil
}

func (s *MailingListStore) List(ctx context.Context) ([]model.MailingListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, meeting_id, created_at FROM mailing_list ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list mailing list: %w", err)
	}
	defer rows.Close()

	var entries []model.MailingListEntry
	for rows.Next() {
		var e model.MailingListEntry
		if err := rows.Scan(&e.Email, &e.MeetingID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mailing list entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
