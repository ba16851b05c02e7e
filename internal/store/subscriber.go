package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/meetings/internal/model"
)

type SubscriberStore struct {
	db *sql.DB
}

func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Add subscribes email to a meeting. Adding an existing address is a no-op;
// added reports whether a new row was written.
func (s *SubscriberStore) Add(ctx context.Context, meetingID, email string) (added bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscribers (meeting_id, email) VALUES (?, ?)`,
		meetingID, model.NormalizeEmail(email),
	)
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Remove unsubscribes email from a meeting, or returns model.ErrNotFound.
func (s *SubscriberStore) Remove(ctx context.Context, meetingID, email string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE meeting_id = ? AND email = ?`,
		meetingID, model.NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("remove subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SubscriberStore) ListByMeeting(ctx context.Context, meetingID string) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meeting_id, email, created_at FROM subscribers WHERE meeting_id = ? ORDER BY email`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		if err := rows.Scan(&sub.MeetingID, &sub.Email, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListRecipients returns every email and push target for a meeting.
func (s *SubscriberStore) ListRecipients(ctx context.Context, meetingID string) ([]model.Recipient, error) {
	subs, err := s.ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	pushSubs, err := NewPushStore(s.db).ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, 0, len(subs)+len(pushSubs))
	for _, sub := range subs {
		recipients = append(recipients, model.Recipient{Channel: model.ChannelEmail, Email: sub.Email})
	}
	for i := range pushSubs {
		recipients = append(recipients, model.Recipient{Channel: model.ChannelPush, Push: &pushSubs[i]})
	}
	return recipients, nil
}
