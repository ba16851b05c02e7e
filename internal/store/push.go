package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/meetings/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

// Create stores a subscription, refreshing the keys if the endpoint is
// already subscribed to the meeting.
func (s *PushStore) Create(ctx context.Context, meetingID, endpoint, p256dh, auth string) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (meeting_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(meeting_id, endpoint) DO UPDATE SET p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key`,
		meetingID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}

	// LastInsertId is unreliable after an upsert update; re-query.
	var sub model.PushSubscription
	err = s.db.QueryRowContext(ctx,
		`SELECT id, meeting_id, endpoint, p256dh_key, auth_key, created_at
		 FROM push_subscriptions WHERE meeting_id = ? AND endpoint = ?`, meetingID, endpoint,
	).Scan(&sub.ID, &sub.MeetingID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return &sub, nil
}

func (s *PushStore) ListByMeeting(ctx context.Context, meetingID string) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, endpoint, p256dh_key, auth_key, created_at
		 FROM push_subscriptions WHERE meeting_id = ? ORDER BY id`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.MeetingID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteByEndpoint removes an endpoint from every meeting. Used when the push
// service reports the subscription gone.
func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
