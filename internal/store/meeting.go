package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/meetings/internal/model"
)

const meetingColumns = `id, title, recurring, schedule_type, meeting_date, recurrence_day, recurrence_week,
	rrule, start_time, end_time, timezone, reminder_minutes, provider, domain, room,
	jaas_app_id, jaas_key_id, jaas_private_key`

type MeetingStore struct {
	db *sql.DB
}

func NewMeetingStore(db *sql.DB) *MeetingStore {
	return &MeetingStore{db: db}
}

// List returns every stored record without validating it.
func (s *MeetingStore) List(ctx context.Context) ([]model.RawMeeting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var raws []model.RawMeeting
	for rows.Next() {
		raw, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		raws = append(raws, raw)
	}
	return raws, rows.Err()
}

// ListMeetings returns every valid meeting. Records that fail validation are
// left out and reported together in the returned error, which then wraps
// one *model.ConfigError per bad record.
func (s *MeetingStore) ListMeetings(ctx context.Context) ([]model.Meeting, error) {
	raws, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		meetings []model.Meeting
		invalid  []error
	)
	for _, raw := range raws {
		m, err := model.ParseMeeting(raw)
		if err != nil {
			invalid = append(invalid, fmt.Errorf("meeting %s: %w", raw.ID, err))
			continue
		}
		meetings = append(meetings, m)
	}
	return meetings, errors.Join(invalid...)
}

// Get returns the meeting with id, or model.ErrNotFound.
func (s *MeetingStore) Get(ctx context.Context, id string) (model.Meeting, error) {
	raw, err := scanMeeting(s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Meeting{}, model.ErrNotFound
	}
	if err != nil {
		return model.Meeting{}, fmt.Errorf("get meeting: %w", err)
	}
	return model.ParseMeeting(raw)
}

// Exists reports whether a meeting with id is stored.
func (s *MeetingStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check meeting: %w", err)
	}
	return n > 0, nil
}

// Upsert validates raw and stores its canonical form.
func (s *MeetingStore) Upsert(ctx context.Context, raw model.RawMeeting) (model.Meeting, error) {
	m, err := model.ParseMeeting(raw)
	if err != nil {
		return model.Meeting{}, err
	}
	c := m.Raw()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meetings (`+meetingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, recurring = excluded.recurring, schedule_type = excluded.schedule_type,
			meeting_date = excluded.meeting_date, recurrence_day = excluded.recurrence_day,
			recurrence_week = excluded.recurrence_week, rrule = excluded.rrule,
			start_time = excluded.start_time, end_time = excluded.end_time, timezone = excluded.timezone,
			reminder_minutes = excluded.reminder_minutes, provider = excluded.provider,
			domain = excluded.domain, room = excluded.room, jaas_app_id = excluded.jaas_app_id,
			jaas_key_id = excluded.jaas_key_id, jaas_private_key = excluded.jaas_private_key,
			updated_at = CURRENT_TIMESTAMP`,
		c.ID, c.Title, c.Recurring, c.ScheduleType, c.MeetingDate, c.RecurrenceDay, c.RecurrenceWeek,
		c.RRule, c.StartTime, c.EndTime, c.Timezone, c.ReminderMinutes, c.Provider, c.Domain, c.Room,
		c.JaaSAppID, c.JaaSKeyID, c.JaaSPrivateKey,
	)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("upsert meeting: %w", err)
	}
	return m, nil
}

// Delete removes a meeting and, through foreign keys, its subscribers.
func (s *MeetingStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(sc scanner) (model.RawMeeting, error) {
	var r model.RawMeeting
	err := sc.Scan(&r.ID, &r.Title, &r.Recurring, &r.ScheduleType, &r.MeetingDate, &r.RecurrenceDay,
		&r.RecurrenceWeek, &r.RRule, &r.StartTime, &r.EndTime, &r.Timezone, &r.ReminderMinutes,
		&r.Provider, &r.Domain, &r.Room, &r.JaaSAppID, &r.JaaSKeyID, &r.JaaSPrivateKey)
	return r, err
}
