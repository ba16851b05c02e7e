package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/model"
	"github.com/dukerupert/meetings/internal/recurrence"
)

const (
	// Tolerance widens the reminder window to cover the gap between ticks.
	Tolerance = 300 * time.Second
	// MarkerTTL is how long a sent marker suppresses repeat reminders.
	MarkerTTL = 24 * time.Hour
)

// Repository lists the meetings to consider on each pass.
type Repository interface {
	ListMeetings(ctx context.Context) ([]model.Meeting, error)
}

// Audience resolves who gets a meeting's reminders.
type Audience interface {
	ListRecipients(ctx context.Context, meetingID string) ([]model.Recipient, error)
}

// Notifier delivers one reminder to one recipient.
type Notifier interface {
	Notify(ctx context.Context, r model.Recipient, rem Reminder) error
}

// MarkerStore atomically creates a marker unless a live one exists, and
// reports whether this call created it.
type MarkerStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Reminder is the message sent for one occurrence.
type Reminder struct {
	MeetingID  string
	Title      string
	Occurrence recurrence.Occurrence
	Subject    string
	Body       string
}

// NewReminder renders the reminder text for an occurrence of m.
func NewReminder(m model.Meeting, occ recurrence.Occurrence) Reminder {
	local := occ.Start.In(m.Schedule.Location)
	body := fmt.Sprintf("Your meeting is starting soon!\n\n"+
		"Meeting: %s\n"+
		"Meeting starts at: %s %s\n"+
		"Join the meeting at your scheduled time on the website.\n",
		m.Title, local.Format("January 2, 2006 3:04 PM"), m.Timezone)

	return Reminder{
		MeetingID:  m.ID,
		Title:      m.Title,
		Occurrence: occ,
		Subject:    fmt.Sprintf("Meeting Reminder: Starting in %d minutes", m.ReminderMinutes),
		Body:       body,
	}
}

// MarkerKey identifies an occurrence of a meeting, to the minute, in UTC.
func MarkerKey(meetingID string, start time.Time) string {
	return "sent:" + meetingID + ":" + start.UTC().Truncate(time.Minute).Format("200601021504")
}

// Summary counts what one pass did.
type Summary struct {
	Meetings   int `json:"meetings"`
	Invalid    int `json:"invalid"`
	Due        int `json:"due"`
	Duplicates int `json:"duplicates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// DeliveryError is a failed delivery to a single recipient.
type DeliveryError struct {
	MeetingID string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s reminder to %s: %v", e.MeetingID, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Dispatcher sends each due reminder at most once per occurrence.
type Dispatcher struct {
	repo     Repository
	audience Audience
	notifier Notifier
	markers  MarkerStore
	clock    clock.Clock
	logger   *slog.Logger
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func NewDispatcher(repo Repository, audience Audience, notifier Notifier, markers MarkerStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:     repo,
		audience: audience,
		notifier: notifier,
		markers:  markers,
		clock:    clock.Real{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one pass over every meeting. Only a failure to list meetings
// aborts the pass; every other failure is logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context) (Summary, error) {
	var sum Summary
	now := d.clock.Now()

	meetings, err := d.repo.ListMeetings(ctx)
	if err != nil {
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			return sum, fmt.Errorf("list meetings: %w", err)
		}
		sum.Invalid = countErrors(err)
		d.logger.Warn("skipping invalid meetings", "error", err)
	}
	sum.Meetings = len(meetings)

	for _, m := range meetings {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		d.dispatchMeeting(ctx, m, now, &sum)
	}

	d.logger.Info("dispatch pass complete",
		"meetings", sum.Meetings,
		"invalid", sum.Invalid,
		"due", sum.Due,
		"duplicates", sum.Duplicates,
		"sent", sum.Sent,
		"failed", sum.Failed,
	)
	return sum, nil
}

// Due reports whether an occurrence starting at start is inside the reminder
// window of leadMinutes at now.
func Due(start, now time.Time, leadMinutes int) bool {
	until := start.Sub(now)
	if until <= 0 {
		return false
	}
	return until <= time.Duration(leadMinutes)*time.Minute+Tolerance
}

func (d *Dispatcher) dispatchMeeting(ctx context.Context, m model.Meeting, now time.Time, sum *Summary) {
	occ, ok := recurrence.Next(m.Schedule, now)
	if !ok || !Due(occ.Start, now, m.ReminderMinutes) {
		return
	}
	sum.Due++

	logger := d.logger.With("meeting", m.ID, "occurrence", occ.Start.UTC().Format(time.RFC3339))

	recipients, err := d.audience.ListRecipients(ctx, m.ID)
	if err != nil {
		logger.Error("list recipients", "error", err)
		return
	}
	if len(recipients) == 0 {
		logger.Debug("no recipients")
		return
	}

	key := MarkerKey(m.ID, occ.Start)
	claimed, err := d.markers.Claim(ctx, key, MarkerTTL)
	if err != nil {
		logger.Error("claim marker", "key", key, "error", err)
		return
	}
	if !claimed {
		sum.Duplicates++
		logger.Debug("already notified", "key", key)
		return
	}

	rem := NewReminder(m, occ)
	for _, r := range recipients {
		if err := d.notifier.Notify(ctx, r, rem); err != nil {
			sum.Failed++
			logger.Warn("reminder delivery failed", "error", &DeliveryError{MeetingID: m.ID, Recipient: r.String(), Err: err})
			continue
		}
		sum.Sent++
	}
}

func countErrors(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
