package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/model"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRepo struct {
	meetings []model.Meeting
	err      error
}

func (f *fakeRepo) ListMeetings(context.Context) ([]model.Meeting, error) {
	return f.meetings, f.err
}

type fakeAudience map[string][]model.Recipient

func (f fakeAudience) ListRecipients(_ context.Context, id string) ([]model.Recipient, error) {
	return f[id], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  map[string]int
	fail  map[string]error
	last  Reminder
	calls int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string]int), fail: make(map[string]error)}
}

func (n *recordingNotifier) Notify(_ context.Context, r model.Recipient, rem Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = rem
	if err := n.fail[r.String()]; err != nil {
		return err
	}
	n.sent[r.String()]++
	return nil
}

type errMarkers struct{}

func (errMarkers) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("marker store down")
}

func weeklyMeeting(t *testing.T, id string) model.Meeting {
	t.Helper()
	m, err := model.ParseMeeting(model.RawMeeting{
		ID:            id,
		Title:         "Weekly sync",
		Recurring:     true,
		ScheduleType:  "weekly",
		RecurrenceDay: "monday",
		StartTime:     "10:00",
		EndTime:       "11:00",
		Timezone:      "America/New_York",
	})
	if err != nil {
		t.Fatalf("parse meeting: %v", err)
	}
	return m
}

func emailRecipients(addrs ...string) []model.Recipient {
	var rs []model.Recipient
	for _, a := range addrs {
		rs = append(rs, model.Recipient{Channel: model.ChannelEmail, Email: a})
	}
	return rs
}

// mondayAt returns Monday 2026-10-19 at h:m New York time.
func mondayAt(t *testing.T, h, m int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2026, time.October, 19, h, m, 0, 0, loc)
}

func newTestDispatcher(repo Repository, aud Audience, n Notifier, markers MarkerStore, clk clock.Clock) *Dispatcher {
	return NewDispatcher(repo, aud, n, markers, WithClock(clk), WithLogger(quietLogger))
}

func TestDispatchSendsOncePerOccurrence(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	repo := &fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}}
	aud := fakeAudience{"sync": emailRecipients("a@example.com", "b@example.com")}
	n := newRecordingNotifier()
	d := newTestDispatcher(repo, aud, n, NewMemoryMarkers(clk), clk)

	sum, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if sum.Due != 1 || sum.Sent != 2 || sum.Duplicates != 0 {
		t.Errorf("first summary = %+v", sum)
	}

	clk.Advance(5 * time.Minute)
	sum, err = d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if sum.Sent != 0 || sum.Duplicates != 1 {
		t.Errorf("second summary = %+v", sum)
	}

	for _, addr := range []string{"email:a@example.com", "email:b@example.com"} {
		if n.sent[addr] != 1 {
			t.Errorf("%s received %d reminders, want 1", addr, n.sent[addr])
		}
	}
}

func TestDispatchWindow(t *testing.T) {
	tests := []struct {
		name    string
		h, m    int
		wantDue bool
	}{
		{"too early", 9, 0, false},
		{"window edge", 9, 25, true},
		{"inside", 9, 45, true},
		{"started", 10, 0, false},
		{"in progress", 10, 30, false},
	}

	for _, tt := range tests {
		clk := clock.NewFake(mondayAt(t, tt.h, tt.m))
		n := newRecordingNotifier()
		d := newTestDispatcher(
			&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}},
			fakeAudience{"sync": emailRecipients("a@example.com")},
			n, NewMemoryMarkers(clk), clk,
		)

		sum, err := d.Dispatch(context.Background())
		if err != nil {
			t.Fatalf("%s: dispatch: %v", tt.name, err)
		}
		if got := sum.Due == 1; got != tt.wantDue {
			t.Errorf("%s: due = %v, want %v", tt.name, got, tt.wantDue)
		}
		if tt.wantDue != (n.calls == 1) {
			t.Errorf("%s: notify calls = %d", tt.name, n.calls)
		}
	}
}

func TestDue(t *testing.T) {
	start := time.Date(2026, time.October, 19, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		until time.Duration
		want  bool
	}{
		{35 * time.Minute, true},
		{35*time.Minute + time.Second, false},
		{time.Second, true},
		{0, false},
		{-time.Minute, false},
	}
	for _, tt := range tests {
		if got := Due(start, start.Add(-tt.until), 30); got != tt.want {
			t.Errorf("Due(until=%v) = %v, want %v", tt.until, got, tt.want)
		}
	}
}

func TestDispatchDeliveryFailureStillMarks(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	n.fail["email:a@example.com"] = errors.New("mailbox full")
	markers := NewMemoryMarkers(clk)
	d := newTestDispatcher(
		&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}},
		fakeAudience{"sync": emailRecipients("a@example.com", "b@example.com")},
		n, markers, clk,
	)

	sum, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v, want 1 sent 1 failed", sum)
	}
	if n.sent["email:b@example.com"] != 1 {
		t.Error("failure for one recipient blocked the next")
	}

	ok, _ := markers.Claim(context.Background(), MarkerKey("sync", mondayAt(t, 10, 0)), MarkerTTL)
	if ok {
		t.Error("marker missing after partial failure")
	}
}

func TestDispatchAllFailuresStillMark(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	n.fail["email:a@example.com"] = errors.New("smtp down")
	d := newTestDispatcher(
		&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}},
		fakeAudience{"sync": emailRecipients("a@example.com")},
		n, NewMemoryMarkers(clk), clk,
	)

	d.Dispatch(context.Background())
	sum, _ := d.Dispatch(context.Background())
	if sum.Duplicates != 1 {
		t.Errorf("second pass summary = %+v, want duplicate", sum)
	}
	if n.calls != 1 {
		t.Errorf("notify calls = %d, want 1", n.calls)
	}
}

func TestDispatchOverlappingPasses(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	d := newTestDispatcher(
		&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync"), weeklyMeeting(t, "other")}},
		fakeAudience{
			"sync":  emailRecipients("a@example.com", "b@example.com"),
			"other": emailRecipients("c@example.com"),
		},
		n, NewMemoryMarkers(clk), clk,
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background()); err != nil {
				t.Errorf("dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if n.calls != 3 {
		t.Errorf("notify calls = %d, want 3", n.calls)
	}
	for addr, count := range n.sent {
		if count != 1 {
			t.Errorf("%s received %d reminders", addr, count)
		}
	}
}

func TestDispatchRepositoryErrorAborts(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	d := newTestDispatcher(&fakeRepo{err: errors.New("db locked")}, fakeAudience{}, newRecordingNotifier(), NewMemoryMarkers(clk), clk)

	if _, err := d.Dispatch(context.Background()); err == nil {
		t.Error("expected repository error")
	}
}

func TestDispatchSkipsInvalidMeetings(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	repo := &fakeRepo{
		meetings: []model.Meeting{weeklyMeeting(t, "sync")},
		err:      errors.Join(fmt.Errorf("meeting bad: %w", &model.ConfigError{Field: "timezone", Reason: "unknown"})),
	}
	d := newTestDispatcher(repo, fakeAudience{"sync": emailRecipients("a@example.com")}, n, NewMemoryMarkers(clk), clk)

	sum, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sum.Invalid != 1 || sum.Sent != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestDispatchClaimErrorSkipsSending(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	d := newTestDispatcher(
		&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}},
		fakeAudience{"sync": emailRecipients("a@example.com")},
		n, errMarkers{}, clk,
	)

	if _, err := d.Dispatch(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.calls != 0 {
		t.Errorf("sent %d reminders without a marker", n.calls)
	}
}

func TestDispatchNoRecipientsLeavesMarker(t *testing.T) {
	clk := clock.NewFake(mondayAt(t, 9, 40))
	markers := NewMemoryMarkers(clk)
	aud := fakeAudience{}
	n := newRecordingNotifier()
	d := newTestDispatcher(&fakeRepo{meetings: []model.Meeting{weeklyMeeting(t, "sync")}}, aud, n, markers, clk)

	d.Dispatch(context.Background())

	// A late subscriber inside the window still gets the reminder.
	aud["sync"] = emailRecipients("late@example.com")
	clk.Advance(5 * time.Minute)
	d.Dispatch(context.Background())
	if n.sent["email:late@example.com"] != 1 {
		t.Errorf("late subscriber sends = %d, want 1", n.sent["email:late@example.com"])
	}
}

func TestMarkerKey(t *testing.T) {
	got := MarkerKey("sync", mondayAt(t, 10, 0).Add(30*time.Second))
	if got != "sent:sync:202610191400" {
		t.Errorf("MarkerKey = %q", got)
	}
}

func TestNewReminder(t *testing.T) {
	m := weeklyMeeting(t, "sync")
	clk := clock.NewFake(mondayAt(t, 9, 40))
	n := newRecordingNotifier()
	d := newTestDispatcher(&fakeRepo{meetings: []model.Meeting{m}}, fakeAudience{"sync": emailRecipients("a@example.com")}, n, NewMemoryMarkers(clk), clk)
	d.Dispatch(context.Background())

	rem := n.last
	if rem.Subject != "Meeting Reminder: Starting in 30 minutes" {
		t.Errorf("subject = %q", rem.Subject)
	}
	if !strings.Contains(rem.Body, "Meeting starts at: October 19, 2026 10:00 AM America/New_York") {
		t.Errorf("body = %q", rem.Body)
	}
	if !strings.Contains(rem.Body, "Weekly sync") {
		t.Errorf("body missing title: %q", rem.Body)
	}
}

func TestDeliveryErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &DeliveryError{MeetingID: "m", Recipient: "email:a@example.com", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("DeliveryError does not unwrap")
	}
}
