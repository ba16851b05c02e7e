package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/store"
)

const seedYAML = `
meetings:
  - id: sync
    title: Weekly Sync
    recurring: true
    schedule_type: weekly
    recurrence_day: monday
    start_time: "10:00"
    end_time: "11:00"
    timezone: America/New_York
  - id: board
    title: Board Meeting
    rrule: FREQ=MONTHLY;BYDAY=-1FR
    recurring: true
    start_time: "15:00"
    timezone: Europe/London
    reminder_minutes: 60
    provider: jaas
    jaas_app_id: vpaas-magic-cookie-abc
`

func TestParseSeedYAML(t *testing.T) {
	seed, err := ParseSeed("meetings.yaml", []byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed error: %v", err)
	}
	if len(seed.Meetings) != 2 {
		t.Fatalf("got %d meetings, want 2", len(seed.Meetings))
	}
	board := seed.Meetings[1]
	if board.RRule != "FREQ=MONTHLY;BYDAY=-1FR" || board.ReminderMinutes != 60 || board.Provider != "jaas" {
		t.Errorf("board = %+v", board)
	}
}

func TestParseSeedJSON(t *testing.T) {
	data := `{"meetings":[{"id":"sync","meeting_date":"2026-11-02","start_time":"09:00","timezone":"UTC"}]}`
	seed, err := ParseSeed("meetings.json", []byte(data))
	if err != nil {
		t.Fatalf("ParseSeed error: %v", err)
	}
	if len(seed.Meetings) != 1 || seed.Meetings[0].MeetingDate != "2026-11-02" {
		t.Errorf("seed = %+v", seed)
	}
}

func TestParseSeedStrict(t *testing.T) {
	tests := []struct {
		name, path, data string
	}{
		{"unknown field", "m.yaml", "meetings:\n  - id: sync\n    colour: blue\n"},
		{"unknown top-level", "m.yaml", "meeting: []\n"},
		{"trailing json", "m.json", `{"meetings":[]}{"meetings":[]}`},
		{"bad yaml", "m.yml", "meetings: [\n"},
	}
	for _, tt := range tests {
		if _, err := ParseSeed(tt.path, []byte(tt.data)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestApplySeed(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	meetings := store.NewMeetingStore(db)

	seed, err := ParseSeed("meetings.yaml", []byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed error: %v", err)
	}
	seed.Meetings = append(seed.Meetings, seed.Meetings[0])
	seed.Meetings[2].ID = "broken"
	seed.Meetings[2].Timezone = "Mars/Olympus"

	applied, err := ApplySeed(context.Background(), meetings, seed)
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}
	if err == nil {
		t.Error("expected an error for the broken entry")
	}

	raws, err := meetings.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(raws) != 2 {
		t.Errorf("stored %d meetings, want 2", len(raws))
	}
}

func TestWatchSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meetings.yaml")
	if err := os.WriteFile(path, []byte("meetings: []\n"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Seed, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := WatchSeed(ctx, path, logger, func(s *Seed) { got <- s }); err != nil {
		t.Fatalf("WatchSeed error: %v", err)
	}

	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}

	select {
	case s := <-got:
		if len(s.Meetings) != 2 {
			t.Errorf("reloaded %d meetings, want 2", len(s.Meetings))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the seed file changed")
	}
}
