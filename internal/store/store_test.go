package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMeeting(t *testing.T, db *sql.DB, id string) model.Meeting {
	t.Helper()
	m, err := NewMeetingStore(db).Upsert(context.Background(), model.RawMeeting{
		ID:            id,
		Title:         "Meeting " + id,
		Recurring:     true,
		ScheduleType:  "weekly",
		RecurrenceDay: "monday",
		StartTime:     "10:00",
		EndTime:       "11:00",
		Timezone:      "America/New_York",
	})
	if err != nil {
		t.Fatalf("seed meeting %s: %v", id, err)
	}
	return m
}
