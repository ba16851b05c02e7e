package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/jaas"
	"github.com/dukerupert/meetings/internal/model"
	"github.com/dukerupert/meetings/internal/notify"
	"github.com/dukerupert/meetings/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func weekly(id string) model.RawMeeting {
	return model.RawMeeting{
		ID:            id,
		Title:         "Weekly Sync",
		Recurring:     true,
		ScheduleType:  model.ScheduleWeekly,
		RecurrenceDay: "monday",
		StartTime:     "10:00",
		EndTime:       "11:00",
		Timezone:      "America/New_York",
	}
}

type fakeVAPID struct{ key string }

func (f fakeVAPID) Configured() bool       { return f.key != "" }
func (f fakeVAPID) VAPIDPublicKey() string { return f.key }

type fakePasser struct {
	sum   notify.Summary
	err   error
	calls int
}

func (f *fakePasser) Dispatch(ctx context.Context) (notify.Summary, error) {
	f.calls++
	return f.sum, f.err
}

type testEnv struct {
	db       *sql.DB
	meetings *store.MeetingStore
	clock    *clock.Fake
	passer   *fakePasser
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T, vapidKey string) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	env := &testEnv{
		db:       db,
		meetings: store.NewMeetingStore(db),
		// Wednesday 2026-10-14 09:00 New York.
		clock:  clock.NewFake(time.Date(2026, time.October, 14, 9, 0, 0, 0, ny)),
		passer: &fakePasser{},
		mux:    http.NewServeMux(),
	}

	mh := NewMeetingHandler(env.meetings, jaas.NewIssuer(jaas.WithClock(env.clock)), env.clock, discard)
	sh := NewSubscribeHandler(env.meetings, store.NewSubscriberStore(db), store.NewMailingListStore(db), store.NewPushStore(db), fakeVAPID{vapidKey}, discard)
	ah := NewAdminHandler(env.meetings, store.NewSubscriberStore(db), env.passer, discard)

	env.mux.HandleFunc("GET /api/meetings/{id}/next", mh.Next)
	env.mux.HandleFunc("POST /api/meetings/{id}/token", mh.Token)
	env.mux.HandleFunc("POST /api/meetings/{id}/subscribe", sh.Subscribe)
	env.mux.HandleFunc("POST /api/meetings/{id}/push-subscriptions", sh.SubscribePush)
	env.mux.HandleFunc("GET /api/push/vapid-key", sh.VAPIDKey)
	env.mux.HandleFunc("GET /api/admin/meetings", ah.List)
	env.mux.HandleFunc("PUT /api/admin/meetings/{id}", ah.Put)
	env.mux.HandleFunc("DELETE /api/admin/meetings/{id}", ah.Delete)
	env.mux.HandleFunc("DELETE /api/admin/meetings/{id}/subscribers/{email}", ah.Unsubscribe)
	env.mux.HandleFunc("POST /api/admin/dispatch", ah.Dispatch)
	return env
}

func (e *testEnv) seed(t *testing.T, raw model.RawMeeting) {
	t.Helper()
	if _, err := e.meetings.Upsert(context.Background(), raw); err != nil {
		t.Fatalf("seed %s: %v", raw.ID, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}
