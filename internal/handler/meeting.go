package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/meetings/internal/clock"
	"github.com/dukerupert/meetings/internal/jaas"
	"github.com/dukerupert/meetings/internal/model"
	"github.com/dukerupert/meetings/internal/recurrence"
)

type MeetingReader interface {
	Get(ctx context.Context, id string) (model.Meeting, error)
}

type TokenIssuer interface {
	Issue(cred jaas.Credential, room string, user jaas.User) (jaas.Token, error)
}

type MeetingHandler struct {
	meetings MeetingReader
	issuer   TokenIssuer
	clock    clock.Clock
	logger   *slog.Logger
}

func NewMeetingHandler(meetings MeetingReader, issuer TokenIssuer, clk clock.Clock, logger *slog.Logger) *MeetingHandler {
	return &MeetingHandler{meetings: meetings, issuer: issuer, clock: clk, logger: logger}
}

type nextResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	NextOccurrence  *time.Time `json:"next_occurrence"`
	End             *time.Time `json:"end,omitempty"`
	InProgress      bool       `json:"in_progress"`
	Timezone        string     `json:"timezone"`
	Provider        string     `json:"provider"`
	Domain          string     `json:"domain"`
	Room            string     `json:"room"`
	TenantID        string     `json:"tenant_id,omitempty"`
	Rule            string     `json:"rule,omitempty"`
	Description     string     `json:"description"`
	ReminderMinutes int        `json:"reminder_minutes"`
}

// Next handles GET /api/meetings/{id}/next
func (h *MeetingHandler) Next(w http.ResponseWriter, r *http.Request) {
	m, err := h.meetings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := h.clock.Now()
	resp := nextResponse{
		ID:              m.ID,
		Title:           m.Title,
		Timezone:        m.Timezone,
		Provider:        m.Provider,
		Domain:          m.Domain,
		Room:            m.Room,
		TenantID:        m.TenantID(),
		Rule:            recurrence.Format(m.Schedule.Rule),
		Description:     recurrence.Describe(m.Schedule.Rule),
		ReminderMinutes: m.ReminderMinutes,
	}
	if occ, ok := recurrence.Next(m.Schedule, now); ok {
		start := occ.Start.In(m.Schedule.Location)
		resp.NextOccurrence = &start
		if m.Schedule.End != nil {
			end := occ.End.In(m.Schedule.Location)
			resp.End = &end
		}
		resp.InProgress = occ.InProgress(now)
	}

	writeJSON(w, http.StatusOK, resp)
}

type tokenRequest struct {
	DisplayName string `json:"display_name" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Avatar      string `json:"avatar" validate:"omitempty,url,max=2048"`
}

// Token handles POST /api/meetings/{id}/token
func (h *MeetingHandler) Token(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty one issues a guest token.
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := validate(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	m, err := h.meetings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if m.Provider != model.ProviderJaaS {
		writeError(w, h.logger, model.ErrWrongProvider)
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = "Guest"
	}
	tok, err := h.issuer.Issue(m.Credential, m.Room, jaas.User{
		Name:   name,
		Email:  strings.TrimSpace(req.Email),
		Avatar: strings.TrimSpace(req.Avatar),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("issued jaas token", "meeting", m.ID, "expires_at", tok.ExpiresAt)
	writeJSON(w, http.StatusOK, tok)
}
