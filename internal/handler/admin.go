package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/meetings/internal/model"
	"github.com/dukerupert/meetings/internal/notify"
	"github.com/dukerupert/meetings/internal/recurrence"
)

type MeetingAdmin interface {
	List(ctx context.Context) ([]model.RawMeeting, error)
	Upsert(ctx context.Context, raw model.RawMeeting) (model.Meeting, error)
	Delete(ctx context.Context, id string) error
}

type SubscriberRemover interface {
	Remove(ctx context.Context, meetingID, email string) error
}

type AdminHandler struct {
	meetings    MeetingAdmin
	subscribers SubscriberRemover
	passer      notify.Passer
	logger      *slog.Logger
}

func NewAdminHandler(meetings MeetingAdmin, subscribers SubscriberRemover, passer notify.Passer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{meetings: meetings, subscribers: subscribers, passer: passer, logger: logger}
}

type adminMeeting struct {
	model.RawMeeting
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// List handles GET /api/admin/meetings
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	raws, err := h.meetings.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]adminMeeting, 0, len(raws))
	for _, raw := range raws {
		am := adminMeeting{RawMeeting: raw.Redacted()}
		if m, err := model.ParseMeeting(raw); err != nil {
			am.Error = err.Error()
		} else {
			am.Description = recurrence.Describe(m.Schedule.Rule)
		}
		out = append(out, am)
	}
	writeJSON(w, http.StatusOK, out)
}

// Put handles PUT /api/admin/meetings/{id}
func (h *AdminHandler) Put(w http.ResponseWriter, r *http.Request) {
	var raw model.RawMeeting
	if err := decodeJSON(w, r, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	id := r.PathValue("id")
	if raw.ID != "" && raw.ID != id {
		writeError(w, h.logger, &model.ValidationError{Field: "id", Message: "id does not match the URL"})
		return
	}
	raw.ID = id

	m, err := h.meetings.Upsert(r.Context(), raw)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("meeting saved", "meeting", m.ID, "rule", recurrence.Describe(m.Schedule.Rule))
	writeJSON(w, http.StatusOK, adminMeeting{
		RawMeeting:  m.Raw().Redacted(),
		Description: recurrence.Describe(m.Schedule.Rule),
	})
}

// Delete handles DELETE /api/admin/meetings/{id}
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.meetings.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("meeting deleted", "meeting", id)
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe handles DELETE /api/admin/meetings/{id}/subscribers/{email}
func (h *AdminHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.subscribers.Remove(r.Context(), id, r.PathValue("email")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("subscriber removed", "meeting", id)
	w.WriteHeader(http.StatusNoContent)
}

// Dispatch handles POST /api/admin/dispatch
func (h *AdminHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	sum, err := h.passer.Dispatch(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
