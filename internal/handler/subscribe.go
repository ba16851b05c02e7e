package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/meetings/internal/model"
)

type MeetingChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type SubscriberAdder interface {
	Add(ctx context.Context, meetingID, email string) (bool, error)
}

type MailingListJoiner interface {
	Join(ctx context.Context, email, meetingID string) error
}

type PushSubscriber interface {
	Create(ctx context.Context, meetingID, endpoint, p256dh, auth string) (*model.PushSubscription, error)
}

type VAPIDKeyer interface {
	Configured() bool
	VAPIDPublicKey() string
}

type SubscribeHandler struct {
	meetings    MeetingChecker
	subscribers SubscriberAdder
	mailingList MailingListJoiner
	push        PushSubscriber
	vapid       VAPIDKeyer
	logger      *slog.Logger
}

func NewSubscribeHandler(meetings MeetingChecker, subs SubscriberAdder, list MailingListJoiner, push PushSubscriber, vapid VAPIDKeyer, logger *slog.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		meetings:    meetings,
		subscribers: subs,
		mailingList: list,
		push:        push,
		vapid:       vapid,
		logger:      logger,
	}
}

type subscribeRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	JoinList bool   `json:"join_list"`
}

// Subscribe handles POST /api/meetings/{id}/subscribe
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = model.NormalizeEmail(req.Email)
	if err := validate(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := r.PathValue("id")
	if err := h.requireMeeting(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	added, err := h.subscribers.Add(r.Context(), id, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.JoinList {
		if err := h.mailingList.Join(r.Context(), req.Email, id); err != nil {
			h.logger.Error("join mailing list", "meeting", id, "error", err)
		}
	}
	if added {
		h.logger.Info("subscriber added", "meeting", id)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully subscribed to meeting notifications",
	})
}

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=2048"`
	P256dh   string `json:"p256dh" validate:"required,max=256"`
	Auth     string `json:"auth" validate:"required,max=256"`
}

// SubscribePush handles POST /api/meetings/{id}/push-subscriptions
func (h *SubscribeHandler) SubscribePush(w http.ResponseWriter, r *http.Request) {
	if !h.vapid.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not enabled"})
		return
	}

	var req pushSubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := validate(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := r.PathValue("id")
	if err := h.requireMeeting(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.push.Create(r.Context(), id, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *SubscribeHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.vapid.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapid.VAPIDPublicKey()})
}

func (h *SubscribeHandler) requireMeeting(ctx context.Context, id string) error {
	ok, err := h.meetings.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}
