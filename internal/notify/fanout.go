package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dukerupert/meetings/internal/model"
	"github.com/dukerupert/meetings/internal/push"
)

// ErrChannelDisabled is returned for a recipient whose channel has no sender.
var ErrChannelDisabled = errors.New("notification channel not configured")

type EmailSender interface {
	Send(ctx context.Context, to, subject, text string) error
}

type PushSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// PushPruner forgets push endpoints the push service reported as gone.
type PushPruner interface {
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Fanout routes reminders to email or web push and throttles the outbound rate.
type Fanout struct {
	email   EmailSender
	push    PushSender
	pruner  PushPruner
	limiter *rate.Limiter
	baseURL string
	logger  *slog.Logger
}

type FanoutOption func(*Fanout)

func WithEmail(s EmailSender) FanoutOption {
	return func(f *Fanout) {
		f.email = s
	}
}

func WithPush(s PushSender, pruner PushPruner) FanoutOption {
	return func(f *Fanout) {
		f.push = s
		f.pruner = pruner
	}
}

// WithRateLimit caps deliveries per second; zero or less disables the cap.
func WithRateLimit(perSecond float64) FanoutOption {
	return func(f *Fanout) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

func WithBaseURL(u string) FanoutOption {
	return func(f *Fanout) {
		f.baseURL = strings.TrimRight(u, "/")
	}
}

func WithFanoutLogger(l *slog.Logger) FanoutOption {
	return func(f *Fanout) {
		f.logger = l
	}
}

func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Notify(ctx context.Context, r model.Recipient, rem Reminder) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	switch r.Channel {
	case model.ChannelEmail:
		if f.email == nil {
			return ErrChannelDisabled
		}
		return f.email.Send(ctx, r.Email, rem.Subject, rem.Body)
	case model.ChannelPush:
		if f.push == nil || r.Push == nil {
			return ErrChannelDisabled
		}
		err := f.push.Send(ctx, r.Push, f.payload(rem))
		if errors.Is(err, push.ErrExpired) && f.pruner != nil {
			if delErr := f.pruner.DeleteByEndpoint(ctx, r.Push.Endpoint); delErr != nil {
				f.logger.Error("prune expired push subscription", "recipient", r.String(), "error", delErr)
			}
		}
		return err
	}
	return fmt.Errorf("unknown channel %q", r.Channel)
}

func (f *Fanout) payload(rem Reminder) push.Payload {
	p := push.Payload{
		Title: "Meeting Reminder",
		Body:  strings.TrimPrefix(rem.Subject, "Meeting Reminder: ") + ": " + rem.Title,
		Tag:   "meeting-" + rem.MeetingID,
	}
	if f.baseURL != "" {
		p.URL = f.baseURL + "/meetings/" + rem.MeetingID
	}
	return p
}
