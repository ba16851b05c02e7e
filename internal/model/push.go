package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Subscriber is an email address subscribed to a meeting's reminders.
type Subscriber struct {
	MeetingID string    `json:"meeting_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}

// MailingListEntry is an address that opted into the general mailing list.
type MailingListEntry struct {
	Email     string    `json:"email"`
	MeetingID string    `json:"meeting_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Recipient is one delivery target for a reminder.
type Recipient struct {
	Channel Channel
	Email   string
	Push    *PushSubscription
}

// String identifies the recipient in logs. Push endpoints carry a
// per-device capability token in their path, so only the host and the
// subscription ID are shown.
func (r Recipient) String() string {
	if r.Channel == ChannelPush && r.Push != nil {
		host := "unknown"
		if u, err := url.Parse(r.Push.Endpoint); err == nil && u.Host != "" {
			host = u.Host
		}
		return "push:" + host + "#" + strconv.FormatInt(r.Push.ID, 10)
	}
	return "email:" + r.Email
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
