package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/meetings/internal/jaas"
	"github.com/dukerupert/meetings/internal/recurrence"
)

const (
	ProviderJitsi = "jitsi"
	ProviderJaaS  = "jaas"

	DefaultJitsiDomain     = "meet.jit.si"
	DefaultJaaSDomain      = "8x8.vc"
	DefaultReminderMinutes = 30

	ScheduleWeekly  = "weekly"
	ScheduleMonthly = "monthly"
)

var meetingID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// RawMeeting is a meeting record as stored or submitted, before validation.
type RawMeeting struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Recurring       bool   `json:"recurring"`
	ScheduleType    string `json:"schedule_type,omitempty"`
	MeetingDate     string `json:"meeting_date,omitempty"`
	RecurrenceDay   string `json:"recurrence_day,omitempty"`
	RecurrenceWeek  int    `json:"recurrence_week,omitempty"`
	RRule           string `json:"rrule,omitempty"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time,omitempty"`
	Timezone        string `json:"timezone"`
	ReminderMinutes int    `json:"reminder_minutes,omitempty"`
	Provider        string `json:"provider,omitempty"`
	Domain          string `json:"domain,omitempty"`
	Room            string `json:"room,omitempty"`
	JaaSAppID       string `json:"jaas_app_id,omitempty"`
	JaaSKeyID       string `json:"jaas_key_id,omitempty"`
	JaaSPrivateKey  string `json:"jaas_private_key,omitempty"`
}

// Meeting is a validated meeting definition.
type Meeting struct {
	ID              string
	Title           string
	Schedule        recurrence.Schedule
	Timezone        string
	ReminderMinutes int
	Provider        string
	Domain          string
	Room            string
	Credential      jaas.Credential
}

// ParseMeeting validates raw and builds a Meeting. Failures are *ConfigError.
func ParseMeeting(raw RawMeeting) (Meeting, error) {
	m := Meeting{
		ID:              strings.TrimSpace(raw.ID),
		Title:           strings.TrimSpace(raw.Title),
		Timezone:        strings.TrimSpace(raw.Timezone),
		ReminderMinutes: raw.ReminderMinutes,
		Provider:        strings.ToLower(strings.TrimSpace(raw.Provider)),
		Domain:          strings.TrimSpace(raw.Domain),
		Room:            strings.TrimSpace(raw.Room),
	}

	if !meetingID.MatchString(m.ID) {
		return Meeting{}, &ConfigError{Field: "id", Reason: "must be 1-64 letters, digits, '-' or '_'"}
	}
	if m.Title == "" {
		m.Title = m.ID
	}

	if m.Timezone == "" {
		m.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return Meeting{}, &ConfigError{Field: "timezone", Reason: "unknown time zone " + m.Timezone}
	}
	m.Schedule.Location = loc

	start, err := recurrence.ParseTimeOfDay(raw.StartTime)
	if err != nil {
		return Meeting{}, &ConfigError{Field: "start_time", Reason: err.Error()}
	}
	m.Schedule.Start = start
	if strings.TrimSpace(raw.EndTime) != "" {
		end, err := recurrence.ParseTimeOfDay(raw.EndTime)
		if err != nil {
			return Meeting{}, &ConfigError{Field: "end_time", Reason: err.Error()}
		}
		m.Schedule.End = &end
	}

	rule, err := parseRule(raw)
	if err != nil {
		return Meeting{}, err
	}
	m.Schedule.Rule = rule

	switch {
	case m.ReminderMinutes == 0:
		m.ReminderMinutes = DefaultReminderMinutes
	case m.ReminderMinutes < 0:
		return Meeting{}, &ConfigError{Field: "reminder_minutes", Reason: "must be positive"}
	}

	switch m.Provider {
	case "", ProviderJitsi:
		m.Provider = ProviderJitsi
		if m.Domain == "" {
			m.Domain = DefaultJitsiDomain
		}
	case ProviderJaaS:
		if m.Domain == "" {
			m.Domain = DefaultJaaSDomain
		}
		m.Credential = jaas.Credential{
			AppID:      strings.TrimSpace(raw.JaaSAppID),
			KeyID:      strings.TrimSpace(raw.JaaSKeyID),
			PrivateKey: strings.TrimSpace(raw.JaaSPrivateKey),
		}
	default:
		return Meeting{}, &ConfigError{Field: "provider", Reason: "must be jitsi or jaas"}
	}

	if m.Room == "" {
		m.Room = m.ID
	}

	return m, nil
}

func parseRule(raw RawMeeting) (recurrence.Rule, error) {
	if !raw.Recurring {
		d, err := recurrence.ParseDate(raw.MeetingDate)
		if err != nil {
			return nil, &ConfigError{Field: "meeting_date", Reason: err.Error()}
		}
		return recurrence.OneTime{Date: d}, nil
	}

	if strings.TrimSpace(raw.RRule) != "" {
		r, err := recurrence.Parse(raw.RRule)
		if err != nil {
			return nil, &ConfigError{Field: "rrule", Reason: err.Error()}
		}
		return r, nil
	}

	wd, err := recurrence.ParseWeekday(raw.RecurrenceDay)
	if err != nil {
		return nil, &ConfigError{Field: "recurrence_day", Reason: err.Error()}
	}

	switch strings.ToLower(strings.TrimSpace(raw.ScheduleType)) {
	case ScheduleWeekly:
		return recurrence.Weekly{Weekday: wd}, nil
	case ScheduleMonthly:
		if !recurrence.ValidWeek(raw.RecurrenceWeek) {
			return nil, &ConfigError{Field: "recurrence_week", Reason: "must be 1-5 or -1 for the last week"}
		}
		return recurrence.Monthly{Weekday: wd, Week: raw.RecurrenceWeek}, nil
	}
	return nil, &ConfigError{Field: "schedule_type", Reason: "must be weekly or monthly"}
}

// Raw returns the canonical stored form of m.
func (m Meeting) Raw() RawMeeting {
	raw := RawMeeting{
		ID:              m.ID,
		Title:           m.Title,
		StartTime:       m.Schedule.Start.String(),
		Timezone:        m.Timezone,
		ReminderMinutes: m.ReminderMinutes,
		Provider:        m.Provider,
		Domain:          m.Domain,
		Room:            m.Room,
		JaaSAppID:       m.Credential.AppID,
		JaaSKeyID:       m.Credential.KeyID,
		JaaSPrivateKey:  m.Credential.PrivateKey,
	}
	if m.Schedule.End != nil {
		raw.EndTime = m.Schedule.End.String()
	}

	switch r := m.Schedule.Rule.(type) {
	case recurrence.OneTime:
		raw.MeetingDate = r.Date.String()
	case recurrence.Weekly:
		raw.Recurring = true
		raw.ScheduleType = ScheduleWeekly
		raw.RecurrenceDay = strings.ToLower(r.Weekday.String())
		raw.RRule = recurrence.Format(r)
	case recurrence.Monthly:
		raw.Recurring = true
		raw.ScheduleType = ScheduleMonthly
		raw.RecurrenceDay = strings.ToLower(r.Weekday.String())
		raw.RecurrenceWeek = r.Week
		raw.RRule = recurrence.Format(r)
	}
	return raw
}

// Redacted returns raw with the private key removed.
func (r RawMeeting) Redacted() RawMeeting {
	if r.JaaSPrivateKey != "" {
		r.JaaSPrivateKey = "[redacted]"
	}
	return r
}

// TenantID is the JaaS app id, or "" for the free tier.
func (m Meeting) TenantID() string {
	if m.Provider != ProviderJaaS {
		return ""
	}
	return m.Credential.AppID
}
