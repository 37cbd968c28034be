// Package deeplink builds share links for WhatsApp, Gmail and Google Calendar.
package deeplink

import (
	"net/url"
	"strings"
	"time"
)

const (
	whatsAppBase = "https://wa.me/"
	gmailBase    = "https://mail.google.com/mail/"
	calendarBase = "https://calendar.google.com/calendar/render"
)

// Event describes a Google Calendar entry.
type Event struct {
	Title    string
	Details  string
	Location string
	Start    time.Time
	End      time.Time
	AllDay   bool
	// Recurrence is an RRULE body such as "FREQ=MONTHLY;BYMONTHDAY=5".
	Recurrence string
}

// NormalizePhone reduces a phone number to the digits wa.me expects. A
// leading "+" or "00" marks an international number; a single leading "0"
// is a trunk prefix replaced by countryCode.
func NormalizePhone(phone, countryCode string) string {
	phone = strings.TrimSpace(phone)
	international := strings.HasPrefix(phone, "+")
	digits := onlyDigits(phone)
	switch {
	case digits == "":
		return ""
	case international:
		return digits
	case strings.HasPrefix(digits, "00"):
		return digits[2:]
	case strings.HasPrefix(digits, "0"):
		return onlyDigits(countryCode) + digits[1:]
	default:
		return digits
	}
}

// WhatsApp returns a wa.me link that opens a chat with phone prefilled with
// text. An empty phone yields a link that lets the user pick the recipient.
func WhatsApp(phone, countryCode, text string) string {
	link := whatsAppBase + NormalizePhone(phone, countryCode)
	if text != "" {
		link += "?text=" + escape(text)
	}
	return link
}

// GmailCompose returns a link that opens the Gmail compose window.
func GmailCompose(to, subject, body string) string {
	return gmailBase + "?" + query(
		"view", "cm",
		"fs", "1",
		"to", to,
		"su", subject,
		"body", body,
	)
}

// GoogleCalendar returns a link that opens a prefilled "create event" form.
func GoogleCalendar(e Event) string {
	pairs := []string{
		"action", "TEMPLATE",
		"text", e.Title,
		"dates", calendarDates(e),
	}
	if e.Details != "" {
		pairs = append(pairs, "details", e.Details)
	}
	if e.Location != "" {
		pairs = append(pairs, "location", e.Location)
	}
	if e.Recurrence != "" {
		pairs = append(pairs, "recur", "RRULE:"+e.Recurrence)
	}
	return calendarBase + "?" + query(pairs...)
}

func calendarDates(e Event) string {
	if e.AllDay {
		const layout = "20060102"
		end := e.End
		if end.IsZero() || end.Before(e.Start) {
			end = e.Start
		}
		// the end date of an all-day event is exclusive
		return e.Start.Format(layout) + "/" + end.AddDate(0, 0, 1).Format(layout)
	}

	const layout = "20060102T150405Z"
	end := e.End
	if end.IsZero() || !end.After(e.Start) {
		end = e.Start.Add(time.Hour)
	}
	return e.Start.UTC().Format(layout) + "/" + end.UTC().Format(layout)
}

// query keeps parameter order stable, which url.Values does not.
func query(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pairs[i])
		b.WriteByte('=')
		b.WriteString(escape(pairs[i+1]))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
