package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeyave/event-registration/entity"
	"github.com/klauspost/lctime"
)

const (
	CancellationSubject = "Event Cancelled Notification"
	dateFormat          = "%d/%m/%Y %H:%M"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Renderer formats mails. Dates are shown in Location using Locale
// (e.g. "en_US", "uk_UA").
type Renderer struct {
	AppName  string
	Locale   string
	Location *time.Location
}

func (r Renderer) Cancellation(job Job, user *entity.User) (Message, error) {
	start, err := r.formatTime(job.StartAt)
	if err != nil {
		return Message{}, err
	}
	end, err := r.formatTime(job.EndAt)
	if err != nil {
		return Message{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", user.Name)
	b.WriteString("We regret to inform you that the event you were registered for has been cancelled.\n\n")
	fmt.Fprintf(&b, "Event: %s\n", job.Title)
	fmt.Fprintf(&b, "Date: %s - %s\n\n", start, end)
	b.WriteString("Thank you for your understanding.\n\n")
	fmt.Fprintf(&b, "Best regards,\n%s\n", r.AppName)

	return Message{
		To:      user.Email,
		ToName:  user.Name,
		Subject: CancellationSubject,
		Body:    b.String(),
	}, nil
}

func (r Renderer) formatTime(t time.Time) (string, error) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	locale := r.Locale
	if locale == "" {
		locale = "en_US"
	}
	return lctime.StrftimeLoc(locale, dateFormat, t.In(loc))
}
