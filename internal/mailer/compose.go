package mailer

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/stageline/webinar-mailer/internal/domain"
)

// Composer renders per-slot email content. Composition is a pure function of
// its inputs so dispatch and test sends produce identical messages.
type Composer struct {
	WebinarTitle   string
	WebinarJoinURL string
	SurveyBaseURL  string
	WebinarStartAt time.Time
}

// Compose builds the message variant for the slot's kind. Reminders carry the
// join link; the post-event survey carries the attendee's personalized survey
// link.
func (c *Composer) Compose(attendee *domain.Attendee, slot domain.SlotID, subject string) Message {
	msg := Message{
		ToEmail: attendee.Email,
		ToName:  attendee.Name,
		Subject: subject,
	}

	switch slot.Kind() {
	case domain.KindPostEvent:
		surveyLink := c.surveyLink(attendee)
		msg.Text = fmt.Sprintf(
			"Hello %s,\n\nThank you for attending %s. We would love your feedback.\n\nTake the survey: %s\n",
			attendee.Name, c.WebinarTitle, surveyLink,
		)
		msg.HTML = fmt.Sprintf(
			"<p>Hello %s,</p><p>Thank you for attending <strong>%s</strong>. We would love your feedback.</p><p><a href=%q>Take the survey</a></p>",
			html.EscapeString(attendee.Name), html.EscapeString(c.WebinarTitle), surveyLink,
		)
	default:
		startAt := c.WebinarStartAt.Format("Mon Jan 2, 15:04 MST")
		msg.Text = fmt.Sprintf(
			"Hello %s,\n\n%s starts at %s. Don't miss it!\n\nJoin here: %s\n",
			attendee.Name, c.WebinarTitle, startAt, c.WebinarJoinURL,
		)
		msg.HTML = fmt.Sprintf(
			"<p>Hello %s,</p><p><strong>%s</strong> starts at %s. Don't miss it!</p><p><a href=%q>Join the webinar</a></p>",
			html.EscapeString(attendee.Name), html.EscapeString(c.WebinarTitle), startAt, c.WebinarJoinURL,
		)
	}

	return msg
}

func (c *Composer) surveyLink(attendee *domain.Attendee) string {
	token := ""
	if attendee.SurveyToken != nil {
		token = *attendee.SurveyToken
	}

	base := strings.TrimRight(c.SurveyBaseURL, "/")
	return fmt.Sprintf("%s?token=%s", base, url.QueryEscape(token))
}
