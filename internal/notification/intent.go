package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"parking-spot-backend/internal/model"
)

// Kind names what happened to the recipient.
type Kind string

const (
	AwardGranted        Kind = "award_granted"
	AwardGivenAway      Kind = "award_given_away"
	ConfirmationNeeded  Kind = "confirmation_needed"
	ConfirmationExpired Kind = "confirmation_expired"
	ReminderNeeded      Kind = "reminder_needed"
	ReminderExpired     Kind = "reminder_expired"
)

// Intent is a message to deliver to one user. Deadline is set for the kinds
// that ask for a confirmation.
type Intent struct {
	Kind     Kind       `json:"kind"`
	UserID   uuid.UUID  `json:"user_id"`
	SpotID   int64      `json:"spot_id"`
	Date     model.Date `json:"date"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Message is the payload pushed to the browser.
type Message struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Date  string `json:"date"`
	Spot  int64  `json:"spot_id"`
}

// Render builds the user-facing text for in. spotLabel is how the spot is
// called; deadlines are shown in loc.
func Render(in Intent, spotLabel string, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	deadline := ""
	if in.Deadline != nil {
		deadline = in.Deadline.In(loc).Format("15:04")
	}

	msg := Message{Kind: in.Kind, Date: in.Date.String(), Spot: in.SpotID}
	switch in.Kind {
	case AwardGranted:
		msg.Title = "Parking spot found"
		msg.Body = fmt.Sprintf("Spot %s is yours on %s.", spotLabel, in.Date)
	case AwardGivenAway:
		msg.Title = "Your spot was taken"
		msg.Body = fmt.Sprintf("Your spot %s on %s went to a colleague.", spotLabel, in.Date)
	case ConfirmationNeeded:
		msg.Title = "A spot is free today"
		msg.Body = fmt.Sprintf("Spot %s is free today. Confirm by %s or it goes to the next person in line.", spotLabel, deadline)
	case ConfirmationExpired:
		msg.Title = "Spot offer expired"
		msg.Body = fmt.Sprintf("Spot %s was not confirmed in time and has been offered to someone else.", spotLabel)
	case ReminderNeeded:
		msg.Title = "Do you still need your spot?"
		msg.Body = fmt.Sprintf("Spot %s is booked for you on %s. Confirm by %s that you still need it.", spotLabel, in.Date, deadline)
	case ReminderExpired:
		msg.Title = "Booking released"
		msg.Body = fmt.Sprintf("Your booking of spot %s on %s was not confirmed and has been released.", spotLabel, in.Date)
	default:
		msg.Title = "Parking"
		msg.Body = string(in.Kind)
	}
	return msg
}
