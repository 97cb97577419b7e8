// Package outbound defines the payloads exchanged with the external calendar
// and mail providers, and HTTP clients speaking to them. Providers are opaque
// endpoints; authentication lives behind them.
package outbound

import "time"

// Service names routed by the outbox worker.
const (
	ServiceCalendarCreateEvent = "calendar.create_event"
	ServiceCalendarUpdateEvent = "calendar.update_event"
	ServiceMailSaveDraft       = "mail.save_draft"
	ServiceMailSend            = "mail.send"
)

// CalendarEvent is the command payload for calendar create/update requests.
// EventID is empty on create; updates address the provider-side event by the
// id stored on the appointment, never by time window, so reschedules cannot
// drift into duplicate events.
type CalendarEvent struct {
	AppointmentID string    `json:"appointment_id"`
	EventID       string    `json:"event_id,omitempty"`
	PatientName   string    `json:"patient_name"`
	TypeName      string    `json:"type_name"`
	Location      string    `json:"location"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// MailMessage is the command payload for draft creation and sending.
type MailMessage struct {
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	HTMLBody    string   `json:"html_body"`
	Attachments []string `json:"attachments,omitempty"`
}
