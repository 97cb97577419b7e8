package clinic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Presence is the recorded attendance outcome of an appointment. It is a
// closed set: values coming from the outside are validated with
// ParsePresence before they reach storage.
type Presence string

const (
	PresencePresent        Presence = "present"
	PresenceAbsent         Presence = "absent"
	PresenceExcusedAbsent  Presence = "excused_absent"
	PresenceCancelled      Presence = "cancelled"
	PresenceToBeDetermined Presence = "to_be_determined"
)

// ParsePresence validates a raw presence value.
func ParsePresence(raw string) (Presence, error) {
	switch p := Presence(raw); p {
	case PresencePresent, PresenceAbsent, PresenceExcusedAbsent,
		PresenceCancelled, PresenceToBeDetermined:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPresence, raw)
	}
}

type InvoiceStatus string

const (
	InvoiceUnpaid     InvoiceStatus = "UNPAID"
	InvoicePaid       InvoiceStatus = "PAID"
	InvoiceSuperseded InvoiceStatus = "SUPERSEDED"
)

// InvoiceRefExcluded marks an appointment that went through billing and was
// ruled out (excused absence or cancellation). It will never carry a line.
const InvoiceRefExcluded = "EXCLUDED"

type Patient struct {
	ID            uuid.UUID
	FirstName     string
	LastName      string
	BillingName   string
	BirthDate     *time.Time
	Phone         string
	Email         string
	Address       string
	City          string
	School        string
	Accommodation string
	FollowUpState string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PayerName is the name invoices are addressed to. Falls back to the
// patient's own last name when no separate billing name is set.
func (p Patient) PayerName() string {
	if p.BillingName != "" {
		return p.BillingName
	}
	return p.LastName
}

func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// AppointmentType is a catalog entry. IsGroup changes slot conflict
// semantics: appointments of the same group type may stack on one slot.
type AppointmentType struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       float64
	Duration    time.Duration
	Location    string
	Color       string
	IsGroup     bool
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	StartAt   time.Time
	Reason    string
	TypeID    uuid.UUID
	Presence  Presence
	// InvoiceID is empty while unbilled, an invoice id once billed, or
	// InvoiceRefExcluded when billing ruled the appointment out.
	InvoiceID string
	// ExternalEventID is the calendar provider's event id, written back by
	// the outbox worker after the create command succeeds.
	ExternalEventID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Invoiced reports whether the appointment is claimed by an invoice.
func (a Appointment) Invoiced() bool {
	return a.InvoiceID != "" && a.InvoiceID != InvoiceRefExcluded
}

// End computes the end of the appointment's interval given its type.
func (a Appointment) End(t AppointmentType) time.Time {
	return a.StartAt.Add(t.Duration)
}

// Invoice ids look like FAC-2025-01-003: monotonic per calendar month.
type Invoice struct {
	ID          string
	PatientID   uuid.UUID
	IssueDate   time.Time
	Description string
	Status      InvoiceStatus
	PaymentDate *time.Time
}

// InvoiceLine links one billed appointment to one invoice. Amount may differ
// from the catalog price (reduced absence fee, or zero for waived absences).
type InvoiceLine struct {
	InvoiceID     string
	AppointmentID uuid.UUID
	Amount        float64
}
