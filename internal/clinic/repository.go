package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrTypeNotFound        = errors.New("appointment type not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrLineNotFound        = errors.New("invoice line not found")
	ErrInvalidPresence     = errors.New("invalid presence value")
)

type PatientRepository interface {
	GetAll(ctx context.Context) ([]Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
}

type AppointmentTypeRepository interface {
	GetAll(ctx context.Context) ([]AppointmentType, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	Create(ctx context.Context, t *AppointmentType) error
	Update(ctx context.Context, t *AppointmentType) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type AppointmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByPatientAndDateRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]Appointment, error)
	GetByDateTime(ctx context.Context, at time.Time) ([]Appointment, error)
	GetByTypeID(ctx context.Context, typeID uuid.UUID) ([]Appointment, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]Appointment, error)
	Create(ctx context.Context, a *Appointment) error

	// Update persists every column except external_event_id. That column is
	// owned by the delivery worker and written only through
	// SetExternalEventID, so a stale snapshot on either side can never
	// erase the other's write.
	Update(ctx context.Context, a *Appointment) error
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error

	// FindOverlapping returns appointments whose half-open interval
	// [start_at, start_at+duration) intersects [start, end), excluding the
	// appointment with excludeID (uuid.Nil excludes nothing).
	FindOverlapping(ctx context.Context, start, end time.Time, excludeID uuid.UUID) ([]Appointment, error)
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetAll(ctx context.Context) ([]Invoice, error)
	GetUnpaidByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error)
	UpdateStatus(ctx context.Context, id string, status InvoiceStatus, paymentDate *time.Time) error

	// NextNumber allocates the next FAC-YYYY-MM-NNN identifier for the
	// month of date, by scanning existing ids sharing the month prefix.
	NextNumber(ctx context.Context, date time.Time) (string, error)
}

type InvoiceLineRepository interface {
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]InvoiceLine, error)
	GetLine(ctx context.Context, invoiceID string, appointmentID uuid.UUID) (*InvoiceLine, error)
	Add(ctx context.Context, line *InvoiceLine) error
	Delete(ctx context.Context, invoiceID string, appointmentID uuid.UUID) error
}

// Repositories bundles the five entity repositories for injection.
type Repositories struct {
	Patients     PatientRepository
	Types        AppointmentTypeRepository
	Appointments AppointmentRepository
	Invoices     InvoiceRepository
	Lines        InvoiceLineRepository
}
