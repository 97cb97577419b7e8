package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

type PatientRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	BillingName   string `json:"billing_name"`
	BirthDate     string `json:"birth_date,omitempty"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	School        string `json:"school"`
	Accommodation string `json:"accommodation"`
	FollowUpState string `json:"follow_up_state"`
	Notes         string `json:"notes"`
}

type PatientResponse struct {
	ID            uuid.UUID  `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	BillingName   string     `json:"billing_name,omitempty"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	Address       string     `json:"address,omitempty"`
	City          string     `json:"city,omitempty"`
	School        string     `json:"school,omitempty"`
	Accommodation string     `json:"accommodation,omitempty"`
	FollowUpState string     `json:"follow_up_state,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPatientResponse(p clinic.Patient) PatientResponse {
	return PatientResponse{
		ID:            p.ID,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		BillingName:   p.BillingName,
		BirthDate:     p.BirthDate,
		Phone:         p.Phone,
		Email:         p.Email,
		Address:       p.Address,
		City:          p.City,
		School:        p.School,
		Accommodation: p.Accommodation,
		FollowUpState: p.FollowUpState,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}

type AppointmentTypeRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Location        string  `json:"location"`
	Color           string  `json:"color"`
	IsGroup         bool    `json:"is_group"`
}

type AppointmentTypeResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Price           float64   `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location,omitempty"`
	Color           string    `json:"color,omitempty"`
	IsGroup         bool      `json:"is_group"`
}

func toTypeResponse(t clinic.AppointmentType) AppointmentTypeResponse {
	return AppointmentTypeResponse{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		Price:           t.Price,
		DurationMinutes: int(t.Duration.Minutes()),
		Location:        t.Location,
		Color:           t.Color,
		IsGroup:         t.IsGroup,
	}
}

type ScheduleAppointmentRequest struct {
	PatientID string    `json:"patient_id"`
	TypeID    string    `json:"type_id"`
	StartAt   time.Time `json:"start_at"`
	Reason    string    `json:"reason"`
	Presence  string    `json:"presence,omitempty"`
}

type RescheduleAppointmentRequest struct {
	TypeID  string    `json:"type_id"`
	StartAt time.Time `json:"start_at"`
	Reason  string    `json:"reason"`
}

type PresenceRequest struct {
	Presence string `json:"presence"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	TypeID          uuid.UUID `json:"type_id"`
	StartAt         time.Time `json:"start_at"`
	Reason          string    `json:"reason,omitempty"`
	Presence        string    `json:"presence"`
	InvoiceID       string    `json:"invoice_id,omitempty"`
	ExternalEventID string    `json:"external_event_id,omitempty"`
}

func toAppointmentResponse(a clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		TypeID:          a.TypeID,
		StartAt:         a.StartAt,
		Reason:          a.Reason,
		Presence:        string(a.Presence),
		InvoiceID:       a.InvoiceID,
		ExternalEventID: a.ExternalEventID,
	}
}

type AvailabilityResponse struct {
	Available bool `json:"available"`
}

type BillPatientRequest struct {
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Preview      bool      `json:"preview"`
	BillAbsences *bool     `json:"bill_absences,omitempty"`
}

type BillingResultResponse struct {
	InvoiceID    string                `json:"invoice_id,omitempty"`
	ArtifactPath string                `json:"artifact_path,omitempty"`
	Total        float64               `json:"total"`
	Superseded   []string              `json:"superseded,omitempty"`
	Unresolved   []AppointmentResponse `json:"unresolved,omitempty"`
}

type BatchBillingResponse struct {
	Issued         []BillingResultResponse          `json:"issued"`
	NeedsAttention map[string][]AppointmentResponse `json:"needs_attention,omitempty"`
	NothingToBill  []uuid.UUID                      `json:"nothing_to_bill,omitempty"`
}

type InvoiceResponse struct {
	ID          string                `json:"id"`
	PatientID   uuid.UUID             `json:"patient_id"`
	IssueDate   time.Time             `json:"issue_date"`
	Description string                `json:"description,omitempty"`
	Status      string                `json:"status"`
	PaymentDate *time.Time            `json:"payment_date,omitempty"`
	Lines       []InvoiceLineResponse `json:"lines,omitempty"`
}

type InvoiceLineResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        float64   `json:"amount"`
}

func toInvoiceResponse(inv clinic.Invoice, lines []clinic.InvoiceLine) InvoiceResponse {
	resp := InvoiceResponse{
		ID:          inv.ID,
		PatientID:   inv.PatientID,
		IssueDate:   inv.IssueDate,
		Description: inv.Description,
		Status:      string(inv.Status),
		PaymentDate: inv.PaymentDate,
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, InvoiceLineResponse{
			AppointmentID: l.AppointmentID,
			Amount:        l.Amount,
		})
	}
	return resp
}

type MarkPaidRequest struct {
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}
