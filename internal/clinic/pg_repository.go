package clinic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPatientRepository / PgAppointmentTypeRepository / PgAppointmentRepository /
// PgInvoiceRepository / PgInvoiceLineRepository implement the repository
// interfaces against Postgres. One pool is shared; every call is a single
// statement on a pooled connection, so UI-thread calls and the outbox worker
// never contend on a shared cursor.

type PgPatientRepository struct {
	pool *pgxpool.Pool
}

func NewPgPatientRepository(pool *pgxpool.Pool) *PgPatientRepository {
	return &PgPatientRepository{pool: pool}
}

const patientColumns = `id, first_name, last_name, billing_name, birth_date, phone, email,
	address, city, school, accommodation, follow_up_state, notes, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birthDate *time.Time

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.BillingName,
		&birthDate,
		&p.Phone,
		&p.Email,
		&p.Address,
		&p.City,
		&p.School,
		&p.Accommodation,
		&p.FollowUpState,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.BirthDate = birthDate
	return &p, nil
}

func (r *PgPatientRepository) GetAll(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgPatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgPatientRepository) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, billing_name, birth_date, phone, email,
			address, city, school, accommodation, follow_up_state, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	`, p.ID, p.FirstName, p.LastName, p.BillingName, p.BirthDate, p.Phone, p.Email,
		p.Address, p.City, p.School, p.Accommodation, p.FollowUpState, p.Notes)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgPatientRepository) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET first_name = $2, last_name = $3, billing_name = $4, birth_date = $5,
		    phone = $6, email = $7, address = $8, city = $9, school = $10,
		    accommodation = $11, follow_up_state = $12, notes = $13, updated_at = now()
		WHERE id = $1
	`, p.ID, p.FirstName, p.LastName, p.BillingName, p.BirthDate,
		p.Phone, p.Email, p.Address, p.City, p.School,
		p.Accommodation, p.FollowUpState, p.Notes)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

type PgAppointmentTypeRepository struct {
	pool *pgxpool.Pool
}

func NewPgAppointmentTypeRepository(pool *pgxpool.Pool) *PgAppointmentTypeRepository {
	return &PgAppointmentTypeRepository{pool: pool}
}

func scanType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	var durationMinutes int

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Price,
		&durationMinutes,
		&t.Location,
		&t.Color,
		&t.IsGroup,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, err
	}

	t.Duration = time.Duration(durationMinutes) * time.Minute
	return &t, nil
}

func (r *PgAppointmentTypeRepository) GetAll(ctx context.Context) ([]AppointmentType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, price, duration_minutes, location, color, is_group
		FROM appointment_types
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

func (r *PgAppointmentTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, price, duration_minutes, location, color, is_group
		FROM appointment_types
		WHERE id = $1
	`, id)
	return scanType(row)
}

func (r *PgAppointmentTypeRepository) Create(ctx context.Context, t *AppointmentType) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_types (id, name, description, price, duration_minutes, location, color, is_group)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Description, t.Price, int(t.Duration.Minutes()), t.Location, t.Color, t.IsGroup)
	if err != nil {
		return fmt.Errorf("insert appointment type: %w", err)
	}
	return nil
}

func (r *PgAppointmentTypeRepository) Update(ctx context.Context, t *AppointmentType) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment_types
		SET name = $2, description = $3, price = $4, duration_minutes = $5,
		    location = $6, color = $7, is_group = $8
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.Price, int(t.Duration.Minutes()), t.Location, t.Color, t.IsGroup)
	if err != nil {
		return fmt.Errorf("update appointment type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTypeNotFound
	}
	return nil
}

func (r *PgAppointmentTypeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointment_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTypeNotFound
	}
	return nil
}

type PgAppointmentRepository struct {
	pool *pgxpool.Pool
}

func NewPgAppointmentRepository(pool *pgxpool.Pool) *PgAppointmentRepository {
	return &PgAppointmentRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, start_at, reason, type_id, presence,
	invoice_id, external_event_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var invoiceID, eventID *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.StartAt,
		&a.Reason,
		&a.TypeID,
		&a.Presence,
		&invoiceID,
		&eventID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if invoiceID != nil {
		a.InvoiceID = *invoiceID
	}
	if eventID != nil {
		a.ExternalEventID = *eventID
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgAppointmentRepository) GetByPatientAndDateRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND start_at BETWEEN $2 AND $3
		ORDER BY start_at
	`, patientID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgAppointmentRepository) GetByDateTime(ctx context.Context, at time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_at = $1
	`, at)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgAppointmentRepository) GetByTypeID(ctx context.Context, typeID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE type_id = $1
		ORDER BY start_at
	`, typeID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgAppointmentRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE invoice_id = $1
		ORDER BY start_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgAppointmentRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, start_at, reason, type_id, presence,
			invoice_id, external_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), now(), now())
	`, a.ID, a.PatientID, a.StartAt, a.Reason, a.TypeID, a.Presence,
		a.InvoiceID, a.ExternalEventID)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgAppointmentRepository) Update(ctx context.Context, a *Appointment) error {
	// external_event_id deliberately untouched, see the interface contract.
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET patient_id = $2, start_at = $3, reason = $4, type_id = $5, presence = $6,
		    invoice_id = NULLIF($7, ''), updated_at = now()
		WHERE id = $1
	`, a.ID, a.PatientID, a.StartAt, a.Reason, a.TypeID, a.Presence, a.InvoiceID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgAppointmentRepository) SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET external_event_id = NULLIF($2, ''), updated_at = now()
		WHERE id = $1
	`, id, eventID)
	if err != nil {
		return fmt.Errorf("set external event id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgAppointmentRepository) FindOverlapping(ctx context.Context, start, end time.Time, excludeID uuid.UUID) ([]Appointment, error) {
	// Half-open interval test: an existing appointment [s, s+d) overlaps
	// the candidate [start, end) iff s < end AND s+d > start.
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.start_at, a.reason, a.type_id, a.presence,
		       a.invoice_id, a.external_event_id, a.created_at, a.updated_at
		FROM appointments a
		JOIN appointment_types t ON t.id = a.type_id
		WHERE a.start_at < $2
		  AND a.start_at + (t.duration_minutes * interval '1 minute') > $1
		  AND a.id != $3
		ORDER BY a.start_at
	`, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

type PgInvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewPgInvoiceRepository(pool *pgxpool.Pool) *PgInvoiceRepository {
	return &PgInvoiceRepository{pool: pool}
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var paymentDate *time.Time

	err := row.Scan(
		&inv.ID,
		&inv.PatientID,
		&inv.IssueDate,
		&inv.Description,
		&inv.Status,
		&paymentDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	inv.PaymentDate = paymentDate
	return &inv, nil
}

func (r *PgInvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (id, patient_id, issue_date, description, status, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.ID, inv.PatientID, inv.IssueDate, inv.Description, inv.Status, inv.PaymentDate)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (r *PgInvoiceRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, issue_date, description, status, payment_date
		FROM invoices
		WHERE id = $1
	`, id)
	return scanInvoice(row)
}

func (r *PgInvoiceRepository) GetAll(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, issue_date, description, status, payment_date
		FROM invoices
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}

	return result, rows.Err()
}

func (r *PgInvoiceRepository) GetUnpaidByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, issue_date, description, status, payment_date
		FROM invoices
		WHERE patient_id = $1 AND status = 'UNPAID'
		ORDER BY id DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}

	return result, rows.Err()
}

func (r *PgInvoiceRepository) UpdateStatus(ctx context.Context, id string, status InvoiceStatus, paymentDate *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET status = $2, payment_date = $3
		WHERE id = $1
	`, id, status, paymentDate)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *PgInvoiceRepository) NextNumber(ctx context.Context, date time.Time) (string, error) {
	prefix := fmt.Sprintf("FAC-%s-", date.Format("2006-01"))

	row := r.pool.QueryRow(ctx, `
		SELECT id FROM invoices
		WHERE id LIKE $1
		ORDER BY id DESC
		LIMIT 1
	`, prefix+"%")

	var last string
	err := row.Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	return nextNumberAfter(prefix, last)
}

// nextNumberAfter computes prefix + zero-padded(N+1) where last is the
// highest existing id for the month, or empty for the first of the month.
func nextNumberAfter(prefix, last string) (string, error) {
	num := 0
	if last != "" {
		suffix := last[strings.LastIndex(last, "-")+1:]
		n, err := strconv.Atoi(suffix)
		if err != nil {
			return "", fmt.Errorf("malformed invoice id %q: %w", last, err)
		}
		num = n
	}
	return fmt.Sprintf("%s%03d", prefix, num+1), nil
}

type PgInvoiceLineRepository struct {
	pool *pgxpool.Pool
}

func NewPgInvoiceLineRepository(pool *pgxpool.Pool) *PgInvoiceLineRepository {
	return &PgInvoiceLineRepository{pool: pool}
}

func (r *PgInvoiceLineRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]InvoiceLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT invoice_id, appointment_id, amount
		FROM invoice_lines
		WHERE invoice_id = $1
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.InvoiceID, &line.AppointmentID, &line.Amount); err != nil {
			return nil, err
		}
		result = append(result, line)
	}

	return result, rows.Err()
}

func (r *PgInvoiceLineRepository) GetLine(ctx context.Context, invoiceID string, appointmentID uuid.UUID) (*InvoiceLine, error) {
	var line InvoiceLine
	err := r.pool.QueryRow(ctx, `
		SELECT invoice_id, appointment_id, amount
		FROM invoice_lines
		WHERE invoice_id = $1 AND appointment_id = $2
	`, invoiceID, appointmentID).Scan(&line.InvoiceID, &line.AppointmentID, &line.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (r *PgInvoiceLineRepository) Add(ctx context.Context, line *InvoiceLine) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoice_lines (invoice_id, appointment_id, amount)
		VALUES ($1, $2, $3)
	`, line.InvoiceID, line.AppointmentID, line.Amount)
	if err != nil {
		return fmt.Errorf("insert invoice line: %w", err)
	}
	return nil
}

func (r *PgInvoiceLineRepository) Delete(ctx context.Context, invoiceID string, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM invoice_lines
		WHERE invoice_id = $1 AND appointment_id = $2
	`, invoiceID, appointmentID)
	if err != nil {
		return fmt.Errorf("delete invoice line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// NewRepositories wires all five pgx repositories over one pool.
func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Patients:     NewPgPatientRepository(pool),
		Types:        NewPgAppointmentTypeRepository(pool),
		Appointments: NewPgAppointmentRepository(pool),
		Invoices:     NewPgInvoiceRepository(pool),
		Lines:        NewPgInvoiceLineRepository(pool),
	}
}
