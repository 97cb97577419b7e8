package billing

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/config"
	"github.com/xXGrimmesXx/CabiLib/internal/invoicedoc"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
)

// In-memory repositories. Behavior mirrors the pgx implementations closely
// enough for engine semantics: not-found sentinels, range filtering, and
// per-month invoice numbering.

type memPatients struct {
	byID map[uuid.UUID]clinic.Patient
}

func (m *memPatients) GetAll(context.Context) ([]clinic.Patient, error) {
	out := make([]clinic.Patient, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out, nil
}

func (m *memPatients) GetByID(_ context.Context, id uuid.UUID) (*clinic.Patient, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, clinic.ErrPatientNotFound
	}
	return &p, nil
}

func (m *memPatients) Create(_ context.Context, p *clinic.Patient) error {
	m.byID[p.ID] = *p
	return nil
}

func (m *memPatients) Update(_ context.Context, p *clinic.Patient) error {
	if _, ok := m.byID[p.ID]; !ok {
		return clinic.ErrPatientNotFound
	}
	m.byID[p.ID] = *p
	return nil
}

type memTypes struct {
	byID map[uuid.UUID]clinic.AppointmentType
}

func (m *memTypes) GetAll(context.Context) ([]clinic.AppointmentType, error) {
	out := make([]clinic.AppointmentType, 0, len(m.byID))
	for _, t := range m.byID {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTypes) GetByID(_ context.Context, id uuid.UUID) (*clinic.AppointmentType, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, clinic.ErrTypeNotFound
	}
	return &t, nil
}

func (m *memTypes) Create(_ context.Context, t *clinic.AppointmentType) error {
	m.byID[t.ID] = *t
	return nil
}

func (m *memTypes) Update(_ context.Context, t *clinic.AppointmentType) error {
	m.byID[t.ID] = *t
	return nil
}

func (m *memTypes) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

type memAppointments struct {
	byID map[uuid.UUID]clinic.Appointment
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memAppointments) GetByPatientAndDateRange(_ context.Context, patientID uuid.UUID, start, end time.Time) ([]clinic.Appointment, error) {
	var out []clinic.Appointment
	for _, a := range m.byID {
		if a.PatientID == patientID && !a.StartAt.Before(start) && !a.StartAt.After(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *memAppointments) GetByDateTime(_ context.Context, at time.Time) ([]clinic.Appointment, error) {
	var out []clinic.Appointment
	for _, a := range m.byID {
		if a.StartAt.Equal(at) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) GetByTypeID(_ context.Context, typeID uuid.UUID) ([]clinic.Appointment, error) {
	var out []clinic.Appointment
	for _, a := range m.byID {
		if a.TypeID == typeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) GetByInvoiceID(_ context.Context, invoiceID string) ([]clinic.Appointment, error) {
	var out []clinic.Appointment
	for _, a := range m.byID {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) Create(_ context.Context, a *clinic.Appointment) error {
	m.byID[a.ID] = *a
	return nil
}

func (m *memAppointments) Update(_ context.Context, a *clinic.Appointment) error {
	prev, ok := m.byID[a.ID]
	if !ok {
		return clinic.ErrAppointmentNotFound
	}
	saved := *a
	saved.ExternalEventID = prev.ExternalEventID
	m.byID[a.ID] = saved
	return nil
}

func (m *memAppointments) SetExternalEventID(_ context.Context, id uuid.UUID, eventID string) error {
	a, ok := m.byID[id]
	if !ok {
		return clinic.ErrAppointmentNotFound
	}
	a.ExternalEventID = eventID
	m.byID[id] = a
	return nil
}

func (m *memAppointments) FindOverlapping(context.Context, time.Time, time.Time, uuid.UUID) ([]clinic.Appointment, error) {
	return nil, nil
}

type memInvoices struct {
	byID map[string]clinic.Invoice
}

func (m *memInvoices) Create(_ context.Context, inv *clinic.Invoice) error {
	m.byID[inv.ID] = *inv
	return nil
}

func (m *memInvoices) GetByID(_ context.Context, id string) (*clinic.Invoice, error) {
	inv, ok := m.byID[id]
	if !ok {
		return nil, clinic.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (m *memInvoices) GetAll(context.Context) ([]clinic.Invoice, error) {
	out := make([]clinic.Invoice, 0, len(m.byID))
	for _, inv := range m.byID {
		out = append(out, inv)
	}
	return out, nil
}

func (m *memInvoices) GetUnpaidByPatient(_ context.Context, patientID uuid.UUID) ([]clinic.Invoice, error) {
	var out []clinic.Invoice
	for _, inv := range m.byID {
		if inv.PatientID == patientID && inv.Status == clinic.InvoiceUnpaid {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvoices) UpdateStatus(_ context.Context, id string, status clinic.InvoiceStatus, paymentDate *time.Time) error {
	inv, ok := m.byID[id]
	if !ok {
		return clinic.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.PaymentDate = paymentDate
	m.byID[id] = inv
	return nil
}

func (m *memInvoices) NextNumber(_ context.Context, date time.Time) (string, error) {
	prefix := fmt.Sprintf("FAC-%s-", date.Format("2006-01"))
	n := 0
	for id := range m.byID {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			n++
		}
	}
	return fmt.Sprintf("%s%03d", prefix, n+1), nil
}

type memLines struct {
	lines []clinic.InvoiceLine
}

func (m *memLines) GetByInvoiceID(_ context.Context, invoiceID string) ([]clinic.InvoiceLine, error) {
	var out []clinic.InvoiceLine
	for _, l := range m.lines {
		if l.InvoiceID == invoiceID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLines) GetLine(_ context.Context, invoiceID string, appointmentID uuid.UUID) (*clinic.InvoiceLine, error) {
	for _, l := range m.lines {
		if l.InvoiceID == invoiceID && l.AppointmentID == appointmentID {
			return &l, nil
		}
	}
	return nil, clinic.ErrLineNotFound
}

func (m *memLines) Add(_ context.Context, line *clinic.InvoiceLine) error {
	m.lines = append(m.lines, *line)
	return nil
}

func (m *memLines) Delete(_ context.Context, invoiceID string, appointmentID uuid.UUID) error {
	for i, l := range m.lines {
		if l.InvoiceID == invoiceID && l.AppointmentID == appointmentID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return nil
		}
	}
	return clinic.ErrLineNotFound
}

type noopLocker struct{}

func (noopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRenderer struct {
	persisted int
	previews  int
}

func (r *fakeRenderer) Render(doc invoicedoc.Document) ([]byte, error) {
	return []byte("<html>" + doc.Invoice.ID + "</html>"), nil
}

func (r *fakeRenderer) Persist(_ []byte, dir, filename string) (string, error) {
	r.persisted++
	return filepath.Join(dir, filename), nil
}

func (r *fakeRenderer) PersistTemp([]byte) (string, error) {
	r.previews++
	return "/tmp/facture-preview.html", nil
}

type memOutbox struct {
	services []string
}

func (m *memOutbox) Enqueue(_ context.Context, service string, _ []byte) error {
	m.services = append(m.services, service)
	return nil
}

type fixture struct {
	engine       *Engine
	patients     *memPatients
	types        *memTypes
	appointments *memAppointments
	invoices     *memInvoices
	lines        *memLines
	renderer     *fakeRenderer
	outbox       *memOutbox

	patient    clinic.Patient
	sessionTyp clinic.AppointmentType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		patients:     &memPatients{byID: map[uuid.UUID]clinic.Patient{}},
		types:        &memTypes{byID: map[uuid.UUID]clinic.AppointmentType{}},
		appointments: &memAppointments{byID: map[uuid.UUID]clinic.Appointment{}},
		invoices:     &memInvoices{byID: map[string]clinic.Invoice{}},
		lines:        &memLines{},
		renderer:     &fakeRenderer{},
		outbox:       &memOutbox{},
	}

	f.patient = clinic.Patient{
		ID:        uuid.New(),
		FirstName: "Lou",
		LastName:  "Moreau",
		Email:     "famille.moreau@example.com",
	}
	f.patients.byID[f.patient.ID] = f.patient

	f.sessionTyp = clinic.AppointmentType{
		ID:       uuid.New(),
		Name:     "Séance individuelle",
		Price:    50,
		Duration: 45 * time.Minute,
	}
	f.types.byID[f.sessionTyp.ID] = f.sessionTyp

	cfg := config.Config{
		AbsenceFee:          33,
		AbsenceLookbackDays: 90,
		PaymentDelayDays:    30,
		InvoiceDir:          t.TempDir(),
		BankDetailsPath:     "/data/rib.pdf",
		PractitionerName:    "A. Bernard",
	}

	f.engine = &Engine{
		repos: clinic.Repositories{
			Patients:     f.patients,
			Types:        f.types,
			Appointments: f.appointments,
			Invoices:     f.invoices,
			Lines:        f.lines,
		},
		renderer: f.renderer,
		outbox:   f.outbox,
		locker:   noopLocker{},
		cfg:      cfg,
		log:      zerolog.Nop(),
		now:      func() time.Time { return time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC) },
	}

	return f
}

func (f *fixture) addAppointment(start time.Time, presence clinic.Presence, invoiceID string) clinic.Appointment {
	a := clinic.Appointment{
		ID:        uuid.New(),
		PatientID: f.patient.ID,
		TypeID:    f.sessionTyp.ID,
		StartAt:   start,
		Presence:  presence,
		InvoiceID: invoiceID,
	}
	f.appointments.byID[a.ID] = a
	return a
}

var (
	periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
)

func day(d, hour int) time.Time {
	return time.Date(2025, 1, d, hour, 0, 0, 0, time.UTC)
}

func TestBillPatient_EmitsInvoice(t *testing.T) {
	f := newFixture(t)
	a1 := f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	a2 := f.addAppointment(day(14, 10), clinic.PresencePresent, "")
	cancelled := f.addAppointment(day(21, 10), clinic.PresenceCancelled, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAC-2025-01-001", res.InvoiceID)
	assert.Equal(t, float64(100), res.Total)
	assert.Empty(t, res.Unresolved)
	assert.Equal(t, filepath.Join(f.engine.cfg.InvoiceDir, "2025-01", "FAC-2025-01-001.html"), res.ArtifactPath)

	inv, err := f.invoices.GetByID(context.Background(), res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, clinic.InvoiceUnpaid, inv.Status)

	lines, _ := f.lines.GetByInvoiceID(context.Background(), res.InvoiceID)
	assert.Len(t, lines, 2)

	assert.Equal(t, res.InvoiceID, f.appointments.byID[a1.ID].InvoiceID)
	assert.Equal(t, res.InvoiceID, f.appointments.byID[a2.ID].InvoiceID)
	assert.Equal(t, clinic.InvoiceRefExcluded, f.appointments.byID[cancelled.ID].InvoiceID)

	assert.Equal(t, []string{outbound.ServiceMailSaveDraft}, f.outbox.services)
	assert.Equal(t, 1, f.renderer.persisted)
}

func TestBillPatient_UnresolvedPresenceAbortsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	pending := f.addAppointment(day(14, 10), clinic.PresenceToBeDetermined, "")
	excused := f.addAppointment(day(21, 10), clinic.PresenceExcusedAbsent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	assert.False(t, res.Issued())
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, pending.ID, res.Unresolved[0].ID)

	// The abort leaves no trace: no invoice, no lines, no appointment
	// mutations, nothing enqueued.
	assert.Empty(t, f.invoices.byID)
	assert.Empty(t, f.lines.lines)
	assert.Empty(t, f.outbox.services)
	assert.Equal(t, "", f.appointments.byID[excused.ID].InvoiceID)
}

func TestBillPatient_PreviewPersistsNothing(t *testing.T) {
	f := newFixture(t)
	a := f.addAppointment(day(7, 10), clinic.PresencePresent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, true, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAC-2025-01-001", res.InvoiceID)
	assert.Equal(t, float64(50), res.Total)
	assert.Equal(t, "/tmp/facture-preview.html", res.ArtifactPath)

	assert.Empty(t, f.invoices.byID)
	assert.Empty(t, f.lines.lines)
	assert.Empty(t, f.outbox.services)
	assert.Equal(t, "", f.appointments.byID[a.ID].InvoiceID)
	assert.Equal(t, 1, f.renderer.previews)
	assert.Equal(t, 0, f.renderer.persisted)
}

func TestBillPatient_AbsencesConfirmedAtFlatFee(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresenceAbsent, "")
	f.addAppointment(day(14, 10), clinic.PresenceAbsent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false,
		FixedDecision(true))
	require.NoError(t, err)

	assert.True(t, res.Issued())
	assert.Equal(t, float64(66), res.Total)
}

func TestBillPatient_AbsencesDeclinedGetZeroLines(t *testing.T) {
	f := newFixture(t)
	a := f.addAppointment(day(7, 10), clinic.PresenceAbsent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false,
		FixedDecision(false))
	require.NoError(t, err)

	assert.True(t, res.Issued())
	assert.Equal(t, float64(0), res.Total)

	// The zero-amount line keeps the appointment claimed so it is never
	// billed twice.
	lines, _ := f.lines.GetByInvoiceID(context.Background(), res.InvoiceID)
	require.Len(t, lines, 1)
	assert.Equal(t, a.ID, lines[0].AppointmentID)
	assert.Equal(t, float64(0), lines[0].Amount)
}

func TestBillPatient_ConfirmerReceivesHistory(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresenceAbsent, "")
	// An absence inside the lookback window but before the billed period.
	prior := f.addAppointment(time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC), clinic.PresenceAbsent, "")

	var gotAbsences, gotHistory []clinic.Appointment
	confirmer := ConfirmerFunc(func(_ context.Context, _ clinic.Patient, absences, history []clinic.Appointment) (bool, error) {
		gotAbsences, gotHistory = absences, history
		return false, nil
	})

	_, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, confirmer)
	require.NoError(t, err)

	require.Len(t, gotAbsences, 1)
	require.Len(t, gotHistory, 1)
	assert.Equal(t, prior.ID, gotHistory[0].ID)
}

func TestBillPatient_SupersedesPriorInvoice(t *testing.T) {
	f := newFixture(t)

	// First run: one present appointment gets invoiced.
	first := f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	res1, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)
	require.Equal(t, "FAC-2025-01-001", res1.InvoiceID)

	// A forgotten appointment in the same period surfaces afterwards.
	second := f.addAppointment(day(14, 10), clinic.PresencePresent, "")

	res2, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAC-2025-01-002", res2.InvoiceID)
	assert.Equal(t, []string{"FAC-2025-01-001"}, res2.Superseded)
	assert.Equal(t, float64(100), res2.Total)

	// Old invoice is kept but marked replaced.
	old, err := f.invoices.GetByID(context.Background(), "FAC-2025-01-001")
	require.NoError(t, err)
	assert.Equal(t, clinic.InvoiceSuperseded, old.Status)

	// Both appointments now point at the new invoice, one line each.
	assert.Equal(t, res2.InvoiceID, f.appointments.byID[first.ID].InvoiceID)
	assert.Equal(t, res2.InvoiceID, f.appointments.byID[second.ID].InvoiceID)
	lines, _ := f.lines.GetByInvoiceID(context.Background(), res2.InvoiceID)
	assert.Len(t, lines, 2)
}

func TestBillPatient_SupersessionOverridesAbsencePolicy(t *testing.T) {
	f := newFixture(t)

	f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	res1, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	// An unbilled absence joins the range. With a prior invoice in play the
	// carried amounts win and no absence decision is requested.
	absent := f.addAppointment(day(14, 10), clinic.PresenceAbsent, "")

	confirmer := ConfirmerFunc(func(context.Context, clinic.Patient, []clinic.Appointment, []clinic.Appointment) (bool, error) {
		t.Fatal("absence confirmer must not be consulted during supersession")
		return false, nil
	})

	res2, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, confirmer)
	require.NoError(t, err)

	assert.Equal(t, []string{res1.InvoiceID}, res2.Superseded)
	assert.Equal(t, float64(50), res2.Total)

	// The absence was not staged: it stays unbilled for a later run.
	assert.Equal(t, "", f.appointments.byID[absent.ID].InvoiceID)
}

func TestBillPatient_NothingToBill(t *testing.T) {
	f := newFixture(t)
	excused := f.addAppointment(day(7, 10), clinic.PresenceExcusedAbsent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	assert.False(t, res.Issued())
	assert.Empty(t, res.Unresolved)
	assert.Empty(t, f.invoices.byID)

	// Even without an invoice, the excused appointment gets its exclusion
	// marker so later runs skip it.
	assert.Equal(t, clinic.InvoiceRefExcluded, f.appointments.byID[excused.ID].InvoiceID)
}

func TestBillPatient_PreviewLeavesExclusionsUnmarked(t *testing.T) {
	f := newFixture(t)
	excused := f.addAppointment(day(7, 10), clinic.PresenceExcusedAbsent, "")

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, true, nil)
	require.NoError(t, err)

	assert.False(t, res.Issued())
	assert.Equal(t, "", f.appointments.byID[excused.ID].InvoiceID)
}

func TestBillPatient_PreviewIsStableAcrossRuns(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	f.addAppointment(day(14, 10), clinic.PresencePresent, "")

	first, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, true, nil)
	require.NoError(t, err)
	second, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, true, nil)
	require.NoError(t, err)

	// Previewing twice reads the same state and reaches the same outcome.
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	assert.Equal(t, first.Total, second.Total)

	assert.Empty(t, f.invoices.byID)
	assert.Empty(t, f.lines.lines)
	assert.Empty(t, f.outbox.services)
	assert.Equal(t, 2, f.renderer.previews)
	assert.Equal(t, 0, f.renderer.persisted)
}

func TestBillPatient_ResolvingPresenceUnblocksTheRun(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresencePresent, "")
	pending := f.addAppointment(day(14, 10), clinic.PresenceToBeDetermined, "")
	excused := f.addAppointment(day(21, 10), clinic.PresenceExcusedAbsent, "")

	blocked, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)
	assert.False(t, blocked.Issued())
	require.Len(t, blocked.Unresolved, 1)
	assert.Empty(t, f.invoices.byID)

	// The practitioner records the outcome and re-runs the same period.
	resolved := f.appointments.byID[pending.ID]
	resolved.Presence = clinic.PresencePresent
	f.appointments.byID[pending.ID] = resolved

	res, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAC-2025-01-001", res.InvoiceID)
	assert.Equal(t, float64(100), res.Total)
	lines, _ := f.lines.GetByInvoiceID(context.Background(), res.InvoiceID)
	assert.Len(t, lines, 2)
	assert.Equal(t, clinic.InvoiceRefExcluded, f.appointments.byID[excused.ID].InvoiceID)
}

func TestBillPatient_NumberingResetsEachMonth(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresencePresent, "")

	res1, err := f.engine.BillPatient(context.Background(), f.patient.ID, periodStart, periodEnd, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2025-01-001", res1.InvoiceID)

	// Next month, a new appointment: the sequence starts over.
	f.engine.now = func() time.Time { return time.Date(2025, 2, 28, 18, 0, 0, 0, time.UTC) }
	f.addAppointment(time.Date(2025, 2, 10, 10, 0, 0, 0, time.UTC), clinic.PresencePresent, "")

	res2, err := f.engine.BillPatient(context.Background(), f.patient.ID,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2025-02-001", res2.InvoiceID)
}

func TestBillPatient_UnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.BillPatient(context.Background(), uuid.New(), periodStart, periodEnd, false, nil)
	assert.ErrorIs(t, err, clinic.ErrPatientNotFound)
}

func TestBillAll_AggregatesPerPatientOutcomes(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(day(7, 10), clinic.PresencePresent, "")

	blocked := clinic.Patient{ID: uuid.New(), FirstName: "Noé", LastName: "Petit"}
	f.patients.byID[blocked.ID] = blocked
	pending := clinic.Appointment{
		ID:        uuid.New(),
		PatientID: blocked.ID,
		TypeID:    f.sessionTyp.ID,
		StartAt:   day(9, 10),
		Presence:  clinic.PresenceToBeDetermined,
	}
	f.appointments.byID[pending.ID] = pending

	idle := clinic.Patient{ID: uuid.New(), FirstName: "Mia", LastName: "Roux"}
	f.patients.byID[idle.ID] = idle

	batch, err := f.engine.BillAll(context.Background(), periodStart, periodEnd, false, nil)
	require.NoError(t, err)

	require.Len(t, batch.Issued, 1)
	assert.Equal(t, "FAC-2025-01-001", batch.Issued[0].InvoiceID)

	require.Contains(t, batch.NeedsAttention, blocked.ID)
	assert.Equal(t, pending.ID, batch.NeedsAttention[blocked.ID][0].ID)

	assert.Equal(t, []uuid.UUID{idle.ID}, batch.NothingToBill)
}
