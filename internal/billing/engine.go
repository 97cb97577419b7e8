// Package billing turns a patient's appointments over a period into one
// consolidated invoice, replacing any invoice that previously claimed an
// appointment in the range.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/config"
	"github.com/xXGrimmesXx/CabiLib/internal/invoicedoc"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
	redisclient "github.com/xXGrimmesXx/CabiLib/internal/redis"
)

var ErrBillingBusy = errors.New("a billing run for this month is already in progress, please retry")

// Renderer produces and stores the printable invoice artifact.
type Renderer interface {
	Render(doc invoicedoc.Document) ([]byte, error)
	Persist(data []byte, dir, filename string) (string, error)
	PersistTemp(data []byte) (string, error)
}

// Outbox is the durable side-effect queue as seen by the engine.
type Outbox interface {
	Enqueue(ctx context.Context, service string, payload []byte) error
}

// AbsenceConfirmer decides whether unexcused absences get billed at the flat
// fee or waived to zero-amount lines. The patient's absence history over the
// lookback window is supplied as supporting context for the decision.
type AbsenceConfirmer interface {
	ConfirmAbsenceBilling(ctx context.Context, patient clinic.Patient, absences, history []clinic.Appointment) (bool, error)
}

// ConfirmerFunc adapts a plain function to AbsenceConfirmer.
type ConfirmerFunc func(ctx context.Context, patient clinic.Patient, absences, history []clinic.Appointment) (bool, error)

func (f ConfirmerFunc) ConfirmAbsenceBilling(ctx context.Context, patient clinic.Patient, absences, history []clinic.Appointment) (bool, error) {
	return f(ctx, patient, absences, history)
}

// FixedDecision answers the absence question with a constant, for callers
// that already made the call (the HTTP layer's bill_absences flag).
type FixedDecision bool

func (d FixedDecision) ConfirmAbsenceBilling(context.Context, clinic.Patient, []clinic.Appointment, []clinic.Appointment) (bool, error) {
	return bool(d), nil
}

// Result reports one billing run. InvoiceID is empty when no invoice was
// emitted: either nothing was billable, or Unresolved lists appointments
// whose presence status still needs attention.
type Result struct {
	InvoiceID    string
	ArtifactPath string
	Total        float64
	Superseded   []string
	Unresolved   []clinic.Appointment
}

// Issued reports whether the run produced (or, in preview, would produce)
// an invoice.
func (r *Result) Issued() bool { return r.InvoiceID != "" }

// BatchResult aggregates a mass billing run over all patients.
type BatchResult struct {
	Issued         []Result
	NeedsAttention map[uuid.UUID][]clinic.Appointment
	NothingToBill  []uuid.UUID
}

type Engine struct {
	repos    clinic.Repositories
	renderer Renderer
	outbox   Outbox
	locker   redisclient.Locker
	cfg      config.Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewEngine(repos clinic.Repositories, renderer Renderer, outbox Outbox,
	locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		repos:    repos,
		renderer: renderer,
		outbox:   outbox,
		locker:   locker,
		cfg:      cfg,
		log:      log.With().Str("component", "billing").Logger(),
		now:      time.Now,
	}
}

// BillPatient reconciles the patient's appointments with start in
// [start, end] into one invoice.
//
// The run is two-phase: a pure classification pass over the candidates, then
// persistence. Nothing is written before the whole range is classified, so a
// single unresolved presence status aborts with zero persisted mutations.
// Preview mode stops before persistence entirely and only renders a
// temporary artifact from the staged lines.
func (e *Engine) BillPatient(ctx context.Context, patientID uuid.UUID, start, end time.Time, preview bool, confirmer AbsenceConfirmer) (*Result, error) {
	patient, err := e.repos.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	candidates, err := e.repos.Appointments.GetByPatientAndDateRange(ctx, patientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	e.log.Info().
		Str("patient_id", patientID.String()).
		Time("start", start).Time("end", end).
		Bool("preview", preview).
		Int("candidates", len(candidates)).
		Msg("billing run")

	var (
		present    []clinic.Appointment
		absent     []clinic.Appointment
		unresolved []clinic.Appointment
		excluded   []clinic.Appointment
		superseded []string
	)
	seenPrior := make(map[string]bool)

	for _, a := range candidates {
		if a.Invoiced() {
			// Already claimed by an invoice: that invoice will be
			// superseded, and its lines carried forward in step 4.
			if !seenPrior[a.InvoiceID] {
				seenPrior[a.InvoiceID] = true
				superseded = append(superseded, a.InvoiceID)
			}
			continue
		}

		switch a.Presence {
		case clinic.PresencePresent:
			present = append(present, a)
		case clinic.PresenceToBeDetermined:
			unresolved = append(unresolved, a)
		case clinic.PresenceAbsent:
			absent = append(absent, a)
		case clinic.PresenceExcusedAbsent, clinic.PresenceCancelled:
			excluded = append(excluded, a)
		default:
			// Rows predating presence validation may carry anything.
			e.log.Warn().
				Str("appointment_id", a.ID.String()).
				Str("presence", string(a.Presence)).
				Msg("unrecognized presence status, appointment skipped")
		}
	}

	// Hard precondition: no invoice while any candidate lacks a resolved
	// presence status.
	if len(unresolved) > 0 {
		return &Result{Unresolved: unresolved}, nil
	}

	var (
		lines  []clinic.InvoiceLine
		billed []clinic.Appointment
		staged = make(map[uuid.UUID]bool)
	)
	stage := func(a clinic.Appointment, amount float64) {
		if staged[a.ID] {
			return
		}
		staged[a.ID] = true
		lines = append(lines, clinic.InvoiceLine{AppointmentID: a.ID, Amount: amount})
		billed = append(billed, a)
	}

	for _, a := range present {
		t, err := e.repos.Types.GetByID(ctx, a.TypeID)
		if err != nil {
			return nil, fmt.Errorf("load type for appointment %s: %w", a.ID, err)
		}
		stage(a, t.Price)
	}

	if len(superseded) > 0 {
		// Supersession takes precedence over the absence policy: amounts
		// are carried forward verbatim from the prior invoices.
		if err := e.carryForward(ctx, superseded, preview, lines, stage); err != nil {
			return nil, err
		}
	} else if len(absent) > 0 {
		fee, err := e.absenceFee(ctx, *patient, absent, start, confirmer)
		if err != nil {
			return nil, err
		}
		for _, a := range absent {
			stage(a, fee)
		}
	}

	if len(billed) == 0 {
		// Nothing payable, but excused and cancelled appointments still get
		// their exclusion marker so later runs skip them.
		if !preview {
			if err := e.markExcluded(ctx, excluded); err != nil {
				return nil, err
			}
		}
		return &Result{}, nil
	}

	issue := e.now()
	inv := clinic.Invoice{
		PatientID: patientID,
		IssueDate: issue,
		Status:    clinic.InvoiceUnpaid,
		Description: fmt.Sprintf("Séances du %s au %s",
			start.Format("02/01/2006"), end.Format("02/01/2006")),
	}

	if preview {
		id, err := e.repos.Invoices.NextNumber(ctx, issue)
		if err != nil {
			return nil, fmt.Errorf("compute invoice number: %w", err)
		}
		inv.ID = id

		doc, err := e.buildDocument(ctx, inv, *patient, lines, billed, superseded, start, end)
		if err != nil {
			return nil, err
		}
		data, err := e.renderer.Render(doc)
		if err != nil {
			return nil, err
		}
		path, err := e.renderer.PersistTemp(data)
		if err != nil {
			return nil, err
		}
		return &Result{InvoiceID: id, ArtifactPath: path, Total: doc.Total(), Superseded: superseded}, nil
	}

	// Number allocation and invoice insert run under a per-month lock so
	// concurrent runs cannot allocate the same sequence number.
	err = e.locker.WithLock(ctx, "billing:"+issue.Format("2006-01"), func(lockCtx context.Context) error {
		id, err := e.repos.Invoices.NextNumber(lockCtx, issue)
		if err != nil {
			return fmt.Errorf("compute invoice number: %w", err)
		}
		inv.ID = id
		return e.repos.Invoices.Create(lockCtx, &inv)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBillingBusy
		}
		return nil, err
	}

	for i := range lines {
		lines[i].InvoiceID = inv.ID
		if err := e.repos.Lines.Add(ctx, &lines[i]); err != nil {
			return nil, fmt.Errorf("persist invoice line: %w", err)
		}
	}
	for _, a := range billed {
		a.InvoiceID = inv.ID
		if err := e.repos.Appointments.Update(ctx, &a); err != nil {
			return nil, fmt.Errorf("repoint appointment %s: %w", a.ID, err)
		}
	}
	if err := e.markExcluded(ctx, excluded); err != nil {
		return nil, err
	}
	for _, prior := range superseded {
		if err := e.repos.Invoices.UpdateStatus(ctx, prior, clinic.InvoiceSuperseded, nil); err != nil {
			return nil, fmt.Errorf("mark invoice %s superseded: %w", prior, err)
		}
	}

	doc, err := e.buildDocument(ctx, inv, *patient, lines, billed, superseded, start, end)
	if err != nil {
		return nil, err
	}
	data, err := e.renderer.Render(doc)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(e.cfg.InvoiceDir, issue.Format("2006-01"))
	path, err := e.renderer.Persist(data, dir, inv.ID+".html")
	if err != nil {
		return nil, err
	}

	e.enqueueInvoiceMail(ctx, *patient, start, end, path)

	e.log.Info().
		Str("invoice_id", inv.ID).
		Int("lines", len(lines)).
		Float64("total", doc.Total()).
		Strs("superseded", superseded).
		Msg("invoice emitted")

	return &Result{InvoiceID: inv.ID, ArtifactPath: path, Total: doc.Total(), Superseded: superseded}, nil
}

func (e *Engine) markExcluded(ctx context.Context, excluded []clinic.Appointment) error {
	for _, a := range excluded {
		a.InvoiceID = clinic.InvoiceRefExcluded
		if err := e.repos.Appointments.Update(ctx, &a); err != nil {
			return fmt.Errorf("exclude appointment %s: %w", a.ID, err)
		}
	}
	return nil
}

// carryForward stages the lines of every superseded invoice onto the new
// one, amounts verbatim. The staged-appointment guard makes re-billing the
// same range idempotent: an appointment already staged in this run is never
// given a second line.
func (e *Engine) carryForward(ctx context.Context, superseded []string, preview bool,
	stagedSoFar []clinic.InvoiceLine, stage func(clinic.Appointment, float64)) error {

	for _, prior := range superseded {
		var priorLines []clinic.InvoiceLine
		if preview {
			// No rows were written in preview; the staged in-memory
			// lines stand in for the prior invoice's lines.
			priorLines = append(priorLines, stagedSoFar...)
		} else {
			var err error
			priorLines, err = e.repos.Lines.GetByInvoiceID(ctx, prior)
			if err != nil {
				return fmt.Errorf("load lines of invoice %s: %w", prior, err)
			}
		}

		for _, l := range priorLines {
			a, err := e.repos.Appointments.GetByID(ctx, l.AppointmentID)
			if err != nil {
				return fmt.Errorf("load appointment %s of invoice %s: %w", l.AppointmentID, prior, err)
			}
			stage(*a, l.Amount)
		}
	}
	return nil
}

// absenceFee asks the confirmer whether to bill the absences, backing the
// question with the patient's absence history over the lookback window.
// Confirmed absences are billed the flat fee; declined ones get zero-amount
// lines, keeping the audit trail without a payable amount.
func (e *Engine) absenceFee(ctx context.Context, patient clinic.Patient, absent []clinic.Appointment, start time.Time, confirmer AbsenceConfirmer) (float64, error) {
	if confirmer == nil {
		e.log.Warn().Str("patient_id", patient.ID.String()).
			Msg("no absence decision supplied, absences waived to zero")
		return 0, nil
	}

	lookbackStart := start.AddDate(0, 0, -e.cfg.AbsenceLookbackDays)
	previous, err := e.repos.Appointments.GetByPatientAndDateRange(ctx, patient.ID, lookbackStart, start)
	if err != nil {
		return 0, fmt.Errorf("load absence history: %w", err)
	}

	var history []clinic.Appointment
	for _, a := range previous {
		if a.Presence == clinic.PresenceAbsent {
			history = append(history, a)
		}
	}

	confirmed, err := confirmer.ConfirmAbsenceBilling(ctx, patient, absent, history)
	if err != nil {
		return 0, fmt.Errorf("confirm absence billing: %w", err)
	}
	if confirmed {
		return e.cfg.AbsenceFee, nil
	}
	return 0, nil
}

func (e *Engine) buildDocument(ctx context.Context, inv clinic.Invoice, patient clinic.Patient,
	lines []clinic.InvoiceLine, billed []clinic.Appointment, superseded []string,
	start, end time.Time) (invoicedoc.Document, error) {

	docLines := make([]invoicedoc.Line, 0, len(lines))
	for i, l := range lines {
		a := billed[i]
		description := "Séance"
		if t, err := e.repos.Types.GetByID(ctx, a.TypeID); err == nil {
			description = t.Name
		}
		docLines = append(docLines, invoicedoc.Line{
			Description: description,
			Date:        a.StartAt,
			Amount:      l.Amount,
		})
	}

	return invoicedoc.Document{
		Invoice:     inv,
		Patient:     patient,
		Lines:       docLines,
		Superseded:  superseded,
		PeriodStart: start,
		PeriodEnd:   end,
		DueDate:     inv.IssueDate.AddDate(0, 0, e.cfg.PaymentDelayDays),
		Practitioner: invoicedoc.Practitioner{
			Name:    e.cfg.PractitionerName,
			Phone:   e.cfg.PractitionerPhone,
			Email:   e.cfg.PractitionerEmail,
			Address: e.cfg.CabinetAddress,
			Siret:   e.cfg.Siret,
			Ape:     e.cfg.Ape,
			Adeli:   e.cfg.Adeli,
		},
	}, nil
}

func (e *Engine) enqueueInvoiceMail(ctx context.Context, patient clinic.Patient, start, end time.Time, artifactPath string) {
	if patient.Email == "" {
		e.log.Warn().Str("patient_id", patient.ID.String()).Msg("no email on file, invoice mail skipped")
		return
	}

	attachments := []string{artifactPath}
	if e.cfg.BankDetailsPath != "" {
		attachments = append(attachments, e.cfg.BankDetailsPath)
	}

	period := fmt.Sprintf("du %s au %s", start.Format("02-01-2006"), end.Format("02-01-2006"))
	msg := outbound.MailMessage{
		To:      patient.Email,
		Subject: fmt.Sprintf("[Ergothérapie] Facture %s - %s", patient.FirstName, period),
		HTMLBody: fmt.Sprintf(`Bonjour,<br><br>
Veuillez trouver ci-joint votre <strong>facture pour la période %s</strong> concernant les séances d'ergothérapie.<br>
Les coordonnées bancaires sont jointes à ce mail. Pour un règlement par chèque, à l'ordre de : <strong>%s</strong>.<br><br>
Quel que soit le mode de paiement choisi, merci de m'informer de la date et du mode de règlement.<br><br>
Cordialement,<br>`, period, e.cfg.PractitionerName),
		Attachments: attachments,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		e.log.Error().Err(err).Msg("marshal invoice mail payload")
		return
	}
	if err := e.outbox.Enqueue(ctx, outbound.ServiceMailSaveDraft, payload); err != nil {
		e.log.Error().Err(err).Msg("enqueue invoice mail draft")
	}
}

// BillAll runs BillPatient for every patient independently. Per-patient
// failures are collected, not fatal to the batch.
func (e *Engine) BillAll(ctx context.Context, start, end time.Time, preview bool, confirmer AbsenceConfirmer) (*BatchResult, error) {
	patients, err := e.repos.Patients.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	batch := &BatchResult{
		NeedsAttention: make(map[uuid.UUID][]clinic.Appointment),
	}

	for _, p := range patients {
		res, err := e.BillPatient(ctx, p.ID, start, end, preview, confirmer)
		if err != nil {
			e.log.Error().Err(err).Str("patient_id", p.ID.String()).Msg("billing failed for patient")
			continue
		}

		switch {
		case len(res.Unresolved) > 0:
			batch.NeedsAttention[p.ID] = res.Unresolved
		case res.Issued():
			batch.Issued = append(batch.Issued, *res)
		default:
			batch.NothingToBill = append(batch.NothingToBill, p.ID)
		}
	}

	return batch, nil
}
