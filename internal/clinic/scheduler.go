package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
	redisclient "github.com/xXGrimmesXx/CabiLib/internal/redis"
)

var (
	ErrSlotTaken         = errors.New("time slot is not free")
	ErrSlotBeingBooked   = errors.New("slot is currently being scheduled, please retry")
	ErrAppointmentBilled = errors.New("appointment is already invoiced")
)

// Outbox is the durable side-effect queue as seen by the scheduler. Enqueue
// must not block on the network; delivery happens later in the worker.
type Outbox interface {
	Enqueue(ctx context.Context, service string, payload []byte) error
}

// Scheduler owns appointment lifecycle mutations: creation, reschedule and
// presence recording, plus appointment-type catalog changes with their
// cascading calendar re-sync. Slot freedom is re-checked inside a per-slot
// lock immediately before every write.
type Scheduler struct {
	repos  Repositories
	locker redisclient.Locker
	outbox Outbox
	log    zerolog.Logger
}

func NewScheduler(repos Repositories, locker redisclient.Locker, outbox Outbox, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		repos:  repos,
		locker: locker,
		outbox: outbox,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// SlotAvailable runs the conflict check for a candidate without persisting
// anything. excludeID carries the appointment being edited (uuid.Nil for a
// new one).
func (s *Scheduler) SlotAvailable(ctx context.Context, typeID uuid.UUID, start time.Time, excludeID uuid.UUID) (bool, error) {
	t, err := s.repos.Types.GetByID(ctx, typeID)
	if err != nil {
		return false, fmt.Errorf("load appointment type: %w", err)
	}

	candidate := Appointment{ID: excludeID, TypeID: typeID, StartAt: start}
	overlapping, err := s.repos.Appointments.FindOverlapping(ctx, start, start.Add(t.Duration), excludeID)
	if err != nil {
		return false, fmt.Errorf("find overlapping appointments: %w", err)
	}

	return SlotFree(candidate, *t, overlapping), nil
}

// Schedule creates an appointment after re-validating slot freedom inside a
// lock on the slot's start time, then enqueues the calendar create command.
func (s *Scheduler) Schedule(ctx context.Context, a *Appointment) error {
	if a.Presence == "" {
		a.Presence = PresenceToBeDetermined
	}
	if _, err := ParsePresence(string(a.Presence)); err != nil {
		return err
	}

	patient, err := s.repos.Patients.GetByID(ctx, a.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	t, err := s.repos.Types.GetByID(ctx, a.TypeID)
	if err != nil {
		return fmt.Errorf("load appointment type: %w", err)
	}

	err = s.locker.WithLock(ctx, slotKey(a.StartAt), func(lockCtx context.Context) error {
		overlapping, err := s.repos.Appointments.FindOverlapping(lockCtx, a.StartAt, a.End(*t), uuid.Nil)
		if err != nil {
			return fmt.Errorf("find overlapping appointments: %w", err)
		}
		if !SlotFree(*a, *t, overlapping) {
			return ErrSlotTaken
		}

		if err := s.repos.Appointments.Create(lockCtx, a); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSlotBeingBooked
		}
		return err
	}

	s.enqueueCalendar(ctx, outbound.ServiceCalendarCreateEvent, *a, *patient, *t)
	return nil
}

// Reschedule moves or edits an appointment, re-running the conflict check
// with the appointment excluded from its own overlap scan. The calendar
// update command is only enqueued when a field the calendar shows changed.
func (s *Scheduler) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, newTypeID uuid.UUID, reason string) (*Appointment, error) {
	old, err := s.repos.Appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	// The invoice artifact prints the appointment's date; moving a billed
	// appointment would desynchronize it.
	if old.Invoiced() {
		return nil, ErrAppointmentBilled
	}

	updated := *old
	updated.StartAt = newStart
	updated.TypeID = newTypeID
	updated.Reason = reason

	t, err := s.repos.Types.GetByID(ctx, updated.TypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	err = s.locker.WithLock(ctx, slotKey(newStart), func(lockCtx context.Context) error {
		overlapping, err := s.repos.Appointments.FindOverlapping(lockCtx, updated.StartAt, updated.End(*t), updated.ID)
		if err != nil {
			return fmt.Errorf("find overlapping appointments: %w", err)
		}
		if !SlotFree(updated, *t, overlapping) {
			return ErrSlotTaken
		}

		return s.repos.Appointments.Update(lockCtx, &updated)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	if !old.StartAt.Equal(updated.StartAt) || old.TypeID != updated.TypeID || old.Reason != updated.Reason {
		patient, perr := s.repos.Patients.GetByID(ctx, updated.PatientID)
		if perr != nil {
			s.log.Warn().Err(perr).Str("appointment_id", id.String()).Msg("calendar sync skipped, patient lookup failed")
			return &updated, nil
		}
		s.enqueueCalendar(ctx, outbound.ServiceCalendarUpdateEvent, updated, *patient, *t)
	}

	return &updated, nil
}

// RecordPresence sets the attendance outcome of an appointment.
func (s *Scheduler) RecordPresence(ctx context.Context, id uuid.UUID, raw string) (*Appointment, error) {
	presence, err := ParsePresence(raw)
	if err != nil {
		return nil, err
	}

	a, err := s.repos.Appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	a.Presence = presence
	if err := s.repos.Appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAppointmentType saves a catalog change. When the name or duration
// changed, every appointment of that type is re-synced to the calendar,
// since both show up on the provider side.
func (s *Scheduler) UpdateAppointmentType(ctx context.Context, t *AppointmentType) error {
	old, err := s.repos.Types.GetByID(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load appointment type: %w", err)
	}

	if err := s.repos.Types.Update(ctx, t); err != nil {
		return err
	}

	if old.Name == t.Name && old.Duration == t.Duration {
		return nil
	}

	appointments, err := s.repos.Appointments.GetByTypeID(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load appointments for re-sync: %w", err)
	}

	for _, a := range appointments {
		patient, perr := s.repos.Patients.GetByID(ctx, a.PatientID)
		if perr != nil {
			s.log.Warn().Err(perr).Str("appointment_id", a.ID.String()).Msg("calendar re-sync skipped")
			continue
		}
		s.enqueueCalendar(ctx, outbound.ServiceCalendarUpdateEvent, a, *patient, *t)
	}

	return nil
}

func (s *Scheduler) enqueueCalendar(ctx context.Context, service string, a Appointment, p Patient, t AppointmentType) {
	ev := outbound.CalendarEvent{
		AppointmentID: a.ID.String(),
		EventID:       a.ExternalEventID,
		PatientName:   p.FullName(),
		TypeName:      t.Name,
		Location:      t.Location,
		Start:         a.StartAt,
		End:           a.End(t),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Str("service", service).Msg("marshal calendar payload")
		return
	}

	// Delivery is best effort; a storage failure here must not fail the
	// scheduling operation that already committed.
	if err := s.outbox.Enqueue(ctx, service, payload); err != nil {
		s.log.Error().Err(err).Str("service", service).Msg("enqueue calendar command")
	}
}

func slotKey(start time.Time) string {
	return "slot:" + start.UTC().Format(time.RFC3339)
}
