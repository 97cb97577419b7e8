package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
)

// NewHandlers builds the routing table for the worker. Calendar handlers
// keep the provider event id in sync with the appointment row so updates
// always address the same provider-side event.
func NewHandlers(calendar outbound.CalendarClient, mail outbound.MailClient,
	appointments clinic.AppointmentRepository, log zerolog.Logger) map[string]Handler {

	return map[string]Handler{
		outbound.ServiceCalendarCreateEvent: func(ctx context.Context, item *Item) error {
			var ev outbound.CalendarEvent
			if err := json.Unmarshal(item.Payload, &ev); err != nil {
				return fmt.Errorf("decode calendar payload: %w", err)
			}

			eventID, err := calendar.CreateEvent(ctx, ev)
			if err != nil {
				return err
			}

			// Write the provider id back so later updates route correctly.
			// The targeted write touches only that column, so a schedule
			// mutation racing this handler cannot be reverted and cannot
			// erase the id either.
			apptID, err := uuid.Parse(ev.AppointmentID)
			if err != nil {
				return fmt.Errorf("bad appointment id in payload: %w", err)
			}
			err = appointments.SetExternalEventID(ctx, apptID, eventID)
			if errors.Is(err, clinic.ErrAppointmentNotFound) {
				log.Warn().Str("appointment_id", ev.AppointmentID).
					Msg("event created but appointment gone, id not stored")
				return nil
			}
			if err != nil {
				return fmt.Errorf("store external event id: %w", err)
			}
			return nil
		},

		outbound.ServiceCalendarUpdateEvent: func(ctx context.Context, item *Item) error {
			var ev outbound.CalendarEvent
			if err := json.Unmarshal(item.Payload, &ev); err != nil {
				return fmt.Errorf("decode calendar payload: %w", err)
			}

			// The payload may predate the create command's completion, so
			// the stable id is re-read from the appointment row.
			apptID, err := uuid.Parse(ev.AppointmentID)
			if err != nil {
				return fmt.Errorf("bad appointment id in payload: %w", err)
			}
			appt, err := appointments.GetByID(ctx, apptID)
			if err != nil {
				return fmt.Errorf("load appointment for event update: %w", err)
			}
			if appt.ExternalEventID == "" {
				return fmt.Errorf("appointment %s has no external event id yet", ev.AppointmentID)
			}
			ev.EventID = appt.ExternalEventID

			return calendar.UpdateEvent(ctx, ev)
		},

		outbound.ServiceMailSaveDraft: func(ctx context.Context, item *Item) error {
			var msg outbound.MailMessage
			if err := json.Unmarshal(item.Payload, &msg); err != nil {
				return fmt.Errorf("decode mail payload: %w", err)
			}
			return mail.SaveDraft(ctx, msg)
		},

		outbound.ServiceMailSend: func(ctx context.Context, item *Item) error {
			var msg outbound.MailMessage
			if err := json.Unmarshal(item.Payload, &msg); err != nil {
				return fmt.Errorf("decode mail payload: %w", err)
			}
			return mail.Send(ctx, msg)
		},
	}
}
