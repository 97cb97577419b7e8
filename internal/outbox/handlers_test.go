package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	"github.com/xXGrimmesXx/CabiLib/internal/outbound"
)

type stubCalendar struct {
	createdEventID string
	created        []outbound.CalendarEvent
	updated        []outbound.CalendarEvent
}

func (c *stubCalendar) CreateEvent(_ context.Context, ev outbound.CalendarEvent) (string, error) {
	c.created = append(c.created, ev)
	return c.createdEventID, nil
}

func (c *stubCalendar) UpdateEvent(_ context.Context, ev outbound.CalendarEvent) error {
	c.updated = append(c.updated, ev)
	return nil
}

type stubMail struct {
	drafts []outbound.MailMessage
	sent   []outbound.MailMessage
}

func (m *stubMail) SaveDraft(_ context.Context, msg outbound.MailMessage) error {
	m.drafts = append(m.drafts, msg)
	return nil
}

func (m *stubMail) Send(_ context.Context, msg outbound.MailMessage) error {
	m.sent = append(m.sent, msg)
	return nil
}

// stubAppointments implements clinic.AppointmentRepository; only GetByID and
// SetExternalEventID matter to the handlers.
type stubAppointments struct {
	byID map[uuid.UUID]clinic.Appointment
}

func (s *stubAppointments) GetByID(_ context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *stubAppointments) Update(_ context.Context, a *clinic.Appointment) error {
	prev, ok := s.byID[a.ID]
	if !ok {
		return clinic.ErrAppointmentNotFound
	}
	saved := *a
	saved.ExternalEventID = prev.ExternalEventID
	s.byID[a.ID] = saved
	return nil
}

func (s *stubAppointments) SetExternalEventID(_ context.Context, id uuid.UUID, eventID string) error {
	a, ok := s.byID[id]
	if !ok {
		return clinic.ErrAppointmentNotFound
	}
	a.ExternalEventID = eventID
	s.byID[id] = a
	return nil
}

func (s *stubAppointments) GetByPatientAndDateRange(context.Context, uuid.UUID, time.Time, time.Time) ([]clinic.Appointment, error) {
	return nil, nil
}
func (s *stubAppointments) GetByDateTime(context.Context, time.Time) ([]clinic.Appointment, error) {
	return nil, nil
}
func (s *stubAppointments) GetByTypeID(context.Context, uuid.UUID) ([]clinic.Appointment, error) {
	return nil, nil
}
func (s *stubAppointments) GetByInvoiceID(context.Context, string) ([]clinic.Appointment, error) {
	return nil, nil
}
func (s *stubAppointments) Create(context.Context, *clinic.Appointment) error { return nil }
func (s *stubAppointments) FindOverlapping(context.Context, time.Time, time.Time, uuid.UUID) ([]clinic.Appointment, error) {
	return nil, nil
}

func calendarItem(t *testing.T, service string, ev outbound.CalendarEvent) *Item {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &Item{ID: 1, Service: service, Payload: payload}
}

func TestCreateEventHandler_StoresProviderEventID(t *testing.T) {
	appt := clinic.Appointment{ID: uuid.New()}
	appts := &stubAppointments{byID: map[uuid.UUID]clinic.Appointment{appt.ID: appt}}
	calendar := &stubCalendar{createdEventID: "gcal-evt-42"}

	handlers := NewHandlers(calendar, &stubMail{}, appts, zerolog.Nop())
	item := calendarItem(t, outbound.ServiceCalendarCreateEvent,
		outbound.CalendarEvent{AppointmentID: appt.ID.String(), PatientName: "Lou Moreau"})

	err := handlers[outbound.ServiceCalendarCreateEvent](context.Background(), item)
	require.NoError(t, err)

	require.Len(t, calendar.created, 1)
	assert.Equal(t, "gcal-evt-42", appts.byID[appt.ID].ExternalEventID)
}

func TestUpdateEventHandler_UsesStoredEventID(t *testing.T) {
	appt := clinic.Appointment{ID: uuid.New(), ExternalEventID: "gcal-evt-42"}
	appts := &stubAppointments{byID: map[uuid.UUID]clinic.Appointment{appt.ID: appt}}
	calendar := &stubCalendar{}

	handlers := NewHandlers(calendar, &stubMail{}, appts, zerolog.Nop())
	item := calendarItem(t, outbound.ServiceCalendarUpdateEvent,
		outbound.CalendarEvent{AppointmentID: appt.ID.String()})

	err := handlers[outbound.ServiceCalendarUpdateEvent](context.Background(), item)
	require.NoError(t, err)

	require.Len(t, calendar.updated, 1)
	assert.Equal(t, "gcal-evt-42", calendar.updated[0].EventID)
}

func TestUpdateEventHandler_FailsBeforeCreateCompleted(t *testing.T) {
	appt := clinic.Appointment{ID: uuid.New()}
	appts := &stubAppointments{byID: map[uuid.UUID]clinic.Appointment{appt.ID: appt}}
	calendar := &stubCalendar{}

	handlers := NewHandlers(calendar, &stubMail{}, appts, zerolog.Nop())
	item := calendarItem(t, outbound.ServiceCalendarUpdateEvent,
		outbound.CalendarEvent{AppointmentID: appt.ID.String()})

	// The update was enqueued before the create command ran. The error puts
	// the item back through the retry path, by which time the id exists.
	err := handlers[outbound.ServiceCalendarUpdateEvent](context.Background(), item)
	assert.Error(t, err)
	assert.Empty(t, calendar.updated)
}

func TestMailHandlers(t *testing.T) {
	mail := &stubMail{}
	handlers := NewHandlers(&stubCalendar{}, mail, &stubAppointments{byID: map[uuid.UUID]clinic.Appointment{}}, zerolog.Nop())

	msg := outbound.MailMessage{To: "famille.moreau@example.com", Subject: "Facture"}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, handlers[outbound.ServiceMailSaveDraft](context.Background(), &Item{Payload: payload}))
	require.NoError(t, handlers[outbound.ServiceMailSend](context.Background(), &Item{Payload: payload}))

	require.Len(t, mail.drafts, 1)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "famille.moreau@example.com", mail.drafts[0].To)
}
