package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
	redisclient "github.com/xXGrimmesXx/CabiLib/internal/redis"
)

func scheduleAppointmentHandler(scheduler *clinic.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		typeID, err := uuid.Parse(req.TypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		if req.StartAt.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at is required")
			return
		}

		a := &clinic.Appointment{
			PatientID: patientID,
			TypeID:    typeID,
			StartAt:   req.StartAt,
			Reason:    req.Reason,
			Presence:  clinic.Presence(req.Presence),
		}
		if err := scheduler.Schedule(r.Context(), a); err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*a))
	}
}

func getAppointmentHandler(appointments clinic.AppointmentRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		a, err := appointments.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, clinic.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*a))
	}
}

// listAppointmentsHandler serves two query shapes: ?at=<RFC3339> for the
// appointments occupying an instant, and ?patient_id=&start=&end= for a
// patient's appointments over a period.
func listAppointmentsHandler(appointments clinic.AppointmentRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if atStr := q.Get("at"); atStr != "" {
			at, err := time.Parse(time.RFC3339, atStr)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_at", "at must be RFC3339")
				return
			}
			list, err := appointments.GetByDateTime(r.Context(), at)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			writeAppointmentList(w, list)
			return
		}

		patientID, err := uuid.Parse(q.Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be RFC3339")
			return
		}

		list, err := appointments.GetByPatientAndDateRange(r.Context(), patientID, start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeAppointmentList(w, list)
	}
}

func rescheduleAppointmentHandler(scheduler *clinic.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		typeID, err := uuid.Parse(req.TypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		if req.StartAt.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at is required")
			return
		}

		a, err := scheduler.Reschedule(r.Context(), id, req.StartAt, typeID, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*a))
	}
}

func recordPresenceHandler(scheduler *clinic.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req PresenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		a, err := scheduler.RecordPresence(r.Context(), id, req.Presence)
		if err != nil {
			switch {
			case errors.Is(err, clinic.ErrInvalidPresence):
				writeError(w, http.StatusUnprocessableEntity, "invalid_presence", err.Error())
			case errors.Is(err, clinic.ErrAppointmentNotFound):
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*a))
	}
}

func slotAvailabilityHandler(scheduler *clinic.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		typeID, err := uuid.Parse(q.Get("type_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be RFC3339")
			return
		}

		excludeID := uuid.Nil
		if raw := q.Get("exclude_id"); raw != "" {
			excludeID, err = uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_id must be a valid UUID")
				return
			}
		}

		available, err := scheduler.SlotAvailable(r.Context(), typeID, start, excludeID)
		if err != nil {
			if errors.Is(err, clinic.ErrTypeNotFound) {
				writeError(w, http.StatusNotFound, "type_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{Available: available})
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, clinic.ErrTypeNotFound):
		writeError(w, http.StatusNotFound, "type_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, clinic.ErrInvalidPresence):
		writeError(w, http.StatusUnprocessableEntity, "invalid_presence", err.Error())
	case errors.Is(err, clinic.ErrAppointmentBilled):
		writeError(w, http.StatusConflict, "appointment_billed", err.Error())
	case errors.Is(err, clinic.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, clinic.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being scheduled, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeAppointmentList(w http.ResponseWriter, list []clinic.Appointment) {
	resp := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}
