package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

func createTypeHandler(types clinic.AppointmentTypeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppointmentTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.DurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_type", "name and a positive duration_minutes are required")
			return
		}

		t := typeFromRequest(req)
		if err := types.Create(r.Context(), t); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toTypeResponse(*t))
	}
}

func listTypesHandler(types clinic.AppointmentTypeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := types.GetAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentTypeResponse, 0, len(all))
		for _, t := range all {
			resp = append(resp, toTypeResponse(t))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getTypeHandler(types clinic.AppointmentTypeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "id must be a valid UUID")
			return
		}

		t, err := types.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, clinic.ErrTypeNotFound) {
				writeError(w, http.StatusNotFound, "type_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toTypeResponse(*t))
	}
}

// Updates go through the scheduler because name or duration changes cascade
// a calendar re-sync over every appointment of the type.
func updateTypeHandler(scheduler *clinic.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "id must be a valid UUID")
			return
		}

		var req AppointmentTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.DurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_type", "name and a positive duration_minutes are required")
			return
		}

		t := typeFromRequest(req)
		t.ID = id

		if err := scheduler.UpdateAppointmentType(r.Context(), t); err != nil {
			if errors.Is(err, clinic.ErrTypeNotFound) {
				writeError(w, http.StatusNotFound, "type_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toTypeResponse(*t))
	}
}

func deleteTypeHandler(types clinic.AppointmentTypeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "id must be a valid UUID")
			return
		}

		if err := types.Delete(r.Context(), id); err != nil {
			if errors.Is(err, clinic.ErrTypeNotFound) {
				writeError(w, http.StatusNotFound, "type_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func typeFromRequest(req AppointmentTypeRequest) *clinic.AppointmentType {
	return &clinic.AppointmentType{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Duration:    time.Duration(req.DurationMinutes) * time.Minute,
		Location:    req.Location,
		Color:       req.Color,
		IsGroup:     req.IsGroup,
	}
}
