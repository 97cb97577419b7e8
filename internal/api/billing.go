package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xXGrimmesXx/CabiLib/internal/billing"
	"github.com/xXGrimmesXx/CabiLib/internal/clinic"
)

func billPatientHandler(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		req, confirmer, ok := decodeBillRequest(w, r)
		if !ok {
			return
		}

		res, err := engine.BillPatient(r.Context(), patientID, req.PeriodStart, req.PeriodEnd, req.Preview, confirmer)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		status := http.StatusOK
		if res.Issued() && !req.Preview {
			status = http.StatusCreated
		}
		writeJSON(w, status, toBillingResult(*res))
	}
}

func billAllHandler(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, confirmer, ok := decodeBillRequest(w, r)
		if !ok {
			return
		}

		batch, err := engine.BillAll(r.Context(), req.PeriodStart, req.PeriodEnd, req.Preview, confirmer)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		resp := BatchBillingResponse{Issued: make([]BillingResultResponse, 0, len(batch.Issued))}
		for _, res := range batch.Issued {
			resp.Issued = append(resp.Issued, toBillingResult(res))
		}
		if len(batch.NeedsAttention) > 0 {
			resp.NeedsAttention = make(map[string][]AppointmentResponse, len(batch.NeedsAttention))
			for patientID, appts := range batch.NeedsAttention {
				list := make([]AppointmentResponse, 0, len(appts))
				for _, a := range appts {
					list = append(list, toAppointmentResponse(a))
				}
				resp.NeedsAttention[patientID.String()] = list
			}
		}
		resp.NothingToBill = batch.NothingToBill

		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeBillRequest parses the shared billing request body. The bill_absences
// flag becomes the absence decision; when omitted, absences are waived.
func decodeBillRequest(w http.ResponseWriter, r *http.Request) (BillPatientRequest, billing.AbsenceConfirmer, bool) {
	var req BillPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return req, nil, false
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || req.PeriodEnd.Before(req.PeriodStart) {
		writeError(w, http.StatusBadRequest, "invalid_period", "period_start and period_end must form a valid range")
		return req, nil, false
	}

	var confirmer billing.AbsenceConfirmer
	if req.BillAbsences != nil {
		confirmer = billing.FixedDecision(*req.BillAbsences)
	}
	return req, confirmer, true
}

func handleBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, billing.ErrBillingBusy):
		writeError(w, http.StatusConflict, "billing_busy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toBillingResult(res billing.Result) BillingResultResponse {
	out := BillingResultResponse{
		InvoiceID:    res.InvoiceID,
		ArtifactPath: res.ArtifactPath,
		Total:        res.Total,
		Superseded:   res.Superseded,
	}
	for _, a := range res.Unresolved {
		out.Unresolved = append(out.Unresolved, toAppointmentResponse(a))
	}
	return out
}
