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

func listInvoicesHandler(invoices clinic.InvoiceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.Query().Get("unpaid_for"); raw != "" {
			patientID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "unpaid_for must be a valid UUID")
				return
			}
			list, err := invoices.GetUnpaidByPatient(r.Context(), patientID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			writeInvoiceList(w, list)
			return
		}

		list, err := invoices.GetAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeInvoiceList(w, list)
	}
}

func getInvoiceHandler(invoices clinic.InvoiceRepository, lines clinic.InvoiceLineRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		inv, err := invoices.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, clinic.ErrInvoiceNotFound) {
				writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		invLines, err := lines.GetByInvoiceID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceResponse(*inv, invLines))
	}
}

func markInvoicePaidHandler(invoices clinic.InvoiceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req MarkPaidRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		paymentDate := req.PaymentDate
		if paymentDate == nil {
			now := time.Now()
			paymentDate = &now
		}

		if err := invoices.UpdateStatus(r.Context(), id, clinic.InvoicePaid, paymentDate); err != nil {
			if errors.Is(err, clinic.ErrInvoiceNotFound) {
				writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		inv, err := invoices.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceResponse(*inv, nil))
	}
}

func writeInvoiceList(w http.ResponseWriter, list []clinic.Invoice) {
	resp := make([]InvoiceResponse, 0, len(list))
	for _, inv := range list {
		resp = append(resp, toInvoiceResponse(inv, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}
