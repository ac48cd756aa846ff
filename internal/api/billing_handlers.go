package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-scheduling-billing/internal/billing"
)

type BillingService interface {
	CalculateBill(ctx context.Context, appointmentID string, baseAmount int64, patientID string) (*billing.Bill, error)
	GenerateBill(ctx context.Context, req billing.GenerateBillRequest) (*billing.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string, method billing.PaymentMethod, details map[string]string) (*billing.Payment, error)
	HandlePaymentFailure(ctx context.Context, paymentID, reason string) (*billing.Payment, error)
	GetPayment(ctx context.Context, id string) (*billing.Payment, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]billing.Payment, error)
}

func calculateBillHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CalculateBillRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		bill, err := svc.CalculateBill(r.Context(), req.AppointmentID, req.BaseAmount, req.PatientID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBillResponse(bill))
	}
}

func generateBillHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateBillRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.GenerateBill(r.Context(), billing.GenerateBillRequest{
			AppointmentID:     req.AppointmentID,
			PatientID:         req.PatientID,
			Amount:            req.Amount,
			InsuranceCoverage: req.InsuranceCoverage,
			PatientPortion:    req.PatientPortion,
			PaymentMethod:     billing.PaymentMethod(req.PaymentMethod),
			ClaimID:           req.ClaimID,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPaymentResponse(p))
	}
}

func getPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetPayment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func listPaymentsHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByAppointment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]PaymentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toPaymentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func processPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProcessPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.ProcessPayment(r.Context(), chi.URLParam(r, "id"), billing.PaymentMethod(req.PaymentMethod), req.Details)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

func paymentFailureHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentFailureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Reason == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "reason is required")
			return
		}

		p, err := svc.HandlePaymentFailure(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}
