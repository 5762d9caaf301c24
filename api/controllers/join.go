package controllers

import (
	"net/http"

	"github.com/memberdesk/backend/api/responses"
	"github.com/memberdesk/backend/api/validators"
	"github.com/memberdesk/backend/internal/joinflow"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

type startJoinRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	FirstName     string  `json:"firstName" validate:"max=100"`
	LastName      string  `json:"lastName" validate:"max=100"`
	MonthlyAmount float64 `json:"monthlyAmount" validate:"required,gt=0"`
	Period        string  `json:"period" validate:"required"`
	PayFee        bool    `json:"payFee"`
	CompleteURL   string  `json:"completeUrl" validate:"required,url"`
}

type completeJoinRequest struct {
	RedirectFlowID string `json:"redirectFlowId" validate:"required"`
}

type updatePaymentMethodRequest struct {
	CompleteURL string `json:"completeUrl" validate:"required,url"`
}

// StartJoin begins the hosted signup handshake and returns the provider's
// authorization URL.
func StartJoin(svc joinflow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "join flow service unavailable"))
			return
		}

		var req startJoinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := enums.ParseContributionPeriod(req.Period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period"))
			return
		}

		result, err := svc.Start(r.Context(), joinflow.StartParams{
			Form: joinflow.JoinForm{
				Email:         req.Email,
				FirstName:     req.FirstName,
				LastName:      req.LastName,
				MonthlyAmount: req.MonthlyAmount,
				Period:        period,
				PayFee:        req.PayFee,
			},
			CompleteURL: req.CompleteURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CompleteJoin consumes a join flow token after the member authorized the
// mandate.
func CompleteJoin(svc joinflow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "join flow service unavailable"))
			return
		}

		var req completeJoinRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Complete(r.Context(), req.RedirectFlowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdatePaymentMethod starts a mandate change for an existing contact. The
// returned redirect URL runs the same hosted handshake as a signup and the
// flow is consumed through the join complete endpoint.
func UpdatePaymentMethod(svc joinflow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "join flow service unavailable"))
			return
		}

		contactID, err := contactIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updatePaymentMethodRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartPaymentMethodUpdate(r.Context(), contactID, req.CompleteURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
