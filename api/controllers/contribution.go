package controllers

import (
	"net/http"

	"github.com/memberdesk/backend/api/responses"
	"github.com/memberdesk/backend/api/validators"
	"github.com/memberdesk/backend/internal/contacts"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

type updateContributionRequest struct {
	MonthlyAmount float64 `json:"monthlyAmount" validate:"required,gt=0"`
	Period        string  `json:"period" validate:"required"`
	PayFee        bool    `json:"payFee"`
	Prorate       bool    `json:"prorate"`
}

// GetContribution returns the merged local and provider view of a contact's
// contribution.
func GetContribution(contactSvc contacts.Service, paymentSvc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contactSvc == nil || paymentSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution services unavailable"))
			return
		}

		contactID, err := contactIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contact, err := contactSvc.GetContact(r.Context(), contactID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info, err := paymentSvc.GetContributionInfo(r.Context(), contact)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// UpdateContribution changes a contact's contribution amount or period.
func UpdateContribution(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contacts service unavailable"))
			return
		}

		contactID, err := contactIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateContributionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := enums.ParseContributionPeriod(req.Period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period"))
			return
		}

		result, err := svc.UpdateContribution(r.Context(), contactID, payments.Form{
			MonthlyAmount: req.MonthlyAmount,
			Period:        period,
			PayFee:        req.PayFee,
			Prorate:       req.Prorate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelContribution stops future charges while keeping membership until the
// already-paid period runs out.
func CancelContribution(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contacts service unavailable"))
			return
		}

		contactID, err := contactIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelContribution(r.Context(), contactID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}
