package controllers

import (
	"net/http"
	"strings"

	"github.com/memberdesk/backend/api/responses"
	"github.com/memberdesk/backend/api/validators"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/pagination"
)

type listPaymentsResponse struct {
	Payments   []models.Payment `json:"payments"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListPayments returns a contact's payment history, newest first.
func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		contactID, err := contactIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		rows, next, err := svc.ListPayments(r.Context(), contactID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listPaymentsResponse{Payments: rows, NextCursor: next})
	}
}
