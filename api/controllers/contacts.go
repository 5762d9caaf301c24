package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/memberdesk/backend/api/responses"
	"github.com/memberdesk/backend/api/validators"
	"github.com/memberdesk/backend/internal/contacts"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

type createContactRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

type createContactResponse struct {
	ContactID uuid.UUID `json:"contactId"`
	Existing  bool      `json:"existing"`
}

// CreateContact registers a new contact. A duplicate email returns the
// existing contact instead of failing.
func CreateContact(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contacts service unavailable"))
			return
		}

		var req createContactRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contact, existing, err := svc.CreateContact(r.Context(), contacts.CreateContactInput{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, createContactResponse{ContactID: contact.ID, Existing: existing})
	}
}

// GetContact returns a contact with its roles.
func GetContact(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
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

		contact, err := svc.GetContact(r.Context(), contactID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contact)
	}
}

// DeleteContact permanently erases a contact, its contribution and its
// payment history, provider side first.
func DeleteContact(svc contacts.Service, logg *logger.Logger) http.HandlerFunc {
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

		if err := svc.PermanentlyDeleteContact(r.Context(), contactID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func contactIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "contactID")
	contactID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contact id")
	}
	return contactID, nil
}
