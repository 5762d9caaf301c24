package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	"github.com/memberdesk/backend/pkg/logger"
)

// Template names used by the contribution lifecycle.
const (
	TemplateCancelledContribution      = "cancelled-contribution"
	TemplateManualToAutomatic          = "manual-to-automatic"
	TemplateWelcome                    = "welcome"
	TemplateAdminCancelledContribution = "admin-cancelled-contribution"
	TemplateAdminNewMember             = "admin-new-member"
)

// Service records templated notifications for contacts and the admin feed.
// Delivery is fire-and-forget: failures are logged, never retried here.
type Service interface {
	SendTemplateToContact(ctx context.Context, template string, contactID uuid.UUID, vars map[string]any)
	SendTemplateToAdmin(ctx context.Context, template string, vars map[string]any)
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// Repository handles notification persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups dependencies for the notification service.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds a notification service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repo required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: params.Repo, logg: params.Logger}, nil
}

func (s *service) SendTemplateToContact(ctx context.Context, template string, contactID uuid.UUID, vars map[string]any) {
	s.record(ctx, enums.NotificationAudienceContact, template, &contactID, vars)
}

func (s *service) SendTemplateToAdmin(ctx context.Context, template string, vars map[string]any) {
	s.record(ctx, enums.NotificationAudienceAdmin, template, nil, vars)
}

func (s *service) record(ctx context.Context, audience enums.NotificationAudience, template string, contactID *uuid.UUID, vars map[string]any) {
	var encoded json.RawMessage
	if len(vars) > 0 {
		payload, err := json.Marshal(vars)
		if err != nil {
			s.logg.Error(ctx, "encode notification vars", err)
			return
		}
		encoded = payload
	}
	notification := &models.Notification{
		Audience:  audience,
		Template:  template,
		ContactID: contactID,
		Vars:      encoded,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "template", template), "record notification", err)
	}
}

func (s *service) ListByContact(ctx context.Context, contactID uuid.UUID) ([]models.Notification, error) {
	return s.repo.ListByContact(ctx, contactID)
}

func (s *service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id)
}
