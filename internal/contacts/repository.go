package contacts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
)

// Repository handles contact and role persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contact *models.Contact) error
	Save(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	FindByEmail(ctx context.Context, email string) (*models.Contact, error)
	SaveRole(ctx context.Context, role *models.ContactRole) error
	FindRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) (*models.ContactRole, error)
	DeleteRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error
	DeleteRoles(ctx context.Context, contactID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contacts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contact *models.Contact) error {
	contact.Email = normalizeEmail(contact.Email)
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *repository) Save(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Omit("Roles").Save(contact).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Contact{}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("id = ?", id).
		First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("lower(email) = ?", normalizeEmail(email)).
		First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *repository) SaveRole(ctx context.Context, role *models.ContactRole) error {
	return r.db.WithContext(ctx).Save(role).Error
}

func (r *repository) FindRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) (*models.ContactRole, error) {
	var role models.ContactRole
	if err := r.db.WithContext(ctx).
		Where("contact_id = ? AND type = ?", contactID, roleType).
		First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *repository) DeleteRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error {
	return r.db.WithContext(ctx).
		Where("contact_id = ? AND type = ?", contactID, roleType).
		Delete(&models.ContactRole{}).Error
}

func (r *repository) DeleteRoles(ctx context.Context, contactID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Delete(&models.ContactRole{}).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
