package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/pkg/enums"
)

// Contact is a person known to the organization. A contact owns at most one
// Contribution row and any number of roles.
type Contact struct {
	ID                             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email                          string                 `gorm:"column:email;not null;unique" json:"email"`
	FirstName                      string                 `gorm:"column:first_name;not null;default:''" json:"firstName"`
	LastName                       string                 `gorm:"column:last_name;not null;default:''" json:"lastName"`
	ContributionType               enums.ContributionType `gorm:"column:contribution_type;not null;default:'none'" json:"contributionType"`
	ContributionPeriod             *enums.ContributionPeriod `gorm:"column:contribution_period" json:"contributionPeriod,omitempty"`
	ContributionMonthlyAmount      *float64               `gorm:"column:contribution_monthly_amount;type:numeric(10,2)" json:"contributionMonthlyAmount,omitempty"`
	NextContributionMonthlyAmount  *float64               `gorm:"column:next_contribution_monthly_amount;type:numeric(10,2)" json:"nextContributionMonthlyAmount,omitempty"`
	ContributionChanged            *time.Time             `gorm:"column:contribution_changed" json:"contributionChanged,omitempty"`
	Roles                          []ContactRole          `gorm:"foreignKey:ContactID" json:"roles,omitempty"`
	CreatedAt                      time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt                      time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Membership returns the contact's member role if one exists.
func (c *Contact) Membership() *ContactRole {
	for i := range c.Roles {
		if c.Roles[i].Type == enums.RoleTypeMember {
			return &c.Roles[i]
		}
	}
	return nil
}
