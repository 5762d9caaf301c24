package payments

import (
	"context"

	"github.com/memberdesk/backend/pkg/db/models"
)

// Provider adapts one payment method behind a uniform contract. Providers
// mutate the passed Contribution in place; the service persists it after the
// provider call succeeds.
type Provider interface {
	// ContributionInfo returns the provider-owned display data.
	ContributionInfo(ctx context.Context, contrib *models.Contribution) (*ProviderInfo, error)
	// CanChangeContribution reports whether the requested change is possible
	// with this provider, optionally reusing the existing payment source.
	CanChangeContribution(ctx context.Context, contrib *models.Contribution, useExistingSource bool, form Form) (bool, error)
	// UpdateContribution creates or amends the external subscription.
	UpdateContribution(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error)
	// CancelContribution cancels the subscription; the mandate is only
	// detached when keepMandate is false. Provider "not found" responses are
	// treated as success.
	CancelContribution(ctx context.Context, contrib *models.Contribution, keepMandate bool) error
	// UpdatePaymentMethod attaches a newly authorized payment source and
	// recreates the subscription when the contact has an automatic
	// contribution configured.
	UpdatePaymentMethod(ctx context.Context, contact *models.Contact, contrib *models.Contribution, flow CompletedFlow) error
	// PermanentlyDeleteContact removes the external customer object.
	// "Already deleted" responses are not errors.
	PermanentlyDeleteContact(ctx context.Context, contrib *models.Contribution) error
}
