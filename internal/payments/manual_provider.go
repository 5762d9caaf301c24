package payments

import (
	"context"
	"time"

	"github.com/memberdesk/backend/pkg/db/models"
)

// manualProvider backs contacts whose contributions are recorded by hand
// (standing orders, cash). It never talks to an external API.
type manualProvider struct {
	gracePeriod time.Duration
}

// NewManualProvider builds the manual provider adapter.
func NewManualProvider(gracePeriod time.Duration) Provider {
	if gracePeriod <= 0 {
		gracePeriod = 7 * 24 * time.Hour
	}
	return &manualProvider{gracePeriod: gracePeriod}
}

func (p *manualProvider) ContributionInfo(ctx context.Context, contrib *models.Contribution) (*ProviderInfo, error) {
	return &ProviderInfo{}, nil
}

func (p *manualProvider) CanChangeContribution(ctx context.Context, contrib *models.Contribution, useExistingSource bool, form Form) (bool, error) {
	return true, nil
}

func (p *manualProvider) UpdateContribution(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	expiry := time.Now().UTC().AddDate(0, form.Period.MonthsPerPeriod(), 0).Add(p.gracePeriod)
	return &UpdateResult{StartNow: true, ExpiryDate: expiry}, nil
}

func (p *manualProvider) CancelContribution(ctx context.Context, contrib *models.Contribution, keepMandate bool) error {
	contrib.SubscriptionID = nil
	if !keepMandate {
		contrib.MandateID = nil
	}
	return nil
}

func (p *manualProvider) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, contrib *models.Contribution, flow CompletedFlow) error {
	return nil
}

func (p *manualProvider) PermanentlyDeleteContact(ctx context.Context, contrib *models.Contribution) error {
	return nil
}
