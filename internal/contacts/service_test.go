package contacts

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/pagination"
)

type stubContactRepo struct {
	contacts map[uuid.UUID]*models.Contact
	byEmail  map[string]*models.Contact
	roles    map[uuid.UUID][]*models.ContactRole

	createErr error
	saved     []models.Contact
	deleted   []uuid.UUID
}

func newStubContactRepo() *stubContactRepo {
	return &stubContactRepo{
		contacts: map[uuid.UUID]*models.Contact{},
		byEmail:  map[string]*models.Contact{},
		roles:    map[uuid.UUID][]*models.ContactRole{},
	}
}

func (r *stubContactRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubContactRepo) Create(ctx context.Context, contact *models.Contact) error {
	if r.createErr != nil {
		return r.createErr
	}
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	r.contacts[contact.ID] = contact
	r.byEmail[contact.Email] = contact
	return nil
}

func (r *stubContactRepo) Save(ctx context.Context, contact *models.Contact) error {
	r.saved = append(r.saved, *contact)
	r.contacts[contact.ID] = contact
	return nil
}

func (r *stubContactRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	delete(r.contacts, id)
	return nil
}

func (r *stubContactRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	contact, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	contact.Roles = contact.Roles[:0]
	for _, role := range r.roles[id] {
		contact.Roles = append(contact.Roles, *role)
	}
	return contact, nil
}

func (r *stubContactRepo) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	return r.byEmail[email], nil
}

func (r *stubContactRepo) SaveRole(ctx context.Context, role *models.ContactRole) error {
	for i, existing := range r.roles[role.ContactID] {
		if existing.Type == role.Type {
			r.roles[role.ContactID][i] = role
			return nil
		}
	}
	r.roles[role.ContactID] = append(r.roles[role.ContactID], role)
	return nil
}

func (r *stubContactRepo) FindRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) (*models.ContactRole, error) {
	for _, role := range r.roles[contactID] {
		if role.Type == roleType {
			return role, nil
		}
	}
	return nil, nil
}

func (r *stubContactRepo) DeleteRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error {
	kept := r.roles[contactID][:0]
	for _, role := range r.roles[contactID] {
		if role.Type != roleType {
			kept = append(kept, role)
		}
	}
	r.roles[contactID] = kept
	return nil
}

func (r *stubContactRepo) DeleteRoles(ctx context.Context, contactID uuid.UUID) error {
	delete(r.roles, contactID)
	return nil
}

type stubPaymentService struct {
	contribution *models.Contribution
	updateResult *payments.UpdateResult
	canChange    bool

	createCalls int
	updateCalls int
	cancelCalls int
	deleteCalls int
	order       *[]string
}

func (s *stubPaymentService) CreateContribution(ctx context.Context, contactID uuid.UUID) error {
	s.createCalls++
	return nil
}

func (s *stubPaymentService) Contribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error) {
	if s.contribution == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
	}
	return s.contribution, nil
}

func (s *stubPaymentService) GetContributionInfo(ctx context.Context, contact *models.Contact) (*payments.ContributionInfo, error) {
	return &payments.ContributionInfo{}, nil
}

func (s *stubPaymentService) CanChangeContribution(ctx context.Context, contact *models.Contact, useExistingSource bool, form payments.Form) (bool, error) {
	return s.canChange, nil
}

func (s *stubPaymentService) UpdateContribution(ctx context.Context, contact *models.Contact, form payments.Form) (*payments.UpdateResult, error) {
	s.updateCalls++
	return s.updateResult, nil
}

func (s *stubPaymentService) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, flow payments.CompletedFlow) error {
	return nil
}

func (s *stubPaymentService) CancelContribution(ctx context.Context, contact *models.Contact, keepMandate bool) error {
	s.cancelCalls++
	return nil
}

func (s *stubPaymentService) PermanentlyDeleteContact(ctx context.Context, contact *models.Contact) error {
	s.deleteCalls++
	if s.order != nil {
		*s.order = append(*s.order, "payments")
	}
	return nil
}

func (s *stubPaymentService) ListPayments(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, string, error) {
	return nil, "", nil
}

func (s *stubPaymentService) MembershipStatus(contact *models.Contact, contrib *models.Contribution) enums.MembershipStatus {
	return enums.MembershipStatusNone
}

type stubNotifier struct {
	contactTemplates []string
	adminTemplates   []string
}

func (n *stubNotifier) SendTemplateToContact(ctx context.Context, template string, contactID uuid.UUID, vars map[string]any) {
	n.contactTemplates = append(n.contactTemplates, template)
}

func (n *stubNotifier) SendTemplateToAdmin(ctx context.Context, template string, vars map[string]any) {
	n.adminTemplates = append(n.adminTemplates, template)
}

func (n *stubNotifier) ListByContact(ctx context.Context, contactID uuid.UUID) ([]models.Notification, error) {
	return nil, nil
}

func (n *stubNotifier) MarkRead(ctx context.Context, id uuid.UUID) error { return nil }

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo *stubContactRepo, pay *stubPaymentService, notify *stubNotifier) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Payments:          pay,
		Notifications:     notify,
		TransactionRunner: stubTx{},
		Logger:            testLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func periodPtr(p enums.ContributionPeriod) *enums.ContributionPeriod { return &p }

func seedContact(repo *stubContactRepo, contact *models.Contact) {
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	repo.contacts[contact.ID] = contact
	repo.byEmail[contact.Email] = contact
}

func seedActiveMembership(repo *stubContactRepo, contactID uuid.UUID, expires time.Time) {
	repo.roles[contactID] = append(repo.roles[contactID], &models.ContactRole{
		ContactID:   contactID,
		Type:        enums.RoleTypeMember,
		DateAdded:   time.Now().UTC().Add(-30 * 24 * time.Hour),
		DateExpires: &expires,
	})
}

func TestCreateContactDuplicateEmailReturnsExisting(t *testing.T) {
	repo := newStubContactRepo()
	existing := &models.Contact{Email: "member@example.org"}
	seedContact(repo, existing)
	repo.createErr = &pgconn.PgError{Code: "23505", ConstraintName: "uq_contacts_email"}

	pay := &stubPaymentService{}
	svc := newTestService(t, repo, pay, &stubNotifier{})

	contact, wasExisting, err := svc.CreateContact(context.Background(), CreateContactInput{Email: "member@example.org"})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if !wasExisting {
		t.Fatal("expected existing contact flag")
	}
	if contact.ID != existing.ID {
		t.Fatalf("expected existing contact %s, got %s", existing.ID, contact.ID)
	}
}

func TestCreateContactProvisionsContribution(t *testing.T) {
	repo := newStubContactRepo()
	pay := &stubPaymentService{}
	svc := newTestService(t, repo, pay, &stubNotifier{})

	contact, wasExisting, err := svc.CreateContact(context.Background(), CreateContactInput{
		Email:     "new@example.org",
		FirstName: "Ana",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if wasExisting {
		t.Fatal("did not expect existing contact flag")
	}
	if contact.ID == uuid.Nil {
		t.Fatal("expected contact id to be assigned")
	}
	if pay.createCalls != 1 {
		t.Fatalf("expected 1 contribution provision, got %d", pay.createCalls)
	}
}

func TestUpdateContributionRejectsPeriodChangeOnActiveAutomatic(t *testing.T) {
	repo := newStubContactRepo()
	contact := &models.Contact{
		Email:              "member@example.org",
		ContributionType:   enums.ContributionTypeAutomatic,
		ContributionPeriod: periodPtr(enums.ContributionPeriodAnnually),
	}
	seedContact(repo, contact)
	seedActiveMembership(repo, contact.ID, time.Now().UTC().Add(200*24*time.Hour))

	pay := &stubPaymentService{canChange: true}
	svc := newTestService(t, repo, pay, &stubNotifier{})

	_, err := svc.UpdateContribution(context.Background(), contact.ID, payments.Form{
		MonthlyAmount: 5,
		Period:        enums.ContributionPeriodMonthly,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if pay.updateCalls != 0 {
		t.Fatalf("expected no provider update, got %d", pay.updateCalls)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("expected contact untouched, got %d saves", len(repo.saved))
	}
}

func TestUpdateContributionStartNowPromotesAmountAndExtendsMembership(t *testing.T) {
	repo := newStubContactRepo()
	staged := 3.0
	contact := &models.Contact{
		Email:                         "member@example.org",
		ContributionType:              enums.ContributionTypeManual,
		NextContributionMonthlyAmount: &staged,
	}
	seedContact(repo, contact)

	method := enums.PaymentMethodGoCardlessDirectDebit
	expiry := time.Now().UTC().Add(35 * 24 * time.Hour)
	pay := &stubPaymentService{
		canChange:    true,
		contribution: &models.Contribution{ContactID: contact.ID, Method: &method},
		updateResult: &payments.UpdateResult{StartNow: true, ExpiryDate: expiry},
	}
	notify := &stubNotifier{}
	svc := newTestService(t, repo, pay, notify)

	result, err := svc.UpdateContribution(context.Background(), contact.ID, payments.Form{
		MonthlyAmount: 10,
		Period:        enums.ContributionPeriodMonthly,
	})
	if err != nil {
		t.Fatalf("UpdateContribution: %v", err)
	}
	if !result.StartNow {
		t.Fatal("expected immediate start")
	}
	if contact.ContributionMonthlyAmount == nil || *contact.ContributionMonthlyAmount != 10 {
		t.Fatalf("expected monthly amount 10, got %v", contact.ContributionMonthlyAmount)
	}
	if contact.NextContributionMonthlyAmount != nil {
		t.Fatal("expected staged amount cleared")
	}
	if contact.ContributionType != enums.ContributionTypeAutomatic {
		t.Fatalf("expected automatic type, got %s", contact.ContributionType)
	}
	role, _ := repo.FindRole(context.Background(), contact.ID, enums.RoleTypeMember)
	if role == nil || role.DateExpires == nil || !role.DateExpires.Equal(expiry) {
		t.Fatalf("expected member role expiring %s, got %+v", expiry, role)
	}
	if len(notify.contactTemplates) != 1 || notify.contactTemplates[0] != "manual-to-automatic" {
		t.Fatalf("expected manual-to-automatic notification, got %v", notify.contactTemplates)
	}
}

func TestUpdateContributionStagesAmountWhenNotStartingNow(t *testing.T) {
	repo := newStubContactRepo()
	current := 5.0
	contact := &models.Contact{
		Email:                     "member@example.org",
		ContributionType:          enums.ContributionTypeAutomatic,
		ContributionPeriod:        periodPtr(enums.ContributionPeriodMonthly),
		ContributionMonthlyAmount: &current,
	}
	seedContact(repo, contact)

	method := enums.PaymentMethodGoCardlessDirectDebit
	pay := &stubPaymentService{
		canChange:    true,
		contribution: &models.Contribution{ContactID: contact.ID, Method: &method},
		updateResult: &payments.UpdateResult{StartNow: false, ExpiryDate: time.Now().UTC().Add(35 * 24 * time.Hour)},
	}
	svc := newTestService(t, repo, pay, &stubNotifier{})

	_, err := svc.UpdateContribution(context.Background(), contact.ID, payments.Form{
		MonthlyAmount: 2,
		Period:        enums.ContributionPeriodMonthly,
	})
	if err != nil {
		t.Fatalf("UpdateContribution: %v", err)
	}
	if contact.ContributionMonthlyAmount == nil || *contact.ContributionMonthlyAmount != 5 {
		t.Fatalf("expected current amount unchanged, got %v", contact.ContributionMonthlyAmount)
	}
	if contact.NextContributionMonthlyAmount == nil || *contact.NextContributionMonthlyAmount != 2 {
		t.Fatalf("expected staged amount 2, got %v", contact.NextContributionMonthlyAmount)
	}
}

func TestExtendRoleNeverShortens(t *testing.T) {
	repo := newStubContactRepo()
	contact := &models.Contact{Email: "member@example.org"}
	seedContact(repo, contact)
	far := time.Now().UTC().Add(100 * 24 * time.Hour)
	seedActiveMembership(repo, contact.ID, far)

	svc := newTestService(t, repo, &stubPaymentService{}, &stubNotifier{})

	near := time.Now().UTC().Add(10 * 24 * time.Hour)
	if err := svc.ExtendRole(context.Background(), contact.ID, enums.RoleTypeMember, near); err != nil {
		t.Fatalf("ExtendRole: %v", err)
	}
	role, _ := repo.FindRole(context.Background(), contact.ID, enums.RoleTypeMember)
	if !role.DateExpires.Equal(far) {
		t.Fatalf("expected expiry kept at %s, got %s", far, role.DateExpires)
	}

	further := far.Add(50 * 24 * time.Hour)
	if err := svc.ExtendRole(context.Background(), contact.ID, enums.RoleTypeMember, further); err != nil {
		t.Fatalf("ExtendRole: %v", err)
	}
	role, _ = repo.FindRole(context.Background(), contact.ID, enums.RoleTypeMember)
	if !role.DateExpires.Equal(further) {
		t.Fatalf("expected expiry moved to %s, got %s", further, role.DateExpires)
	}
}

func TestCancelContributionNotifiesContactAndAdmin(t *testing.T) {
	repo := newStubContactRepo()
	contact := &models.Contact{Email: "member@example.org"}
	seedContact(repo, contact)

	pay := &stubPaymentService{}
	notify := &stubNotifier{}
	svc := newTestService(t, repo, pay, notify)

	if err := svc.CancelContribution(context.Background(), contact.ID); err != nil {
		t.Fatalf("CancelContribution: %v", err)
	}
	if pay.cancelCalls != 1 {
		t.Fatalf("expected 1 cancel, got %d", pay.cancelCalls)
	}
	if len(notify.contactTemplates) != 1 || notify.contactTemplates[0] != "cancelled-contribution" {
		t.Fatalf("unexpected contact notifications %v", notify.contactTemplates)
	}
	if len(notify.adminTemplates) != 1 || notify.adminTemplates[0] != "admin-cancelled-contribution" {
		t.Fatalf("unexpected admin notifications %v", notify.adminTemplates)
	}
}

func TestPermanentlyDeleteContactRunsProviderFirst(t *testing.T) {
	repo := newStubContactRepo()
	contact := &models.Contact{Email: "member@example.org"}
	seedContact(repo, contact)
	seedActiveMembership(repo, contact.ID, time.Now().UTC().Add(24*time.Hour))

	pay := &stubPaymentService{}
	svc := newTestService(t, repo, pay, &stubNotifier{})

	if err := svc.PermanentlyDeleteContact(context.Background(), contact.ID); err != nil {
		t.Fatalf("PermanentlyDeleteContact: %v", err)
	}
	if pay.deleteCalls != 1 {
		t.Fatalf("expected provider delete, got %d", pay.deleteCalls)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != contact.ID {
		t.Fatalf("expected contact row deleted, got %v", repo.deleted)
	}
	if len(repo.roles[contact.ID]) != 0 {
		t.Fatal("expected roles purged")
	}
}

func TestPromoteStagedAmountOnlyOnExactMatch(t *testing.T) {
	repo := newStubContactRepo()
	staged := 7.5
	contact := &models.Contact{
		Email:                         "member@example.org",
		NextContributionMonthlyAmount: &staged,
	}
	seedContact(repo, contact)

	svc := newTestService(t, repo, &stubPaymentService{}, &stubNotifier{})

	if err := svc.PromoteStagedAmount(context.Background(), contact.ID, 5); err != nil {
		t.Fatalf("PromoteStagedAmount: %v", err)
	}
	if contact.NextContributionMonthlyAmount == nil {
		t.Fatal("mismatched amount should not promote")
	}

	if err := svc.PromoteStagedAmount(context.Background(), contact.ID, 7.5); err != nil {
		t.Fatalf("PromoteStagedAmount: %v", err)
	}
	if contact.NextContributionMonthlyAmount != nil {
		t.Fatal("expected staged amount cleared")
	}
	if contact.ContributionMonthlyAmount == nil || *contact.ContributionMonthlyAmount != 7.5 {
		t.Fatalf("expected promoted amount 7.5, got %v", contact.ContributionMonthlyAmount)
	}
}
