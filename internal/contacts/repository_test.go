package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
)

func setupContactsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	contacts := `
CREATE TABLE IF NOT EXISTS contacts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  contribution_type TEXT NOT NULL DEFAULT 'none',
  contribution_period TEXT,
  contribution_monthly_amount NUMERIC,
  next_contribution_monthly_amount NUMERIC,
  contribution_changed DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	contactRoles := `
CREATE TABLE IF NOT EXISTS contact_roles (
  id TEXT PRIMARY KEY,
  contact_id TEXT NOT NULL,
  type TEXT NOT NULL,
  date_added DATETIME NOT NULL,
  date_expires DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (contact_id, type)
);`
	require.NoError(t, db.Exec(contacts).Error)
	require.NoError(t, db.Exec(contactRoles).Error)
	return db
}

func TestContactRepositoryNormalizesEmail(t *testing.T) {
	db := setupContactsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	contact := &models.Contact{ID: uuid.New(), Email: "  Dot.Member@Example.ORG "}
	require.NoError(t, repo.Create(ctx, contact))
	assert.Equal(t, "dot.member@example.org", contact.Email)

	found, err := repo.FindByEmail(ctx, "DOT.MEMBER@example.org")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, contact.ID, found.ID)
}

func TestContactRepositoryFindByIDPreloadsRoles(t *testing.T) {
	db := setupContactsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	contact := &models.Contact{ID: uuid.New(), Email: "member@example.org"}
	require.NoError(t, repo.Create(ctx, contact))

	expires := time.Now().UTC().Add(30 * 24 * time.Hour)
	role := &models.ContactRole{
		ID:          uuid.New(),
		ContactID:   contact.ID,
		Type:        enums.RoleTypeMember,
		DateAdded:   time.Now().UTC(),
		DateExpires: &expires,
	}
	require.NoError(t, repo.SaveRole(ctx, role))

	found, err := repo.FindByID(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Roles, 1)
	assert.Equal(t, enums.RoleTypeMember, found.Roles[0].Type)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContactRepositorySaveDoesNotTouchRoles(t *testing.T) {
	db := setupContactsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	contact := &models.Contact{ID: uuid.New(), Email: "member@example.org"}
	require.NoError(t, repo.Create(ctx, contact))
	require.NoError(t, repo.SaveRole(ctx, &models.ContactRole{
		ID:        uuid.New(),
		ContactID: contact.ID,
		Type:      enums.RoleTypeMember,
		DateAdded: time.Now().UTC(),
	}))

	loaded, err := repo.FindByID(ctx, contact.ID)
	require.NoError(t, err)
	loaded.FirstName = "Ada"
	loaded.Roles = nil
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.FindByID(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", reloaded.FirstName)
	assert.Len(t, reloaded.Roles, 1, "saving the contact must not clobber roles")
}

func TestContactRepositoryRoleLifecycle(t *testing.T) {
	db := setupContactsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	contact := &models.Contact{ID: uuid.New(), Email: "member@example.org"}
	require.NoError(t, repo.Create(ctx, contact))

	role := &models.ContactRole{
		ID:        uuid.New(),
		ContactID: contact.ID,
		Type:      enums.RoleTypeMember,
		DateAdded: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRole(ctx, role))

	found, err := repo.FindRole(ctx, contact.ID, enums.RoleTypeMember)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Nil(t, found.DateExpires)

	require.NoError(t, repo.DeleteRoles(ctx, contact.ID))
	gone, err := repo.FindRole(ctx, contact.ID, enums.RoleTypeMember)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
