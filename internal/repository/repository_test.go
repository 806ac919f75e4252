package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docuquery/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Organization{}, &model.User{}, &model.Document{}))
	return db
}

func TestOrganizationCreateWithOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	users := NewUserRepository(db)

	org := &model.Organization{Name: "acme", APIKeyHash: "h1"}
	user := &model.User{Email: "a@acme.io", PasswordHash: "x"}
	require.NoError(t, orgs.CreateWithOwner(ctx, org, user))
	require.NotEmpty(t, org.ID)
	assert.Equal(t, org.ID, user.OrganizationID)

	got, err := orgs.GetByAPIKeyHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.Name)

	u, err := users.GetByEmail(ctx, "a@acme.io")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, org.ID, u.OrganizationID)

	missing, err := orgs.GetByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// duplicate name rolls back the whole transaction
	err = orgs.CreateWithOwner(ctx, &model.Organization{Name: "acme", APIKeyHash: "h2"}, &model.User{Email: "b@acme.io", PasswordHash: "x"})
	assert.Error(t, err)
	u, err = users.GetByEmail(ctx, "b@acme.io")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestOrganizationCounters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	org := &model.Organization{Name: "acme", APIKeyHash: "h1"}
	require.NoError(t, orgs.CreateWithOwner(ctx, org, &model.User{Email: "a@acme.io", PasswordHash: "x"}))

	require.NoError(t, orgs.AddStorageMB(ctx, org.ID, 3))
	require.NoError(t, orgs.AddStorageMB(ctx, org.ID, -5))
	require.NoError(t, orgs.IncrementQueries(ctx, org.ID))
	require.NoError(t, orgs.IncrementQueries(ctx, org.ID))
	require.NoError(t, orgs.UpdateAPIKeyHash(ctx, org.ID, "h9"))

	got, err := orgs.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StorageUsedMB)
	assert.Equal(t, 2, got.QueriesThisMonth)
	assert.Equal(t, "h9", got.APIKeyHash)
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{TenantID: "t1", Title: "a.txt", FilePath: "t1/x/original.txt", FileSizeBytes: 10}
	require.NoError(t, repo.Create(ctx, doc))
	assert.Equal(t, model.DocumentQueued, doc.Status)

	claimed, err := repo.ClaimForProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimForProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateStatusFields(ctx, doc.ID, StatusUpdate{
		Status:      model.DocumentReady,
		ChunksCount: 4,
		ProcessedAt: &now,
	}))

	got, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DocumentReady, got.Status)
	assert.Equal(t, 4, got.ChunksCount)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.ErrorMessage)

	reclaimed, err := repo.ClaimForReprocess(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, reclaimed)
	got, err = repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentProcessing, got.Status)
	assert.Equal(t, 0, got.ChunksCount)
	assert.Nil(t, got.ProcessedAt)

	// a running document cannot be taken again
	reclaimed, err = repo.ClaimForReprocess(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, reclaimed)

	reclaimed, err = repo.ClaimForReprocess(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, reclaimed)

	// resetting clears nullable columns
	require.NoError(t, repo.UpdateStatusFields(ctx, doc.ID, StatusUpdate{Status: model.DocumentQueued}))
	got, err = repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, 0, got.ChunksCount)
}

func TestDocumentTenantScoping(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	a := &model.Document{TenantID: "t1", FilePath: "p"}
	b := &model.Document{TenantID: "t2", FilePath: "p", Status: model.DocumentFailed}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.FindByIDAndTenant(ctx, a.ID, "t2")
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	require.NoError(t, repo.Delete(ctx, a.ID, "t2"))
	got, err = repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.NoError(t, repo.Delete(ctx, a.ID, "t1"))
	got, err = repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentStatusQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	for _, st := range []model.DocumentStatus{model.DocumentQueued, model.DocumentQueued, model.DocumentReady, model.DocumentFailed} {
		require.NoError(t, repo.Create(ctx, &model.Document{TenantID: "t1", FilePath: "p", Status: st}))
	}
	require.NoError(t, repo.Create(ctx, &model.Document{TenantID: "t2", FilePath: "p"}))

	ids, err := repo.ListIDsByStatus(ctx, model.DocumentQueued)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	counts, err := repo.CountByStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCounts{Total: 4, Queued: 2, Ready: 1, Failed: 1}, counts)
}
