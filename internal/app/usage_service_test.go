package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery/internal/model"
	"docuquery/internal/ratelimit"
	"docuquery/internal/repository"
)

func TestUsageReport(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orgs := repository.NewOrganizationRepository(db)
	docs := repository.NewDocumentRepository(db)

	org := &model.Organization{Name: "acme", APIKeyHash: "hash"}
	require.NoError(t, orgs.CreateWithOwner(ctx, org, &model.User{Email: "a@acme.io", PasswordHash: "x"}))
	require.NoError(t, orgs.AddStorageMB(ctx, org.ID, 3))
	require.NoError(t, orgs.IncrementQueries(ctx, org.ID))

	for _, st := range []model.DocumentStatus{model.DocumentReady, model.DocumentReady, model.DocumentFailed, model.DocumentQueued} {
		require.NoError(t, docs.Create(ctx, &model.Document{TenantID: org.ID, FilePath: "k", Status: st}))
	}

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.New(client, 10)
	_, err := limiter.Allow(ctx, org.ID)
	require.NoError(t, err)

	svc := NewUsageService(orgs, docs, limiter, 0)
	usage, err := svc.Get(ctx, org.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, usage.StorageUsedMB)
	assert.Equal(t, 100, usage.StorageLimitMB)
	assert.Equal(t, 1, usage.QueriesThisMonth)
	assert.Equal(t, int64(4), usage.TotalDocuments)
	assert.Equal(t, int64(2), usage.DocumentsReady)
	assert.Equal(t, int64(1), usage.DocumentsFailed)
	assert.Equal(t, int64(1), usage.DocumentsQueued)
	assert.Equal(t, ratelimit.Status{CurrentRequestsThisHour: 1, LimitPerHour: 10, Remaining: 9}, usage.RateLimit)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrgNotFound)
}
