package repository

import (
	"context"
	"testing"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventCreateIfNotExists(t *testing.T) {
	ctx := context.Background()
	repo := NewWebhookEventRepository(database.OpenTestDB(t))

	created, stored, err := repo.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        "lnbits",
		ProviderEventID: "evt-1",
		PaymentRef:      "hash-1",
		PayloadJSON:     `{"payment_hash":"hash-1"}`,
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)
	assert.NotZero(t, stored.ID)
	assert.False(t, stored.Succeeded())

	require.NoError(t, repo.MarkProcessed(ctx, stored.ID, models.WebhookOutcomeProcessed, ""))

	created, again, err := repo.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        "lnbits",
		ProviderEventID: "evt-1",
		PayloadJSON:     `{}`,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.True(t, again.Succeeded())
	assert.Equal(t, models.WebhookOutcomeProcessed, again.Outcome)
}

func TestTenantRepositoryLookupByKey(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(database.OpenTestDB(t))

	tenant := &models.Tenant{Name: "shop", Active: true}
	key, err := tenant.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tenant))

	found, err := repo.GetByAPIKeyHash(ctx, models.HashAPIKey(key))
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, found.ID)

	_, err = repo.GetByAPIKeyHash(ctx, models.HashAPIKey("sfx_wrong"))
	assert.Error(t, err)
}
