package persistence

import (
	"context"
	"testing"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingOutboxWriter captures the events handed to SaveEvents so tests
// can assert they were written inside the repository transaction
type recordingOutboxWriter struct {
	events []shared.DomainEvent
	sawTx  bool
}

func (w *recordingOutboxWriter) SaveEvents(ctx context.Context, txProvider interface{}, events ...shared.DomainEvent) error {
	_, w.sawTx = txProvider.(*gorm.DB)
	w.events = append(w.events, events...)
	return nil
}

func setupSubscriptionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&billing.Subscription{}, &billing.SubscriptionFeature{})
	require.NoError(t, err)

	return db
}

func TestSubscriptionRepository_SaveAndFind(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()

	sub, err := billing.NewSubscription(uuid.New(), "pro", pricing.CycleMonthly, 3, []string{"api_calls", "storage_gb"})
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, sub))

	found, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)
	assert.Equal(t, "pro", found.PlanID)
	assert.Equal(t, pricing.CycleMonthly, found.Cycle)
	assert.Equal(t, int64(3), found.Quantity)
	assert.ElementsMatch(t, []string{"api_calls", "storage_gb"}, found.FeatureIDs())
}

func TestSubscriptionRepository_FindByID_NotFound(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)

	found, err := repo.FindByID(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSubscriptionRepository_SaveWritesEventsToOutbox(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	writer := &recordingOutboxWriter{}
	repo.SetOutboxWriter(writer)

	sub, err := billing.NewSubscription(uuid.New(), "pro", pricing.CycleAnnual, 1, []string{"api_calls"})
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), sub))

	require.Len(t, writer.events, 1)
	assert.True(t, writer.sawTx)
	assert.Equal(t, billing.EventTypeSubscriptionCreated, writer.events[0].EventType())
}

func TestSubscriptionRepository_SaveWithoutEvents(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	writer := &recordingOutboxWriter{}
	repo.SetOutboxWriter(writer)

	sub, err := billing.NewSubscription(uuid.New(), "pro", pricing.CycleMonthly, 1, []string{"api_calls"})
	require.NoError(t, err)
	sub.ClearDomainEvents()

	require.NoError(t, repo.Save(context.Background(), sub))

	assert.Empty(t, writer.events)
}
