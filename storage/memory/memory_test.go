package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applytrack/billsync/pkg/reconcile"
)

func testFields(userID string) reconcile.SubscriptionFields {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	return reconcile.SubscriptionFields{
		UserID:                 userID,
		PlanID:                 "pro",
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: "sub_ext_1",
		Status:                 reconcile.StatusActive,
		BillingCycle:           reconcile.CycleMonthly,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       start.AddDate(0, 1, 0),
	}
}

func TestRepository_CreateAndFind(t *testing.T) {
	repo := New()
	ctx := context.Background()

	created, err := repo.Create(ctx, testFields("user-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.UserID)
	assert.False(t, created.UpdatedAt.IsZero())

	found, err := repo.FindByExternalID(ctx, "sub_ext_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestRepository_CreateUpsertsExistingRow(t *testing.T) {
	repo := New()
	ctx := context.Background()

	first, err := repo.Create(ctx, testFields("user-1"))
	require.NoError(t, err)

	// Replayed create: same external id, refreshed status.
	fields := testFields("user-other")
	fields.Status = reconcile.StatusPastDue
	second, err := repo.Create(ctx, fields)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "upsert must not mint a new internal id")
	assert.Equal(t, "user-1", second.UserID, "user_id is set once and never reassigned")
	assert.Equal(t, reconcile.StatusPastDue, second.Status)
}

func TestRepository_CreateValidation(t *testing.T) {
	repo := New()
	ctx := context.Background()

	fields := testFields("user-1")
	fields.ExternalSubscriptionID = ""
	_, err := repo.Create(ctx, fields)
	assert.Error(t, err)

	fields = testFields("")
	_, err = repo.Create(ctx, fields)
	assert.Error(t, err)
}

func TestRepository_UpdateByExternalID(t *testing.T) {
	repo := New()
	ctx := context.Background()

	_, err := repo.Create(ctx, testFields("user-1"))
	require.NoError(t, err)

	fields := testFields("user-1")
	fields.Status = reconcile.StatusCanceled
	fields.CancelAtPeriodEnd = true
	updated, err := repo.UpdateByExternalID(ctx, "sub_ext_1", fields)
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusCanceled, updated.Status)
	assert.True(t, updated.CancelAtPeriodEnd)
}

func TestRepository_UpdateKeepsPlanOnEmptyPlanID(t *testing.T) {
	repo := New()
	ctx := context.Background()

	_, err := repo.Create(ctx, testFields("user-1"))
	require.NoError(t, err)

	fields := testFields("user-1")
	fields.PlanID = ""
	updated, err := repo.UpdateByExternalID(ctx, "sub_ext_1", fields)
	require.NoError(t, err)
	assert.Equal(t, "pro", updated.PlanID, "empty plan id must not clear the assignment")
}

func TestRepository_NotFound(t *testing.T) {
	repo := New()
	ctx := context.Background()

	_, err := repo.FindByExternalID(ctx, "sub_missing")
	assert.ErrorIs(t, err, reconcile.ErrSubscriptionNotFound)

	_, err = repo.UpdateByExternalID(ctx, "sub_missing", testFields("user-1"))
	assert.ErrorIs(t, err, reconcile.ErrSubscriptionNotFound)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	repo := New()
	ctx := context.Background()

	created, err := repo.Create(ctx, testFields("user-1"))
	require.NoError(t, err)

	created.Status = reconcile.StatusCanceled

	found, err := repo.FindByExternalID(ctx, "sub_ext_1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.StatusActive, found.Status, "mutating a returned row must not change the store")
}

func TestRepository_ConcurrentUpsertsConvergeToOneRow(t *testing.T) {
	repo := New()
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fields := testFields("user-1")
			fields.PlanID = fmt.Sprintf("plan-%d", i%4)
			_, err := repo.Create(ctx, fields)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sub, err := repo.FindByExternalID(ctx, "sub_ext_1")
	require.NoError(t, err)
	assert.Len(t, repo.subscriptions, 1)
	assert.True(t, sub.CurrentPeriodStart.Before(sub.CurrentPeriodEnd))
}

func TestPlanCatalog_MatchesEitherPriceReference(t *testing.T) {
	catalog := NewPlanCatalog([]Plan{
		{ID: "pro", MonthlyPriceID: "price_pro_monthly", YearlyPriceID: "price_pro_yearly"},
		{ID: "team", MonthlyPriceID: "price_team_monthly"},
	})
	ctx := context.Background()

	planID, err := catalog.FindPlanByPriceID(ctx, "price_pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, "pro", planID)

	planID, err = catalog.FindPlanByPriceID(ctx, "price_pro_yearly")
	require.NoError(t, err)
	assert.Equal(t, "pro", planID)

	// Case-insensitive, like the rest of the price handling.
	planID, err = catalog.FindPlanByPriceID(ctx, "PRICE_TEAM_MONTHLY")
	require.NoError(t, err)
	assert.Equal(t, "team", planID)
}

func TestPlanCatalog_NotFound(t *testing.T) {
	catalog := NewPlanCatalog(nil)

	_, err := catalog.FindPlanByPriceID(context.Background(), "price_unknown")
	assert.ErrorIs(t, err, reconcile.ErrPlanNotFound)
}
