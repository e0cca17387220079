package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eletrogest/eletrogest/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newEntitlementFixture(t *testing.T) (EntitlementService, SubscriptionService, *memUsageStore, *memSubscriptionStore) {
	t.Helper()
	subStore := newMemSubscriptionStore()
	usageStore := newMemUsageStore()
	subs := newTestSubscriptionService(subStore, testNow)
	ent := newTestEntitlementService(subs, usageStore, testNow)
	return ent, subs, usageStore, subStore
}

func TestCheckLimitFreePlan(t *testing.T) {
	ent, _, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	check, err := ent.CheckLimit(ctx, userID, domain.ResourceClients)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 0, check.Current)
	assert.Equal(t, 5, check.Limit)
	assert.False(t, check.Unlimited)

	period := domain.CurrentPeriod(testNow)
	for i := 0; i < 5; i++ {
		_, err := usageStore.IncrementUsage(ctx, userID, domain.ResourceClients, period)
		require.NoError(t, err)
	}

	check, err = ent.CheckLimit(ctx, userID, domain.ResourceClients)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 5, check.Current)
}

func TestCheckLimitMissingResourceNotOffered(t *testing.T) {
	// The free plan has no timesheets entry; a missing key means limit 0.
	ent, _, _, _ := newEntitlementFixture(t)

	check, err := ent.CheckLimit(context.Background(), uuid.New(), domain.ResourceTimesheets)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 0, check.Limit)
}

func TestCheckLimitUnlimitedPlan(t *testing.T) {
	ent, subs, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := subs.GrantPlan(ctx, userID, domain.PlanProfessional, 30)
	require.NoError(t, err)

	period := domain.CurrentPeriod(testNow)
	for i := 0; i < 1000; i++ {
		_, err := usageStore.IncrementUsage(ctx, userID, domain.ResourceClients, period)
		require.NoError(t, err)
	}

	check, err := ent.CheckLimit(ctx, userID, domain.ResourceClients)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.True(t, check.Unlimited)
	assert.Equal(t, 1000, check.Current)
}

func TestUsagePercentage(t *testing.T) {
	ent, _, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	period := domain.CurrentPeriod(testNow)

	for i := 0; i < 4; i++ {
		_, err := usageStore.IncrementUsage(ctx, userID, domain.ResourceClients, period)
		require.NoError(t, err)
	}
	pct, err := ent.UsagePercentage(ctx, userID, domain.ResourceClients)
	require.NoError(t, err)
	assert.Equal(t, 80, pct)

	_, err = usageStore.IncrementUsage(ctx, userID, domain.ResourceClients, period)
	require.NoError(t, err)
	pct, err = ent.UsagePercentage(ctx, userID, domain.ResourceClients)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)
}

func TestConsumeFreePlanClientLimit(t *testing.T) {
	ent, _, _, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	// The free plan allows five clients per period.
	for i := 0; i < 5; i++ {
		check, err := ent.Consume(ctx, userID, domain.ResourceClients, nil)
		require.NoError(t, err, "creation %d should be allowed", i+1)
		assert.Equal(t, i+1, check.Current)
	}

	called := false
	_, err := ent.Consume(ctx, userID, domain.ResourceClients, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
	assert.False(t, called, "the resource write must not run when blocked")
}

func TestConsumeRollsBackOnWriteFailure(t *testing.T) {
	ent, _, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	wantErr := domain.Internal(nil, "client.create", "write failed")
	_, err := ent.Consume(ctx, userID, domain.ResourceClients, func(ctx context.Context) error {
		return wantErr
	})
	require.Error(t, err)

	// The failed write must not leave a phantom count behind.
	period := domain.CurrentPeriod(testNow)
	count, err := usageStore.GetUsage(ctx, userID, domain.ResourceClients, period.Start)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConsumeNotOfferedResource(t *testing.T) {
	ent, _, _, _ := newEntitlementFixture(t)

	_, err := ent.Consume(context.Background(), uuid.New(), domain.ResourceTimesheets, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
}

func TestConsumeConcurrentRespectsLimit(t *testing.T) {
	ent, _, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, blocked := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ent.Consume(ctx, userID, domain.ResourceClients, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				allowed++
			case domain.ErrorCode(err) == domain.ELIMIT:
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, allowed, "exactly the plan limit may succeed")
	assert.Equal(t, attempts-5, blocked)

	period := domain.CurrentPeriod(testNow)
	count, err := usageStore.GetUsage(ctx, userID, domain.ResourceClients, period.Start)
	require.NoError(t, err)
	assert.Equal(t, 5, count, "counter must never overshoot the limit")
}

func TestConsumeConcurrentUnlimitedCountsExactly(t *testing.T) {
	ent, subs, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := subs.GrantPlan(ctx, userID, domain.PlanProfessional, 30)
	require.NoError(t, err)

	const attempts = 50
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ent.Consume(ctx, userID, domain.ResourceQuotes, nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	period := domain.CurrentPeriod(testNow)
	count, err := usageStore.GetUsage(ctx, userID, domain.ResourceQuotes, period.Start)
	require.NoError(t, err)
	assert.Equal(t, attempts, count, "every increment must be recorded exactly once")
}

func TestOverview(t *testing.T) {
	ent, _, usageStore, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	period := domain.CurrentPeriod(testNow)

	for i := 0; i < 4; i++ {
		_, err := usageStore.IncrementUsage(ctx, userID, domain.ResourceClients, period)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := usageStore.IncrementUsage(ctx, userID, domain.ResourceQuotes, period)
		require.NoError(t, err)
	}

	overview, err := ent.Overview(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, overview.Plan)
	assert.Equal(t, period.Start, overview.PeriodStart)
	require.Len(t, overview.Entries, len(domain.ResourceTypes))

	byResource := make(map[domain.ResourceType]domain.UsageEntry)
	for _, e := range overview.Entries {
		byResource[e.ResourceType] = e
	}

	clients := byResource[domain.ResourceClients]
	assert.Equal(t, 4, clients.Current)
	assert.Equal(t, 80, clients.Percent)
	assert.True(t, clients.NearLimit)
	assert.False(t, clients.AtLimit)

	quotes := byResource[domain.ResourceQuotes]
	assert.Equal(t, 10, quotes.Current)
	assert.True(t, quotes.AtLimit)
	assert.False(t, quotes.NearLimit)

	// Not offered on the free plan: reported as at-limit with limit 0.
	timesheets := byResource[domain.ResourceTimesheets]
	assert.Equal(t, 0, timesheets.Limit)
	assert.True(t, timesheets.AtLimit)
}

func TestOverviewUnlimitedEntries(t *testing.T) {
	ent, subs, _, _ := newEntitlementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := subs.GrantPlan(ctx, userID, domain.PlanProfessional, 30)
	require.NoError(t, err)

	overview, err := ent.Overview(ctx, userID)
	require.NoError(t, err)
	for _, e := range overview.Entries {
		assert.True(t, e.Unlimited, "resource %s should be unlimited", e.ResourceType)
		assert.False(t, e.NearLimit)
		assert.False(t, e.AtLimit)
	}
}
