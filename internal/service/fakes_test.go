package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eletrogest/eletrogest/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// In-memory stores
// =============================================================================

// memUsageStore mirrors the guarded-increment semantics of the SQL layer:
// ConsumeUsage holds the lock across the increment and fn so the count and
// the resource write commit (or roll back) together.
type memUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{counts: make(map[string]int)}
}

func usageKey(userID uuid.UUID, rt domain.ResourceType, periodStart time.Time) string {
	return userID.String() + "|" + string(rt) + "|" + periodStart.UTC().Format(time.RFC3339)
}

func (m *memUsageStore) GetUsage(_ context.Context, userID uuid.UUID, rt domain.ResourceType, periodStart time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[usageKey(userID, rt, periodStart)], nil
}

func (m *memUsageStore) IncrementUsage(_ context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := usageKey(userID, rt, period.Start)
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memUsageStore) ConsumeUsage(ctx context.Context, userID uuid.UUID, rt domain.ResourceType, period domain.Period, limit int, fn func(ctx context.Context) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey(userID, rt, period.Start)
	current := m.counts[key]
	if limit >= 0 && current >= limit {
		return 0, domain.LimitReached("usage.consume", rt, current, limit)
	}
	m.counts[key] = current + 1
	if fn != nil {
		if err := fn(ctx); err != nil {
			m.counts[key] = current
			return 0, err
		}
	}
	return current + 1, nil
}

// memSubscriptionStore keeps one subscription per user keyed both ways.
type memSubscriptionStore struct {
	mu          sync.Mutex
	byUser      map[uuid.UUID]*domain.Subscription
	adjustments []domain.SubscriptionAdjustment

	// failAdjustment makes InsertAdjustment fail, to exercise the
	// grant-committed-but-audit-failed path.
	failAdjustment bool
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{byUser: make(map[uuid.UUID]*domain.Subscription)}
}

func (m *memSubscriptionStore) GetSubscriptionByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byUser[userID]
	if !ok {
		return nil, domain.NotFound("subscription.get", "subscription", userID.String())
	}
	cp := *sub
	return &cp, nil
}

func (m *memSubscriptionStore) GetSubscriptionByCustomerID(_ context.Context, customerID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.byUser {
		if sub.StripeCustomerID == customerID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, domain.NotFound("subscription.get_by_customer", "subscription", customerID)
}

func (m *memSubscriptionStore) CreateSubscription(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.byUser[userID]; ok {
		cp := *sub
		return &cp, nil
	}
	sub := &domain.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		PlanType: domain.PlanFree,
		Status:   domain.SubscriptionStatusActive,
	}
	m.byUser[userID] = sub
	cp := *sub
	return &cp, nil
}

func (m *memSubscriptionStore) SetCheckoutCompleted(_ context.Context, userID uuid.UUID, plan domain.PlanType, customerID, subscriptionID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byUser[userID]
	if !ok {
		return domain.NotFound("subscription.checkout", "subscription", userID.String())
	}
	sub.PlanType = plan
	sub.Status = domain.SubscriptionStatusActive
	sub.StripeCustomerID = customerID
	sub.StripeSubscriptionID = subscriptionID
	if email != "" {
		sub.Email = email
	}
	return nil
}

func (m *memSubscriptionStore) SyncSubscriptionStatus(_ context.Context, customerID string, plan domain.PlanType, status domain.SubscriptionStatus, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.byUser {
		if sub.StripeCustomerID == customerID {
			if plan != "" {
				sub.PlanType = plan
			}
			sub.Status = status
			sub.CurrentPeriodStart = periodStart
			sub.CurrentPeriodEnd = periodEnd
			sub.CancelAtPeriodEnd = cancelAtPeriodEnd
			return nil
		}
	}
	return domain.NotFound("subscription.sync", "subscription", customerID)
}

func (m *memSubscriptionStore) CancelSubscriptionByCustomerID(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.byUser {
		if sub.StripeCustomerID == customerID {
			sub.PlanType = domain.PlanFree
			sub.Status = domain.SubscriptionStatusCanceled
			sub.StripeSubscriptionID = ""
			return nil
		}
	}
	return domain.NotFound("subscription.cancel", "subscription", customerID)
}

// setState force-sets a subscription row, bypassing the grant rule. Tests
// use it to stage expired or canceled periods.
func (m *memSubscriptionStore) setState(userID uuid.UUID, plan domain.PlanType, status domain.SubscriptionStatus, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.byUser[userID]
	sub.PlanType = plan
	sub.Status = status
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
}

func (m *memSubscriptionStore) ExtendPlanPeriod(_ context.Context, userID uuid.UUID, plan domain.PlanType, now time.Time, days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byUser[userID]
	if !ok {
		return domain.NotFound("subscription.extend_plan", "subscription", userID.String())
	}
	if !sub.CurrentPeriodEnd.After(now) {
		sub.CurrentPeriodStart = now
	}
	sub.CurrentPeriodEnd = domain.ExtendPeriod(sub.CurrentPeriodEnd, now, days)
	sub.PlanType = plan
	sub.Status = domain.SubscriptionStatusActive
	return nil
}

func (m *memSubscriptionStore) InsertAdjustment(_ context.Context, adj *domain.SubscriptionAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdjustment {
		return domain.Transient(nil, "subscription.insert_adjustment", "storage unavailable")
	}
	m.adjustments = append(m.adjustments, *adj)
	return nil
}

func (m *memSubscriptionStore) ListAdjustments(_ context.Context, userID uuid.UUID) ([]domain.SubscriptionAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SubscriptionAdjustment
	for _, adj := range m.adjustments {
		if adj.UserID == userID {
			out = append(out, adj)
		}
	}
	return out, nil
}

// memPromoStore redeems under one lock, matching the single-transaction
// ledger-insert-plus-bounded-increment of the SQL layer.
type memPromoStore struct {
	mu          sync.Mutex
	codes       map[string]*domain.PromoCode
	redemptions map[string]bool // userID|promoID
}

func newMemPromoStore() *memPromoStore {
	return &memPromoStore{
		codes:       make(map[string]*domain.PromoCode),
		redemptions: make(map[string]bool),
	}
}

func (m *memPromoStore) addCode(promo *domain.PromoCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	m.codes[promo.Code] = promo
}

func (m *memPromoStore) GetPromoCode(_ context.Context, code string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.codes[code]
	if !ok {
		return nil, domain.NotFound("promo.get", "promo code", code)
	}
	cp := *promo
	return &cp, nil
}

func (m *memPromoStore) CreatePromoCode(_ context.Context, params domain.CreatePromoCodeParams) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[params.Code]; ok {
		return nil, domain.Conflict("promo.create", "a code with this value already exists")
	}
	promo := &domain.PromoCode{
		ID:           uuid.New(),
		Code:         params.Code,
		PlanType:     params.PlanType,
		DurationDays: params.DurationDays,
		MaxUses:      params.MaxUses,
		ExpiresAt:    params.ExpiresAt,
		Active:       true,
	}
	m.codes[params.Code] = promo
	cp := *promo
	return &cp, nil
}

func (m *memPromoStore) DeactivatePromoCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.codes[code]
	if !ok {
		return domain.NotFound("promo.deactivate", "promo code", code)
	}
	promo.Active = false
	return nil
}

func (m *memPromoStore) RedeemPromoCode(_ context.Context, userID uuid.UUID, promo *domain.PromoCode) error {
	const op = "promo.redeem"
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.codes[promo.Code]
	if !ok {
		return domain.NotFound(op, "promo code", promo.Code)
	}
	ledger := userID.String() + "|" + stored.ID.String()
	if m.redemptions[ledger] {
		return domain.Conflict(op, "you have already redeemed this code")
	}
	if !stored.Active {
		return domain.Inactive(op, "this code is no longer active")
	}
	if stored.MaxUses > 0 && stored.CurrentUses >= stored.MaxUses {
		return domain.Exhausted(op, "this code has reached its redemption limit")
	}
	m.redemptions[ledger] = true
	stored.CurrentUses++
	return nil
}

// memReferralStore keeps referral codes, links, and rewards in memory.
type memReferralStore struct {
	mu        sync.Mutex
	byUser    map[uuid.UUID]*domain.ReferralCode
	byCode    map[string]*domain.ReferralCode
	referrals map[uuid.UUID]*domain.Referral // keyed by referred user
	rewards   map[uuid.UUID]*domain.ReferralReward
}

func newMemReferralStore() *memReferralStore {
	return &memReferralStore{
		byUser:    make(map[uuid.UUID]*domain.ReferralCode),
		byCode:    make(map[string]*domain.ReferralCode),
		referrals: make(map[uuid.UUID]*domain.Referral),
		rewards:   make(map[uuid.UUID]*domain.ReferralReward),
	}
}

func (m *memReferralStore) GetReferralCodeByValue(_ context.Context, code string) (*domain.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.byCode[code]
	if !ok {
		return nil, domain.NotFound("referral.get_code", "referral code", code)
	}
	cp := *rc
	return &cp, nil
}

func (m *memReferralStore) GetOrCreateReferralCode(_ context.Context, userID uuid.UUID) (*domain.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.byUser[userID]; ok {
		cp := *rc
		return &cp, nil
	}
	value, err := domain.NewReferralCodeValue()
	if err != nil {
		return nil, err
	}
	rc := &domain.ReferralCode{ID: uuid.New(), UserID: userID, Code: value}
	m.byUser[userID] = rc
	m.byCode[value] = rc
	cp := *rc
	return &cp, nil
}

func (m *memReferralStore) HasCompletedReferral(_ context.Context, referredUserID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.referrals[referredUserID]
	return ok, nil
}

func (m *memReferralStore) CompleteReferral(_ context.Context, ref *domain.Referral, rewards []*domain.ReferralReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referrals[ref.ReferredUserID]; ok {
		return domain.Conflict("referral.complete", "this account has already been referred")
	}
	cp := *ref
	m.referrals[ref.ReferredUserID] = &cp
	for _, r := range rewards {
		rcp := *r
		m.rewards[r.ID] = &rcp
	}
	return nil
}

func (m *memReferralStore) ListReferralRewards(_ context.Context, userID uuid.UUID) ([]domain.ReferralReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReferralReward
	for _, r := range m.rewards {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memReferralStore) ApplyReferralReward(_ context.Context, userID, rewardID uuid.UUID) (int, error) {
	const op = "referral.apply_reward"
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rewards[rewardID]
	if !ok || r.UserID != userID {
		return 0, domain.NotFound(op, "referral reward", rewardID.String())
	}
	if r.Status != domain.RewardPending {
		return 0, domain.Conflict(op, "this reward has already been applied")
	}
	r.Status = domain.RewardApplied
	now := time.Now()
	r.AppliedAt = &now
	return r.Days, nil
}

// =============================================================================
// Service builders with a fixed clock
// =============================================================================

func newTestSubscriptionService(store SubscriptionStore, now time.Time) SubscriptionService {
	return &subscriptionService{
		store:  store,
		logger: testLogger(),
		now:    func() time.Time { return now },
	}
}

func newTestEntitlementService(subs SubscriptionService, store UsageStore, now time.Time) EntitlementService {
	return &entitlementService{
		subscriptions: subs,
		store:         store,
		logger:        testLogger(),
		now:           func() time.Time { return now },
	}
}

func newTestPromoService(store PromoStore, subs SubscriptionService, now time.Time) PromoService {
	return &promoService{
		store:         store,
		subscriptions: subs,
		logger:        testLogger(),
		now:           func() time.Time { return now },
	}
}
