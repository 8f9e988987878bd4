package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/dbtest"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

type countingRepo struct {
	Repository
	planLookups int
	subErr      error
}

func (c *countingRepo) FindPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	c.planLookups++
	return c.Repository.FindPlanByID(ctx, id)
}

func (c *countingRepo) FindActiveSubscription(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Subscription, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	return c.Repository.FindActiveSubscription(ctx, userID, now)
}

func newTestService(t *testing.T, conn *gorm.DB, now time.Time) (*Service, *countingRepo) {
	t.Helper()
	repo := &countingRepo{Repository: NewRepository(conn)}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		CacheTTL: time.Hour,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, repo
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestActivePlanForFallsBackToFreePlan(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, conn, now)

	plan, err := svc.ActivePlanFor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, plan.Free)
	assert.Equal(t, FreePlanCode, plan.Code)
	assert.Equal(t, 0, plan.Limit("uploads"))
}

func TestActivePlanForFreePlanIgnoresCatalogRow(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, conn, now)
	dbtest.SeedPlan(t, conn, FreePlanCode, types.LimitTable{"uploads": 5})

	plan, err := svc.ActivePlanFor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, plan.Free)
	assert.Equal(t, 0, plan.Limit("uploads"))
	assert.Zero(t, repo.planLookups)
}

func TestActivePlanForIgnoresExpiredSubscription(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, conn, now)
	plan := dbtest.SeedPlan(t, conn, "pro", types.LimitTable{"uploads": 10})
	userID := uuid.New()
	dbtest.SeedSubscription(t, conn, userID, plan.ID, enums.SubscriptionStatusActive, now.AddDate(0, -1, 0), now)

	got, err := svc.ActivePlanFor(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, got.Free)
}

func TestActivePlanForResolvesAndCachesPlan(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, conn, now)
	plan := dbtest.SeedPlan(t, conn, "pro", types.LimitTable{"uploads": 10, "ai_messages_per_day": -1})
	userID := uuid.New()
	dbtest.SeedSubscription(t, conn, userID, plan.ID, enums.SubscriptionStatusActive, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0))

	for i := 0; i < 3; i++ {
		got, err := svc.ActivePlanFor(context.Background(), userID)
		require.NoError(t, err)
		assert.False(t, got.Free)
		assert.Equal(t, "pro", got.Code)
		assert.Equal(t, 10, got.Limit("uploads"))
		assert.Equal(t, types.Unlimited, got.Limit("ai_messages_per_day"))
	}
	assert.Equal(t, 1, repo.planLookups)
}

func TestActivePlanForWrapsStoreErrors(t *testing.T) {
	conn := dbtest.Open(t)
	svc, repo := newTestService(t, conn, time.Now())
	repo.subErr = errors.New("connection reset")

	_, err := svc.ActivePlanFor(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = svc.ActivePlanFor(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateLimitsEvictsCache(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, conn, now)
	plan := dbtest.SeedPlan(t, conn, "basic", types.LimitTable{"uploads": 3})
	userID := uuid.New()
	dbtest.SeedSubscription(t, conn, userID, plan.ID, enums.SubscriptionStatusActive, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0))

	before, err := svc.ActivePlanFor(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, before.Limit("uploads"))

	updated, err := svc.UpdateLimits(context.Background(), plan.ID, types.LimitTable{"uploads": 7})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Limits.Limit("uploads"))

	after, err := svc.ActivePlanFor(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 7, after.Limit("uploads"))
}

func TestUpdateLimitsValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn, time.Now())

	_, err := svc.UpdateLimits(context.Background(), uuid.New(), types.LimitTable{"uploads": -5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateLimits(context.Background(), uuid.New(), types.LimitTable{"uploads": 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateSubscription(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, conn, now)
	plan := dbtest.SeedPlan(t, conn, "pro", types.LimitTable{"uploads": 10})
	userID := uuid.New()

	sub, err := svc.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID:    userID,
		PlanCode:  "PRO",
		PeriodEnd: now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, plan.ID, sub.PlanID)
	assert.Equal(t, now, sub.PeriodStart)

	resolved, err := svc.ActivePlanFor(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "pro", resolved.Code)

	_, err = svc.CreateSubscription(context.Background(), CreateSubscriptionInput{UserID: userID, PlanCode: "pro", PeriodEnd: now.AddDate(0, 0, -1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.CreateSubscription(context.Background(), CreateSubscriptionInput{UserID: userID, PlanCode: "gold", PeriodEnd: now.AddDate(0, 1, 0)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
