package plans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/dbtest"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

func TestRepositoryFindActiveSubscription(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	basic := dbtest.SeedPlan(t, conn, "basic", types.LimitTable{"uploads": 3})
	pro := dbtest.SeedPlan(t, conn, "pro", types.LimitTable{"uploads": 10})
	userID := uuid.New()

	dbtest.SeedSubscription(t, conn, userID, pro.ID, enums.SubscriptionStatusActive, now.AddDate(0, -2, 0), now.AddDate(0, 0, -1))
	dbtest.SeedSubscription(t, conn, userID, pro.ID, enums.SubscriptionStatusCanceled, now.AddDate(0, 0, -2), now.AddDate(0, 1, 0))
	want := dbtest.SeedSubscription(t, conn, userID, basic.ID, enums.SubscriptionStatusActive, now.AddDate(0, 0, -5), now.AddDate(0, 1, 0))
	dbtest.SeedSubscription(t, conn, userID, pro.ID, enums.SubscriptionStatusActive, now.AddDate(0, 0, -20), now.AddDate(0, 1, 0))

	got, err := repo.FindActiveSubscription(ctx, userID, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, basic.ID, got.PlanID)

	none, err := repo.FindActiveSubscription(ctx, uuid.New(), now)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepositoryFindActiveSubscriptionTieBreaksOnID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	plan := dbtest.SeedPlan(t, conn, "basic", types.LimitTable{"uploads": 3})
	userID := uuid.New()

	start := now.AddDate(0, 0, -1)
	a := dbtest.SeedSubscription(t, conn, userID, plan.ID, enums.SubscriptionStatusActive, start, now.AddDate(0, 1, 0))
	b := dbtest.SeedSubscription(t, conn, userID, plan.ID, enums.SubscriptionStatusActive, start, now.AddDate(0, 1, 0))

	want := a.ID
	if b.ID.String() > a.ID.String() {
		want = b.ID
	}

	for i := 0; i < 3; i++ {
		got, err := repo.FindActiveSubscription(context.Background(), userID, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.ID)
	}
}

func TestRepositoryUpdatePlanLimits(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	plan := dbtest.SeedPlan(t, conn, "basic", types.LimitTable{"uploads": 3})

	require.NoError(t, repo.UpdatePlanLimits(ctx, plan.ID, types.LimitTable{"uploads": -1, "quizzes_per_week": 4}))

	reloaded, err := repo.FindPlanByID(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, types.Unlimited, reloaded.Limits.Limit("uploads"))
	assert.Equal(t, 4, reloaded.Limits.Limit("quizzes_per_week"))

	err = repo.UpdatePlanLimits(ctx, uuid.New(), types.LimitTable{"uploads": 1})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListAndFindByCode(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	dbtest.SeedPlan(t, conn, "pro", types.LimitTable{"uploads": 10})
	dbtest.SeedPlan(t, conn, "basic", types.LimitTable{"uploads": 3})

	all, err := repo.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "basic", all[0].Code)

	found, err := repo.FindPlanByCode(ctx, "pro")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 10, found.Limits.Limit("uploads"))

	missing, err := repo.FindPlanByCode(ctx, "enterprise")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
