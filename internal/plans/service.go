package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Minute
)

// Resolver maps a user to the plan whose limits apply right now.
type Resolver interface {
	ActivePlanFor(ctx context.Context, userID uuid.UUID) (Plan, error)
}

// ServiceParams groups dependencies for the plans service.
type ServiceParams struct {
	Repo      Repository
	CacheSize int
	CacheTTL  time.Duration
	Now       func() time.Time
}

// Service resolves active plans and carries the admin-side plan operations.
// Plan rows are cached by id for a short TTL; subscriptions are always read
// from the store.
type Service struct {
	repo  Repository
	cache *expirable.LRU[uuid.UUID, models.Plan]
	now   func() time.Time
}

// NewService builds a plans service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	size := params.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:  params.Repo,
		cache: expirable.NewLRU[uuid.UUID, models.Plan](size, nil, ttl),
		now:   now,
	}, nil
}

// ActivePlanFor returns the plan bound to the user's active subscription, or
// FreePlan when there is none.
func (s *Service) ActivePlanFor(ctx context.Context, userID uuid.UUID) (Plan, error) {
	if userID == uuid.Nil {
		return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	sub, err := s.repo.FindActiveSubscription(ctx, userID, s.now().UTC())
	if err != nil {
		return Plan{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup active subscription")
	}
	if sub == nil || !sub.Status.Entitles() {
		return FreePlan(), nil
	}

	plan, err := s.planByID(ctx, sub.PlanID)
	if err != nil {
		return Plan{}, err
	}
	if plan == nil {
		return FreePlan(), nil
	}
	return fromModel(*plan), nil
}

func (s *Service) planByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if cached, ok := s.cache.Get(id); ok {
		return &cached, nil
	}
	plan, err := s.repo.FindPlanByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan")
	}
	if plan != nil {
		s.cache.Add(id, *plan)
	}
	return plan, nil
}

// ListPlans returns the full plan catalog.
func (s *Service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	out, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return out, nil
}

// UpdateLimits replaces a plan's limit table. Counters already created for
// the current period keep the limit they captured.
func (s *Service) UpdateLimits(ctx context.Context, planID uuid.UUID, limits types.LimitTable) (*models.Plan, error) {
	if planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if len(limits) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limits are required")
	}
	if err := limits.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	if err := s.repo.UpdatePlanLimits(ctx, planID, limits); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan limits")
	}
	s.cache.Remove(planID)

	plan, err := s.repo.FindPlanByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

// CreateSubscriptionInput describes an admin-provisioned subscription.
type CreateSubscriptionInput struct {
	UserID      uuid.UUID
	PlanCode    string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// CreateSubscription binds a user to a plan for the given window.
func (s *Service) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*models.Subscription, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	code := strings.TrimSpace(strings.ToLower(input.PlanCode))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan code is required")
	}
	start := input.PeriodStart.UTC()
	if start.IsZero() {
		start = s.now().UTC()
	}
	end := input.PeriodEnd.UTC()
	if !end.After(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end must be after period start")
	}

	plan, err := s.repo.FindPlanByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("plan %q not found", code))
	}
	if !plan.Status.Assignable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("plan %q is %s", code, plan.Status))
	}

	sub := &models.Subscription{
		ID:          uuid.New(),
		UserID:      input.UserID,
		PlanID:      plan.ID,
		Status:      enums.SubscriptionStatusActive,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	return sub, nil
}
