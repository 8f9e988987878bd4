package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/internal/plans"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

// Request names the counter to check and how much to draw from it.
type Request struct {
	UserID     uuid.UUID
	UsageType  string
	PeriodType enums.PeriodType
	Amount     int
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool             `json:"allowed"`
	UsageType  string           `json:"usage_type"`
	PeriodType enums.PeriodType `json:"period_type"`
	Current    int              `json:"current"`
	Limit      int              `json:"limit"`
	Remaining  int              `json:"remaining"`
	ResetsAt   time.Time        `json:"resets_at"`
	Plan       string           `json:"plan"`
}

// Unlimited reports whether the counter has no ceiling.
func (d Decision) Unlimited() bool {
	return d.Limit == types.Unlimited
}

// Service is the quota store's public surface.
type Service interface {
	CheckAndReserve(ctx context.Context, req Request) (Decision, error)
	CheckOnly(ctx context.Context, req Request) (Decision, error)
	Summary(ctx context.Context, userID uuid.UUID) ([]Decision, error)
}

// ServiceParams groups dependencies for the quota service.
type ServiceParams struct {
	Repo       Repository
	Plans      plans.Resolver
	Logger     *logger.Logger
	Metrics    *metrics.PipelineMetrics
	UpgradeURL string
	Now        func() time.Time
}

type service struct {
	repo       Repository
	plans      plans.Resolver
	logg       *logger.Logger
	metrics    *metrics.PipelineMetrics
	upgradeURL string
	now        func() time.Time
}

// NewService builds the quota service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("quota repository is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plan resolver is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		plans:      params.Plans,
		logg:       params.Logger,
		metrics:    params.Metrics,
		upgradeURL: params.UpgradeURL,
		now:        now,
	}, nil
}

// CheckAndReserve draws Amount (default 1) from the counter if the limit
// allows it. A denial is returned as a Decision with Allowed=false and no
// error; callers turn it into a QUOTA_EXCEEDED response.
func (s *service) CheckAndReserve(ctx context.Context, req Request) (Decision, error) {
	req, err := normalize(req)
	if err != nil {
		return Decision{}, err
	}
	now := s.now().UTC()
	period, err := PeriodFor(req.PeriodType, now)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	key := CounterKey{UserID: req.UserID, UsageType: req.UsageType, PeriodType: req.PeriodType, PeriodStart: period.Start}

	counter, err := s.repo.FindCounter(ctx, key)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load usage counter")
	}
	if counter == nil {
		plan, err := s.plans.ActivePlanFor(ctx, req.UserID)
		if err != nil {
			return Decision{}, err
		}
		fresh := &models.UsageCounter{
			UserID:       req.UserID,
			UsageType:    req.UsageType,
			PeriodType:   req.PeriodType,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
			CurrentCount: 0,
			LimitCount:   plan.Limit(req.UsageType),
			PlanCode:     plan.Code,
		}
		if err := s.repo.InsertCounterIfAbsent(ctx, fresh); err != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create usage counter")
		}
	}

	state, err := s.repo.Reserve(ctx, key, req.Amount, now)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve usage")
	}
	if state != nil {
		decision := buildDecision(req, period, state.CurrentCount, state.LimitCount, state.PlanCode, true)
		s.metrics.ObserveQuotaDecision(req.UsageType, true, true)
		return decision, nil
	}

	current, err := s.repo.FindCounter(ctx, key)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload usage counter")
	}
	if current == nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeInternal, "usage counter vanished during reservation")
	}
	decision := buildDecision(req, period, current.CurrentCount, current.LimitCount, current.PlanCode, false)
	s.metrics.ObserveQuotaDecision(req.UsageType, false, true)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":    req.UserID.String(),
			"usage_type": req.UsageType,
			"current":    decision.Current,
			"limit":      decision.Limit,
		})
		s.logg.Info(logCtx, "quota denied")
	}
	return decision, nil
}

// CheckOnly reports the counter without creating or changing it.
func (s *service) CheckOnly(ctx context.Context, req Request) (Decision, error) {
	req, err := normalize(req)
	if err != nil {
		return Decision{}, err
	}
	return s.checkOnly(ctx, req, s.now().UTC(), nil)
}

// Summary reports every catalog counter for the user's current periods.
func (s *service) Summary(ctx context.Context, userID uuid.UUID) ([]Decision, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	now := s.now().UTC()
	var plan *plans.Plan
	out := make([]Decision, 0, len(TrackedRules()))
	for _, rule := range TrackedRules() {
		decision, err := s.checkOnly(ctx, Request{UserID: userID, UsageType: rule.UsageType, PeriodType: rule.PeriodType, Amount: 1}, now, &plan)
		if err != nil {
			return nil, err
		}
		out = append(out, decision)
	}
	return out, nil
}

func (s *service) checkOnly(ctx context.Context, req Request, now time.Time, planCache **plans.Plan) (Decision, error) {
	period, err := PeriodFor(req.PeriodType, now)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	key := CounterKey{UserID: req.UserID, UsageType: req.UsageType, PeriodType: req.PeriodType, PeriodStart: period.Start}

	counter, err := s.repo.FindCounter(ctx, key)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load usage counter")
	}

	var decision Decision
	if counter != nil {
		decision = buildDecision(req, period, counter.CurrentCount, counter.LimitCount, counter.PlanCode, false)
	} else {
		plan, err := s.resolvePlan(ctx, req.UserID, planCache)
		if err != nil {
			return Decision{}, err
		}
		decision = buildDecision(req, period, 0, plan.Limit(req.UsageType), plan.Code, false)
	}
	decision.Allowed = decision.Unlimited() || decision.Current+req.Amount <= decision.Limit
	s.metrics.ObserveQuotaDecision(req.UsageType, decision.Allowed, false)
	return decision, nil
}

func (s *service) resolvePlan(ctx context.Context, userID uuid.UUID, planCache **plans.Plan) (plans.Plan, error) {
	if planCache != nil && *planCache != nil {
		return **planCache, nil
	}
	plan, err := s.plans.ActivePlanFor(ctx, userID)
	if err != nil {
		return plans.Plan{}, err
	}
	if planCache != nil {
		*planCache = &plan
	}
	return plan, nil
}

func buildDecision(req Request, period Period, current, limit int, planCode string, allowed bool) Decision {
	remaining := types.Unlimited
	if limit != types.Unlimited {
		remaining = limit - current
		if remaining < 0 {
			remaining = 0
		}
	}
	return Decision{
		Allowed:    allowed,
		UsageType:  req.UsageType,
		PeriodType: req.PeriodType,
		Current:    current,
		Limit:      limit,
		Remaining:  remaining,
		ResetsAt:   period.End,
		Plan:       planCode,
	}
}

func normalize(req Request) (Request, error) {
	if req.UserID == uuid.Nil {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	req.UsageType = strings.TrimSpace(req.UsageType)
	if req.UsageType == "" {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "usage type is required")
	}
	if !req.PeriodType.IsValid() {
		return req, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid period type %q", req.PeriodType))
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	if req.Amount < 0 {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return req, nil
}
