package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/api/responses"
	"github.com/mivahub/mivahub-backend/api/validators"
	"github.com/mivahub/mivahub-backend/internal/plans"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

// PlanAdmin is the plan management surface exposed to administrators.
type PlanAdmin interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	UpdateLimits(ctx context.Context, planID uuid.UUID, limits types.LimitTable) (*models.Plan, error)
	CreateSubscription(ctx context.Context, input plans.CreateSubscriptionInput) (*models.Subscription, error)
}

type updateLimitsRequest struct {
	Limits map[string]int `json:"limits" validate:"required,min=1,dive,keys,usage_key,endkeys,gte=-1"`
}

type createSubscriptionRequest struct {
	UserID      string     `json:"user_id" validate:"required,uuid"`
	PlanCode    string     `json:"plan_code" validate:"required,max=64"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
}

// AdminListPlans returns the plan catalog.
func AdminListPlans(svc PlanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}
		list, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"plans": list})
	}
}

// AdminUpdatePlanLimits replaces a plan's limit table.
func AdminUpdatePlanLimits(svc PlanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}
		planID, err := validators.ParseUUIDParam(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateLimitsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limits := types.LimitTable(req.Limits)
		if err := limits.Validate(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		plan, err := svc.UpdateLimits(r.Context(), planID, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

// AdminCreateSubscription provisions a subscription for a user.
func AdminCreateSubscription(svc PlanAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plans service unavailable"))
			return
		}

		var req createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}

		input := plans.CreateSubscriptionInput{
			UserID:    userID,
			PlanCode:  req.PlanCode,
			PeriodEnd: req.PeriodEnd,
		}
		if req.PeriodStart != nil {
			input.PeriodStart = *req.PeriodStart
		}
		sub, err := svc.CreateSubscription(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}
