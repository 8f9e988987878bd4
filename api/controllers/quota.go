package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mivahub/mivahub-backend/api/responses"
	"github.com/mivahub/mivahub-backend/api/validators"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

type quotaCheckRequest struct {
	UsageType  string `json:"usage_type" validate:"required,usage_key"`
	PeriodType string `json:"period_type" validate:"required,period_type"`
}

type actionResponse struct {
	Action   string          `json:"action"`
	Metered  bool            `json:"metered"`
	Decision *quota.Decision `json:"decision,omitempty"`
}

// QuotaCheck reports a counter without drawing from it.
func QuotaCheck(svc quota.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req quotaCheckRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := enums.ParsePeriodType(req.PeriodType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period_type"))
			return
		}

		decision, err := svc.CheckOnly(r.Context(), quota.Request{
			UserID:     userID,
			UsageType:  strings.TrimSpace(req.UsageType),
			PeriodType: period,
			Amount:     1,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// QuotaConsumeAction reserves one unit for a named action. Actions outside the
// catalog are not metered and always succeed.
func QuotaConsumeAction(svc quota.Service, upgradeURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action := strings.TrimSpace(chi.URLParam(r, "action"))
		if action == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "action is required"))
			return
		}
		rule, ok := quota.RuleForAction(action)
		if !ok {
			responses.WriteSuccess(w, actionResponse{Action: action})
			return
		}

		decision, err := svc.CheckAndReserve(r.Context(), quota.Request{
			UserID:     userID,
			UsageType:  rule.UsageType,
			PeriodType: rule.PeriodType,
			Amount:     1,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !decision.Allowed {
			responses.WriteError(r.Context(), logg, w, quota.ExceededError(decision, upgradeURL))
			return
		}
		responses.WriteSuccess(w, actionResponse{Action: action, Metered: true, Decision: &decision})
	}
}

// UsageSummary lists the caller's counters for the current periods.
func UsageSummary(svc quota.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decisions, err := svc.Summary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"counters": decisions})
	}
}
