package plans

import (
	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/types"
)

// FreePlanCode identifies the implicit plan of users without a subscription.
const FreePlanCode = "free"

// Plan is the resolved, read-only view of a user's tier for one request.
type Plan struct {
	ID     uuid.UUID        `json:"id"`
	Code   string           `json:"code"`
	Name   string           `json:"name"`
	Limits types.LimitTable `json:"limits"`
	Free   bool             `json:"free"`
}

// FreePlan grants nothing for quota-bearing usage types.
func FreePlan() Plan {
	return Plan{
		Code:   FreePlanCode,
		Name:   "Free",
		Limits: types.LimitTable{},
		Free:   true,
	}
}

// Limit returns the allowance for usageType, types.Unlimited for no ceiling.
func (p Plan) Limit(usageType string) int {
	return p.Limits.Limit(usageType)
}

func fromModel(m models.Plan) Plan {
	limits := make(types.LimitTable, len(m.Limits))
	for k, v := range m.Limits {
		limits[k] = v
	}
	return Plan{
		ID:     m.ID,
		Code:   m.Code,
		Name:   m.Name,
		Limits: limits,
	}
}
