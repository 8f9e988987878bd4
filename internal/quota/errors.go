package quota

import (
	"fmt"

	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

// ExceededError converts a denied decision into the typed error returned to
// clients, carrying the reset time and an upgrade hint.
func ExceededError(d Decision, upgradeURL string) *pkgerrors.Error {
	details := map[string]any{
		"usage_type":  d.UsageType,
		"period_type": d.PeriodType,
		"current":     d.Current,
		"limit":       d.Limit,
		"remaining":   d.Remaining,
		"resets_at":   d.ResetsAt,
		"plan":        d.Plan,
	}
	if upgradeURL != "" {
		details["upgrade_url"] = upgradeURL
	}
	msg := fmt.Sprintf("%s limit of %d reached for this %s period", d.UsageType, d.Limit, d.PeriodType)
	return pkgerrors.New(pkgerrors.CodeQuotaExceeded, msg).WithDetails(details)
}
