package quota

import (
	"fmt"
	"time"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Period is a half-open [Start, End) window in UTC.
type Period struct {
	Type  enums.PeriodType
	Start time.Time
	End   time.Time
}

// PeriodFor returns the window containing now. Days start at midnight UTC,
// weeks on Monday and months on the first calendar day.
func PeriodFor(periodType enums.PeriodType, now time.Time) (Period, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch periodType {
	case enums.PeriodDaily:
		return Period{Type: periodType, Start: day, End: day.AddDate(0, 0, 1)}, nil
	case enums.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Period{Type: periodType, Start: start, End: start.AddDate(0, 0, 7)}, nil
	case enums.PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: periodType, Start: start, End: start.AddDate(0, 1, 0)}, nil
	default:
		return Period{}, fmt.Errorf("unsupported period type %q", periodType)
	}
}
