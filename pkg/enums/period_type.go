package enums

import "slices"

// PeriodType is the cadence at which a usage counter resets.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

var periodTypes = []PeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly}

func (p PeriodType) String() string { return string(p) }
func (p PeriodType) IsValid() bool  { return oneOf(p, periodTypes) }

// PeriodTypes lists every cadence, shortest first.
func PeriodTypes() []PeriodType {
	return slices.Clone(periodTypes)
}

func ParsePeriodType(value string) (PeriodType, error) {
	return parse(value, periodTypes, "period type")
}
