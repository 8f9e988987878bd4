package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Unlimited marks a usage type with no ceiling.
const Unlimited = -1

// LimitTable maps a usage type to its allowance per period. It is stored as a
// JSON object in a jsonb column.
type LimitTable map[string]int

// Limit returns the allowance for usageType; unknown types resolve to 0.
func (l LimitTable) Limit(usageType string) int {
	if l == nil {
		return 0
	}
	if v, ok := l[usageType]; ok {
		return v
	}
	return 0
}

// Validate rejects negative limits other than the unlimited sentinel.
func (l LimitTable) Validate() error {
	for usageType, v := range l {
		if usageType == "" {
			return fmt.Errorf("limit table: empty usage type")
		}
		if v < Unlimited {
			return fmt.Errorf("limit table: %s has invalid limit %d", usageType, v)
		}
	}
	return nil
}

func (l LimitTable) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]int(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *LimitTable) Scan(value interface{}) error {
	if value == nil {
		*l = LimitTable{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("limit table: unsupported scan type %T", value)
	}

	out := map[string]int{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("limit table: %w", err)
		}
	}
	*l = out
	return nil
}
