package stores

import (
	"fmt"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/pageguard"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// validateStrategy rejects policies with a strategy no evaluator can run.
func validateStrategy(p *pageguard.Policy) error {
	switch p.Strategy {
	case pageguard.StrategySimple, pageguard.StrategyComplex:
		return nil
	}
	return fmt.Errorf("%w: %q", pageguard.ErrUnsupportedStrategy, p.Strategy)
}

// scanTime normalizes the assorted shapes SQL drivers hand back for
// timestamp columns (time.Time, string, []byte, NULL).
func scanTime(v interface{}) *time.Time {
	switch raw := v.(type) {
	case time.Time:
		if raw.IsZero() {
			return nil
		}
		return &raw
	case string:
		if raw == "" {
			return nil
		}
		if t, err := parseFlexibleTime(raw); err == nil {
			return &t
		}
	case []byte:
		return scanTime(string(raw))
	}
	return nil
}
