// Package timex provides a JSON-friendly duration type for config files.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so it can be unmarshaled from JSON either as
// a Go duration string ("3s", "500ms") or as a bare number of nanoseconds.
type Duration struct {
	time.Duration
}

// MarshalJSON renders the duration as its string form, e.g. "3s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalJSON accepts either a duration string or a numeric nanosecond count.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("timex: invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
		return nil
	case float64:
		d.Duration = time.Duration(v)
		return nil
	default:
		return fmt.Errorf("timex: cannot unmarshal %T into Duration", raw)
	}
}
