// Package timex holds small time helpers shared by configuration and
// services.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from JSON either as a Go
// duration string ("90s", "10m") or as an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	case nil:
		d.Duration = 0
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler using the string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// UTCNow is the default Clock. Times are kept in UTC with microsecond
// precision, which is what both PostgreSQL and the SQLite text encoding
// round-trip without loss.
func UTCNow() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to the storage representation used for comparisons.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
