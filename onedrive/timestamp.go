package onedrive

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is the wire format for date-time values: ISO 8601 in UTC
// with exactly millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a date-time value with millisecond precision, serialized as
// ISO 8601 UTC. Parsing tolerates second-precision input and fractions finer
// than a millisecond (floored); serializing always emits three fraction
// digits so values round-trip exactly.
type Timestamp struct {
	time.Time
}

// NewTimestamp builds a Timestamp from t, floored to the millisecond.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{time.UnixMilli(t.UnixMilli()).UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}

	// RFC 3339 parsing accepts both second-precision values and fractions
	// finer than a millisecond; NewTimestamp floors the latter.
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("onedrive: parsing timestamp %q: %w", s, err)
	}

	*t = NewTimestamp(parsed)

	return nil
}

// String renders the timestamp in the wire format.
func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}
