package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Timestamp is the canonical time type for everything we persist.
// It is stored as epoch milliseconds, but older records written by the
// first generation of the app carry three different shapes:
//
//   - an RFC3339 string (time objects marshalled as-is)
//   - a map with seconds/nanos fields (imported snapshots)
//   - a bare number (millis, or seconds in the very oldest rows)
//
// All of them are normalized here, once, when a document is
// unmarshalled. Code above the models package only ever sees
// time.Time.
type Timestamp struct {
	t time.Time
}

// NewTimestamp builds a Timestamp truncated to millisecond precision,
// which is the precision we can round-trip through storage.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: t.UTC().Truncate(time.Millisecond)}
}

// TimestampFromMillis builds a Timestamp from epoch milliseconds.
func TimestampFromMillis(ms int64) Timestamp {
	if ms == 0 {
		return Timestamp{}
	}
	return Timestamp{t: time.UnixMilli(ms).UTC()}
}

func (t Timestamp) Time() time.Time  { return t.t }
func (t Timestamp) IsZero() bool     { return t.t.IsZero() }
func (t Timestamp) UnixMilli() int64 { return t.t.UnixMilli() }

func (t Timestamp) Before(o Timestamp) bool { return t.t.Before(o.t) }
func (t Timestamp) After(o Timestamp) bool  { return t.t.After(o.t) }
func (t Timestamp) Equal(o Timestamp) bool  { return t.t.Equal(o.t) }

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.t.Format(time.RFC3339Nano)
}

// MarshalDynamoDBAttributeValue always writes the canonical shape: a
// number attribute holding epoch milliseconds (0 for the zero value).
func (t Timestamp) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if t.IsZero() {
		return &types.AttributeValueMemberN{Value: "0"}, nil
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.t.UnixMilli(), 10)}, nil
}

// UnmarshalDynamoDBAttributeValue accepts every shape found in the
// wild. Preference order when a value could be read more than one
// way: string time > seconds/nanos map > raw number.
func (t *Timestamp) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		parsed, err := parseTimeString(v.Value)
		if err != nil {
			return fmt.Errorf("invalid timestamp string %q: %w", v.Value, err)
		}
		*t = NewTimestamp(parsed)
		return nil
	case *types.AttributeValueMemberM:
		secs, nanos, ok := secondsNanosFields(v.Value)
		if !ok {
			return fmt.Errorf("timestamp map is missing a seconds field")
		}
		*t = NewTimestamp(time.Unix(secs, nanos))
		return nil
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric timestamp %q: %w", v.Value, err)
		}
		*t = timestampFromNumber(n)
		return nil
	case *types.AttributeValueMemberNULL:
		*t = Timestamp{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp attribute type %T", av)
	}
}

// MarshalJSON writes RFC3339 (null for the zero value) so API clients
// and archive blobs get a readable time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*t = Timestamp{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseTimeString(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp string %q: %w", s, err)
		}
		*t = NewTimestamp(parsed)
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]int64
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		secs, okS := firstOf(obj, "seconds", "_seconds")
		if !okS {
			return fmt.Errorf("timestamp object is missing a seconds field")
		}
		nanos, _ := firstOf(obj, "nanos", "_nanoseconds")
		*t = NewTimestamp(time.Unix(secs, nanos))
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric timestamp %q: %w", trimmed, err)
	}
	*t = timestampFromNumber(n)
	return nil
}

// Raw numbers below this are treated as seconds, not millis. The
// boundary sits in 1973 for millis and past year 5000 for seconds, so
// real data is never ambiguous.
const millisFloor = int64(100_000_000_000)

func timestampFromNumber(n int64) Timestamp {
	if n == 0 {
		return Timestamp{}
	}
	if n < millisFloor {
		return NewTimestamp(time.Unix(n, 0))
	}
	return TimestampFromMillis(n)
}

func parseTimeString(s string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, s)
}

func secondsNanosFields(m map[string]types.AttributeValue) (secs, nanos int64, ok bool) {
	secs, ok = numberField(m, "seconds", "_seconds")
	if !ok {
		return 0, 0, false
	}
	nanos, _ = numberField(m, "nanos", "_nanoseconds")
	return secs, nanos, true
}

func numberField(m map[string]types.AttributeValue, names ...string) (int64, bool) {
	for _, name := range names {
		if attr, exists := m[name]; exists {
			if num, isNum := attr.(*types.AttributeValueMemberN); isNum {
				if n, err := strconv.ParseInt(num.Value, 10, 64); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func firstOf(m map[string]int64, names ...string) (int64, bool) {
	for _, name := range names {
		if v, exists := m[name]; exists {
			return v, true
		}
	}
	return 0, false
}
