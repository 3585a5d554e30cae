package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates unix seconds from unix milliseconds in bare numbers.
const millisThreshold = 1e12

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ErrUnrecognizedTimestamp is returned when a value matches none of the stored shapes.
var ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp shape")

// Timestamp is an instant persisted as JSONB. Older listings stored their timing
// fields as `{"seconds": n}`, `{"_seconds": n}`, ISO strings or unix numbers;
// all of them decode into the same normalized value.
//
// Malformed marks a stored value that matched none of those shapes. It is
// neither Valid nor absent, and writing it back keeps the stored text.
type Timestamp struct {
	Time      time.Time
	Valid     bool
	Malformed bool

	raw string
}

// NewTimestamp wraps t as a present timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC(), Valid: true}
}

// Ptr returns the instant or nil when absent.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// ParseTimestamp normalizes a decoded JSON value (or a native time.Time) into a Timestamp.
// A nil value yields an absent timestamp without error.
func ParseTimestamp(raw any) (Timestamp, error) {
	switch v := raw.(type) {
	case nil:
		return Timestamp{}, nil
	case time.Time:
		if v.IsZero() {
			return Timestamp{}, nil
		}
		return NewTimestamp(v), nil
	case *time.Time:
		if v == nil {
			return Timestamp{}, nil
		}
		return ParseTimestamp(*v)
	case string:
		return parseTimestampString(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %v", ErrUnrecognizedTimestamp, err)
		}
		return fromUnixNumber(f), nil
	case float64:
		return fromUnixNumber(v), nil
	case int64:
		return fromUnixNumber(float64(v)), nil
	case int:
		return fromUnixNumber(float64(v)), nil
	case map[string]any:
		return parseTimestampObject(v)
	default:
		return Timestamp{}, fmt.Errorf("%w: %T", ErrUnrecognizedTimestamp, raw)
	}
}

func parseTimestampString(value string) (Timestamp, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return NewTimestamp(parsed), nil
		}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return fromUnixNumber(f), nil
	}
	return Timestamp{}, fmt.Errorf("%w: %q", ErrUnrecognizedTimestamp, value)
}

func parseTimestampObject(obj map[string]any) (Timestamp, error) {
	secondsRaw, ok := firstPresent(obj, "seconds", "_seconds")
	if !ok {
		return Timestamp{}, fmt.Errorf("%w: object without seconds", ErrUnrecognizedTimestamp)
	}
	seconds, err := toFloat(secondsRaw)
	if err != nil {
		return Timestamp{}, err
	}
	var nanos float64
	if nanosRaw, ok := firstPresent(obj, "nanoseconds", "_nanoseconds", "nanos"); ok {
		if nanos, err = toFloat(nanosRaw); err != nil {
			return Timestamp{}, err
		}
	}
	return NewTimestamp(time.Unix(int64(seconds), int64(nanos))), nil
}

func firstPresent(obj map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("%w: numeric field of type %T", ErrUnrecognizedTimestamp, raw)
	}
}

func fromUnixNumber(f float64) Timestamp {
	if math.Abs(f) >= millisThreshold {
		return NewTimestamp(time.UnixMilli(int64(f)))
	}
	sec, frac := math.Modf(f)
	return NewTimestamp(time.Unix(int64(sec), int64(frac*1e9)))
}

// MarshalJSON writes present timestamps as RFC3339 strings and absent ones as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: invalid json", ErrUnrecognizedTimestamp)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer for JSONB columns.
func (t Timestamp) Value() (driver.Value, error) {
	if t.Malformed {
		return []byte(t.raw), nil
	}
	if !t.Valid {
		return nil, nil
	}
	return t.MarshalJSON()
}

// Scan implements sql.Scanner. Stored values that match no known shape scan as
// Malformed instead of failing, so a single bad row cannot break listing reads.
func (t *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case time.Time:
		parsed, _ := ParseTimestamp(v)
		*t = parsed
		return nil
	case []byte:
		t.scanText(string(v))
		return nil
	case string:
		t.scanText(v)
		return nil
	default:
		return fmt.Errorf("unsupported timestamp scan type %T", value)
	}
}

func (t *Timestamp) scanText(text string) {
	if err := t.UnmarshalJSON([]byte(text)); err == nil {
		return
	}
	parsed, err := parseTimestampString(text)
	if err != nil {
		*t = Timestamp{Malformed: true, raw: text}
		return
	}
	*t = parsed
}
