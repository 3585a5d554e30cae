package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTimestampUnmarshalShapes(t *testing.T) {
	want := time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		raw  string
	}{
		{name: "rfc3339", raw: `"2024-03-09T16:00:00Z"`},
		{name: "rfc3339 offset", raw: `"2024-03-09T11:00:00-05:00"`},
		{name: "iso without zone", raw: `"2024-03-09T16:00:00"`},
		{name: "seconds object", raw: `{"seconds": 1710000000}`},
		{name: "underscore seconds object", raw: `{"_seconds": 1710000000, "_nanoseconds": 0}`},
		{name: "unix seconds", raw: `1710000000`},
		{name: "unix millis", raw: `1710000000000`},
		{name: "numeric string", raw: `"1710000000"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tc.raw), &ts); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.raw, err)
			}
			if !ts.Valid {
				t.Fatalf("expected valid timestamp for %s", tc.raw)
			}
			if !ts.Time.Equal(want) {
				t.Fatalf("expected %s, got %s", want, ts.Time)
			}
		})
	}
}

func TestTimestampNanosecondsField(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`{"seconds": 1710000000, "nanoseconds": 500000000}`), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := ts.Time.Nanosecond(); got != 500000000 {
		t.Fatalf("expected nanoseconds to carry over, got %d", got)
	}
}

func TestTimestampNullAndEmpty(t *testing.T) {
	for _, raw := range []string{`null`, `""`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if ts.Valid {
			t.Fatalf("expected %s to decode as absent", raw)
		}
	}
}

func TestTimestampRejectsUnknownShape(t *testing.T) {
	var ts Timestamp
	err := json.Unmarshal([]byte(`{"when": "tomorrow"}`), &ts)
	if !errors.Is(err, ErrUnrecognizedTimestamp) {
		t.Fatalf("expected ErrUnrecognizedTimestamp, got %v", err)
	}
}

func TestTimestampScanIsLenient(t *testing.T) {
	var ts Timestamp
	if err := ts.Scan([]byte(`"not a date"`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if ts.Valid || !ts.Malformed {
		t.Fatalf("expected malformed stored value to scan as present but unreadable, got %+v", ts)
	}
	stored, err := ts.Value()
	if err != nil || string(stored.([]byte)) != `"not a date"` {
		t.Fatalf("expected malformed value to write back unchanged, got %v (%v)", stored, err)
	}

	if err := ts.Scan("2024-03-09T16:00:00Z"); err != nil {
		t.Fatalf("scan bare text: %v", err)
	}
	if !ts.Valid || ts.Malformed {
		t.Fatal("expected bare RFC3339 text to scan")
	}

	native := time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)
	if err := ts.Scan(native); err != nil {
		t.Fatalf("scan native: %v", err)
	}
	if !ts.Time.Equal(native) {
		t.Fatalf("expected %s, got %s", native, ts.Time)
	}
}

func TestTimestampValueRoundTrip(t *testing.T) {
	original := NewTimestamp(time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC))
	value, err := original.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned Timestamp
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !scanned.Time.Equal(original.Time) {
		t.Fatalf("expected %s, got %s", original.Time, scanned.Time)
	}

	absent, err := Timestamp{}.Value()
	if err != nil || absent != nil {
		t.Fatalf("expected nil value for absent timestamp, got %v (%v)", absent, err)
	}
}
