// Package expiry decides whether an auction's clock has run out, whatever
// timing representation its listing was stored with.
package expiry

import (
	"strings"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
)

// State is the tri-state answer of the resolver.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Source names the timing field that decided the result.
type Source string

const (
	SourceEndTime       Source = "end_time"
	SourceExpiresAt     Source = "expires_at"
	SourcePostedAt      Source = "posted_at+duration"
	SourceDurationLabel Source = "duration_label"
	SourceNone          Source = "none"
)

const expiredMarker = "Expired"

// Timing gathers every stored representation of a listing's deadline.
type Timing struct {
	EndTime         types.Timestamp
	ExpiresAt       types.Timestamp
	PostedAt        types.Timestamp
	CreatedAt       types.Timestamp
	DurationDays    int
	DurationHours   int
	DurationMinutes int
	DurationLabel   string
}

// Result is the outcome of Resolve. EndsAt is set whenever a deadline was derived.
type Result struct {
	State  State
	EndsAt *time.Time
	Source Source
}

// TimingOf extracts the timing fields of a listing.
func TimingOf(l models.Listing) Timing {
	t := Timing{
		EndTime:         l.EndTime,
		ExpiresAt:       l.ExpiresAt,
		PostedAt:        l.PostedAt,
		DurationDays:    l.DurationDays,
		DurationHours:   l.DurationHours,
		DurationMinutes: l.DurationMinutes,
	}
	if !l.CreatedAt.IsZero() {
		t.CreatedAt = types.NewTimestamp(l.CreatedAt)
	}
	if l.DurationLabel != nil {
		t.DurationLabel = *l.DurationLabel
	}
	return t
}

// Resolve walks the timing representations in priority order: explicit end
// time, explicit expiry, posting time plus duration, then the textual label.
// A deadline equal to now counts as expired. A stored field that cannot be
// parsed ends the walk as unknown; lower-priority fields are not consulted.
func Resolve(t Timing, now time.Time) Result {
	switch {
	case t.EndTime.Valid:
		return against(t.EndTime.Time, now, SourceEndTime)
	case t.EndTime.Malformed:
		return Result{State: StateUnknown, Source: SourceEndTime}
	case t.ExpiresAt.Valid:
		return against(t.ExpiresAt.Time, now, SourceExpiresAt)
	case t.ExpiresAt.Malformed:
		return Result{State: StateUnknown, Source: SourceExpiresAt}
	}
	if d := t.duration(); d > 0 {
		if t.PostedAt.Malformed {
			return Result{State: StateUnknown, Source: SourcePostedAt}
		}
		start := t.PostedAt
		if !start.Valid {
			start = t.CreatedAt
		}
		if start.Valid {
			return against(start.Time.Add(d), now, SourcePostedAt)
		}
	}
	if strings.Contains(t.DurationLabel, expiredMarker) {
		return Result{State: StateExpired, Source: SourceDurationLabel}
	}
	return Result{State: StateUnknown, Source: SourceNone}
}

// HasExpired resolves a listing against now.
func HasExpired(l models.Listing, now time.Time) State {
	return Resolve(TimingOf(l), now).State
}

func (t Timing) duration() time.Duration {
	var d time.Duration
	if t.DurationDays > 0 {
		d += time.Duration(t.DurationDays) * 24 * time.Hour
	}
	if t.DurationHours > 0 {
		d += time.Duration(t.DurationHours) * time.Hour
	}
	if t.DurationMinutes > 0 {
		d += time.Duration(t.DurationMinutes) * time.Minute
	}
	return d
}

func against(deadline, now time.Time, source Source) Result {
	endsAt := deadline.UTC()
	state := StateActive
	if !now.Before(endsAt) {
		state = StateExpired
	}
	return Result{State: state, EndsAt: &endsAt, Source: source}
}
