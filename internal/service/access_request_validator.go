package service

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
)

const (
	MaxReasonLength = 200
	MaxAccessWindow = 3 * time.Hour
)

// Accepted window timestamp layouts. Layouts without a zone are read in the
// validator's location; a bare time of day is anchored to now's date.
var windowLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const timeOfDayLayout = "15:04"

// AccessRequestCandidate is unvalidated form input.
type AccessRequestCandidate struct {
	Requester   *Principal
	WindowStart string
	WindowEnd   string
	Reason      string
}

// AccessWindow is a validated candidate ready to persist.
type AccessWindow struct {
	Start  time.Time
	End    time.Time
	Reason string
}

type AccessRequestValidator struct {
	maxWindow time.Duration
	loc       *time.Location
}

// NewAccessRequestValidator builds a validator. maxWindow can only tighten the
// three hour limit; zero or larger values fall back to it.
func NewAccessRequestValidator(maxWindow time.Duration, loc *time.Location) *AccessRequestValidator {
	if maxWindow <= 0 || maxWindow > MaxAccessWindow {
		maxWindow = MaxAccessWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AccessRequestValidator{maxWindow: maxWindow, loc: loc}
}

// Validate runs the checks in order and returns the first failure.
func (v *AccessRequestValidator) Validate(c AccessRequestCandidate, now time.Time) (*AccessWindow, error) {
	if c.Requester == nil || c.Requester.IdentityType != types.IdentityAlumni {
		return nil, ErrPermissionDenied
	}

	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return nil, sentinel.Invalid("reason", "reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, sentinel.Invalid("reason", "reason must be at most 200 characters")
	}

	start, ok := v.parse(c.WindowStart, now)
	if !ok {
		return nil, sentinel.Invalid("window_start", "invalid timestamp")
	}
	end, ok := v.parse(c.WindowEnd, now)
	if !ok {
		return nil, sentinel.Invalid("window_end", "invalid timestamp")
	}

	if end.Before(start) {
		return nil, sentinel.Invalid("window_end", "window end is before window start")
	}
	if end.Sub(start) > v.maxWindow {
		return nil, sentinel.Invalid("window_end", "window exceeds "+v.maxWindow.String())
	}

	return &AccessWindow{Start: start, End: end, Reason: reason}, nil
}

func (v *AccessRequestValidator) parse(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, value, v.loc); err == nil {
			return t, true
		}
	}
	if t, err := time.ParseInLocation(timeOfDayLayout, value, v.loc); err == nil {
		y, m, d := now.In(v.loc).Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, v.loc), true
	}
	return time.Time{}, false
}
