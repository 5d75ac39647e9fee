// Package brief publishes the nightly mock briefing: a placeholder audio
// object, its metadata object and the ops-log status document.
package brief

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the layout of the date key used for paths and document ids.
const DateLayout = "2006-01-02"

// Content types of the published objects.
const (
	ContentTypeAudio = "audio/mpeg"
	ContentTypeJSON  = "application/json"
)

// ErrInvalidDate indicates a date key that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

// RunContext holds the values derived once per run. Every write of a run
// uses the same RunContext.
type RunContext struct {
	Now     time.Time
	RunID   string
	Year    string
	Month   string
	Day     string
	DateKey string
	UTC     string
}

// NewRunContext derives the run values from now, converted to UTC.
func NewRunContext(now time.Time, runID string) RunContext {
	now = now.UTC()

	return RunContext{
		Now:     now,
		RunID:   runID,
		Year:    now.Format("2006"),
		Month:   now.Format("01"),
		Day:     now.Format("02"),
		DateKey: now.Format(DateLayout),
		UTC:     now.Format("2006-01-02T15:04:05.000000") + "Z",
	}
}

// AudioKey is the object path of the placeholder audio.
func (rc RunContext) AudioKey() string {
	return AudioKey(rc.Year, rc.Month, rc.Day)
}

// MetaKey is the object path of the metadata record.
func (rc RunContext) MetaKey() string {
	return MetaKey(rc.DateKey)
}

// AudioKey builds "audio/briefings/{YYYY}/{MM}/{DD}/brief.mp3".
func AudioKey(year, month, day string) string {
	return fmt.Sprintf("audio/briefings/%s/%s/%s/brief.mp3", year, month, day)
}

// MetaKey builds "audio/meta/{YYYY-MM-DD}.json".
func MetaKey(dateKey string) string {
	return fmt.Sprintf("audio/meta/%s.json", dateKey)
}

// ParseDateKey validates a YYYY-MM-DD key.
func ParseDateKey(dateKey string) (time.Time, error) {
	day, err := time.Parse(DateLayout, dateKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, dateKey)
	}

	return day, nil
}
