package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
)

// Setting keys accepted from users.
const (
	SettingQuietHoursStart    = "quiet_hours_start"
	SettingQuietHoursEnd      = "quiet_hours_end"
	SettingTransactionResults = "transaction_results"
)

// QuietHours is a daily window, in minutes after midnight, during which
// non-urgent notifications are held back. Start > End wraps past midnight.
type QuietHours struct {
	Start int
	End   int
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t's wall-clock time falls inside the window.
// The start minute is inside, the end minute is not.
func (q QuietHours) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	switch {
	case q.Start == q.End:
		return false
	case q.Start < q.End:
		return m >= q.Start && m < q.End
	default:
		return m >= q.Start || m < q.End
	}
}

// Preferences are a user's delivery settings after parsing.
type Preferences struct {
	Quiet          *QuietHours
	ResultsEnabled bool
}

// ParsePreferences interprets stored key/value settings. Quiet hours apply
// only when both ends are set and valid.
func ParsePreferences(settings map[string]string) Preferences {
	prefs := Preferences{ResultsEnabled: true}

	if v, ok := settings[SettingTransactionResults]; ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			prefs.ResultsEnabled = enabled
		}
	}

	start, okStart := settings[SettingQuietHoursStart]
	end, okEnd := settings[SettingQuietHoursEnd]
	if okStart && okEnd {
		s, errS := ParseClock(start)
		e, errE := ParseClock(end)
		if errS == nil && errE == nil {
			prefs.Quiet = &QuietHours{Start: s, End: e}
		}
	}

	return prefs
}

// ValidateSetting checks a key/value pair before it is stored. An empty
// quiet-hours value clears that end of the window.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingQuietHoursStart, SettingQuietHoursEnd:
		if value == "" {
			return nil
		}
		if _, err := ParseClock(value); err != nil {
			return apperr.Validation("settingValue", err.Error())
		}
	case SettingTransactionResults:
		if _, err := strconv.ParseBool(value); err != nil {
			return apperr.Validation("settingValue", "must be true or false")
		}
	default:
		return apperr.Validation("settingKey", fmt.Sprintf("unknown setting %q", key))
	}
	return nil
}
