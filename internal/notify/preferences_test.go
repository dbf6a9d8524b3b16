package notify

import (
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 3, 1, hh, mm, 0, 0, time.UTC)
}

func TestQuietHoursContains(t *testing.T) {
	overnight := QuietHours{Start: 22 * 60, End: 8 * 60}
	afternoon := QuietHours{Start: 13 * 60, End: 15 * 60}

	tests := []struct {
		name  string
		quiet QuietHours
		t     time.Time
		want  bool
	}{
		{"wrapping late evening", overnight, at(23, 0), true},
		{"wrapping at start", overnight, at(22, 0), true},
		{"wrapping early morning", overnight, at(7, 59), true},
		{"wrapping at end", overnight, at(8, 0), false},
		{"wrapping morning after", overnight, at(9, 0), false},
		{"wrapping midday", overnight, at(12, 30), false},
		{"non-wrapping inside", afternoon, at(14, 0), true},
		{"non-wrapping before", afternoon, at(12, 59), false},
		{"non-wrapping after", afternoon, at(15, 0), false},
		{"empty window", QuietHours{Start: 600, End: 600}, at(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quiet.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestParsePreferences(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := ParsePreferences(nil)
		if p.Quiet != nil || !p.ResultsEnabled {
			t.Errorf("ParsePreferences(nil) = %+v", p)
		}
	})

	t.Run("only one end set", func(t *testing.T) {
		p := ParsePreferences(map[string]string{SettingQuietHoursStart: "22:00"})
		if p.Quiet != nil {
			t.Error("quiet hours should need both ends")
		}
	})

	t.Run("full settings", func(t *testing.T) {
		p := ParsePreferences(map[string]string{
			SettingQuietHoursStart:    "22:00",
			SettingQuietHoursEnd:      "08:00",
			SettingTransactionResults: "false",
		})
		if p.Quiet == nil || p.Quiet.Start != 22*60 || p.Quiet.End != 8*60 {
			t.Errorf("Quiet = %+v", p.Quiet)
		}
		if p.ResultsEnabled {
			t.Error("ResultsEnabled = true, want false")
		}
	})
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{SettingQuietHoursStart, "22:00", false},
		{SettingQuietHoursEnd, "25:00", true},
		{SettingQuietHoursEnd, "", false},
		{SettingTransactionResults, "true", false},
		{SettingTransactionResults, "maybe", true},
		{"daily_summaries", "true", true},
	}

	for _, tt := range tests {
		err := ValidateSetting(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSetting(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
		if err != nil && apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("ValidateSetting(%q) kind = %v, want validation", tt.key, apperr.KindOf(err))
		}
	}
}
