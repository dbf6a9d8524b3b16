package logger

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantLevel     logrus.Level
		wantJSON      bool
	}{
		{"debug", "text", logrus.DebugLevel, false},
		{"warn", "json", logrus.WarnLevel, true},
		{"nonsense", "", logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			l := New(tt.level, tt.format, false)
			if l.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", l.GetLevel(), tt.wantLevel)
			}
			_, isJSON := l.Formatter.(*logrus.JSONFormatter)
			if isJSON != tt.wantJSON {
				t.Errorf("json formatter = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}

func TestMasking(t *testing.T) {
	id := "3f2c9a10-aaaa-bbbb-cccc-1234567890ab"
	fields := logrus.Fields{
		"transaction_id": id,
		"user_id":        "short",
		"amount":         "75.00",
		"vendor_id":      "corner-shop",
	}

	tests := []struct {
		name string
		mask bool
		want logrus.Fields
	}{
		{"off", false, fields},
		{"on", true, logrus.Fields{
			"transaction_id": "3f2c9a10...",
			"user_id":        "***",
			"amount":         "***",
			"vendor_id":      "corner-shop",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("info", "text", tt.mask)
			l.SetOutput(io.Discard)
			hook := test.NewLocal(l)

			l.WithFields(fields).Info("purchase")

			entry := hook.LastEntry()
			if entry == nil {
				t.Fatal("nothing logged")
			}
			for k, want := range tt.want {
				if got := entry.Data[k]; got != want {
					t.Errorf("%s = %v, want %v", k, got, want)
				}
			}
		})
	}

	if fields["transaction_id"] != id {
		t.Error("caller's fields were modified")
	}
}
