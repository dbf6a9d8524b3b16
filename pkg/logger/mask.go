package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Field names whose values are shortened or hidden when masking is on.
var (
	idFields = map[string]bool{
		"transaction_id": true,
		"family_id":      true,
		"user_id":        true,
		"responder_id":   true,
	}
	amountFields = map[string]bool{
		"amount": true,
		"limit":  true,
	}
)

// maskHook rewrites sensitive fields of every entry before it is formatted.
type maskHook struct{}

func (maskHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (maskHook) Fire(entry *logrus.Entry) error {
	for key, value := range entry.Data {
		switch {
		case idFields[key]:
			entry.Data[key] = maskID(fmt.Sprint(value))
		case amountFields[key]:
			entry.Data[key] = "***"
		}
	}
	return nil
}

// maskID keeps the first eight characters of an identifier.
func maskID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}
