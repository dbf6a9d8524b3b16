package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ChallengeTTL bounds how long a started ceremony can be finished, and how
// long a started registration stays reserved for the client that began it.
const ChallengeTTL = 5 * time.Minute

type ceremonyKind string

const (
	kindRegistration ceremonyKind = "registration"
	kindLogin        ceremonyKind = "login"
)

// storedChallenge is what users.current_challenge holds between the begin
// and finish steps of a ceremony.
type storedChallenge struct {
	Kind     ceremonyKind `json:"kind"`
	Session  []byte       `json:"session"`
	IssuedAt time.Time    `json:"issued_at"`
	// ResumeHash is the SHA-256 of the token returned to whoever started a
	// registration. Only registrations carry one.
	ResumeHash string `json:"resume_hash,omitempty"`
}

func (c *storedChallenge) expired(now time.Time) bool {
	return !now.Before(c.IssuedAt.Add(ChallengeTTL))
}

// resumableBy reports whether token is the one issued with this registration.
func (c *storedChallenge) resumableBy(token string) bool {
	if c.ResumeHash == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.ResumeHash), []byte(hashResumeToken(token))) == 1
}

func encodeChallenge(c *storedChallenge) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode challenge: %w", err)
	}
	return string(b), nil
}

// decodeChallenge returns nil for values that are not a stored challenge.
func decodeChallenge(raw *string) *storedChallenge {
	if raw == nil {
		return nil
	}
	var c storedChallenge
	if err := json.Unmarshal([]byte(*raw), &c); err != nil || c.Kind == "" {
		return nil
	}
	return &c
}

func newResumeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate resume token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashResumeToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
