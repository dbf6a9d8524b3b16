package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Username: "parent-one", Role: models.RoleParent}
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", 0)
	issuer.now = func() time.Time { return now }
	user := testUser()

	token, expires, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if want := now.Add(SessionTTL); !expires.Equal(want) {
		t.Errorf("expires = %v, want %v", expires, want)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != user.ID {
		t.Errorf("UserID() = %v, %v, want %v", id, err, user.ID)
	}
	if claims.Username != "parent-one" || claims.Role != models.RoleParent {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return now }
	token, _, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewTokenIssuer("other-secret", time.Hour)
	other.now = issuer.now

	later := NewTokenIssuer("secret", time.Hour)
	later.now = func() time.Time { return now.Add(2 * time.Hour) }

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name    string
		issuer  *TokenIssuer
		token   string
		wantErr error
	}{
		{"wrong secret", other, token, jwt.ErrTokenSignatureInvalid},
		{"expired", later, token, jwt.ErrTokenExpired},
		{"unsigned", issuer, none, jwt.ErrTokenSignatureInvalid},
		{"bad subject", issuer, badSubject, jwt.ErrTokenInvalidSubject},
		{"garbage", issuer, "abc.def", jwt.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Parse(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
