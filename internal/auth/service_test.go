package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/testutil"
)

// fakeCeremony treats the response body as the credential id. Responses
// starting with "bad" fail verification.
type fakeCeremony struct {
	signCount uint32
}

func (c *fakeCeremony) BeginRegistration(user *models.User, creds []*models.Authenticator) (any, []byte, error) {
	return map[string]int{"exclude": len(creds)}, []byte("reg:" + user.Username), nil
}

func (c *fakeCeremony) FinishRegistration(user *models.User, _ []*models.Authenticator, session, response []byte) (*models.Authenticator, error) {
	if string(session) != "reg:"+user.Username {
		return nil, errors.New("session mismatch")
	}
	if len(response) >= 3 && string(response[:3]) == "bad" {
		return nil, errors.New("bad attestation")
	}
	return &models.Authenticator{CredentialID: response, PublicKey: []byte("pk")}, nil
}

func (c *fakeCeremony) BeginLogin(user *models.User, creds []*models.Authenticator) (any, []byte, error) {
	return map[string]int{"allow": len(creds)}, []byte("login:" + user.Username), nil
}

func (c *fakeCeremony) FinishLogin(user *models.User, creds []*models.Authenticator, session, response []byte) (*models.Authenticator, error) {
	if string(session) != "login:"+user.Username {
		return nil, errors.New("session mismatch")
	}
	for _, a := range creds {
		if string(a.CredentialID) == string(response) {
			c.signCount++
			updated := *a
			updated.SignCount = c.signCount
			return &updated, nil
		}
	}
	return nil, errors.New("unknown credential")
}

type authFixture struct {
	svc            *Service
	users          *testutil.Users
	authenticators *testutil.Authenticators
	clock          *testutil.Clock
}

func newAuthFixture() *authFixture {
	return newAuthFixtureWith(&fakeCeremony{})
}

func newAuthFixtureWith(ceremony Ceremony) *authFixture {
	users := testutil.NewUsers()
	authenticators := testutil.NewAuthenticators()
	clock := testutil.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(users, authenticators, ceremony, NewTokenIssuer("secret", 0), testutil.Logger())
	svc.now = clock.Now
	return &authFixture{svc: svc, users: users, authenticators: authenticators, clock: clock}
}

func (f *authFixture) register(t *testing.T, username string, role models.Role, credential string) *models.User {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.StartRegistration(ctx, username, role, ""); err != nil {
		t.Fatalf("StartRegistration() error = %v", err)
	}
	user, err := f.svc.FinishRegistration(ctx, username, []byte(credential))
	if err != nil {
		t.Fatalf("FinishRegistration() error = %v", err)
	}
	return user
}

func TestRegistration(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	user := f.register(t, "parent-one", models.RoleParent, "cred-1")
	if user.Role != models.RoleParent || user.CurrentChallenge != nil {
		t.Errorf("user = %+v", user)
	}
	stored, _ := f.users.GetByUsername(ctx, "parent-one")
	if stored.CurrentChallenge != nil {
		t.Error("challenge not cleared after registration")
	}
	creds, _ := f.authenticators.ListByUser(ctx, user.ID)
	if len(creds) != 1 || creds[0].UserID != user.ID {
		t.Errorf("authenticators = %+v", creds)
	}

	if _, err := f.svc.StartRegistration(ctx, "parent-one", models.RoleParent, ""); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("re-registration error = %v, want conflict", err)
	}
}

func TestRegistrationRestart(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	first, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleVendor, "")
	if err != nil {
		t.Fatalf("StartRegistration() error = %v", err)
	}
	if first.ResumeToken == "" {
		t.Fatal("no resume token issued")
	}
	if _, err := f.svc.FinishRegistration(ctx, "shop_1", []byte("bad-sig")); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("FinishRegistration() error = %v, want validation", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"wrong token", "guessed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleVendor, tt.token); apperr.KindOf(err) != apperr.KindConflict {
				t.Errorf("restart error = %v, want conflict", err)
			}
		})
	}

	again, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleVendor, first.ResumeToken)
	if err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if again.User.ID != first.User.ID {
		t.Errorf("restart created a new user")
	}
	if again.ResumeToken == first.ResumeToken {
		t.Error("resume token not rotated")
	}
	if _, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleVendor, first.ResumeToken); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("restart with rotated-out token error = %v, want conflict", err)
	}
	if _, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleParent, again.ResumeToken); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("role switch error = %v, want conflict", err)
	}

	// An abandoned signup is released once its challenge expires.
	f.clock.Advance(ChallengeTTL)
	if _, err := f.svc.FinishRegistration(ctx, "shop_1", []byte("cred-late")); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("finish after expiry error = %v, want validation", err)
	}
	if _, err := f.svc.StartRegistration(ctx, "shop_1", models.RoleVendor, ""); err != nil {
		t.Errorf("restart after expiry error = %v", err)
	}
}

func TestCeremonyKindMismatch(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	user := f.register(t, "parent-one", models.RoleParent, "cred-1")

	if _, err := f.svc.StartLogin(ctx, "parent-one"); err != nil {
		t.Fatalf("StartLogin() error = %v", err)
	}
	if _, err := f.svc.FinishRegistration(ctx, "parent-one", []byte("cred-intruder")); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("registration against a login challenge error = %v, want validation", err)
	}
	creds, _ := f.authenticators.ListByUser(ctx, user.ID)
	if len(creds) != 1 {
		t.Errorf("authenticators = %d, want 1", len(creds))
	}

	// The login itself is unaffected.
	if _, err := f.svc.FinishLogin(ctx, "parent-one", []byte("cred-1")); err != nil {
		t.Errorf("FinishLogin() error = %v", err)
	}

	if _, err := f.svc.StartRegistration(ctx, "newcomer", models.RoleParent, ""); err != nil {
		t.Fatalf("StartRegistration() error = %v", err)
	}
	if _, err := f.svc.FinishLogin(ctx, "newcomer", []byte("anything")); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("login against a registration challenge error = %v, want validation", err)
	}
}

func TestRegistrationValidation(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		role     models.Role
	}{
		{"too short", "ab", models.RoleParent},
		{"too long", "abcdefghijklmnopqrstuvwxyz0123456", models.RoleParent},
		{"spaces", "bad name", models.RoleParent},
		{"unknown role", "someone", models.Role("admin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.StartRegistration(ctx, tt.username, tt.role, "")
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}

	if _, err := f.svc.FinishRegistration(ctx, "nobody", []byte("cred")); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("finish for unknown user error = %v, want not found", err)
	}
}

func TestLogin(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	user := f.register(t, "parent-one", models.RoleParent, "cred-1")

	if _, err := f.svc.FinishLogin(ctx, "parent-one", []byte("cred-1")); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("finish without start error = %v, want validation", err)
	}

	if _, err := f.svc.StartLogin(ctx, "parent-one"); err != nil {
		t.Fatalf("StartLogin() error = %v", err)
	}
	if _, err := f.svc.FinishLogin(ctx, "parent-one", []byte("cred-2")); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Errorf("wrong credential error = %v, want unauthorized", err)
	}

	session, err := f.svc.FinishLogin(ctx, "parent-one", []byte("cred-1"))
	if err != nil {
		t.Fatalf("FinishLogin() error = %v", err)
	}
	claims, err := f.svc.Tokens().Parse(session.Token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if id, _ := claims.UserID(); id != user.ID {
		t.Errorf("token subject = %v, want %v", id, user.ID)
	}

	creds, _ := f.authenticators.ListByUser(ctx, user.ID)
	if creds[0].SignCount != 1 {
		t.Errorf("sign count = %d, want 1", creds[0].SignCount)
	}
	stored, _ := f.users.GetByID(ctx, user.ID)
	if stored.CurrentChallenge != nil {
		t.Error("challenge not cleared after login")
	}
}

func TestStartLoginUnknown(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	if _, err := f.svc.StartLogin(ctx, "nobody"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown user error = %v, want not found", err)
	}

	if _, err := f.svc.StartRegistration(ctx, "half-done", models.RoleParent, ""); err != nil {
		t.Fatalf("StartRegistration() error = %v", err)
	}
	if _, err := f.svc.StartLogin(ctx, "half-done"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("user without passkey error = %v, want not found", err)
	}
}
