package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/sirupsen/logrus"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

// Session is an issued session token.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Registration is a started passkey registration.
type Registration struct {
	User    *models.User
	Options any
	// ResumeToken lets the same client restart the registration while its
	// challenge is still live.
	ResumeToken string
}

// Service runs registration and login ceremonies against stored users.
type Service struct {
	users          repository.UserRepository
	authenticators repository.AuthenticatorRepository
	ceremony       Ceremony
	tokens         *TokenIssuer
	logger         *logrus.Logger
	now            func() time.Time
}

func NewService(users repository.UserRepository, authenticators repository.AuthenticatorRepository,
	ceremony Ceremony, tokens *TokenIssuer, logger *logrus.Logger) *Service {
	return &Service{
		users:          users,
		authenticators: authenticators,
		ceremony:       ceremony,
		tokens:         tokens,
		logger:         logger,
		now:            time.Now,
	}
}

// Tokens returns the issuer used for sessions.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", apperr.Validation("username", "Username must be 3-32 letters, digits, '-' or '_'")
	}
	return username, nil
}

// StartRegistration creates the account if needed and returns creation
// options for the browser. A user without any passkey may restart once their
// challenge has expired, or earlier with the resume token from the previous
// start; the new challenge replaces the old one.
func (s *Service) StartRegistration(ctx context.Context, username string, role models.Role, resumeToken string) (*Registration, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if role != models.RoleParent && role != models.RoleVendor {
		return nil, apperr.Validation("role", "Role must be parent or vendor")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", username, err)
	}
	var creds []*models.Authenticator
	if user != nil {
		creds, err = s.authenticators.ListByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list authenticators: %w", err)
		}
		if len(creds) > 0 || user.Role != role {
			return nil, apperr.Conflict("Username already exists")
		}
		prev := decodeChallenge(user.CurrentChallenge)
		if prev != nil && prev.Kind == kindRegistration && !prev.expired(s.now()) && !prev.resumableBy(resumeToken) {
			return nil, apperr.Conflict("Registration already in progress for this username")
		}
	} else {
		user, err = s.users.Create(ctx, &models.User{Username: username, Role: role})
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("Username already exists")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", username, err)
		}
	}

	options, session, err := s.ceremony.BeginRegistration(user, creds)
	if err != nil {
		return nil, err
	}
	token, err := newResumeToken()
	if err != nil {
		return nil, err
	}
	challenge := &storedChallenge{
		Kind:       kindRegistration,
		Session:    session,
		ResumeHash: hashResumeToken(token),
	}
	if err := s.saveChallenge(ctx, user, challenge); err != nil {
		return nil, err
	}
	return &Registration{User: user, Options: options, ResumeToken: token}, nil
}

// FinishRegistration verifies the browser's attestation and stores the passkey.
func (s *Service) FinishRegistration(ctx context.Context, username string, response []byte) (*models.User, error) {
	user, creds, challenge, err := s.pendingCeremony(ctx, username, kindRegistration, "No registration in progress")
	if err != nil {
		return nil, err
	}

	a, err := s.ceremony.FinishRegistration(user, creds, challenge.Session, response)
	if err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Warn("Registration verification failed")
		return nil, apperr.Wrap(apperr.KindValidation, "Registration verification failed", err)
	}
	a.UserID = user.ID
	if _, err := s.authenticators.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("Authenticator already registered")
		}
		return nil, fmt.Errorf("failed to store authenticator: %w", err)
	}
	if err := s.users.SetChallenge(ctx, user.ID, nil); err != nil {
		return nil, fmt.Errorf("failed to clear challenge: %w", err)
	}
	user.CurrentChallenge = nil

	s.logger.WithFields(logrus.Fields{"username": user.Username, "role": user.Role}).Info("Registered passkey")
	return user, nil
}

// StartLogin returns assertion options for a user's registered passkeys.
func (s *Service) StartLogin(ctx context.Context, username string) (any, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", username, err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	creds, err := s.authenticators.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list authenticators: %w", err)
	}
	if len(creds) == 0 {
		return nil, apperr.NotFound("No passkey registered for this user")
	}

	options, session, err := s.ceremony.BeginLogin(user, creds)
	if err != nil {
		return nil, err
	}
	if err := s.saveChallenge(ctx, user, &storedChallenge{Kind: kindLogin, Session: session}); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishLogin verifies the assertion and issues a session.
func (s *Service) FinishLogin(ctx context.Context, username string, response []byte) (*Session, error) {
	user, creds, challenge, err := s.pendingCeremony(ctx, username, kindLogin, "No login in progress")
	if err != nil {
		return nil, err
	}

	a, err := s.ceremony.FinishLogin(user, creds, challenge.Session, response)
	if err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Warn("Login verification failed")
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Authentication failed", err)
	}
	if err := s.authenticators.UpdateSignCount(ctx, a.CredentialID, a.SignCount); err != nil {
		return nil, fmt.Errorf("failed to update sign count: %w", err)
	}
	if err := s.users.SetChallenge(ctx, user.ID, nil); err != nil {
		return nil, fmt.Errorf("failed to clear challenge: %w", err)
	}
	user.CurrentChallenge = nil

	return s.IssueSession(user)
}

// IssueSession mints a session token for an already verified user.
func (s *Service) IssueSession(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *Service) saveChallenge(ctx context.Context, user *models.User, c *storedChallenge) error {
	c.IssuedAt = s.now()
	encoded, err := encodeChallenge(c)
	if err != nil {
		return err
	}
	if err := s.users.SetChallenge(ctx, user.ID, &encoded); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	user.CurrentChallenge = &encoded
	return nil
}

// pendingCeremony loads a user with a live challenge of the given kind and
// their passkeys. A challenge left by the other ceremony counts as none.
func (s *Service) pendingCeremony(ctx context.Context, username string, kind ceremonyKind, missing string) (*models.User, []*models.Authenticator, *storedChallenge, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, nil, nil, err
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to lookup user %s: %w", username, err)
	}
	if user == nil {
		return nil, nil, nil, apperr.NotFound("User not found")
	}
	challenge := decodeChallenge(user.CurrentChallenge)
	if challenge == nil || challenge.Kind != kind {
		return nil, nil, nil, apperr.Validation("response", missing)
	}
	if challenge.expired(s.now()) {
		return nil, nil, nil, apperr.Validation("response", "Challenge expired, start again")
	}
	creds, err := s.authenticators.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list authenticators: %w", err)
	}
	return user, creds, challenge, nil
}
