package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Ceremony performs the cryptographic half of WebAuthn. Session state is
// opaque bytes that the caller persists between the begin and finish steps.
type Ceremony interface {
	BeginRegistration(user *models.User, creds []*models.Authenticator) (options any, session []byte, err error)
	FinishRegistration(user *models.User, creds []*models.Authenticator, session, response []byte) (*models.Authenticator, error)
	BeginLogin(user *models.User, creds []*models.Authenticator) (options any, session []byte, err error)
	// FinishLogin returns the credential that signed, with its new sign count.
	FinishLogin(user *models.User, creds []*models.Authenticator, session, response []byte) (*models.Authenticator, error)
}

// RelyingParty identifies this service to authenticators.
type RelyingParty struct {
	ID          string
	DisplayName string
	Origins     []string
}

// WebAuthnCeremony is the go-webauthn implementation of Ceremony.
type WebAuthnCeremony struct {
	w *webauthn.WebAuthn
}

func NewWebAuthnCeremony(rp RelyingParty) (*WebAuthnCeremony, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPID:          rp.ID,
		RPDisplayName: rp.DisplayName,
		RPOrigins:     rp.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}
	return &WebAuthnCeremony{w: w}, nil
}

// webauthnUser adapts a user and their stored credentials to webauthn.User.
type webauthnUser struct {
	user  *models.User
	creds []webauthn.Credential
}

func newWebauthnUser(user *models.User, creds []*models.Authenticator) *webauthnUser {
	u := &webauthnUser{user: user}
	for _, a := range creds {
		u.creds = append(u.creds, toCredential(a))
	}
	return u
}

func (u *webauthnUser) WebAuthnID() []byte                         { return u.user.ID[:] }
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Username }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.Username }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toCredential(a *models.Authenticator) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(a.Transports))
	for _, t := range a.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              a.CredentialID,
		PublicKey:       a.PublicKey,
		AttestationType: a.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    true,
			UserVerified:   a.UserVerified,
			BackupEligible: a.BackupEligible,
			BackupState:    a.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    a.AAGUID,
			SignCount: a.SignCount,
		},
	}
}

func fromCredential(c *webauthn.Credential) *models.Authenticator {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return &models.Authenticator{
		CredentialID:    c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transports:      transports,
		SignCount:       c.Authenticator.SignCount,
		AAGUID:          c.Authenticator.AAGUID,
		UserVerified:    c.Flags.UserVerified,
		BackupEligible:  c.Flags.BackupEligible,
		BackupState:     c.Flags.BackupState,
	}
}

func encodeSession(s *webauthn.SessionData) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webauthn session: %w", err)
	}
	return b, nil
}

func decodeSession(b []byte) (webauthn.SessionData, error) {
	var s webauthn.SessionData
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("failed to decode webauthn session: %w", err)
	}
	return s, nil
}

func (c *WebAuthnCeremony) BeginRegistration(user *models.User, creds []*models.Authenticator) (any, []byte, error) {
	u := newWebauthnUser(user, creds)
	exclusions := make([]protocol.CredentialDescriptor, 0, len(u.creds))
	for _, cred := range u.creds {
		exclusions = append(exclusions, cred.Descriptor())
	}

	options, session, err := c.w.BeginRegistration(u, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin registration: %w", err)
	}
	encoded, err := encodeSession(session)
	if err != nil {
		return nil, nil, err
	}
	return options, encoded, nil
}

func (c *WebAuthnCeremony) FinishRegistration(user *models.User, creds []*models.Authenticator, session, response []byte) (*models.Authenticator, error) {
	sd, err := decodeSession(session)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	cred, err := c.w.CreateCredential(newWebauthnUser(user, creds), sd, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to verify registration: %w", err)
	}
	a := fromCredential(cred)
	a.UserID = user.ID
	return a, nil
}

func (c *WebAuthnCeremony) BeginLogin(user *models.User, creds []*models.Authenticator) (any, []byte, error) {
	options, session, err := c.w.BeginLogin(newWebauthnUser(user, creds))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin login: %w", err)
	}
	encoded, err := encodeSession(session)
	if err != nil {
		return nil, nil, err
	}
	return options, encoded, nil
}

func (c *WebAuthnCeremony) FinishLogin(user *models.User, creds []*models.Authenticator, session, response []byte) (*models.Authenticator, error) {
	sd, err := decodeSession(session)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	cred, err := c.w.ValidateLogin(newWebauthnUser(user, creds), sd, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to verify login: %w", err)
	}
	if cred.Authenticator.CloneWarning {
		return nil, errors.New("authenticator sign count went backwards")
	}
	for _, a := range creds {
		if bytes.Equal(a.CredentialID, cred.ID) {
			updated := *a
			updated.SignCount = cred.Authenticator.SignCount
			return &updated, nil
		}
	}
	return nil, errors.New("credential is not registered to this user")
}
