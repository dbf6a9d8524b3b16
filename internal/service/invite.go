package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/auth"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
)

var errInvalidInvite = apperr.NotFound("Invalid or expired invite link")

// InviteInfo describes a valid invite link to the person redeeming it.
type InviteInfo struct {
	FamilyNumber string    `json:"family_number"`
	Surname      string    `json:"surname"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CreateInvite issues a one-time link another parent can use to join the
// caller's family.
func (s *Service) CreateInvite(ctx context.Context, user *models.User) (*models.InviteLink, error) {
	if _, err := s.requireFamily(ctx, user); err != nil {
		return nil, err
	}
	now := s.now()
	link, err := s.Invites.Create(ctx, &models.InviteLink{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.opts.InviteTTL),
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invite link: %w", err)
	}
	return link, nil
}

// usableInvite loads the link and the family of the parent who created it.
func (s *Service) usableInvite(ctx context.Context, token string) (*models.InviteLink, *models.Family, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, apperr.Validation("token", "Invite token is required")
	}
	link, err := s.Invites.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup invite link: %w", err)
	}
	if link == nil || !link.Usable(s.now()) {
		return nil, nil, errInvalidInvite
	}
	family, err := s.Families.GetByMember(ctx, link.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup inviting family: %w", err)
	}
	if family == nil {
		return nil, nil, errInvalidInvite
	}
	return link, family, nil
}

// ValidateInvite reports which family a link would join.
func (s *Service) ValidateInvite(ctx context.Context, token string) (*InviteInfo, error) {
	link, family, err := s.usableInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	return &InviteInfo{
		FamilyNumber: family.Number,
		Surname:      family.Surname,
		ExpiresAt:    link.ExpiresAt,
	}, nil
}

// StartInvite begins passkey registration of a new parent through a link and
// binds the link to that account. resumeToken restarts a registration this
// client already began.
func (s *Service) StartInvite(ctx context.Context, token, username, resumeToken string) (*auth.Registration, error) {
	if _, _, err := s.usableInvite(ctx, token); err != nil {
		return nil, err
	}
	reg, err := s.auth.StartRegistration(ctx, username, models.RoleParent, resumeToken)
	if err != nil {
		return nil, err
	}
	ok, err := s.Invites.Reserve(ctx, strings.TrimSpace(token), reg.User.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve invite link: %w", err)
	}
	if !ok {
		return nil, errInvalidInvite
	}
	return reg, nil
}

// FinishInvite completes registration, consumes the link and places the new
// parent in the inviting family.
func (s *Service) FinishInvite(ctx context.Context, token string, response []byte) (*models.User, error) {
	link, family, err := s.usableInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.NewUserID == nil {
		return nil, apperr.Validation("token", "Invite registration was not started")
	}
	invitee, err := s.Users.GetByID(ctx, *link.NewUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup invited user: %w", err)
	}
	if invitee == nil {
		return nil, errInvalidInvite
	}

	user, err := s.auth.FinishRegistration(ctx, invitee.Username, response)
	if err != nil {
		return nil, err
	}

	ok, err := s.Invites.Consume(ctx, link.Token, user.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to consume invite link: %w", err)
	}
	if !ok {
		return nil, errInvalidInvite
	}
	if err := s.Users.SetFamily(ctx, user.ID, family.ID); err != nil {
		return nil, fmt.Errorf("failed to join family: %w", err)
	}
	user.FamilyID = &family.ID
	s.logger.WithField("family_id", family.ID).Info("Parent joined family through invite")
	return user, nil
}
