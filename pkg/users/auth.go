package users

import (
	"context"
	"strconv"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

const invalidCredentials = "invalid email or password"

// AuthService handles password login, refresh token rotation and password
// changes.
type AuthService struct {
	store   *Store
	tokens  *identity.TokenService
	hasher  *Hasher
	metrics *observability.Metrics
}

// NewAuthService creates an auth service. metrics may be nil.
func NewAuthService(store *Store, tokens *identity.TokenService, hasher *Hasher, metrics *observability.Metrics) *AuthService {
	return &AuthService{store: store, tokens: tokens, hasher: hasher, metrics: metrics}
}

// Login verifies an email and password and opens a session. Unknown
// emails and wrong passwords fail the same way.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*identity.Session, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperror.Validation("email and password are required")
	}

	acc, err := s.store.AccountByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		s.hasher.burn(req.Password)
		s.loginFailed(ctx, nil, "unknown email")
		return nil, apperror.Authentication(invalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(acc.PasswordHash, req.Password) {
		s.loginFailed(ctx, acc, "wrong password")
		return nil, apperror.Authentication(invalidCredentials)
	}
	if _, err := identity.FromAccount(acc); err != nil {
		s.loginFailed(ctx, acc, err.Error())
		return nil, apperror.Authentication("account is disabled")
	}

	session, err := s.openSession(ctx, acc)
	if err != nil {
		return nil, err
	}
	s.count("success")
	s.log(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess, acc, "")
	return session, nil
}

// Refresh exchanges a refresh token for a new session. The presented token
// is revoked whether or not the account is still usable.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	hash, err := s.tokens.HashRefreshToken(refreshToken)
	if err != nil {
		s.refreshed("invalid")
		return nil, err
	}
	userID, err := s.store.ConsumeRefreshToken(ctx, hash)
	if err != nil {
		s.refreshed("invalid")
		return nil, err
	}

	acc, err := s.store.AccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := identity.FromAccount(acc); err != nil {
		s.refreshed("rejected")
		return nil, err
	}

	session, err := s.openSession(ctx, acc)
	if err != nil {
		return nil, err
	}
	s.refreshed("success")
	s.log(ctx, audit.EventTypeAuthTokenRefresh, audit.EventStatusSuccess, acc, "")
	return session, nil
}

// ChangePassword replaces the caller's password and ends their other
// sessions.
func (s *AuthService) ChangePassword(ctx context.Context, id identity.Identity, req ChangePasswordRequest) error {
	acc, err := s.store.AccountByID(ctx, id.UserID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(acc.PasswordHash, req.CurrentPassword) {
		s.log(ctx, audit.EventTypeAuthPasswordChange, audit.EventStatusFailure, acc, "wrong current password")
		return apperror.Validation("current password is incorrect")
	}
	if err := ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword == req.CurrentPassword {
		return apperror.Validation("new password must differ from the current one")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, acc.ID, hash); err != nil {
		return err
	}
	if err := s.store.RevokeRefreshTokens(ctx, acc.ID); err != nil {
		return err
	}
	s.log(ctx, audit.EventTypeAuthPasswordChange, audit.EventStatusSuccess, acc, "")
	return nil
}

func (s *AuthService) openSession(ctx context.Context, acc *identity.Account) (*identity.Session, error) {
	session, hash, err := s.tokens.IssueSession(acc.ID, acc.Email)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreRefreshToken(ctx, acc.ID, hash, session.RefreshTokenExpiryTime); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *AuthService) loginFailed(ctx context.Context, acc *identity.Account, reason string) {
	s.count("failure")
	s.log(ctx, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, acc, reason)
}

func (s *AuthService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues("password", outcome).Inc()
	}
}

func (s *AuthService) refreshed(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *AuthService) log(ctx context.Context, eventType audit.EventType, status audit.EventStatus, acc *identity.Account, reason string) {
	event := audit.NewEvent(ctx, eventType, status)
	event.ResourceType = "user"
	event.ErrorMessage = reason
	if acc != nil {
		userID := acc.ID
		event.UserID = &userID
		event.TenantID = acc.TenantID
		event.ResourceID = strconv.FormatInt(acc.ID, 10)
	}
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit authentication event")
	}
}
