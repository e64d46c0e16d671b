package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/crmgate/pkg/apperror"
)

const (
	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the lifetime of a refresh token.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// DefaultIssuer is the iss claim of access tokens.
	DefaultIssuer = "crmgate"
)

// Claims are the access token claims. Only the subject is trusted; every
// other attribute is re-read from the account store.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is the login response.
type Session struct {
	Token                  string    `json:"token"`
	RefreshToken           string    `json:"refreshToken"`
	ValidTo                time.Time `json:"validTo"`
	RefreshTokenExpiryTime time.Time `json:"refreshTokenExpiryTime"`
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues and verifies access tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	refresh    *RefreshTokenGenerator
	now        func() time.Time
}

// NewTokenService creates a token service. The secret must be at least 32
// bytes.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(cfg.Secret))
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		refresh:    NewRefreshTokenGenerator(),
		now:        time.Now,
	}, nil
}

// IssueAccessToken signs an access token for the user.
func (s *TokenService) IssueAccessToken(userID int64, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueSession creates an access token plus a fresh refresh token. The
// returned hash is what the caller must persist for the refresh token.
func (s *TokenService) IssueSession(userID int64, email string) (*Session, string, error) {
	token, validTo, err := s.IssueAccessToken(userID, email)
	if err != nil {
		return nil, "", err
	}
	refresh, hash, err := s.refresh.Generate()
	if err != nil {
		return nil, "", err
	}
	return &Session{
		Token:                  token,
		RefreshToken:           refresh,
		ValidTo:                validTo,
		RefreshTokenExpiryTime: s.now().Add(s.refreshTTL),
	}, hash, nil
}

// HashRefreshToken returns the lookup hash of a refresh token after
// checking its format.
func (s *TokenService) HashRefreshToken(token string) (string, error) {
	if err := s.refresh.ValidateFormat(token); err != nil {
		return "", apperror.Wrap(apperror.KindAuthentication, err, "invalid refresh token")
	}
	return s.refresh.Hash(token), nil
}

// ParseAccessToken verifies the token and returns the user id it was
// issued for.
func (s *TokenService) ParseAccessToken(token string) (int64, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperror.Authentication("access token expired")
		}
		return 0, apperror.Wrap(apperror.KindAuthentication, err, "invalid access token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperror.Authentication("invalid access token subject")
	}
	return userID, nil
}
