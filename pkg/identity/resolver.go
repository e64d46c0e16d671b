package identity

import (
	"context"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/apperror"
)

// Resolver derives an Identity from a bearer token.
type Resolver struct {
	tokens   *TokenService
	accounts AccountSource
	idTokens IDTokenVerifier
}

// NewResolver creates a resolver. idTokens may be nil to accept only
// crmgate access tokens.
func NewResolver(tokens *TokenService, accounts AccountSource, idTokens IDTokenVerifier) *Resolver {
	return &Resolver{
		tokens:   tokens,
		accounts: accounts,
		idTokens: idTokens,
	}
}

// Resolve verifies the bearer token and loads the caller's current role,
// tenant and manager. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Identity{}, apperror.Authentication("missing bearer token")
	}

	userID, tokenErr := r.tokens.ParseAccessToken(bearer)
	if tokenErr == nil {
		return r.resolveAccount(r.accounts.AccountByID(ctx, userID))
	}

	if r.idTokens == nil {
		return Identity{}, tokenErr
	}
	email, err := r.idTokens.VerifyEmail(ctx, bearer)
	if err != nil {
		return Identity{}, tokenErr
	}
	return r.resolveAccount(r.accounts.AccountByEmail(ctx, email))
}

// ResolveUser builds the identity of a known user id, for flows that have
// already authenticated the user (login, refresh).
func (r *Resolver) ResolveUser(ctx context.Context, userID int64) (Identity, error) {
	return r.resolveAccount(r.accounts.AccountByID(ctx, userID))
}

func (r *Resolver) resolveAccount(acc *Account, err error) (Identity, error) {
	if err != nil {
		if apperror.IsNotFound(err) {
			return Identity{}, apperror.Authentication("account no longer exists")
		}
		return Identity{}, err
	}
	return FromAccount(acc)
}
