package apiclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/identity"
)

// SessionToken converts a session to an oauth2 token
func SessionToken(s *identity.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.Token,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ValidTo,
	}
}

// refresher exchanges the current refresh token for a new session. It is
// only consulted by oauth2.ReuseTokenSource once the cached token expired.
type refresher struct {
	client    *Client
	mu        sync.Mutex
	session   *identity.Session
	onRefresh func(*identity.Session)
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.RefreshToken == "" || time.Now().After(r.session.RefreshTokenExpiryTime) {
		return nil, apperror.Authentication("session expired, log in again")
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.client.http.Timeout)
	defer cancel()

	next, err := r.client.Refresh(ctx, r.session.RefreshToken)
	if err != nil {
		return nil, err
	}
	r.session = next
	if r.onRefresh != nil {
		r.onRefresh(next)
	}
	return SessionToken(next), nil
}

// NewSessionTokenSource returns a token source that serves the session's
// access token and rotates it through /api/User/Refresh once it expires.
// onRefresh, if set, receives every rotated session so it can be persisted.
// unauthenticated must not itself use the returned source.
func NewSessionTokenSource(unauthenticated *Client, session *identity.Session, onRefresh func(*identity.Session)) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(SessionToken(session), &refresher{
		client:    unauthenticated,
		session:   session,
		onRefresh: onRefresh,
	})
}
