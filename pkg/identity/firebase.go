package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/crmgate/pkg/apperror"
)

// FirebaseIssuerPrefix is the issuer of Firebase ID tokens; the project id
// is appended.
const FirebaseIssuerPrefix = "https://securetoken.google.com/"

// IDTokenVerifier verifies a raw ID token and returns the verified email.
type IDTokenVerifier interface {
	VerifyEmail(ctx context.Context, rawIDToken string) (string, error)
}

// FirebaseVerifier verifies Firebase ID tokens through OIDC discovery.
type FirebaseVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewFirebaseVerifier discovers the Firebase issuer for projectID.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}

	provider, err := oidc.NewProvider(ctx, FirebaseIssuerPrefix+projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to discover firebase issuer: %w", err)
	}

	return &FirebaseVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: projectID}),
	}, nil
}

// NewFirebaseVerifierWithKeys builds a verifier from an explicit key set,
// skipping discovery.
func NewFirebaseVerifierWithKeys(projectID string, keys oidc.KeySet) *FirebaseVerifier {
	return &FirebaseVerifier{
		verifier: oidc.NewVerifier(FirebaseIssuerPrefix+projectID, keys, &oidc.Config{ClientID: projectID}),
	}
}

type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// VerifyEmail verifies the token signature, audience and expiry and returns
// the token's verified email address.
func (v *FirebaseVerifier) VerifyEmail(ctx context.Context, rawIDToken string) (string, error) {
	token, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", apperror.Wrap(apperror.KindAuthentication, err, "invalid firebase id token")
	}

	var claims firebaseClaims
	if err := token.Claims(&claims); err != nil {
		return "", apperror.Wrap(apperror.KindAuthentication, err, "failed to parse firebase claims")
	}
	if claims.Email == "" || !claims.EmailVerified {
		return "", apperror.Authentication("firebase token has no verified email")
	}
	return strings.ToLower(claims.Email), nil
}
