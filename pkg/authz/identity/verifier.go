// Package identity turns bearer tokens into authz actors. It is the identity
// source at the edge of the core: the core itself never inspects credentials.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/agily/omicron/pkg/authz"
	oidc "github.com/coreos/go-oidc"
)

//go:generate counterfeiter . OIDCProvider

type OIDCProvider interface {
	Verifier(config *oidc.Config) *oidc.IDTokenVerifier
}

// Verifier validates OIDC ID tokens and produces actors. A request without a
// token yields the anonymous actor; a request with an invalid token is an
// error, never silently anonymous.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewVerifier(provider OIDCProvider, clientID string) *Verifier {
	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}
}

// ActorFromToken verifies the raw ID token and returns the authenticated
// actor it names: subject as ID, issuer as namespace.
func (v *Verifier) ActorFromToken(ctx context.Context, rawToken string) (authz.Actor, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return authz.Anonymous, err
	}

	return authz.Actor{
		ID:        idToken.Subject,
		Namespace: idToken.Issuer,
	}, nil
}

// ActorFromRequest extracts the Authorization bearer token, if any. No token
// means the anonymous actor and no error.
func (v *Verifier) ActorFromRequest(r *http.Request) (authz.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return authz.Anonymous, nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == "" {
		return authz.Anonymous, nil
	}

	return v.ActorFromToken(r.Context(), token)
}
