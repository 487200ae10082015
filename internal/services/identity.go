package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/idtoken"
)

// Identity is the verified owner of a sign-in token
type Identity struct {
	Email        string
	Name         string
	HostedDomain string
}

// IdentityVerifier turns a client sign-in token into a verified identity
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// GoogleConfig holds the OAuth client the app's ID tokens are issued to.
// An empty HostedDomain accepts any Google account.
type GoogleConfig struct {
	ClientID     string
	HostedDomain string
}

// GoogleVerifier checks Google ID tokens against the app's client ID and
// the allowed Workspace domain
type GoogleVerifier struct {
	clientID string
	domain   string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier creates a verifier backed by Google's published signing keys
func NewGoogleVerifier(cfg GoogleConfig) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: cfg.ClientID,
		domain:   strings.ToLower(cfg.HostedDomain),
		validate: idtoken.Validate,
	}
}

// Verify validates token and returns the identity it was issued for
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, invalid("token cannot be empty")
	}

	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		log.Info().Err(err).Msg("Rejected Google ID token")
		return nil, withStatus(http.StatusUnauthorized, newError(ErrForbidden, "Invalid ID token."))
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" || !verified {
		return nil, withStatus(http.StatusUnauthorized, newError(ErrForbidden, "ID token carries no verified email."))
	}

	hd, _ := payload.Claims["hd"].(string)
	if v.domain != "" && strings.ToLower(hd) != v.domain {
		log.Info().Str("hd", hd).Msg("Rejected ID token from foreign domain")
		return nil, newError(ErrForbidden, "Invalid domain.")
	}

	name, _ := payload.Claims["name"].(string)
	return &Identity{
		Email:        strings.ToLower(email),
		Name:         name,
		HostedDomain: hd,
	}, nil
}
