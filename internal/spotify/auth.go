package spotify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"setlist/internal/core"
)

var errNoVerifier = errors.New("no pending authorization, call AuthURL first")

// Authenticator runs the authorization-code flow with PKCE.
type Authenticator struct {
	auth   *spotifyauth.Authenticator
	logger *zap.Logger

	mu       sync.Mutex
	verifier string
}

func NewAuthenticator(config *core.SpotifyConfig, logger *zap.Logger) *Authenticator {
	opts := []spotifyauth.AuthenticatorOption{
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserReadPrivate,
		),
		spotifyauth.WithClientID(config.ClientID),
	}
	if config.ClientSecret != "" {
		opts = append(opts, spotifyauth.WithClientSecret(config.ClientSecret))
	}

	return &Authenticator{
		auth:   spotifyauth.New(opts...),
		logger: logger.Named("auth"),
	}
}

// AuthURL returns the consent page URL and remembers the PKCE verifier for Exchange.
func (a *Authenticator) AuthURL(state string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.verifier = oauth2.GenerateVerifier()
	return a.auth.AuthURL(state, oauth2.S256ChallengeOption(a.verifier))
}

// Exchange trades the authorization code for a token pair.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	a.mu.Lock()
	verifier := a.verifier
	a.mu.Unlock()

	if verifier == "" {
		return nil, errNoVerifier
	}

	token, err := a.auth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	a.mu.Lock()
	a.verifier = ""
	a.mu.Unlock()

	a.logger.Info("Authorization completed", zap.Time("expiry", token.Expiry))
	return token, nil
}

// Refresh trades a refresh token for a fresh access token. Implements Refresher.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, core.ErrNoRefreshToken
	}

	// An expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Minute)}
	token, err := a.auth.RefreshToken(ctx, stale)
	if err != nil {
		return nil, err
	}
	return token, nil
}
