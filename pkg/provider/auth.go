package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/hollis-aero/fleetwatch/pkg/ferrors"
)

// authMode selects how requests are authenticated, per spec §4.4: OAuth2
// client-credentials is preferred over legacy HTTP basic auth when both
// are configured; anonymous mode is used when neither is.
type authMode int

const (
	authAnonymous authMode = iota
	authBasic
	authOAuth2
)

// authenticator attaches credentials to outbound requests.
type authenticator struct {
	mode authMode

	// basic
	username string
	password string

	// oauth2 client-credentials
	ccConfig clientcredentials.Config

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// newAuthenticator picks the authentication mode from cfg, preferring
// OAuth2 over basic auth when both are present.
func newAuthenticator(cfg Config) *authenticator {
	switch {
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		return &authenticator{
			mode: authOAuth2,
			ccConfig: clientcredentials.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenURL:     cfg.TokenURL,
			},
		}
	case cfg.Username != "" && cfg.Password != "":
		return &authenticator{mode: authBasic, username: cfg.Username, password: cfg.Password}
	default:
		return &authenticator{mode: authAnonymous}
	}
}

// applyAuth sets the Authorization header (or none, in anonymous mode).
func (a *authenticator) applyAuth(ctx context.Context, req httpRequest) error {
	switch a.mode {
	case authBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(a.username + ":" + a.password))
		req.SetHeader("Authorization", "Basic "+creds)
		return nil
	case authOAuth2:
		tok, err := a.bearerToken(ctx)
		if err != nil {
			return err
		}
		req.SetHeader("Authorization", "Bearer "+tok)
		return nil
	default:
		return nil
	}
}

// bearerToken returns a cached access token, refreshing it 60 seconds
// before expiry (spec §4.4). Refresh failure is surfaced as an
// *ferrors.AuthError.
func (a *authenticator) bearerToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Add(60*time.Second).Before(a.expiresAt) {
		return a.token, nil
	}

	tok, err := a.ccConfig.Token(ctx)
	if err != nil {
		return "", &ferrors.AuthError{Msg: fmt.Sprintf("token refresh failed: %v", err), Err: err}
	}

	a.token = tok.AccessToken
	if tok.Expiry.IsZero() {
		a.expiresAt = time.Now().Add(time.Hour)
	} else {
		a.expiresAt = tok.Expiry
	}
	return a.token, nil
}

// httpRequest is the minimal surface applyAuth needs, satisfied by
// *http.Request; kept as an interface so auth logic is testable without
// constructing a real request.
type httpRequest interface {
	SetHeader(key, value string)
}
