package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// googleUserInfoEndpoint is Google's OIDC userinfo endpoint, queried after
// code exchange to recover the caller's email and whether Google has
// verified it.
const googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider drives the authorization-code + PKCE flow against Google's
// OAuth endpoints: building the authorize URL, exchanging the returned code
// for a token, and fetching the account's userinfo.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGoogleProvider constructs a GoogleProvider. Returns an error if any
// required credential is missing.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("session: google oauth client id, secret, and redirect url are required")
	}
	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		httpClient: http.DefaultClient,
	}, nil
}

// pkcePair is a PKCE code verifier and its S256 challenge.
type pkcePair struct {
	verifier  string
	challenge string
}

func newPKCEPair() (pkcePair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return pkcePair{}, fmt.Errorf("session: generating pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return pkcePair{verifier: verifier, challenge: challenge}, nil
}

func newOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session: generating oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AuthorizeURL is the state+PKCE pair together with the URL a caller should
// redirect the end user's browser to.
type AuthorizeURL struct {
	State string
	URL   string
}

// authorizeURL builds a Google authorize URL using PKCE, returning the
// verifier alongside it so the caller can stash it under state.
func (p *GoogleProvider) authorizeURL() (AuthorizeURL, pkcePair, error) {
	state, err := newOAuthState()
	if err != nil {
		return AuthorizeURL{}, pkcePair{}, err
	}
	pair, err := newPKCEPair()
	if err != nil {
		return AuthorizeURL{}, pkcePair{}, err
	}

	url := p.oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pair.challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.AccessTypeOnline,
	)
	return AuthorizeURL{State: state, URL: url}, pair, nil
}

// googleUserInfo is the subset of Google's userinfo response this package
// consumes for account linking.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// exchangeCode trades an authorization code (plus its PKCE verifier) for a
// token, then fetches the associated userinfo.
func (p *GoogleProvider) exchangeCode(ctx context.Context, code, pkceVerifier string) (googleUserInfo, error) {
	token, err := p.oauthConfig.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkceVerifier),
	)
	if err != nil {
		return googleUserInfo{}, fmt.Errorf("session: exchanging google authorization code: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoEndpoint, nil)
	if err != nil {
		return googleUserInfo{}, fmt.Errorf("session: building google userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return googleUserInfo{}, fmt.Errorf("session: fetching google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return googleUserInfo{}, fmt.Errorf("session: google userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, fmt.Errorf("session: decoding google userinfo: %w", err)
	}
	if info.Sub == "" {
		return googleUserInfo{}, fmt.Errorf("session: google userinfo missing subject")
	}
	return info, nil
}
