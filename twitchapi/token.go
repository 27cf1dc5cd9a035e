package twitchapi

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the Twitch OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// refreshMargin is how long before expiry a cached app token is replaced.
const refreshMargin = time.Minute

// ErrMissingCredentials is returned by AppToken without a client id or secret.
var ErrMissingCredentials = errors.New("twitch app token needs a client id and secret")

// StaticToken is a fixed user access token. An "oauth:" prefix, as used for IRC
// login, is stripped.
type StaticToken string

// Get returns the token without its IRC prefix.
func (s StaticToken) Get(context.Context) (string, error) {
	tok := strings.TrimPrefix(string(s), "oauth:")
	if tok == "" {
		return "", errors.New("empty user token")
	}
	return tok, nil
}

// AppToken provides client-credentials tokens for user lookups. App tokens
// cannot moderate, so removals always use the bot's StaticToken.
type AppToken struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client

	mu      sync.Mutex
	cached  string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Get returns the cached token, fetching a new one when it is near expiry.
func (a *AppToken) Get(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != "" && time.Until(a.expires) > refreshMargin {
		return a.cached, nil
	}
	tok, ttl, err := a.fetch(ctx)
	if err != nil {
		return "", err
	}
	a.cached, a.expires = tok, time.Now().Add(ttl)
	return tok, nil
}

func (a *AppToken) fetch(ctx context.Context) (string, time.Duration, error) {
	if a.ClientID == "" || a.ClientSecret == "" {
		return "", 0, ErrMissingCredentials
	}
	form := url.Values{
		"client_id":     {a.ClientID},
		"client_secret": {a.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cmp.Or(a.TokenURL, DefaultTokenURL), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := a.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", 0, statusError("app token", resp)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, err
	}
	if tr.AccessToken == "" {
		return "", 0, errors.New("twitch returned an empty access_token")
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
