// Package twitchapi contains minimal helpers for the Twitch Helix APIs the bot
// needs: resolving logins to user ids and timing users out of a channel.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const (
	userIDCacheSize = 4096
	maxReasonLen    = 500
)

// ErrUserNotFound is returned when a login does not resolve to a user.
var ErrUserNotFound = errors.New("user not found")

// TokenProvider yields a bearer token for Helix requests.
type TokenProvider interface {
	Get(ctx context.Context) (string, error)
}

// HelixClient provides the Helix calls used for moderation.
type HelixClient struct {
	ClientID string
	// UserTokens authorizes moderation calls; the token must belong to the moderator.
	UserTokens TokenProvider
	// LookupTokens authorizes user lookups. Nil falls back to UserTokens.
	LookupTokens TokenProvider
	BaseURL      string
	HTTPClient   *http.Client

	idsOnce sync.Once
	ids     *lru.Cache[string, string]
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) url(path string) string {
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + path
}

func (hc *HelixClient) cache() *lru.Cache[string, string] {
	hc.idsOnce.Do(func() {
		// only fails for a non-positive size
		hc.ids, _ = lru.New[string, string](userIDCacheSize)
	})
	return hc.ids
}

// GetUserID resolves a login name to its user ID. Results are cached.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	login = strings.ToLower(login)
	if id, ok := hc.cache().Get(login); ok {
		return id, nil
	}
	tokens := hc.LookupTokens
	if tokens == nil {
		tokens = hc.UserTokens
	}
	tok, err := tokens.Get(ctx)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.url("/users"), nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	hc.authorize(req, tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", statusError("get users", resp)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("%s: %w", login, ErrUserNotFound)
	}
	hc.cache().Add(login, body.Data[0].ID)
	return body.Data[0].ID, nil
}

// BanRequest times a user out of a channel. A zero Duration is a permanent ban.
type BanRequest struct {
	Channel   string
	Moderator string
	User      string
	Duration  time.Duration
	Reason    string
}

// Ban issues POST /moderation/bans for the request.
func (hc *HelixClient) Ban(ctx context.Context, br BanRequest) error {
	broadcasterID, err := hc.GetUserID(ctx, br.Channel)
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}
	moderatorID, err := hc.GetUserID(ctx, br.Moderator)
	if err != nil {
		return fmt.Errorf("resolve moderator: %w", err)
	}
	userID, err := hc.GetUserID(ctx, br.User)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	tok, err := hc.UserTokens.Get(ctx)
	if err != nil {
		return err
	}

	reason := truncateRunes(br.Reason, maxReasonLen)
	type banData struct {
		UserID   string `json:"user_id"`
		Duration int64  `json:"duration,omitempty"`
		Reason   string `json:"reason,omitempty"`
	}
	payload, err := json.Marshal(struct {
		Data banData `json:"data"`
	}{Data: banData{UserID: userID, Duration: int64(br.Duration / time.Second), Reason: reason}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.url("/moderation/bans"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")
	hc.authorize(req, tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError("ban", resp)
	}
	return nil
}

func (hc *HelixClient) authorize(req *http.Request, tok string) {
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("helix %s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(b)))
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
