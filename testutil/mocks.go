// Package testutil holds test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests map[string]int
	bans     []BanCall
}

// BanCall is one recorded POST /helix/moderation/bans.
type BanCall struct {
	BroadcasterID string
	ModeratorID   string
	UserID        string
	Duration      int64
	Reason        string
	Authorization string
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.requests[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand to a HelixClient.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// Requests returns how many times path was requested.
func (m *MockTwitchServer) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// Bans returns the recorded ban calls.
func (m *MockTwitchServer) Bans() []BanCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BanCall(nil), m.bans...)
}

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// MockUsers adds a handler for /helix/users resolving login -> id.
func (m *MockTwitchServer) MockUsers(ids map[string]string) {
	m.handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		if id, ok := ids[r.URL.Query().Get("login")]; ok {
			data = append(data, map[string]string{"id": id, "login": r.URL.Query().Get("login")})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data}) //nolint:errcheck // test mock response
	})
}

// MockBans adds a handler for /helix/moderation/bans answering with status.
func (m *MockTwitchServer) MockBans(status int) {
	m.handle("/helix/moderation/bans", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				UserID   string `json:"user_id"`
				Duration int64  `json:"duration"`
				Reason   string `json:"reason"`
			} `json:"data"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		m.mu.Lock()
		m.bans = append(m.bans, BanCall{
			BroadcasterID: r.URL.Query().Get("broadcaster_id"),
			ModeratorID:   r.URL.Query().Get("moderator_id"),
			UserID:        body.Data.UserID,
			Duration:      body.Data.Duration,
			Reason:        body.Data.Reason,
			Authorization: r.Header.Get("Authorization"),
		})
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{{"user_id": body.Data.UserID}}}) //nolint:errcheck // test mock response
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": http.StatusText(status), "status": status, "message": "mock failure"}) //nolint:errcheck // test mock response
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	})
}
