package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cosflow/cosflow-web/billing"
	"github.com/cosflow/cosflow-web/internal/config"
	"github.com/cosflow/cosflow-web/server"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/stretchr/testify/require"
)

const (
	testEmail         = "cos@example.com"
	testPassword      = "hunter22"
	testAccessToken   = "access-1"
	testRefreshToken  = "refresh-1"
	testWebhookSecret = "whsec_test"
	testSyncSecret    = "sync-secret"
)

type testConfig struct {
	config.Config
	upstreamURL    string
	loginRate      int
	trustedProxies string
}

func (c testConfig) GetEnv() string                  { return "TEST" }
func (c testConfig) GetBaseURL() string              { return "https://cosflow.test" }
func (c testConfig) GetUpstreamBaseURL() string      { return c.upstreamURL }
func (c testConfig) GetLoginRateLimitPerMinute() int { return c.loginRate }
func (c testConfig) GetSecureCookies() bool          { return false }

func (c testConfig) GetTrustedProxies() config.TrustedProxies {
	return config.ParseTrustedProxies(c.trustedProxies)
}

// fakeUpstream plays the Laravel API. Resource routes answer with resourceStatus/resourceBody
// and record the last request they saw.
type fakeUpstream struct {
	mu             sync.Mutex
	resourceStatus int
	resourceBody   string
	lastRequest    *http.Request
	lastBody       string
	logoutStatus   int
	userStatus     int
	refreshValid   string
	elements       string
	syncCalls      atomic.Int32
	lastSync       upstream.SubscriptionSync
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		resourceStatus: http.StatusOK,
		resourceBody:   `{"data":[{"id":1,"name":"Frieren"}]}`,
		logoutStatus:   http.StatusOK,
		refreshValid:   testRefreshToken,
		elements: `{"data":[
			{"id":1,"project_id":9,"parent_id":null,"name":"Wig","price":"12.00"},
			{"id":2,"project_id":9,"parent_id":null,"name":"Staff","price":12},
			{"id":3,"project_id":9,"parent_id":null,"name":"Robe","price":100},
			{"id":4,"project_id":9,"parent_id":3,"name":"Fabric","price":60},
			{"id":5,"project_id":9,"parent_id":3,"name":"Trim","price":40}
		]}`,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeUpstream) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+testAccessToken
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+upstream.PathToken, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("username") != testEmail || r.PostForm.Get("password") != testPassword {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":   "invalid_grant",
					"message": "The user credentials were incorrect.",
				})
				return
			}
		case "refresh_token":
			f.mu.Lock()
			valid := f.refreshValid
			f.mu.Unlock()
			if r.PostForm.Get("refresh_token") != valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant", "message": "The refresh token is invalid."})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token_type":    "Bearer",
			"expires_in":    3600,
			"access_token":  testAccessToken,
			"refresh_token": testRefreshToken,
		})
	})
	mux.HandleFunc("GET "+upstream.PathUser, func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}
		f.mu.Lock()
		status := f.userStatus
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": "Server Error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": 7, "name": "Cos", "email": testEmail, "is_premium": false}})
	})
	mux.HandleFunc("POST "+upstream.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.logoutStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("POST "+upstream.PathSubscriptionSync, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Webhook-Secret") != testSyncSecret {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var sync upstream.SubscriptionSync
		_ = json.NewDecoder(r.Body).Decode(&sync)
		f.mu.Lock()
		f.lastSync = sync
		f.mu.Unlock()
		f.syncCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v2/projects/{id}/elements", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}
		f.mu.Lock()
		body := f.elements
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("GET /api/v2/public/projects/{id}/elements", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body := f.elements
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("GET /api/v2/timesheets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": 1, "project_id": 9, "started_at": "2026-01-01T10:00:00Z", "duration_minutes": 90},
		}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastRequest = r.Clone(r.Context())
		f.lastBody = string(body)
		status, respBody := f.resourceStatus, f.resourceBody
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	})
	return mux
}

func (f *fakeUpstream) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resourceStatus = status
	f.resourceBody = body
}

func (f *fakeUpstream) seen() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest, f.lastBody
}

type testEnv struct {
	server   *server.Server
	upstream *fakeUpstream
	url      string
}

type envOption func(*testConfig)

func withLoginRate(perMinute int) envOption {
	return func(c *testConfig) { c.loginRate = perMinute }
}

func withTrustedProxies(list string) envOption {
	return func(c *testConfig) { c.trustedProxies = list }
}

func withUpstreamURL(u string) envOption {
	return func(c *testConfig) { c.upstreamURL = u }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	fake := newFakeUpstream()
	upstreamSrv := httptest.NewServer(fake.handler())
	t.Cleanup(upstreamSrv.Close)

	cfg := testConfig{Config: config.New(), upstreamURL: upstreamSrv.URL, loginRate: 1000}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := upstream.New(cfg, upstream.WithHTTPClient(upstreamSrv.Client()), upstream.WithWebhookSecret(testSyncSecret))
	webhook := billing.NewWebhook(testWebhookSecret, nil, client, billing.NewMemoryEventStore(), false)

	srv, err := server.New(cfg, server.Deps{Upstream: client, Webhook: webhook})
	require.NoError(t, err)
	return &testEnv{server: srv, upstream: fake, url: upstreamSrv.URL}
}

// do serves one request through the gateway.
func (e *testEnv) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func accessCookie() *http.Cookie {
	return &http.Cookie{Name: "access_token", Value: testAccessToken}
}

func refreshCookie() *http.Cookie {
	return &http.Cookie{Name: "refresh_token", Value: testRefreshToken}
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
