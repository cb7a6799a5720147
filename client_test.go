package fundauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuskit/fundauth/credential"
)

func mintAccessToken(t *testing.T, sub, role, name string, mustChange bool) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                  sub,
		"role":                 role,
		"name":                 name,
		"must_change_password": mustChange,
		"exp":                  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("server-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type clientFixture struct {
	client *Client
	store  credential.Store
	server *httptest.Server

	mu     sync.Mutex
	events []Event
}

func (f *clientFixture) recordedEvents() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func newClientFixture(t *testing.T, handler http.Handler, mutate func(*Builder)) *clientFixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := &clientFixture{
		store:  credential.NewMemoryStore(0),
		server: server,
	}

	builder := New().
		WithBaseURL(server.URL).
		WithStore(f.store).
		WithSessionEndHandler(func(e Event) {
			f.mu.Lock()
			f.events = append(f.events, e)
			f.mu.Unlock()
		})
	if mutate != nil {
		mutate(builder)
	}

	client, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f.client = client
	return f
}

func loginHandler(t *testing.T, accessToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identifier string `json:"identifier"`
			Secret     string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("undecodable login payload: %v", err)
		}
		if req.Secret != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": "refresh-1",
			"expires_in":    int64(3600),
		})
	}
}

func TestClientLoginSuccess(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))

	f := newClientFixture(t, mux, nil)

	result, err := f.client.Login(context.Background(), "dana", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.User.ID != "user-7" || result.User.Role != "treasurer" {
		t.Fatalf("unexpected profile: %+v", result.User)
	}
	if result.MustChangePassword {
		t.Fatalf("unexpected forced password change")
	}

	state := f.client.State()
	if !state.Authenticated || state.Loading {
		t.Fatalf("unexpected state after login: %+v", state)
	}
	if state.User == nil || state.User.DisplayName != "Dana Reyes" {
		t.Fatalf("profile not exposed in state: %+v", state.User)
	}

	pair, ok := f.store.Credentials(context.Background())
	if !ok || pair.AccessToken != access || pair.RefreshToken != "refresh-1" {
		t.Fatalf("credentials not stored: ok=%v %+v", ok, pair)
	}
	if got := f.client.MetricsSnapshot(); got.Counters != nil {
		// Metrics are off by default; the snapshot must still be usable.
		if got.Counters[MetricLoginSuccess] != 0 {
			t.Fatalf("counter recorded with metrics disabled")
		}
	}
}

func TestClientLoginMustChangePassword(t *testing.T) {
	access := mintAccessToken(t, "user-9", "principal", "Lee Cruz", true)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))

	f := newClientFixture(t, mux, nil)

	result, err := f.client.Login(context.Background(), "lee", "correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MustChangePassword {
		t.Fatalf("forced password change flag lost")
	}
}

func TestClientLoginBadCredentials(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))

	f := newClientFixture(t, mux, nil)

	_, err := f.client.Login(context.Background(), "dana", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	state := f.client.State()
	if state.Authenticated {
		t.Fatalf("authenticated after failed login")
	}
	if state.Loading {
		t.Fatalf("loading stuck after failed login")
	}
	if _, ok := f.store.Credentials(context.Background()); ok {
		t.Fatalf("credentials stored after failed login")
	}
	if len(f.recordedEvents()) != 0 {
		t.Fatalf("failed login published a session event")
	}
}

func TestClientLoginEmptyTokenResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	f := newClientFixture(t, mux, nil)

	_, err := f.client.Login(context.Background(), "dana", "correct-horse")
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
	if f.client.State().Loading {
		t.Fatalf("loading stuck after malformed response")
	}
}

func TestClientRestoresStoredSession(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	store := credential.NewMemoryStore(0)
	if err := store.SetCredentials(context.Background(), access, "refresh-1", time.Hour); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	server := httptest.NewServer(http.NewServeMux())
	t.Cleanup(server.Close)

	client, err := New().WithBaseURL(server.URL).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	state := client.State()
	if !state.Authenticated {
		t.Fatalf("stored session not restored")
	}
	if state.Loading {
		t.Fatalf("loading stuck after restore")
	}
	if state.User == nil || state.User.ID != "user-7" {
		t.Fatalf("restored profile wrong: %+v", state.User)
	}
}

func TestClientRestoreClearsUndecodableToken(t *testing.T) {
	store := credential.NewMemoryStore(0)
	if err := store.SetCredentials(context.Background(), "not-a-jwt", "refresh-1", time.Hour); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	server := httptest.NewServer(http.NewServeMux())
	t.Cleanup(server.Close)

	client, err := New().WithBaseURL(server.URL).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if client.State().Authenticated {
		t.Fatalf("authenticated from an undecodable token")
	}
	if _, ok := store.Credentials(context.Background()); ok {
		t.Fatalf("undecodable credential not cleared")
	}
}

func TestClientRestoreDoesNotAnnounceLogout(t *testing.T) {
	// An expired stored pair must restore to "not signed in" silently: the
	// bus is not ready until Build finishes, so no logout modal can appear
	// on a fresh start.
	store := credential.NewMemoryStore(0)
	if err := store.SetCredentials(context.Background(), "stale", "refresh-1", -time.Hour); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	server := httptest.NewServer(http.NewServeMux())
	t.Cleanup(server.Close)

	var events []Event
	client, err := New().
		WithBaseURL(server.URL).
		WithStore(store).
		WithSessionEndHandler(func(e Event) { events = append(events, e) }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if client.State().Authenticated {
		t.Fatalf("authenticated from an expired pair")
	}
	if len(events) != 0 {
		t.Fatalf("restore published events: %+v", events)
	}
	if !client.Bus().Ready() {
		t.Fatalf("bus not ready after Build")
	}
}

func TestClientLogout(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	var mu sync.Mutex
	var logoutCalls int
	var logoutAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		logoutCalls++
		logoutAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	f := newClientFixture(t, mux, nil)

	if _, err := f.client.Login(context.Background(), "dana", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	f.client.Logout(context.Background())

	mu.Lock()
	calls, auth := logoutCalls, logoutAuth
	mu.Unlock()
	if calls != 1 {
		t.Fatalf("server logout called %d times, want 1", calls)
	}
	if auth != "Bearer "+access {
		t.Fatalf("logout call missing bearer token: %q", auth)
	}

	if f.client.State().Authenticated {
		t.Fatalf("authenticated after logout")
	}
	if _, ok := f.store.Credentials(context.Background()); ok {
		t.Fatalf("credentials survived logout")
	}

	events := f.recordedEvents()
	if len(events) != 1 || events[0].Reason != ReasonManual {
		t.Fatalf("expected one manual event, got %+v", events)
	}

	last, ok := f.client.LastEvent()
	if !ok || last.Reason != ReasonManual {
		t.Fatalf("last event not recorded: %+v ok=%v", last, ok)
	}
}

func TestClientLogoutWorksWhenServerDown(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f := newClientFixture(t, mux, nil)

	if _, err := f.client.Login(context.Background(), "dana", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	f.client.Logout(context.Background())

	if f.client.State().Authenticated {
		t.Fatalf("authenticated after logout with failing server")
	}
	if _, ok := f.store.Credentials(context.Background()); ok {
		t.Fatalf("credentials survived logout with failing server")
	}
}

func TestClientChangePassword(t *testing.T) {
	oldAccess := mintAccessToken(t, "user-9", "principal", "Lee Cruz", true)
	newAccess := mintAccessToken(t, "user-9", "principal", "Lee Cruz", false)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, oldAccess))
	mux.HandleFunc("/auth/password", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.OldPassword != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": newAccess,
			"expires_in":   int64(3600),
		})
	})

	f := newClientFixture(t, mux, nil)

	if _, err := f.client.Login(context.Background(), "lee", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !f.client.State().User.MustChangePassword {
		t.Fatalf("expected forced-change flag before rotation")
	}

	if err := f.client.ChangePassword(context.Background(), "correct-horse", "new-secret"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	pair, ok := f.store.Credentials(context.Background())
	if !ok {
		t.Fatalf("credentials missing after password change")
	}
	if pair.AccessToken != newAccess {
		t.Fatalf("access token not rotated")
	}
	if pair.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token changed by password rotation: %q", pair.RefreshToken)
	}
	if f.client.State().User.MustChangePassword {
		t.Fatalf("forced-change flag not cleared by the new token")
	}
}

func TestClientChangePasswordValidation(t *testing.T) {
	f := newClientFixture(t, http.NewServeMux(), nil)

	if err := f.client.ChangePassword(context.Background(), "", "new"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := f.client.ChangePassword(context.Background(), "old", "new"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestClientSessionEndsOnRenewalFailure(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid refresh token"}`))
	})
	mux.HandleFunc("/api/requests", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	f := newClientFixture(t, mux, nil)

	if _, err := f.client.Login(context.Background(), "dana", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/requests", nil)
	_, err := f.client.HTTPClient().Do(req)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired through the client, got %v", err)
	}

	if f.client.State().Authenticated {
		t.Fatalf("authenticated after terminal renewal failure")
	}
	events := f.recordedEvents()
	if len(events) != 1 || events[0].Reason != ReasonTokenExpired {
		t.Fatalf("expected one token_expired event, got %+v", events)
	}
}

func TestClientIdleTimeoutEndsSession(t *testing.T) {
	access := mintAccessToken(t, "user-7", "treasurer", "Dana Reyes", false)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginHandler(t, access))
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f := newClientFixture(t, mux, func(b *Builder) {
		baseURL := b.config.API.BaseURL
		cfg := defaultConfig()
		cfg.Idle = IdleConfig{
			Enabled:    true,
			Timeout:    80 * time.Millisecond,
			GraceDelay: -1,
		}
		b.WithConfig(cfg)
		// WithConfig replaced the base URL; set it again.
		b.WithBaseURL(baseURL)
	})

	if _, err := f.client.Login(context.Background(), "dana", "correct-horse"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !f.client.State().Authenticated {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if f.client.State().Authenticated {
		t.Fatalf("session survived idle timeout")
	}
	events := f.recordedEvents()
	if len(events) != 1 || events[0].Reason != ReasonInactivity {
		t.Fatalf("expected one inactivity event, got %+v", events)
	}
	if _, ok := f.store.Credentials(context.Background()); ok {
		t.Fatalf("credentials survived idle timeout")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	builder := New().WithBaseURL("http://localhost:9")
	if _, err := builder.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := builder.Build(); err == nil {
		t.Fatalf("second Build succeeded")
	}
}

func TestBuilderValidatesConfig(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatalf("Build succeeded without a base URL")
	}

	cfg := defaultConfig()
	cfg.API.BaseURL = "http://localhost:9"
	cfg.API.RequestTimeout = 0
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatalf("Build succeeded with a zero request timeout")
	}

	cfg = defaultConfig()
	cfg.API.BaseURL = "http://localhost:9"
	cfg.Idle.Enabled = true
	cfg.Idle.Timeout = 0
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatalf("Build succeeded with idle enabled and no timeout")
	}
}
