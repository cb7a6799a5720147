package fundauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campuskit/fundauth/claims"
	"github.com/campuskit/fundauth/credential"
	"github.com/campuskit/fundauth/internal/api"
)

// State is the authoritative in-memory session view exposed to the rest of
// the application. Loading resolves to false on every code path, including
// construction-time restore — no error class may leave it stuck.
type State struct {
	Authenticated bool
	Loading       bool
	User          *claims.Profile
}

// LoginResult reports a successful credential exchange. When
// MustChangePassword is set the application should route to the password
// form instead of the default view.
type LoginResult struct {
	User               *claims.Profile
	MustChangePassword bool
}

// Client is the single stateful owner of "is this user logged in, and as
// whom". It calls the authentication endpoints directly (renewal-suppressed
// paths) and routes everything else through the coordinating [Transport].
type Client struct {
	cfg          Config
	store        credential.Store
	bus          *Bus
	transport    *Transport
	http         *http.Client
	idle         *IdleMonitor
	metrics      *Metrics
	logger       zerolog.Logger
	onSessionEnd func(Event)
	sub          Subscription

	mu        sync.Mutex
	state     State
	lastEvent *Event
}

// State returns a point-in-time copy of the session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastEvent returns the most recent session-ending event observed, if any.
func (c *Client) LastEvent() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastEvent == nil {
		return Event{}, false
	}
	return *c.lastEvent, true
}

// HTTPClient returns the coordinated client. All authenticated API calls
// the application makes should go through it so they participate in attach,
// renewal, and replay.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Bus returns the session event bus for additional subscribers.
func (c *Client) Bus() *Bus {
	return c.bus
}

// Idle returns the idle monitor so a UI loop can feed activity signals.
func (c *Client) Idle() *IdleMonitor {
	return c.idle
}

// MetricsSnapshot returns a copy of all client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// restore performs the one synchronous credential-store check done at
// construction, before any route-guarded UI can render. An unparseable
// stored token is treated exactly like no token.
func (c *Client) restore() {
	c.setLoading(true)
	defer c.setLoading(false)

	ctx := context.Background()
	token, ok := c.store.AccessToken(ctx)
	if !ok {
		return
	}

	profile, err := claims.Decode(token)
	if err != nil {
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Warn().Err(clearErr).Msg("fundauth: could not clear undecodable credential")
		}
		return
	}

	c.transport.setAuthorization(token)
	c.setAuthenticated(profile)
	c.idle.Start()
}

// Login exchanges the identifier/secret pair for a credential pair. On any
// failure nothing is stored and nothing is cleared — there is nothing to
// clear. The call goes to a renewal-suppressed path, so a wrong password
// can never be retried as a token problem.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if c == nil {
		return nil, ErrClientNotReady
	}
	c.setLoading(true)
	defer c.setLoading(false)

	var token api.TokenResponse
	err := c.postJSON(ctx, c.cfg.API.LoginPath, api.LoginRequest{
		Identifier: identifier,
		Secret:     secret,
	}, &token, true)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		return nil, err
	}
	if token.AccessToken == "" {
		c.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: login response carried no access token", ErrServerUnavailable)
	}

	profile, err := claims.Decode(token.AccessToken)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: login response token undecodable", ErrServerUnavailable)
	}

	if err := c.store.SetCredentials(ctx, token.AccessToken, token.RefreshToken, token.Lifetime()); err != nil {
		c.metrics.Inc(MetricLoginFailure)
		return nil, err
	}

	c.transport.setAuthorization(token.AccessToken)
	c.setAuthenticated(profile)
	c.metrics.Inc(MetricLoginSuccess)
	c.idle.Start()

	return &LoginResult{
		User:               profile,
		MustChangePassword: profile.MustChangePassword,
	}, nil
}

// Logout invalidates the session server-side on a best-effort basis, then
// unconditionally clears local credentials and state, regardless of the
// server call's outcome.
func (c *Client) Logout(ctx context.Context) {
	if c == nil {
		return
	}
	c.metrics.Inc(MetricLogout)

	if _, ok := c.store.AccessToken(ctx); ok {
		if err := c.postJSON(ctx, c.cfg.API.LogoutPath, struct{}{}, nil, false); err != nil {
			c.logger.Debug().Err(err).Msg("fundauth: server-side logout failed")
		}
	}

	c.clearSession(ctx)
	c.bus.Publish(Event{Kind: EventKindLogout, Reason: ReasonManual, Message: msgManual})
}

// ChangePassword rotates the password over the authenticated path. The
// server answers with a rotated access credential, which replaces the
// stored one without touching the refresh credential; the forced-change
// flag clears with the new token's claims.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if c == nil {
		return ErrClientNotReady
	}
	if oldPassword == "" || newPassword == "" {
		return ErrPasswordPolicy
	}
	if !c.State().Authenticated {
		return ErrNotAuthenticated
	}

	c.setLoading(true)
	defer c.setLoading(false)

	var token api.TokenResponse
	err := c.postJSON(ctx, c.cfg.API.ChangePasswordPath, api.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}, &token, false)
	if err != nil {
		c.metrics.Inc(MetricPasswordChangeFailure)
		return err
	}

	if token.AccessToken != "" {
		if err := c.store.UpdateAccessOnly(ctx, token.AccessToken, token.Lifetime()); err != nil {
			c.metrics.Inc(MetricPasswordChangeFailure)
			return err
		}
		c.transport.setAuthorization(token.AccessToken)
		if profile, decodeErr := claims.Decode(token.AccessToken); decodeErr == nil {
			c.setAuthenticated(profile)
		}
	}

	c.metrics.Inc(MetricPasswordChangeSuccess)
	return nil
}

// idleTimedOut is the idle monitor's callback: it runs the logout path for
// the inactivity reason. The server-side invalidation is attempted first,
// while the access token may still be valid.
func (c *Client) idleTimedOut() {
	c.metrics.Inc(MetricIdleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.API.RequestTimeout)
	defer cancel()

	if _, ok := c.store.AccessToken(ctx); ok {
		if err := c.postJSON(ctx, c.cfg.API.LogoutPath, struct{}{}, nil, false); err != nil {
			c.logger.Debug().Err(err).Msg("fundauth: server-side logout failed on idle timeout")
		}
	}

	c.clearSession(ctx)
	c.bus.Publish(Event{Kind: EventKindLogout, Reason: ReasonInactivity, Message: msgInactivity})
}

// handleEvent is the client's lifetime bus subscription: any session event
// clears local state, whoever published it.
func (c *Client) handleEvent(event Event) {
	c.mu.Lock()
	c.state.Authenticated = false
	c.state.User = nil
	copied := event
	c.lastEvent = &copied
	handler := c.onSessionEnd
	c.mu.Unlock()

	c.idle.Stop()
	if handler != nil {
		handler(event)
	}
}

func (c *Client) clearSession(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("fundauth: credential clear failed")
	}
	c.transport.clearAuthorization()
	c.idle.Stop()

	c.mu.Lock()
	c.state.Authenticated = false
	c.state.User = nil
	c.mu.Unlock()
}

func (c *Client) setAuthenticated(profile *claims.Profile) {
	c.mu.Lock()
	c.state.Authenticated = true
	c.state.User = profile
	c.mu.Unlock()
}

func (c *Client) setLoading(loading bool) {
	c.mu.Lock()
	c.state.Loading = loading
	c.mu.Unlock()
}

// postJSON sends a JSON request through the coordinated client and
// normalizes failures into the package error taxonomy. authCall marks the
// credential-exchange path, where a 400/401 means bad input rather than a
// stale token.
func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}, authCall bool) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrNetworkUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.API.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrNetworkUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionExpired):
			return ErrSessionExpired
		case errors.Is(err, ErrNetworkUnreachable):
			return fmt.Errorf("%w: %s", ErrNetworkUnreachable, path)
		default:
			return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
		}
	}
	defer drain(resp)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= http.StatusBadRequest {
		return normalizeStatus(resp.StatusCode, authCall)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: undecodable response", ErrServerUnavailable)
		}
	}
	return nil
}

func normalizeStatus(status int, authCall bool) error {
	switch {
	case authCall && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrPermissionDenied
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= http.StatusInternalServerError:
		return ErrServerUnavailable
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrServerUnavailable, status)
	}
}
