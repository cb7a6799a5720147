package fundauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/campuskit/fundauth/credential"
	"github.com/campuskit/fundauth/internal/api"
)

// User-facing messages for session-ending notices. Each terminal reason
// keeps a distinct message so the UI can tell a deleted account from an
// ordinary expiry.
const (
	msgSessionExpired = "Your session has expired. Please sign in again."
	msgTokenExpired   = "Your session could not be renewed. Please sign in again."
	msgUserDeleted    = "This account no longer exists. Contact your administrator."
	msgInactivity     = "You were signed out after a period of inactivity."
	msgManual         = "You have been signed out."
)

const maxErrorBody = 1 << 20

// Transport wraps every outbound request with credential handling:
//
//  1. Attach — a non-expired access token is attached as a bearer header;
//     an expired or absent one attaches nothing and lets the server reject.
//  2. On 401 — join the process-wide single-flight renewal, then replay the
//     original request exactly once. The replay's outcome is final: its own
//     401 is returned as-is, so amplification is bounded at 2x.
//  3. Authentication-surface paths (login, refresh, one-time-code flows)
//     skip both attach and renewal, which breaks the loop of a refresh
//     failure triggering another refresh.
//
// Terminal renewal failures clear the credential store and the cached
// authorization header, publish exactly one session event, and surface the
// uniform [ErrSessionExpired] to the caller.
type Transport struct {
	base       http.RoundTripper
	store      credential.Store
	bus        *Bus
	metrics    *Metrics
	logger     zerolog.Logger
	api        APIConfig
	authPaths  map[string]struct{}
	renew      singleflight.Group
	authHeader atomic.Value // string
}

// NewTransport builds the renewal coordinator. A nil base selects
// http.DefaultTransport.
func NewTransport(
	base http.RoundTripper,
	store credential.Store,
	bus *Bus,
	metrics *Metrics,
	logger zerolog.Logger,
	apiCfg APIConfig,
) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:      base,
		store:     store,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
		api:       apiCfg,
		authPaths: apiCfg.authPaths(),
	}
	t.authHeader.Store("")
	return t
}

// AuthorizationHeader returns the cached default bearer header, or "" when
// no session is live.
func (t *Transport) AuthorizationHeader() string {
	v, _ := t.authHeader.Load().(string)
	return v
}

func (t *Transport) setAuthorization(token string) {
	t.authHeader.Store("Bearer " + token)
}

func (t *Transport) clearAuthorization() {
	t.authHeader.Store("")
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	defer func() {
		t.metrics.Observe(MetricRequestLatency, time.Since(start))
	}()

	req = req.Clone(req.Context())
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	if _, ok := t.authPaths[req.URL.Path]; ok {
		return t.base.RoundTrip(req)
	}

	if token, ok := t.store.AccessToken(req.Context()); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return t.renewAndReplay(req, resp)
	case http.StatusForbidden:
		return t.inspectForbidden(req.Context(), resp)
	default:
		return resp, nil
	}
}

// renewAndReplay handles a 401 on a non-auth-surface request: it obtains
// (or joins) the single in-flight renewal and replays the request once.
func (t *Transport) renewAndReplay(req *http.Request, unauthorized *http.Response) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		// The body cannot be rebuilt, so the request cannot be replayed.
		return unauthorized, nil
	}

	result, err, shared := t.renew.Do("renew", func() (interface{}, error) {
		return t.renewOnce()
	})
	if shared {
		t.metrics.Inc(MetricRenewalJoined)
	}
	drain(unauthorized)
	if err != nil {
		return nil, err
	}

	replay := req.Clone(req.Context())
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("%w: rebuild request body: %v", ErrSessionExpired, bodyErr)
		}
		replay.Body = body
	}
	replay.Header.Set("Authorization", "Bearer "+result.(string))

	t.metrics.Inc(MetricRequestReplayed)
	resp, err := t.base.RoundTrip(replay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	return resp, nil
}

// renewOnce performs the actual refresh exchange. It runs under the
// single-flight group, on its own deadline so a caller's cancellation or a
// hung server cannot wedge the coordinator for everyone.
func (t *Transport) renewOnce() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.api.RenewalTimeout)
	defer cancel()

	pair, ok := t.store.Credentials(ctx)
	if !ok || pair.RefreshToken == "" {
		t.terminate(ctx, ReasonSessionExpired, msgSessionExpired)
		return "", ErrSessionExpired
	}

	t.metrics.Inc(MetricRenewalIssued)
	payload, err := json.Marshal(api.RefreshRequest{RefreshToken: pair.RefreshToken})
	if err != nil {
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.api.endpoint(t.api.RefreshPath), bytes.NewReader(payload))
	if err != nil {
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn().Err(err).Msg("fundauth: renewal call failed")
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	drain(resp)

	if resp.StatusCode != http.StatusOK {
		if api.PrincipalGone(resp.StatusCode, body) {
			t.metrics.Inc(MetricUserDeleted)
			return "", t.renewalFailed(ctx, ReasonUserDeleted, msgUserDeleted)
		}
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}

	var token api.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}

	if token.RefreshToken != "" {
		err = t.store.SetCredentials(ctx, token.AccessToken, token.RefreshToken, token.Lifetime())
	} else {
		err = t.store.UpdateAccessOnly(ctx, token.AccessToken, token.Lifetime())
	}
	if err != nil {
		t.logger.Warn().Err(err).Msg("fundauth: renewed credential could not be stored")
		return "", t.renewalFailed(ctx, ReasonTokenExpired, msgTokenExpired)
	}

	t.setAuthorization(token.AccessToken)
	t.metrics.Inc(MetricRenewalSuccess)
	return token.AccessToken, nil
}

func (t *Transport) renewalFailed(ctx context.Context, reason Reason, message string) error {
	t.metrics.Inc(MetricRenewalFailure)
	t.terminate(ctx, reason, message)
	return ErrSessionExpired
}

// inspectForbidden re-runs the principal-gone check on 403 responses: an
// administratively deleted account may surface as forbidden rather than
// unauthorized.
func (t *Transport) inspectForbidden(ctx context.Context, resp *http.Response) (*http.Response, error) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	drain(resp)
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if api.PrincipalGone(resp.StatusCode, body) {
		t.metrics.Inc(MetricUserDeleted)
		t.terminate(ctx, ReasonUserDeleted, msgUserDeleted)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// terminate performs the session-terminal sequence: clear stored
// credentials, clear the default authorization header, publish exactly one
// event for the cause.
func (t *Transport) terminate(ctx context.Context, reason Reason, message string) {
	if err := t.store.Clear(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("fundauth: credential clear failed during termination")
	}
	t.clearAuthorization()
	t.metrics.Inc(MetricSessionTerminated)
	t.bus.Publish(Event{Kind: EventKindLogout, Reason: reason, Message: message})
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
