package fundauth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config groups all tunables of the session client. Configure once, build
// through [Builder], and treat as immutable afterwards.
type Config struct {
	API        APIConfig
	Credential CredentialConfig
	Idle       IdleConfig
	Metrics    MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the fund-management service and its authentication
// surface. The login and refresh paths (plus ExtraAuthPaths) bypass the
// renewal coordinator: a failure on the authentication surface must never
// be retried as if it were a token problem.
type APIConfig struct {
	BaseURL            string
	LoginPath          string
	RefreshPath        string
	LogoutPath         string
	ChangePasswordPath string
	// ExtraAuthPaths adds further renewal-suppressed endpoints, e.g.
	// one-time-code flows.
	ExtraAuthPaths []string
	// RequestTimeout bounds every outbound call.
	RequestTimeout time.Duration
	// RenewalTimeout bounds the refresh call specifically, so a hung
	// renewal cannot block the coordinator. A renewal timeout is a renewal
	// failure, never left pending.
	RenewalTimeout time.Duration
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig tunes the expiry policy of the credential store built by
// default. Ignored when a store is injected through [Builder.WithStore].
type CredentialConfig struct {
	// SkewMargin is subtracted from the declared expiry; zero selects the
	// 60s default.
	SkewMargin time.Duration
}

/*
====================================
IDLE CONFIG
====================================
*/

// DefaultIdleSignals mirrors the activity signals an interactive UI feeds
// the monitor.
var DefaultIdleSignals = []string{
	"pointerdown", "pointermove", "keydown", "scroll", "touchstart", "click",
}

// IdleConfig controls inactivity-driven session termination. With Enabled
// false no timer runs at all, which is the right setting for
// unauthenticated or non-interactive use.
type IdleConfig struct {
	Enabled bool
	// Timeout is the silence interval after which the session ends.
	Timeout time.Duration
	// GraceDelay postpones arming the first deadline, so automatic events
	// fired during startup cannot cause a false timeout. Zero selects 2s;
	// negative disables the grace period.
	GraceDelay time.Duration
	// Signals is the accepted activity signal set; empty selects
	// DefaultIdleSignals.
	Signals []string
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the atomic counter set and, optionally, the
// request-latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			LoginPath:          "/auth/login",
			RefreshPath:        "/auth/refresh",
			LogoutPath:         "/auth/logout",
			ChangePasswordPath: "/auth/password",
			RequestTimeout:     30 * time.Second,
			RenewalTimeout:     30 * time.Second,
		},
		Idle: IdleConfig{
			Timeout:    15 * time.Minute,
			GraceDelay: 2 * time.Second,
		},
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return errors.New("api base url is required")
	}
	if _, err := url.Parse(cfg.API.BaseURL); err != nil {
		return errors.New("api base url is invalid")
	}
	for _, p := range []string{
		cfg.API.LoginPath,
		cfg.API.RefreshPath,
		cfg.API.LogoutPath,
		cfg.API.ChangePasswordPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("auth endpoint paths must be absolute")
		}
	}
	if cfg.API.RequestTimeout <= 0 || cfg.API.RenewalTimeout <= 0 {
		return errors.New("request timeouts must be positive")
	}
	if cfg.Idle.Enabled && cfg.Idle.Timeout <= 0 {
		return errors.New("idle timeout must be positive when idle detection is enabled")
	}
	return nil
}

// authPaths is the renewal-suppression set. Logout and change-password are
// deliberately absent: they are authenticated calls and go through the
// coordinator like any other request.
func (c APIConfig) authPaths() map[string]struct{} {
	paths := map[string]struct{}{
		c.LoginPath:   {},
		c.RefreshPath: {},
	}
	for _, p := range c.ExtraAuthPaths {
		paths[p] = struct{}{}
	}
	return paths
}

func (c APIConfig) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}
