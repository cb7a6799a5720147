package fundauth

import "errors"

var (
	// ErrSessionExpired is the uniform terminal error returned to callers
	// whose request could not be completed because the session ended.
	// Callers never need to distinguish the underlying cause; the published
	// [Event] carries the reason.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is returned by Login when the server rejects the
	// identifier/secret pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is the normalized category for a 401 that survived
	// renewal suppression (authentication-surface endpoints).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is the normalized category for 403 responses that
	// are plain permission denials.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is the normalized category for 404 responses.
	ErrNotFound = errors.New("resource not found")
	// ErrServerUnavailable is the normalized category for 5xx responses.
	ErrServerUnavailable = errors.New("server unavailable")
	// ErrNetworkUnreachable is the normalized category for transport-level
	// failures before any response arrived.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrNotAuthenticated is returned by operations that require a live
	// session when none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPasswordPolicy is returned by ChangePassword on invalid input.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrClientNotReady is returned when a Client is used before Build
	// completed or after required dependencies were left unset.
	ErrClientNotReady = errors.New("client not initialized")
)
