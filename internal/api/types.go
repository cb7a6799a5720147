package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// LoginRequest is the credential exchange payload.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// RefreshRequest exchanges the renewal credential for a fresh access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest rotates the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// TokenResponse is returned by both the login and refresh endpoints. The
// refresh token is optional: the server only includes it when it rotates.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Lifetime converts the server-declared lifetime to a duration.
func (t TokenResponse) Lifetime() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}

// ErrorResponse is the service's error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}

// principalGoneNeedle is the message fragment the server emits for an
// administratively deleted or disabled account. The contract is fragile
// (message sniffing rather than a machine-readable code); it is centralized
// here so a future error-code migration touches one function.
const principalGoneNeedle = "no longer exists"

// PrincipalGone reports whether a failure response signals that the account
// behind the session was deleted or disabled, as opposed to an ordinary
// expired session. A 410 is unambiguous; 401/403/404 bodies are sniffed for
// the known message fragment.
func PrincipalGone(status int, body []byte) bool {
	if status == http.StatusGone {
		return true
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden && status != http.StatusNotFound {
		return false
	}

	var envelope ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return strings.Contains(strings.ToLower(envelope.Message), principalGoneNeedle)
	}
	return strings.Contains(strings.ToLower(string(body)), principalGoneNeedle)
}
