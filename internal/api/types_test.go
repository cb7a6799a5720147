package api

import (
	"net/http"
	"testing"
	"time"
)

func TestPrincipalGone(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"410 is unambiguous", http.StatusGone, "", true},
		{"404 with envelope message", http.StatusNotFound, `{"message":"User no longer exists"}`, true},
		{"401 with envelope message", http.StatusUnauthorized, `{"message":"Account no longer exists"}`, true},
		{"403 with envelope message", http.StatusForbidden, `{"message":"this user no longer exists"}`, true},
		{"case insensitive", http.StatusNotFound, `{"message":"USER NO LONGER EXISTS"}`, true},
		{"raw body fallback", http.StatusForbidden, `account no longer exists`, true},
		{"plain expiry message", http.StatusUnauthorized, `{"message":"token expired"}`, false},
		{"ordinary not found", http.StatusNotFound, `{"message":"request not found"}`, false},
		{"server error never matches", http.StatusInternalServerError, `no longer exists`, false},
		{"empty body", http.StatusUnauthorized, ``, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PrincipalGone(tc.status, []byte(tc.body)); got != tc.want {
				t.Fatalf("PrincipalGone(%d, %q) = %v, want %v", tc.status, tc.body, got, tc.want)
			}
		})
	}
}

func TestTokenResponseLifetime(t *testing.T) {
	resp := TokenResponse{ExpiresIn: 900}
	if got := resp.Lifetime(); got != 15*time.Minute {
		t.Fatalf("Lifetime = %v, want 15m", got)
	}
	if got := (TokenResponse{}).Lifetime(); got != 0 {
		t.Fatalf("zero ExpiresIn produced %v", got)
	}
}
