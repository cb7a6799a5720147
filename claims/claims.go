package claims

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that cannot be decoded into a
// usable profile. Callers treat it identically to "no credential".
var ErrInvalidToken = errors.New("invalid access token")

// Profile is the user identity derived from an access credential. Its
// lifetime is tied to the credential it was decoded from; it is never
// stored independently.
type Profile struct {
	ID                 string
	Role               string
	DisplayName        string
	Email              string
	MustChangePassword bool
}

type accessClaims struct {
	Role               string `json:"role"`
	DisplayName        string `json:"name"`
	Email              string `json:"email"`
	MustChangePassword bool   `json:"must_change_password"`
	jwt.RegisteredClaims
}

// Decode parses the token payload without signature verification and
// returns the embedded profile. A token with no subject is invalid: there
// is no session without a principal.
func Decode(token string) (*Profile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}

	parsed := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, parsed); err != nil {
		return nil, ErrInvalidToken
	}
	if parsed.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Profile{
		ID:                 parsed.Subject,
		Role:               parsed.Role,
		DisplayName:        parsed.DisplayName,
		Email:              parsed.Email,
		MustChangePassword: parsed.MustChangePassword,
	}, nil
}
