// Package claims decodes the user profile embedded in an access credential.
//
// The client holds no verification key, so decoding is a pure, fallible
// parse of the token payload with no signature check and no server round
// trip. Integrity is the server's concern: a tampered token is rejected by
// the API on first use. Every decode failure must be treated by callers
// exactly like an absent credential, never as a distinct error path.
package claims
