package session

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredential means no token is configured for the session.
	ErrNoCredential = errors.New("no credential configured")
	// ErrCredentialExpired means the token's exp claim has passed.
	ErrCredentialExpired = errors.New("credential expired")
)

// Credential is what can be learned from a token without verifying it.
// Opaque tokens carry nothing.
type Credential struct {
	Token     string
	Opaque    bool
	UserID    string
	ExpiresAt time.Time
}

// Inspect reads token's claims when it is a JWT. The signature is not
// checked; the service does that. An expired token fails with
// ErrCredentialExpired so the daemon can report the session invalid before
// connecting.
func Inspect(token string, now time.Time) (Credential, error) {
	if token == "" {
		return Credential{}, ErrNoCredential
	}
	cred := Credential{Token: token}
	claims := gojwt.MapClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(token, claims); err != nil {
		cred.Opaque = true
		return cred, nil
	}

	cred.UserID = userID(claims)
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return cred, fmt.Errorf("credential exp claim: %w", err)
	}
	if exp != nil {
		cred.ExpiresAt = exp.Time
		if !now.Before(exp.Time) {
			return cred, fmt.Errorf("%w at %s", ErrCredentialExpired, exp.Time.Format(time.RFC3339))
		}
	}
	return cred, nil
}

func userID(claims gojwt.MapClaims) string {
	for _, key := range []string{"id", "userId", "_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	if user, ok := claims["user"].(map[string]any); ok {
		for _, key := range []string{"id", "_id"} {
			if v, ok := user[key].(string); ok && v != "" {
				return v
			}
		}
	}
	sub, _ := claims.GetSubject()
	return sub
}
