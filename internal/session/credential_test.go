package session

import (
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, claims gojwt.MapClaims) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestInspect(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
		wantID  string
		opaque  bool
	}{
		{"empty", "", ErrNoCredential, "", false},
		{"opaque", "not-a-jwt", nil, "", true},
		{"valid", sign(t, gojwt.MapClaims{"id": "u1", "exp": now.Add(time.Hour).Unix()}), nil, "u1", false},
		{"nested user", sign(t, gojwt.MapClaims{"user": map[string]any{"id": "u2"}}), nil, "u2", false},
		{"subject", sign(t, gojwt.MapClaims{"sub": "u3"}), nil, "u3", false},
		{"expired", sign(t, gojwt.MapClaims{"id": "u1", "exp": now.Add(-time.Minute).Unix()}), ErrCredentialExpired, "u1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := Inspect(tt.token, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Inspect() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if cred.UserID != tt.wantID {
				t.Errorf("UserID = %q, want %q", cred.UserID, tt.wantID)
			}
			if cred.Opaque != tt.opaque {
				t.Errorf("Opaque = %v, want %v", cred.Opaque, tt.opaque)
			}
		})
	}
}
