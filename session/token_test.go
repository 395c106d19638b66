package session

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", "landfluss", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	token, err := issuer.Issue("ABCD1234", "user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.RoomID != "ABCD1234" || claims.UserID != "user-1" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret", "landfluss", time.Hour)
	other, _ := NewTokenIssuer("other-secret", "landfluss", time.Hour)
	token, _ := other.Issue("room", "user")

	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for a foreign signature, got %v", err)
	}
	if _, err := issuer.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}

	expired, _ := NewTokenIssuer("secret", "landfluss", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue("room", "user")
	if _, err := issuer.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for an expired token, got %v", err)
	}
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer(" ", "landfluss", 0); err == nil {
		t.Error("Expected an error without a secret")
	}
}
