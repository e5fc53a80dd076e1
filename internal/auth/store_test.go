package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFileStore_SaveTokenPurge(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "token"))

	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token on empty store: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token, got %q", tok)
	}

	if err := s.Save("abc.def.ghi\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, err = s.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "abc.def.ghi" {
		t.Errorf("expected trimmed token, got %q", tok)
	}

	if err := s.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if tok, _ := s.Token(); tok != "" {
		t.Errorf("expected empty token after purge, got %q", tok)
	}
	if err := s.Purge(); err != nil {
		t.Errorf("second Purge should be a no-op, got %v", err)
	}
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestExpired(t *testing.T) {
	now := time.Now()

	if !Expired(signed(t, now.Add(-time.Minute)), now) {
		t.Error("expected past exp to be expired")
	}
	if Expired(signed(t, now.Add(time.Hour)), now) {
		t.Error("expected future exp to be valid")
	}
	if Expired("opaque-session-token", now) {
		t.Error("opaque tokens must not be treated as expired")
	}
}
