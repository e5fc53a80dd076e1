package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/divinesarathi/voice/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// memTokens is an in-memory token store that records purges.
type memTokens struct {
	token  string
	purged bool
}

func (m *memTokens) Token() (string, error) { return m.token, nil }
func (m *memTokens) Save(token string) error { m.token = token; return nil }
func (m *memTokens) Purge() error {
	m.token = ""
	m.purged = true
	return nil
}

var testTopic = domain.Topic{ID: "story-7", Category: "gita"}

func TestFetchCredential_Success(t *testing.T) {
	var gotAuth string
	var gotBody sessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/create" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"key":"ek_123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client(), &memTokens{token: "user-token"})
	cred, err := c.FetchCredential(context.Background(), testTopic)
	if err != nil {
		t.Fatalf("FetchCredential: %v", err)
	}

	if cred.Key != "ek_123" || cred.TopicID != "story-7" {
		t.Errorf("unexpected credential %+v", cred)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotBody.StoryID != "story-7" || gotBody.StoryType != "gita" {
		t.Errorf("unexpected body %+v", gotBody)
	}
}

func TestFetchCredential_MissingToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), &memTokens{})
	_, err := c.FetchCredential(context.Background(), testTopic)

	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("expected AuthenticationRequired, got %v", err)
	}
	if called {
		t.Error("expected no request without a token")
	}
}

func TestFetchCredential_UnauthorizedPurgesToken(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		tokens := &memTokens{token: "user-token"}
		c := NewClient(srv.URL, srv.Client(), tokens)
		_, err := c.FetchCredential(context.Background(), testTopic)
		srv.Close()

		if !errors.Is(err, domain.ErrAuthExpired) {
			t.Errorf("status %d: expected AuthenticationExpired, got %v", status, err)
		}
		if !tokens.purged || tokens.token != "" {
			t.Errorf("status %d: expected token to be purged", status)
		}
	}
}

func TestFetchCredential_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	tokens := &memTokens{token: "user-token"}
	c := NewClient(srv.URL, srv.Client(), tokens)
	_, err := c.FetchCredential(context.Background(), testTopic)

	if !errors.Is(err, domain.ErrCredentialFetchFailed) {
		t.Fatalf("expected CredentialFetchFailed, got %v", err)
	}
	if tokens.purged {
		t.Error("token must survive non-auth failures")
	}
}

func TestFetchCredential_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, &memTokens{token: "user-token"})
	_, err := c.FetchCredential(context.Background(), testTopic)
	if !errors.Is(err, domain.ErrCredentialFetchFailed) {
		t.Fatalf("expected CredentialFetchFailed, got %v", err)
	}
}

func TestFetchCredential_ExpiredJWTSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	tokens := &memTokens{token: token}
	c := NewClient(srv.URL, srv.Client(), tokens)
	_, err = c.FetchCredential(context.Background(), testTopic)

	if !errors.Is(err, domain.ErrAuthExpired) {
		t.Fatalf("expected AuthenticationExpired, got %v", err)
	}
	if called {
		t.Error("expected no request with an expired token")
	}
	if !tokens.purged {
		t.Error("expected expired token to be purged")
	}
}

func TestSendLocation(t *testing.T) {
	var got locationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/location" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), &memTokens{token: "user-token"})
	if err := c.SendLocation(context.Background(), "rtc_abc", "ek_123"); err != nil {
		t.Fatalf("SendLocation: %v", err)
	}
	if got.CallID != "rtc_abc" || got.Key != "ek_123" {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestSendLocation_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), &memTokens{token: "user-token"})
	if err := c.SendLocation(context.Background(), "rtc_abc", "ek_123"); err == nil {
		t.Fatal("expected error on 500")
	}
}
