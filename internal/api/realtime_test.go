package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/divinesarathi/voice/internal/domain"
)

func TestNegotiate_Success(t *testing.T) {
	var gotOffer, gotAuth, gotType, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotOffer = string(body)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotModel = r.URL.Query().Get("model")
		w.Header().Set("Location", "/v1/realtime/calls/rtc_42")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("v=0\r\nanswer-sdp"))
	}))
	defer srv.Close()

	n := NewNegotiator(srv.URL+"/v1/realtime/calls", "gpt-realtime", srv.Client())
	ans, err := n.Negotiate(context.Background(), &domain.SessionCredential{Key: "ek_1"}, "v=0\r\noffer-sdp")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}

	if gotOffer != "v=0\r\noffer-sdp" {
		t.Errorf("unexpected offer body %q", gotOffer)
	}
	if gotAuth != "Bearer ek_1" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotType != "application/sdp" {
		t.Errorf("unexpected content type %q", gotType)
	}
	if gotModel != "gpt-realtime" {
		t.Errorf("unexpected model %q", gotModel)
	}
	if ans.SDP.Type != "answer" || ans.SDP.SDP != "v=0\r\nanswer-sdp" {
		t.Errorf("unexpected answer %+v", ans.SDP)
	}
	if ans.CallID != "rtc_42" {
		t.Errorf("expected call id rtc_42, got %q", ans.CallID)
	}
}

func TestNegotiate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNegotiator(srv.URL, "gpt-realtime", srv.Client())
	_, err := n.Negotiate(context.Background(), &domain.SessionCredential{Key: "ek_1"}, "v=0")
	if !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Fatalf("expected NegotiationFailed, got %v", err)
	}
}

func TestCallID(t *testing.T) {
	cases := map[string]string{
		"":                                   "",
		"/v1/realtime/calls/rtc_1":           "rtc_1",
		"https://api.example/v1/calls/rtc_2": "rtc_2",
		"/v1/realtime/calls/rtc_3/":          "rtc_3",
		"rtc_4":                              "rtc_4",
	}
	for in, want := range cases {
		if got := callID(in); got != want {
			t.Errorf("callID(%q) = %q, want %q", in, got, want)
		}
	}
}
