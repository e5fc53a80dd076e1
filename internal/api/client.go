package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/divinesarathi/voice/internal/auth"
	"github.com/divinesarathi/voice/internal/domain"

	"github.com/rs/zerolog/log"
)

const (
	sessionCreatePath   = "/session/create"
	sessionLocationPath = "/session/location"
)

type sessionRequest struct {
	StoryID   string `json:"story_id"`
	StoryType string `json:"story_type"`
}

type sessionResponse struct {
	Key string `json:"key"`
}

type locationRequest struct {
	CallID string `json:"callId"`
	Key    string `json:"key"`
}

// Client talks to the Sarathi backend on behalf of the signed-in user.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  domain.TokenStore
	now     func() time.Time
}

// NewClient creates a backend client. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client, tokens domain.TokenStore) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		now:     time.Now,
	}
}

// bearer returns the cached user token, purging it when it is known to be
// expired.
func (c *Client) bearer() (string, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return "", domain.Errorf(domain.KindAuthRequired, err, "read auth token")
	}
	if token == "" {
		return "", domain.Errorf(domain.KindAuthRequired, nil, "no auth token")
	}
	if auth.Expired(token, c.now()) {
		c.purge()
		return "", domain.Errorf(domain.KindAuthExpired, nil, "auth token expired")
	}
	return token, nil
}

func (c *Client) purge() {
	if err := c.tokens.Purge(); err != nil {
		log.Error().Err(err).Str("module", "api").Msg("purge auth token")
	}
}

// FetchCredential exchanges the user's token for a short-lived realtime key
// scoped to topic. It never retries.
func (c *Client) FetchCredential(ctx context.Context, topic domain.Topic) (*domain.SessionCredential, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(sessionRequest{StoryID: topic.ID, StoryType: topic.Category})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionCreatePath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, err, "create http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, err, "http request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.purge()
		return nil, domain.Errorf(domain.KindAuthExpired, nil, "http %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, nil, "http %d: %s", resp.StatusCode, string(respBody))
	}

	var sessResp sessionResponse
	if err := json.Unmarshal(respBody, &sessResp); err != nil {
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, err, "unmarshal response")
	}
	if sessResp.Key == "" {
		return nil, domain.Errorf(domain.KindCredentialFetchFailed, nil, "response carried no key")
	}

	log.Info().Str("module", "api").Str("story_id", topic.ID).Msg("session credential obtained")
	return &domain.SessionCredential{Key: sessResp.Key, TopicID: topic.ID}, nil
}

// SendLocation reports the realtime call ID for the session keyed by key.
func (c *Client) SendLocation(ctx context.Context, callID, key string) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}

	body, err := json.Marshal(locationRequest{CallID: callID, Key: key})
	if err != nil {
		return fmt.Errorf("marshal location request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionLocationPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
