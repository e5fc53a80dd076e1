package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/divinesarathi/voice/internal/domain"

	"github.com/rs/zerolog/log"
)

// Negotiator exchanges SDP with the realtime speech service over HTTPS.
type Negotiator struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewNegotiator creates a negotiator for endpoint and model. httpClient may be nil.
func NewNegotiator(endpoint, model string, httpClient *http.Client) *Negotiator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Negotiator{endpoint: endpoint, model: model, http: httpClient}
}

// Negotiate posts the offer with the session credential as bearer and returns
// the SDP answer plus the call ID carried by the Location header.
func (n *Negotiator) Negotiate(ctx context.Context, cred *domain.SessionCredential, offerSDP string) (*domain.Answer, error) {
	u, err := url.Parse(n.endpoint)
	if err != nil {
		return nil, domain.Errorf(domain.KindNegotiationFailed, err, "parse realtime endpoint")
	}
	q := u.Query()
	q.Set("model", n.model)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(offerSDP))
	if err != nil {
		return nil, domain.Errorf(domain.KindNegotiationFailed, err, "create http request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)
	httpReq.Header.Set("Content-Type", "application/sdp")

	log.Info().Str("module", "api").Str("model", n.model).Msg("sending SDP offer")
	resp, err := n.http.Do(httpReq)
	if err != nil {
		return nil, domain.Errorf(domain.KindNegotiationFailed, err, "http request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Errorf(domain.KindNegotiationFailed, err, "read answer")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.Errorf(domain.KindNegotiationFailed, nil, "SDP exchange failed: %d %s", resp.StatusCode, string(respBody))
	}
	if len(respBody) == 0 {
		return nil, domain.Errorf(domain.KindNegotiationFailed, nil, "empty SDP answer")
	}

	return &domain.Answer{
		SDP:    domain.SDPPayload{Type: "answer", SDP: string(respBody)},
		CallID: callID(resp.Header.Get("Location")),
	}, nil
}

// callID returns the last path segment of a Location header value.
func callID(location string) string {
	if location == "" {
		return ""
	}
	if u, err := url.Parse(location); err == nil {
		location = u.Path
	}
	id := path.Base(strings.TrimRight(location, "/"))
	if id == "." || id == "/" {
		return ""
	}
	return id
}
