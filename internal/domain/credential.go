package domain

// Topic identifies the story a voice session is scoped to.
type Topic struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// SessionCredential is the short-lived bearer key issued by the backend for a
// single realtime session. It is consumed during negotiation.
type SessionCredential struct {
	Key     string
	TopicID string
}

// SDPPayload is a session description exchanged during negotiation.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Answer is the result of posting an offer to the realtime endpoint.
type Answer struct {
	SDP    SDPPayload
	CallID string
}
