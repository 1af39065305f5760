package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultTopic is used when a publish document carries no topic.
const DefaultTopic = "<none>"

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the unit of publication. Payload is opaque to the broker and
// may be ciphertext produced by the clients.
type Envelope struct {
	PublisherName string `json:"publisher_name"`
	Topic         string `json:"topic"`
	Payload       string `json:"payload"`
	Timestamp     string `json:"timestamp"`
	SessionID     string `json:"session_id"`
}

// DecodeEnvelope parses the JSON object of a publish-json command. Fields
// that are absent or not strings fall back to the publisher's current name
// and session; a missing topic becomes DefaultTopic.
func DecodeEnvelope(raw, publisherName, sessionID string) (Envelope, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if doc == nil {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	return Envelope{
		PublisherName: stringField(doc, "publisher_name", publisherName),
		Topic:         stringField(doc, "topic", DefaultTopic),
		Payload:       stringField(doc, "payload", ""),
		Timestamp:     stringField(doc, "timestamp", ""),
		SessionID:     stringField(doc, "session_id", sessionID),
	}, nil
}

func stringField(doc map[string]any, key, fallback string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return fallback
}

// Encode renders the envelope as the outbound text frame.
func (e Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// FormatPublish builds a publish-json frame for the envelope.
func FormatPublish(e Envelope) (string, error) {
	data, err := e.Encode()
	if err != nil {
		return "", err
	}
	return PrefixPublishJSON + data, nil
}
