package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Envelope
	}{
		{
			name: "all fields",
			raw:  `{"publisher_name":"a","topic":"orders","payload":"x","timestamp":"t0","session_id":"s1"}`,
			want: Envelope{PublisherName: "a", Topic: "orders", Payload: "x", Timestamp: "t0", SessionID: "s1"},
		},
		{
			name: "defaults from connection",
			raw:  `{"topic":"orders","payload":"x"}`,
			want: Envelope{PublisherName: "alice", Topic: "orders", Payload: "x", SessionID: "current"},
		},
		{
			name: "missing topic",
			raw:  `{}`,
			want: Envelope{PublisherName: "alice", Topic: DefaultTopic, SessionID: "current"},
		},
		{
			name: "non-string values ignored",
			raw:  `{"topic":"orders","payload":42,"session_id":null}`,
			want: Envelope{PublisherName: "alice", Topic: "orders", SessionID: "current"},
		},
		{
			name: "payload session overrides connection session",
			raw:  `{"topic":"orders","session_id":"other"}`,
			want: Envelope{PublisherName: "alice", Topic: "orders", SessionID: "other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEnvelope(tt.raw, "alice", "current")
			if err != nil {
				t.Fatalf("DecodeEnvelope() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeEnvelope() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, raw := range []string{"", "{", "null", `["orders"]`, `"orders"`} {
		if _, err := DecodeEnvelope(raw, "a", "s"); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("DecodeEnvelope(%q) error = %v, want ErrMalformedEnvelope", raw, err)
		}
	}
}

func TestEnvelopeEncode_FieldOrder(t *testing.T) {
	frame, err := Envelope{PublisherName: "a", Topic: "t", Payload: "p", Timestamp: "ts", SessionID: "s"}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"publisher_name":"a","topic":"t","payload":"p","timestamp":"ts","session_id":"s"}`
	if frame != want {
		t.Errorf("Encode() = %s, want %s", frame, want)
	}
}

func TestFormatPublish(t *testing.T) {
	frame, err := FormatPublish(Envelope{Topic: "orders", Payload: "x", SessionID: "s1"})
	if err != nil {
		t.Fatalf("FormatPublish() error = %v", err)
	}
	if !strings.HasPrefix(frame, PrefixPublishJSON) {
		t.Fatalf("FormatPublish() = %q, missing prefix", frame)
	}

	cmd, err := ParseCommand(frame)
	if err != nil || cmd.Kind != CommandPublish {
		t.Fatalf("ParseCommand(FormatPublish()) = %+v, %v", cmd, err)
	}
	env, err := DecodeEnvelope(cmd.Arg, "", "")
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.Topic != "orders" || env.Payload != "x" || env.SessionID != "s1" {
		t.Errorf("decoded envelope = %+v", env)
	}
}
