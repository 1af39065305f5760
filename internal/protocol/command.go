// Package protocol implements the text-framed command grammar spoken over a
// broker connection and the JSON envelope carried by publish commands.
package protocol

import (
	"errors"
	"strings"
)

// Command prefixes. All matching is case-sensitive.
const (
	PrefixRegisterName    = "register-name:"
	PrefixRegisterSession = "register-session:"
	PrefixSubscribe       = "subscribe:"
	PrefixUnsubscribe     = "unsubscribe:"
	PrefixPublishJSON     = "publish-json:"

	Ping = "ping"
	Pong = "pong"

	// sessionSeparator splits "<topic>|<session>" in subscribe commands.
	sessionSeparator = "|"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyTopic     = errors.New("empty topic")
)

// CommandKind identifies a recognized inbound command.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandRegisterName
	CommandRegisterSession
	CommandSubscribe
	CommandUnsubscribe
	CommandPublish
	CommandPing
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegisterName:
		return "register-name"
	case CommandRegisterSession:
		return "register-session"
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandPublish:
		return "publish-json"
	case CommandPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Command is one parsed inbound frame.
//
// Arg holds the name for register-name, the session id for register-session
// and the raw JSON document for publish-json. Topic and SessionID are set for
// subscribe and unsubscribe; SessionID is empty when the frame did not name a
// session and the connection's current session applies.
type Command struct {
	Kind      CommandKind
	Arg       string
	Topic     string
	SessionID string
}

// ParseCommand decodes a single text frame. Unrecognized frames yield
// ErrUnknownCommand with Kind set to CommandUnknown.
func ParseCommand(text string) (Command, error) {
	switch {
	case strings.HasPrefix(text, PrefixRegisterName):
		return Command{
			Kind: CommandRegisterName,
			Arg:  strings.TrimSpace(strings.TrimPrefix(text, PrefixRegisterName)),
		}, nil

	case strings.HasPrefix(text, PrefixRegisterSession):
		return Command{
			Kind: CommandRegisterSession,
			Arg:  strings.TrimSpace(strings.TrimPrefix(text, PrefixRegisterSession)),
		}, nil

	case strings.HasPrefix(text, PrefixSubscribe):
		return parseTopicCommand(CommandSubscribe, strings.TrimPrefix(text, PrefixSubscribe))

	case strings.HasPrefix(text, PrefixUnsubscribe):
		return parseTopicCommand(CommandUnsubscribe, strings.TrimPrefix(text, PrefixUnsubscribe))

	case strings.HasPrefix(text, PrefixPublishJSON):
		return Command{
			Kind: CommandPublish,
			Arg:  strings.TrimPrefix(text, PrefixPublishJSON),
		}, nil

	case strings.TrimSpace(text) == Ping:
		return Command{Kind: CommandPing}, nil
	}

	return Command{Kind: CommandUnknown}, ErrUnknownCommand
}

// parseTopicCommand splits "<topic>[|<session>]". Segments after the second
// are ignored.
func parseTopicCommand(kind CommandKind, rest string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(rest), sessionSeparator)

	cmd := Command{Kind: kind, Topic: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		cmd.SessionID = strings.TrimSpace(parts[1])
	}
	if cmd.Topic == "" {
		return cmd, ErrEmptyTopic
	}
	return cmd, nil
}

// FormatRegisterName builds a register-name frame.
func FormatRegisterName(name string) string {
	return PrefixRegisterName + name
}

// FormatRegisterSession builds a register-session frame.
func FormatRegisterSession(sessionID string) string {
	return PrefixRegisterSession + sessionID
}

// FormatSubscribe builds a subscribe frame. An empty sessionID leaves the
// session to the connection's current one.
func FormatSubscribe(topic, sessionID string) string {
	return formatTopicCommand(PrefixSubscribe, topic, sessionID)
}

// FormatUnsubscribe builds an unsubscribe frame.
func FormatUnsubscribe(topic, sessionID string) string {
	return formatTopicCommand(PrefixUnsubscribe, topic, sessionID)
}

func formatTopicCommand(prefix, topic, sessionID string) string {
	if sessionID == "" {
		return prefix + topic
	}
	return prefix + topic + sessionSeparator + sessionID
}
