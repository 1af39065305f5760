package session

import (
	"errors"
	"log/slog"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/metrics"
	"github.com/topicrelay/backend/internal/protocol"
)

// handleFrame applies one inbound text frame. Protocol errors are logged
// and the frame is dropped; the connection stays open.
func (s *Session) handleFrame(frame string) {
	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		reason := "unknown_command"
		if errors.Is(err, protocol.ErrEmptyTopic) {
			reason = "empty_topic"
		}
		metrics.ProtocolErrorsTotal.WithLabelValues(reason).Inc()
		s.logger.Warn("session: dropping frame",
			slog.String("command", cmd.Kind.String()),
			slog.Int("frame_len", len(frame)),
			slog.Any("error", err),
		)
		return
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case protocol.CommandRegisterName:
		s.registerName(cmd.Arg)
	case protocol.CommandRegisterSession:
		s.registerSession(cmd.Arg)
	case protocol.CommandSubscribe:
		s.subscribe(cmd.Topic, cmd.SessionID)
	case protocol.CommandUnsubscribe:
		s.unsubscribe(cmd.Topic, cmd.SessionID)
	case protocol.CommandPublish:
		s.publish(cmd.Arg)
	case protocol.CommandPing:
		if err := s.outbox.Push(protocol.Pong); err != nil {
			s.logger.Debug("session: pong dropped", slog.Any("error", err))
		}
	}
}

func (s *Session) registerName(name string) {
	s.mu.Lock()
	ok := s.identity.RegisterName(name)
	current := s.identity.ClientName
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("session: ignoring name change on pinned identity",
			slog.String("security_event", string(logging.SecurityEventPinnedOverride)),
			slog.String("client_name", current),
			slog.String("requested", name),
		)
		return
	}
	s.logger.Debug("session: registered name", slog.String("client_name", name))
}

func (s *Session) registerSession(sessionID string) {
	s.mu.Lock()
	ok := s.identity.RegisterSession(sessionID)
	current := s.identity.SessionID
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("session: ignoring session change on pinned identity",
			slog.String("security_event", string(logging.SecurityEventPinnedOverride)),
			slog.String("session_id", current),
			slog.String("requested", sessionID),
		)
		return
	}
	s.logger.Debug("session: registered session", slog.String("session_id", sessionID))
}

// resolve fills an omitted session with the connection's current one.
func (s *Session) resolve(topic, sessionID string) broker.Subscription {
	if sessionID == "" {
		s.mu.Lock()
		sessionID = s.identity.SessionID
		s.mu.Unlock()
	}
	return broker.Subscription{Topic: topic, SessionID: sessionID}
}

func (s *Session) subscribe(topic, sessionID string) {
	sub := s.resolve(topic, sessionID)

	// Record ownership before the registry insert so cleanup never misses a
	// bucket this connection is in.
	s.mu.Lock()
	s.owned[sub] = struct{}{}
	s.mu.Unlock()

	added := s.registry.Subscribe(sub.Topic, sub.SessionID, s.outbox)
	s.logger.Debug("session: subscribed",
		slog.String("topic", sub.Topic),
		slog.String("session_id", sub.SessionID),
		slog.Bool("added", added),
	)
}

func (s *Session) unsubscribe(topic, sessionID string) {
	sub := s.resolve(topic, sessionID)

	removed := s.registry.Unsubscribe(sub.Topic, sub.SessionID, s.outbox)

	s.mu.Lock()
	delete(s.owned, sub)
	s.mu.Unlock()

	s.logger.Debug("session: unsubscribed",
		slog.String("topic", sub.Topic),
		slog.String("session_id", sub.SessionID),
		slog.Bool("removed", removed),
	)
}

func (s *Session) publish(raw string) {
	id := s.Identity()

	env, err := protocol.DecodeEnvelope(raw, id.ClientName, id.SessionID)
	if err != nil {
		metrics.ProtocolErrorsTotal.WithLabelValues("malformed_envelope").Inc()
		s.logger.Warn("session: dropping publish", slog.Any("error", err))
		return
	}

	d, err := s.router.Publish(env)
	if err != nil {
		s.logger.Error("session: publish failed", slog.Any("error", logging.WrapError(err, "publish")))
		return
	}
	s.logger.Debug("session: published",
		slog.String("topic", env.Topic),
		slog.String("session_id", env.SessionID),
		slog.Int("recipients", d.Recipients),
		slog.Int("failed", d.Failed),
	)
}
