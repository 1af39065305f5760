// Package session runs one broker connection: a reader that applies inbound
// commands to the shared registry and a writer that drains the connection's
// outbox to the socket. When either stops, both are joined and every
// subscription the connection owns is released from the registry.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/metrics"
)

const defaultWriteTimeout = 10 * time.Second

// Conn is the duplex frame transport of a connection. *websocket.Conn
// satisfies it. ReadMessage is only called by the reader; WriteMessage and
// SetWriteDeadline only by the writer.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// State is the lifecycle stage of a Session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tunes a Session.
type Options struct {
	// WriteTimeout bounds each socket write. Zero uses 10s.
	WriteTimeout time.Duration
	// PingInterval is how long the writer may idle before sending a
	// transport ping. Zero disables pings.
	PingInterval time.Duration
	// Logger receives the connection's logs. Nil uses slog.Default().
	Logger *slog.Logger
	// RemoteAddr is attached to log records.
	RemoteAddr string
}

// Session is one live connection.
type Session struct {
	id       string
	conn     Conn
	registry *broker.Registry
	router   *broker.Router
	outbox   *broker.Outbox
	opts     Options
	logger   *slog.Logger
	state    atomic.Int32

	// mu guards identity and owned. Both are written only by the reader;
	// the lock makes them readable from other goroutines.
	mu       sync.Mutex
	identity Identity
	owned    map[broker.Subscription]struct{}
}

// New creates a Session in the Connecting state. The identity is fixed at
// this point: pass FromClaims for a verified token, Anonymous otherwise.
func New(conn Conn, registry *broker.Registry, router *broker.Router, identity Identity, opts Options) *Session {
	id := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("conn_id", id))
	if opts.RemoteAddr != "" {
		logger = logger.With(slog.String("remote", opts.RemoteAddr))
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	return &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		router:   router,
		outbox:   broker.NewOutbox(),
		opts:     opts,
		logger:   logger,
		identity: identity,
		owned:    make(map[broker.Subscription]struct{}),
	}
}

// ID returns the connection id used in logs.
func (s *Session) ID() string {
	return s.id
}

// Outbox returns the connection's registry handle.
func (s *Session) Outbox() *broker.Outbox {
	return s.outbox
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Identity returns a copy of the connection's identity.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Subscriptions returns the (topic, session) pairs the connection owns,
// sorted by topic then session.
func (s *Session) Subscriptions() []broker.Subscription {
	s.mu.Lock()
	subs := make([]broker.Subscription, 0, len(s.owned))
	for sub := range s.owned {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	slices.SortFunc(subs, func(a, b broker.Subscription) int {
		if c := cmp.Compare(a.Topic, b.Topic); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	return subs
}

// Run starts the reader and writer and blocks until both have stopped and
// the connection's subscriptions are released. Cancelling ctx closes the
// connection. The returned error is the first transport failure or
// recovered panic; a normal close returns nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return fmt.Errorf("session %s: already started", s.id)
	}
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	id := s.Identity()
	s.logger.Info("session: connection active",
		slog.String("client_name", id.ClientName),
		slog.String("session_id", id.SessionID),
		slog.Bool("identity_pinned", id.NamePinned),
		slog.Bool("session_pinned", id.SessionPinned),
	)

	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	var g errgroup.Group
	g.Go(func() error { return s.guard("reader", s.readLoop) })
	g.Go(func() error { return s.guard("writer", s.writeLoop) })
	err := g.Wait()

	s.cleanup()

	if err != nil {
		s.logger.Warn("session: connection closed with error", slog.Any("error", logging.WrapError(err, "session "+s.id)))
	} else {
		s.logger.Info("session: connection closed")
	}
	return err
}

// close moves the session to Closing and unblocks both activities. It is
// safe to call from any goroutine, any number of times.
func (s *Session) close() {
	s.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
	s.outbox.Close()
	_ = s.conn.Close()
}

// closing reports whether shutdown was initiated by someone else, in which
// case the resulting transport errors are expected.
func (s *Session) closing() bool {
	return s.State() != StateActive
}

// guard runs one activity. A panic is converted into an error and the
// connection is closed so the other activity stops too.
func (s *Session) guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", name, r)
			s.close()
		}
	}()
	return fn()
}

func (s *Session) cleanup() {
	subs := s.Subscriptions()
	removed := s.registry.Release(s.outbox, subs)

	s.mu.Lock()
	clear(s.owned)
	s.mu.Unlock()

	s.state.Store(int32(StateClosed))
	s.logger.Debug("session: cleanup complete",
		slog.Int("owned", len(subs)),
		slog.Int("released", removed),
	)
}

func (s *Session) readLoop() error {
	defer s.close()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing() || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if messageType != websocket.TextMessage {
			metrics.ProtocolErrorsTotal.WithLabelValues("non_text_frame").Inc()
			s.logger.Warn("session: ignoring non-text frame", slog.Int("message_type", messageType))
			continue
		}

		s.handleFrame(string(data))
	}
}

func (s *Session) writeLoop() error {
	defer s.close()

	for {
		frame, err := s.nextFrame()
		if errors.Is(err, broker.ErrPollTimeout) {
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				if s.closing() {
					return nil
				}
				return fmt.Errorf("write ping: %w", err)
			}
			continue
		}
		if err != nil {
			// Outbox closed: the reader finished or shutdown began.
			return nil
		}

		if err := s.write(frame); err != nil {
			if s.closing() {
				return nil
			}
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

func (s *Session) nextFrame() (string, error) {
	if s.opts.PingInterval > 0 {
		return s.outbox.Poll(s.opts.PingInterval)
	}
	return s.outbox.Next()
}

func (s *Session) write(frame string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
