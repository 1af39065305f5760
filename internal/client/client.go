// Package client is a Go client for the broker's websocket command protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/topicrelay/backend/internal/protocol"
)

var ErrClosed = errors.New("client closed")

const (
	defaultBuffer       = 256
	defaultWriteTimeout = 10 * time.Second
)

// Option configures Dial.
type Option func(*options)

type options struct {
	token  string
	header http.Header
	dialer *websocket.Dialer
	buffer int
	logger *slog.Logger
}

// WithToken sends token in the "token" query parameter of the upgrade.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithHeader adds headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithBuffer sets the capacity of the Messages channel.
func WithBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Client is one broker connection. Methods are safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]func(protocol.Envelope)

	messages chan protocol.Envelope
	pongs    chan struct{}
	done     chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to rawURL and registers name. An empty name skips
// registration.
func Dial(ctx context.Context, rawURL, name string, opts ...Option) (*Client, error) {
	return DialSession(ctx, rawURL, name, "", opts...)
}

// DialSession is Dial followed by register-session when sessionID is set.
func DialSession(ctx context.Context, rawURL, name, sessionID string, opts ...Option) (*Client, error) {
	o := options{dialer: websocket.DefaultDialer, buffer: defaultBuffer, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if o.token != "" {
		q := target.Query()
		q.Set("token", o.token)
		target.RawQuery = q.Encode()
	}

	conn, resp, err := o.dialer.DialContext(ctx, target.String(), o.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target.Redacted(), err)
	}

	c := &Client{
		conn:     conn,
		logger:   o.logger.With(slog.String("client", name)),
		handlers: make(map[string][]func(protocol.Envelope)),
		messages: make(chan protocol.Envelope, o.buffer),
		pongs:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	if name != "" {
		if err := c.send(protocol.FormatRegisterName(name)); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	if sessionID != "" {
		if err := c.send(protocol.FormatRegisterSession(sessionID)); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Subscribe subscribes to topic under the connection's current session.
func (c *Client) Subscribe(topic string) error {
	return c.send(protocol.FormatSubscribe(topic, ""))
}

// SubscribeSession subscribes to topic under an explicit session.
func (c *Client) SubscribeSession(topic, sessionID string) error {
	return c.send(protocol.FormatSubscribe(topic, sessionID))
}

// Unsubscribe removes a subscription. An empty sessionID means the current
// session.
func (c *Client) Unsubscribe(topic, sessionID string) error {
	return c.send(protocol.FormatUnsubscribe(topic, sessionID))
}

// Publish sends payload to topic in the connection's current session.
func (c *Client) Publish(topic, payload string) error {
	return c.PublishSession(topic, "", payload)
}

// PublishSession sends payload to topic in sessionID. The broker fills in
// the publisher name.
func (c *Client) PublishSession(topic, sessionID, payload string) error {
	doc := map[string]string{
		"topic":     topic,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if sessionID != "" {
		doc["session_id"] = sessionID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode publish: %w", err)
	}
	return c.send(protocol.PrefixPublishJSON + string(data))
}

// Ping sends the application ping and waits for its pong.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.send(protocol.Ping); err != nil {
		return err
	}
	select {
	case <-c.pongs:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnMessage registers fn for deliveries on topic. Handlers run on the read
// goroutine, before the message is offered to Messages.
func (c *Client) OnMessage(topic string, fn func(protocol.Envelope)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[topic] = append(c.handlers[topic], fn)
}

// Messages returns every delivery. It is closed when the connection ends.
// Deliveries are dropped while the channel is full.
func (c *Client) Messages() <-chan protocol.Envelope {
	return c.messages
}

// Done is closed when the read goroutine exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) send(frame string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}

		if string(data) == protocol.Pong {
			select {
			case c.pongs <- struct{}{}:
			default:
			}
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("client: ignoring undecodable frame", slog.Any("error", err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.handlersMu.RLock()
	fns := c.handlers[env.Topic]
	c.handlersMu.RUnlock()
	for _, fn := range fns {
		fn(env)
	}

	select {
	case c.messages <- env:
	default:
		c.logger.Warn("client: message buffer full, dropping delivery", slog.String("topic", env.Topic))
	}
}
