package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mskumargvd/arushi-cloud/internal/protocol"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// ErrNotConnected is returned by Emit while there is no live connection
var ErrNotConnected = errors.New("transport not connected")

// Transport is the bidirectional event channel to the management server.
// Implementations must be safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context) error
	Emit(ctx context.Context, msg *protocol.Message) error
	Connected() bool
	Incoming() <-chan *protocol.Message
	Close() error
}

// TokenSource produces the auth token presented on connect
type TokenSource interface {
	Token(identity models.AgentIdentity) (string, error)
}

// Config holds WebSocket transport settings
type Config struct {
	ServerURL      string
	Identity       models.AgentIdentity
	Tokens         TokenSource
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// WebSocket is a Transport over a single gorilla/websocket connection
type WebSocket struct {
	config   Config
	url      string
	dialer   *websocket.Dialer
	logger   *slog.Logger
	incoming chan *protocol.Message

	mu      sync.Mutex
	conn    *link
	writeMu sync.Mutex
}

// link is one live connection. done is closed when it is dropped, which
// releases a read pump waiting on a full incoming channel.
type link struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newLink(conn *websocket.Conn) *link {
	return &link{conn: conn, done: make(chan struct{})}
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// NewWebSocket creates a WebSocket transport. It does not connect.
func NewWebSocket(config Config, logger *slog.Logger) (*WebSocket, error) {
	wsURL, err := BuildURL(config.ServerURL)
	if err != nil {
		return nil, err
	}
	if config.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	return &WebSocket{
		config: config,
		url:    wsURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.ConnectTimeout,
		},
		logger:   logger,
		incoming: make(chan *protocol.Message, 64),
	}, nil
}

// BuildURL maps the configured server address to the agent WebSocket
// endpoint: http becomes ws, https becomes wss and an empty path becomes
// /agent.
func BuildURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/agent"
	}
	return u.String(), nil
}

// URL returns the resolved WebSocket endpoint
func (w *WebSocket) URL() string {
	return w.url
}

// Connect dials the server, presenting the identity token. An existing
// connection is replaced.
func (w *WebSocket) Connect(ctx context.Context) error {
	token, err := w.config.Tokens.Token(w.config.Identity)
	if err != nil {
		return fmt.Errorf("failed to create auth token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Agent-ID", w.config.Identity.ID)

	dialCtx, cancel := context.WithTimeout(ctx, w.config.ConnectTimeout)
	defer cancel()

	conn, resp, err := w.dialer.DialContext(dialCtx, w.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(protocol.MaxMessageSize)
	l := newLink(conn)

	w.mu.Lock()
	old := w.conn
	w.conn = l
	w.mu.Unlock()

	if old != nil {
		old.close()
	}

	go w.readPump(l)

	w.logger.Info("Connected to server", "url", w.url)
	return nil
}

// Emit writes one message. Any write failure drops the connection.
func (w *WebSocket) Emit(ctx context.Context, msg *protocol.Message) error {
	w.mu.Lock()
	l := w.conn
	w.mu.Unlock()

	if l == nil {
		return ErrNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Event, err)
	}

	deadline := time.Now().Add(w.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	l.conn.SetWriteDeadline(deadline)
	err = l.conn.WriteMessage(websocket.TextMessage, data)
	w.writeMu.Unlock()

	if err != nil {
		w.drop(l)
		return fmt.Errorf("failed to send %s: %w", msg.Event, err)
	}
	return nil
}

// Connected reports whether a connection is live
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Incoming delivers server events. The channel survives reconnects.
func (w *WebSocket) Incoming() <-chan *protocol.Message {
	return w.incoming
}

// Close closes the current connection, if any
func (w *WebSocket) Close() error {
	w.mu.Lock()
	l := w.conn
	w.conn = nil
	w.mu.Unlock()

	if l == nil {
		return nil
	}

	w.writeMu.Lock()
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()

	l.close()
	return nil
}

func (w *WebSocket) readPump(l *link) {
	defer w.drop(l)

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				w.logger.Warn("Receive error", "error", err)
			}
			return
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			w.logger.Warn("Dropping malformed message", "error", err)
			continue
		}

		select {
		case w.incoming <- msg:
		case <-l.done:
			return
		}
	}
}

// drop forgets l if it is still the current connection
func (w *WebSocket) drop(l *link) {
	w.mu.Lock()
	current := w.conn == l
	if current {
		w.conn = nil
	}
	w.mu.Unlock()

	if current {
		w.logger.Warn("Connection lost")
	}
	l.close()
}
