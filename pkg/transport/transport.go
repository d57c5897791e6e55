// Package transport owns a single websocket connection to one endpoint and
// exposes it as discrete text messages plus lifecycle callbacks.
//
// A Transport never reconnects on its own. When the socket closes or fails the
// OnClose/OnError handler fires and the next Open or Send dials again.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
)

// Settings controls dial and keepalive behavior.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings. The read deadline is twice the
	// interval. Zero disables both.
	PingInterval time.Duration
	Header       http.Header
	Jar          http.CookieJar
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Handlers receive connection events. OnMessage is called from the read loop
// in arrival order. OnOpen runs before the read loop starts and must not block
// on Send.
type Handlers struct {
	OnOpen    func()
	OnClose   func(err error)
	OnError   func(err error)
	OnMessage func(data []byte)
}

// ResolveURL turns a possibly relative websocket path into an absolute ws://
// or wss:// URL using host and the secure flag. Absolute http(s) and ws(s)
// URLs are converted to the matching websocket scheme.
func ResolveURL(path, host string, secure bool) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid websocket path").WithDetail("path", path)
	}
	switch u.Scheme {
	case "ws", "wss":
		return u.String(), nil
	case "http":
		u.Scheme = "ws"
		return u.String(), nil
	case "https":
		u.Scheme = "wss"
		return u.String(), nil
	case "":
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unsupported websocket scheme "+u.Scheme).WithDetail("path", path)
	}

	if host == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "a host is required to resolve a relative websocket path").
			WithDetail("path", path)
	}
	u.Host = host
	u.Scheme = "ws"
	if secure {
		u.Scheme = "wss"
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String(), nil
}

// Transport is a lazily dialed websocket connection.
type Transport struct {
	url      string
	settings Settings
	handlers Handlers
	dialer   *websocket.Dialer
	logger   *logrus.Entry

	mu      sync.Mutex
	conn    *connection
	dialing chan struct{}
	dialErr error
	closed  bool
	wg      sync.WaitGroup
}

type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// New creates a transport for an absolute websocket URL. No connection is
// made until Open or Send.
func New(rawURL string, settings Settings, handlers Handlers, logger *logrus.Entry) *Transport {
	if logger == nil {
		logger = logging.NewLogger("transport")
	}
	return &Transport{
		url:      rawURL,
		settings: settings,
		handlers: handlers,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
			Jar:              settings.Jar,
		},
		logger: logger.WithField("url", rawURL),
	}
}

// URL returns the endpoint this transport dials.
func (t *Transport) URL() string {
	return t.url
}

// Connected reports whether a socket is currently open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Open dials the endpoint unless a connection is already open. Concurrent
// callers share a single dial.
func (t *Transport) Open(ctx context.Context) error {
	_, err := t.ensure(ctx)
	return err
}

func (t *Transport) ensure(ctx context.Context) (*connection, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New(errors.ErrCodeTransportClosed, "transport is closed")
	}
	if t.conn != nil {
		c := t.conn
		t.mu.Unlock()
		return c, nil
	}
	if wait := t.dialing; wait != nil {
		t.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		t.mu.Lock()
		c, err := t.conn, t.dialErr
		t.mu.Unlock()
		if c == nil && err == nil {
			err = errors.New(errors.ErrCodeTransportClosed, "connection closed right after opening")
		}
		return c, err
	}

	done := make(chan struct{})
	t.dialing = done
	t.mu.Unlock()

	c, err := t.dial(ctx)
	if err != nil {
		t.finishDial(done, nil, err)
		t.logger.WithError(err).Debug("Dial failed")
		if t.handlers.OnError != nil {
			t.handlers.OnError(err)
		}
		return nil, err
	}

	t.logger.Debug("Connection opened")
	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}
	if err := t.finishDial(done, c, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// finishDial publishes the outcome of a dial to waiting callers and starts the
// connection loops. The connection only becomes visible after OnOpen ran.
func (t *Transport) finishDial(done chan struct{}, c *connection, err error) error {
	t.mu.Lock()
	defer close(done)
	defer t.mu.Unlock()

	t.dialing = nil
	if c != nil && t.closed {
		c.shutdown()
		c = nil
		err = errors.New(errors.ErrCodeTransportClosed, "transport closed while dialing")
	}
	t.dialErr = err
	if c == nil {
		return err
	}

	t.conn = c
	t.wg.Add(1)
	go t.readLoop(c)
	if t.settings.PingInterval > 0 {
		t.wg.Add(1)
		go t.pingLoop(c)
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) (*connection, error) {
	ws, resp, err := t.dialer.DialContext(ctx, t.url, t.settings.Header)
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrCodeTransportClosed, "failed to connect")
		if resp != nil {
			wrapped = wrapped.WithDetail("status", resp.StatusCode)
		}
		return nil, wrapped
	}
	if t.settings.PingInterval > 0 {
		wait := 2 * t.settings.PingInterval
		ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}
	return &connection{ws: ws, done: make(chan struct{})}, nil
}

// Send writes one text message, dialing first if needed.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	c, err := t.ensure(ctx)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if t.settings.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop observes the broken socket and reports it.
		c.shutdown()
		return errors.Wrap(err, errors.ErrCodeTransportClosed, "failed to send message")
	}
	t.logger.WithField("bytes", len(data)).Trace("Frame sent")
	return nil
}

func (t *Transport) readLoop(c *connection) {
	defer t.wg.Done()
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			t.detach(c)
			t.report(err)
			return
		}
		if messageType != websocket.TextMessage {
			t.logger.WithField("type", messageType).Debug("Ignoring non-text frame")
			continue
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(data)
		}
	}
}

func (t *Transport) pingLoop(c *connection) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.settings.PingInterval)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.logger.WithError(err).Debug("Ping failed")
				c.shutdown()
				return
			}
		}
	}
}

func (t *Transport) detach(c *connection) {
	c.shutdown()
	t.mu.Lock()
	if t.conn == c {
		t.conn = nil
	}
	t.mu.Unlock()
}

func (t *Transport) report(err error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	switch {
	case closed:
		t.logger.Debug("Connection closed locally")
		if t.handlers.OnClose != nil {
			t.handlers.OnClose(nil)
		}
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		t.logger.WithError(err).Info("Connection closed by peer")
		if t.handlers.OnClose != nil {
			t.handlers.OnClose(err)
		}
	default:
		t.logger.WithError(err).Warn("Connection failed")
		if t.handlers.OnError != nil {
			t.handlers.OnError(err)
		}
	}
}

// Close shuts the connection down permanently and waits for the read loop to
// exit. Further Open and Send calls fail. It must not be called from a handler.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	c := t.conn
	t.mu.Unlock()

	if c != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.shutdown()
	}
	t.wg.Wait()
	return nil
}

// Drop closes the current socket without marking the transport closed, as if
// the network had failed. The next Open or Send dials again.
func (t *Transport) Drop() {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()
	if c != nil {
		c.shutdown()
	}
}
