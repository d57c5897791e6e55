// Package live multiplexes resource subscriptions over one shared websocket.
//
// A Manager owns the connection, the listener registry and the per-resource
// durable subscriptions. Every subscribe or unsubscribe is a request/response
// exchange correlated through a one-shot listener; exchanges for the same
// resource are serialized so responses can never be attributed to the wrong
// request.
package live

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/projectify/live/config"
	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/retry"
	"github.com/projectify/live/pkg/transport"
)

// State is the connection state of a Manager.
type State int

const (
	// StateUndefined means no socket was ever requested.
	StateUndefined State = iota
	StateConnecting
	StateOpened
	StateClosed
	// StateReopened is an open connection that replaced a closed or failed one.
	StateReopened
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "undefined"
	case StateConnecting:
		return "connecting"
	case StateOpened:
		return "opened"
	case StateClosed:
		return "closed"
	case StateReopened:
		return "reopened"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Open reports whether messages can flow.
func (s State) Open() bool {
	return s == StateOpened || s == StateReopened
}

// Options configure a Manager.
type Options struct {
	// URL is the absolute websocket endpoint, see transport.ResolveURL.
	URL string
	// Interactive false turns every subscribe into a server rendering result.
	Interactive bool
	Transport   transport.Settings
	// Reconnect is the backoff used to re-dial after a close or error.
	Reconnect retry.Policy
	// RequestTimeout bounds a single exchange. Zero waits for a response or
	// a reconnect.
	RequestTimeout time.Duration
	Logger         *logrus.Entry
	Metrics        metrics.Registry
}

// OptionsFromConfig derives manager options from live.yml.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	wsURL, err := EndpointURL(cfg.APIURL, cfg.WSPath)
	if err != nil {
		return Options{}, err
	}
	return Options{
		URL:         wsURL,
		Interactive: cfg.IsInteractive(),
		Transport: transport.Settings{
			HandshakeTimeout: cfg.Connection.HandshakeTimeout.Std(),
			WriteTimeout:     cfg.Connection.WriteTimeout.Std(),
			PingInterval:     cfg.Connection.PingInterval.Std(),
		},
		Reconnect:      retry.FromConfig(cfg.Retry),
		RequestTimeout: cfg.Connection.RequestTimeout.Std(),
	}, nil
}

// EndpointURL resolves the websocket endpoint for an API base URL and a
// websocket path, appending the protocol suffix.
func EndpointURL(apiURL, wsPath string) (string, error) {
	host, secure := "", false
	if apiURL != "" {
		u, err := parseBase(apiURL)
		if err != nil {
			return "", err
		}
		host, secure = u.Host, u.Scheme == "https"
	}
	return transport.ResolveURL(strings.TrimRight(wsPath, "/")+protocol.EndpointSuffix, host, secure)
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid API URL").WithDetail("api_url", raw)
	}
	if u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "API URL has no host").WithDetail("api_url", raw)
	}
	return u, nil
}

// UnsubscribeResult describes how an unsubscribe ended.
type UnsubscribeResult int

const (
	// UnsubscribeClean means the server confirmed, or other handles still
	// share the subscription.
	UnsubscribeClean UnsubscribeResult = iota
	// UnsubscribeCrashed means the connection was reset first, which already
	// dropped the subscription on the server.
	UnsubscribeCrashed
	// UnsubscribeNotSubscribed means there was nothing to unsubscribe.
	UnsubscribeNotSubscribed
)

func (r UnsubscribeResult) String() string {
	switch r {
	case UnsubscribeClean:
		return "clean"
	case UnsubscribeCrashed:
		return "crashed"
	case UnsubscribeNotSubscribed:
		return "not_subscribed"
	}
	return "unknown"
}

// Manager is a connection manager. The zero value is not usable; use New.
type Manager struct {
	opts      Options
	logger    *logrus.Entry
	transport *transport.Transport
	registry  *Registry
	stats     *stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	everOpened   bool
	epoch        uint64
	closed       bool
	reconnecting bool
	durable      map[protocol.Resource]*durableEntry
	locks        map[protocol.Resource]*resourceLock
	watchers     map[int]func(State)
	nextWatcher  int
}

// New creates a Manager. No connection is made until the first subscribe.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("live")
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		logger:   logger,
		registry: NewRegistry(logger.WithField("scope", "registry")),
		stats:    newStats(reg),
		ctx:      ctx,
		cancel:   cancel,
		durable:  make(map[protocol.Resource]*durableEntry),
		locks:    make(map[protocol.Resource]*resourceLock),
		watchers: make(map[int]func(State)),
	}
	m.transport = transport.New(opts.URL, opts.Transport, transport.Handlers{
		OnOpen:    m.handleOpen,
		OnClose:   m.handleClose,
		OnError:   m.handleError,
		OnMessage: m.handleMessage,
	}, logger.WithField("scope", "transport"))
	return m
}

// Interactive reports whether subscriptions are enabled.
func (m *Manager) Interactive() bool {
	return m.opts.Interactive
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the connection is currently open.
func (m *Manager) Online() bool {
	return m.State().Open()
}

// OnStateChange registers fn for every state transition. fn runs
// synchronously on the goroutine causing the transition and must not block.
// The returned function unregisters it.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Registry exposes the listener registry, mostly for diagnostics.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// setStateLocked updates the state and returns the watchers to notify once
// the lock is released.
func (m *Manager) setStateLocked(s State) []func(State) {
	if m.state == s {
		return nil
	}
	m.logger.WithFields(logrus.Fields{"from": m.state.String(), "to": s.String()}).Info("Connection state changed")
	m.state = s
	watchers := make([]func(State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	return watchers
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}

// Open dials the endpoint unless the connection is already open.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeManagerClosed, "connection manager is closed")
	}
	var watchers []func(State)
	if !m.state.Open() {
		watchers = m.setStateLocked(StateConnecting)
	}
	m.mu.Unlock()
	notify(watchers, StateConnecting)

	return m.transport.Open(ctx)
}

func (m *Manager) handleOpen() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	reopen := m.everOpened
	m.everOpened = true
	m.epoch++
	next := StateOpened
	var flushed []*Listener
	var orphans []*Subscription
	if reopen {
		next = StateReopened
		// The server forgot everything with the old socket. Drop the
		// listeners first so nobody tries to unsubscribe stale state.
		flushed = m.registry.Flush()
		for res, entry := range m.durable {
			orphans = append(orphans, entry.kill(deadReconnect)...)
			delete(m.durable, res)
		}
	}
	watchers := m.setStateLocked(next)
	m.stats.listeners.Update(int64(m.registry.Len()))
	m.mu.Unlock()

	notify(watchers, next)
	if !reopen {
		return
	}

	m.stats.reconnects.Inc(1)
	m.logger.WithFields(logrus.Fields{
		"listeners":     len(flushed),
		"subscriptions": len(orphans),
	}).Info("Reconnected, re-establishing subscriptions")
	for _, l := range flushed {
		if l.OnReconnect != nil {
			l.OnReconnect()
		}
	}
	for _, s := range orphans {
		s.reconnectAsync()
	}
}

func (m *Manager) handleClose(err error) {
	m.lostConnection(StateClosed, err)
}

func (m *Manager) handleError(err error) {
	m.lostConnection(StateErrored, err)
}

func (m *Manager) lostConnection(next State, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	watchers := m.setStateLocked(next)
	start := !m.reconnecting && m.registry.Len() > 0
	if start {
		m.reconnecting = true
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.WithError(err).WithField("state", next.String()).Debug("Connection lost")
	}
	notify(watchers, next)
	if start {
		go m.reconnectLoop()
	}
}

// reconnectLoop re-dials under backoff while anyone is listening.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()
	for {
		err := retry.Do(m.ctx, m.opts.Reconnect, retry.Options{Name: "reconnect", Logger: m.logger},
			func(ctx context.Context) error {
				if m.registry.Len() == 0 {
					return nil
				}
				return m.transport.Open(ctx)
			})
		if err != nil && m.ctx.Err() == nil {
			m.logger.WithError(err).Error("Giving up reconnecting until the next request")
		}

		m.mu.Lock()
		again := err == nil && !m.closed && !m.state.Open() && m.registry.Len() > 0
		if !again {
			m.reconnecting = false
		}
		m.mu.Unlock()
		if !again {
			return
		}
	}
}

func (m *Manager) handleMessage(data []byte) {
	m.stats.received.Inc(1)
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		m.logger.WithError(err).Error("Dropping undecodable message")
		return
	}
	m.logger.WithFields(logrus.Fields{
		"kind":     string(resp.Kind),
		"resource": resp.Source().String(),
	}).Debug("Frame received")

	matched, err := m.registry.Dispatch(resp)
	if !matched {
		m.stats.unmatched.Inc(1)
	}
	if err != nil {
		m.stats.dispatchErrors.Inc(1)
	}
}

// Close tears the connection down and stops reconnecting. Subscriptions are
// not unsubscribed; the server drops them with the socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watchers := m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.cancel()
	err := m.transport.Close()
	m.wg.Wait()
	notify(watchers, StateClosed)
	return err
}

// send encodes and writes one request.
func (m *Manager) send(ctx context.Context, req protocol.Request) error {
	data, err := protocol.Encode(req)
	if err != nil {
		return err
	}
	if err := m.transport.Send(ctx, data); err != nil {
		return err
	}
	m.stats.sent.Inc(1)
	m.logger.WithFields(logrus.Fields{
		"action":   string(req.Action),
		"resource": req.Target().String(),
	}).Debug("Frame sent")
	return nil
}

type exchangeResult struct {
	resp        protocol.Response
	reconnected bool
}

// exchange sends req and waits for the first response whose kind is in
// kinds. A reopen while waiting yields reconnected=true.
func (m *Manager) exchange(ctx context.Context, req protocol.Request, kinds protocol.KindSet) (exchangeResult, error) {
	if m.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.RequestTimeout)
		defer cancel()
	}

	results := make(chan exchangeResult, 1)
	l := NewTransientListener(req.Target(), kinds,
		func(resp protocol.Response) error {
			select {
			case results <- exchangeResult{resp: resp}:
			default:
			}
			return nil
		},
		func() {
			select {
			case results <- exchangeResult{reconnected: true}:
			default:
			}
		})
	if err := m.registry.Add(l); err != nil {
		return exchangeResult{}, err
	}

	if err := m.send(ctx, req); err != nil {
		m.registry.Discard(l)
		return exchangeResult{}, err
	}

	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		m.registry.Discard(l)
		return exchangeResult{}, errors.Wrap(ctx.Err(), errors.ErrCodeTransportClosed, "no response to "+string(req.Action)).
			WithDetail("resource", req.Target().String())
	case <-m.ctx.Done():
		m.registry.Discard(l)
		return exchangeResult{}, errors.New(errors.ErrCodeManagerClosed, "connection manager is closed")
	}
}

type resourceLock struct {
	sem  *semaphore.Weighted
	refs int
}

// lockResource serializes exchanges for one resource in FIFO order.
func (m *Manager) lockResource(ctx context.Context, res protocol.Resource) (func(), error) {
	m.mu.Lock()
	rl, ok := m.locks[res]
	if !ok {
		rl = &resourceLock{sem: semaphore.NewWeighted(1)}
		m.locks[res] = rl
	}
	rl.refs++
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(m.locks, res)
		}
		m.mu.Unlock()
	}

	if err := rl.sem.Acquire(ctx, 1); err != nil {
		release()
		return nil, err
	}
	return func() {
		rl.sem.Release(1)
		release()
	}, nil
}
