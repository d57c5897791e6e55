package live

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

type deadReason int

const (
	alive deadReason = iota
	// deadReconnect: the socket was replaced, the server forgot us.
	deadReconnect
	// deadGone: the resource was deleted.
	deadGone
	// deadUnsubscribed: the subscription was torn down for the resource.
	deadUnsubscribed
)

// durableEntry is the single server-side subscription for a resource, shared
// by every Subscription handle attached to it.
type durableEntry struct {
	m        *Manager
	res      protocol.Resource
	listener *Listener
	handles  []*Subscription
}

// kill detaches every handle. Must hold m.mu.
func (e *durableEntry) kill(reason deadReason) []*Subscription {
	handles := e.handles
	for _, h := range handles {
		h.dead = reason
		h.entry = nil
	}
	e.handles = nil
	return handles
}

func (e *durableEntry) deliver(resp protocol.Response) error {
	m := e.m
	m.mu.Lock()
	handles := append([]*Subscription(nil), e.handles...)
	if resp.Kind == protocol.KindGone {
		// The server drops subscriptions of deleted resources itself.
		e.kill(deadGone)
		if m.durable[e.res] == e {
			delete(m.durable, e.res)
		}
		m.registry.Discard(e.listener)
		m.stats.listeners.Update(int64(m.registry.Len()))
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, h := range handles {
		if err := h.onChange(resp); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Subscription is one caller's handle on a live resource subscription.
type Subscription struct {
	m           *Manager
	res         protocol.Resource
	onChange    func(protocol.Response) error
	onReconnect func()

	// guarded by m.mu
	entry *durableEntry
	dead  deadReason
}

// Resource returns the subscribed resource.
func (s *Subscription) Resource() protocol.Resource {
	return s.res
}

// Active reports whether the handle still receives updates.
func (s *Subscription) Active() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.entry != nil
}

// SubscribeToResource subscribes to live updates of res. onChange receives
// changed and gone messages on the dispatch goroutine and must not block on
// the network. onReconnect runs in its own goroutine when the subscription
// was lost to a reconnect or torn down underneath the caller; the caller is
// expected to subscribe again.
//
// Errors: SERVER_RENDERING outside an interactive context, RESOURCE_NOT_FOUND
// when the server does not know res, RECONNECTED when the connection was
// replaced mid-exchange.
func (m *Manager) SubscribeToResource(ctx context.Context, res protocol.Resource, onChange func(protocol.Response) error, onReconnect func()) (*Subscription, error) {
	if !m.opts.Interactive {
		return nil, errors.ServerRendering()
	}
	if !res.Type.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown resource type "+string(res.Type))
	}

	unlock, err := m.lockResource(ctx, res)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := m.Open(ctx); err != nil {
		m.stats.subscribeFailed.Inc(1)
		return nil, err
	}
	epoch := m.currentEpoch()

	start := time.Now()
	result, err := m.exchange(ctx, protocol.Subscribe(res), protocol.SubscribeResponseKinds)
	if err != nil {
		m.stats.subscribeFailed.Inc(1)
		return nil, err
	}
	log := m.logger.WithField("resource", res.String())
	if result.reconnected {
		m.stats.subscribeFailed.Inc(1)
		log.Info("Reconnected while subscribing")
		return nil, errors.Reconnected(string(res.Type), res.UUID)
	}

	switch result.resp.Kind {
	case protocol.KindNotFound:
		m.stats.subscribeFailed.Inc(1)
		return nil, errors.ResourceNotFound(string(res.Type), res.UUID)
	case protocol.KindAlreadySubscribed:
		log.Info("Already subscribed")
	case protocol.KindSubscribed:
	default:
		return nil, errors.UnexpectedKind(string(result.resp.Kind), string(res.Type), res.UUID)
	}

	sub, err := m.attach(res, epoch, onChange, onReconnect)
	if err != nil {
		m.stats.subscribeFailed.Inc(1)
		return nil, err
	}
	m.stats.subscribeTime.Update(int64(time.Since(start)))
	log.WithField("kind", string(result.resp.Kind)).Debug("Subscribed")
	return sub, nil
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// attach joins or creates the durable entry for res. It fails with
// RECONNECTED if the connection was replaced since epoch, because the
// server-side subscription belonged to the old socket.
func (m *Manager) attach(res protocol.Resource, epoch uint64, onChange func(protocol.Response) error, onReconnect func()) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New(errors.ErrCodeManagerClosed, "connection manager is closed")
	}
	if m.epoch != epoch {
		return nil, errors.Reconnected(string(res.Type), res.UUID)
	}

	entry := m.durable[res]
	if entry == nil {
		entry = &durableEntry{m: m, res: res}
		// Reopens are handled for all entries at once in handleOpen.
		entry.listener = NewListener(res, protocol.LiveKinds, entry.deliver, nil)
		if err := m.registry.Add(entry.listener); err != nil {
			return nil, err
		}
		m.durable[res] = entry
	}

	sub := &Subscription{
		m:           m,
		res:         res,
		onChange:    onChange,
		onReconnect: onReconnect,
		entry:       entry,
	}
	entry.handles = append(entry.handles, sub)
	m.stats.listeners.Update(int64(m.registry.Len()))
	return sub, nil
}

func (s *Subscription) reconnectAsync() {
	if s.onReconnect == nil {
		return
	}
	go s.onReconnect()
}

// Unsubscribe detaches this handle. The server-side subscription is only
// cancelled when the last handle leaves.
func (s *Subscription) Unsubscribe(ctx context.Context) (UnsubscribeResult, error) {
	m := s.m
	unlock, err := m.lockResource(ctx, s.res)
	if err != nil {
		return UnsubscribeClean, err
	}
	defer unlock()

	m.mu.Lock()
	entry := s.entry
	if entry == nil {
		reason := s.dead
		m.mu.Unlock()
		if reason == deadReconnect {
			return UnsubscribeCrashed, nil
		}
		return UnsubscribeNotSubscribed, nil
	}
	entry.remove(s)
	s.entry = nil
	s.dead = deadUnsubscribed
	last := len(entry.handles) == 0
	m.mu.Unlock()

	if !last {
		return UnsubscribeClean, nil
	}
	return m.unsubscribeLocked(ctx, s.res)
}

func (e *durableEntry) remove(s *Subscription) {
	for i, h := range e.handles {
		if h == s {
			e.handles = append(e.handles[:i], e.handles[i+1:]...)
			return
		}
	}
}

// UnsubscribeFromResource cancels the server-side subscription of res for
// every handle. Handles that were still attached are told to resubscribe
// through their reconnect handler.
func (m *Manager) UnsubscribeFromResource(ctx context.Context, res protocol.Resource) (UnsubscribeResult, error) {
	unlock, err := m.lockResource(ctx, res)
	if err != nil {
		return UnsubscribeClean, err
	}
	defer unlock()
	return m.unsubscribeLocked(ctx, res)
}

// unsubscribeLocked runs the unsubscribe exchange. The caller holds the
// resource lock.
func (m *Manager) unsubscribeLocked(ctx context.Context, res protocol.Resource) (UnsubscribeResult, error) {
	if !m.opts.Interactive {
		return UnsubscribeNotSubscribed, nil
	}
	epoch := m.currentEpoch()

	result, err := m.exchange(ctx, protocol.Unsubscribe(res), protocol.UnsubscribeResponseKinds)
	if err != nil {
		m.dropUnowned(res)
		return UnsubscribeClean, err
	}
	log := m.logger.WithField("resource", res.String())
	if result.reconnected {
		log.Info("Reconnected while unsubscribing")
		return UnsubscribeCrashed, nil
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// A reopen slipped in after the response was delivered; the flush
		// already removed the durable listener.
		m.mu.Unlock()
		return UnsubscribeCrashed, nil
	}
	var orphans []*Subscription
	entry := m.durable[res]
	if entry != nil {
		delete(m.durable, res)
		orphans = entry.kill(deadUnsubscribed)
		if err := m.registry.Remove(entry.listener); err != nil {
			m.mu.Unlock()
			return UnsubscribeClean, err
		}
		m.stats.listeners.Update(int64(m.registry.Len()))
	}
	m.mu.Unlock()

	for _, h := range orphans {
		h.reconnectAsync()
	}

	switch result.resp.Kind {
	case protocol.KindUnsubscribed:
		log.WithField("orphans", len(orphans)).Debug("Unsubscribed")
		return UnsubscribeClean, nil
	case protocol.KindNotSubscribed:
		log.Warn("Server had no subscription to cancel")
		return UnsubscribeNotSubscribed, nil
	}
	return UnsubscribeClean, errors.UnexpectedKind(string(result.resp.Kind), string(res.Type), res.UUID)
}

// dropUnowned forgets the durable entry of res when no handle is attached
// any more, so a failed unsubscribe does not keep the reconnect loop dialing.
func (m *Manager) dropUnowned(res protocol.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.durable[res]
	if entry == nil || len(entry.handles) > 0 {
		return
	}
	delete(m.durable, res)
	m.registry.Discard(entry.listener)
	m.stats.listeners.Update(int64(m.registry.Len()))
}

// Subscriptions lists the resources with a live server-side subscription.
func (m *Manager) Subscriptions() []protocol.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Resource, 0, len(m.durable))
	for res := range m.durable {
		out = append(out, res)
	}
	return out
}
