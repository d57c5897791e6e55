// Package cache keeps the current value of one live resource per resource
// type, fetched over REST and then kept fresh by a websocket subscription.
//
// All transitions (LoadUUID, Reset, the tail of a gone message and the
// reconnect handler) run one at a time in FIFO order, so an earlier slow load
// can never overwrite the result of a later one.
package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/live"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/retry"
)

// State is the load state of a cache.
type State int

const (
	// StateStart means nothing is loaded, or the last load found nothing.
	StateStart State = iota
	// StateSSR means the value was fetched once without a subscription.
	StateSSR
	// StateReady means the value is fetched and kept live.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSSR:
		return "ssr"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// Getter fetches the current representation of a resource. It returns
// (nil, nil) when the resource does not exist.
type Getter[T any] func(ctx context.Context, uuid string) (*T, error)

// Subscriber opens live subscriptions. *live.Manager implements it.
type Subscriber interface {
	Interactive() bool
	SubscribeToResource(ctx context.Context, res protocol.Resource, onChange func(protocol.Response) error, onReconnect func()) (*live.Subscription, error)
}

// Options configure a Cache.
type Options[T any] struct {
	Type       protocol.ResourceType
	Subscriber Subscriber
	Getter     Getter[T]
	// Retry applies to fetches and subscribes.
	Retry retry.Policy
	// Decode turns changed content into a value. Defaults to encoding/json.
	Decode func(content json.RawMessage) (*T, error)
	Logger *logrus.Entry
}

// Cache holds the value of the resource with the current uuid.
type Cache[T any] struct {
	typ    protocol.ResourceType
	sub    Subscriber
	get    Getter[T]
	policy retry.Policy
	decode func(json.RawMessage) (*T, error)
	logger *logrus.Entry

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	uuid   string
	value  *T
	handle *live.Subscription
	// gen changes on every teardown; callbacks of older subscriptions
	// compare against it and turn into no-ops.
	gen uint64
	// received is set when a live message replaced the value after the
	// last fetch started.
	received bool
	closed   bool
	// queued counts LoadUUID and Reset calls waiting for the FIFO lock.
	// A running resubscribe gives way to them through cancelResub.
	queued      int
	cancelResub context.CancelFunc

	watchers    map[int]func(Value[T])
	nextWatcher int
	pubSeq      uint64

	pubMu     sync.Mutex
	delivered uint64
}

// New creates an empty cache.
func New[T any](opts Options[T]) *Cache[T] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("cache")
	}
	decode := opts.Decode
	if decode == nil {
		decode = func(content json.RawMessage) (*T, error) {
			v := new(T)
			if err := json.Unmarshal(content, v); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeProtocolDecode, "failed to decode resource content")
			}
			return v, nil
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		typ:      opts.Type,
		sub:      opts.Subscriber,
		get:      opts.Getter,
		policy:   opts.Retry,
		decode:   decode,
		logger:   logger.WithField("resource_type", string(opts.Type)),
		sem:      semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[int]func(Value[T])),
	}
}

// Type returns the resource type the cache holds.
func (c *Cache[T]) Type() protocol.ResourceType {
	return c.typ
}

// State returns the current load state.
func (c *Cache[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UUID returns the uuid of the loaded resource, if any.
func (c *Cache[T]) UUID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uuid
}

// Get returns the current value.
func (c *Cache[T]) Get() Value[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return valueOf(c.value)
}

// Subscribe calls fn with the current value now and with every later value.
// fn runs synchronously, sometimes on the websocket dispatch goroutine, so it
// must not block and must not call LoadUUID or Reset. The returned function
// unregisters fn.
func (c *Cache[T]) Subscribe(fn func(Value[T])) func() {
	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = fn
	c.mu.Unlock()

	c.pubMu.Lock()
	fn(c.Get())
	c.pubMu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// publishLocked delivers the current value to every watcher. It must be
// called with c.mu held and releases it. A publish that lost the race to a
// newer one is skipped, so watchers never go back in time.
func (c *Cache[T]) publishLocked() {
	c.pubSeq++
	seq := c.pubSeq
	v := valueOf(c.value)
	watchers := make([]func(Value[T]), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if seq < c.delivered {
		return
	}
	c.delivered = seq
	for _, fn := range watchers {
		fn(v)
	}
}

func (c *Cache[T]) lock(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

// queue takes the FIFO lock for a caller-driven transition. A resubscribe
// holding the lock is cancelled so the caller does not wait behind an
// offline retry loop.
func (c *Cache[T]) queue(ctx context.Context) error {
	c.mu.Lock()
	c.queued++
	if c.cancelResub != nil {
		c.cancelResub()
	}
	c.mu.Unlock()

	err := c.lock(ctx)

	c.mu.Lock()
	c.queued--
	c.mu.Unlock()
	return err
}

func (c *Cache[T]) unlock() {
	c.sem.Release(1)
}

// track registers background work unless the cache is closed.
func (c *Cache[T]) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Cache[T]) resource(uuid string) protocol.Resource {
	return protocol.Resource{Type: c.typ, UUID: uuid}
}

// LoadUUID makes uuid the current resource and returns its value, or nil if
// it does not exist. Loading the uuid that is already loaded returns the
// cached value without touching the network. Otherwise the previous
// subscription is cancelled first, then the value is fetched and, in an
// interactive context, subscribed to. Fetch and subscribe are retried under
// the cache's policy until ctx is done.
func (c *Cache[T]) LoadUUID(ctx context.Context, uuid string) (*T, error) {
	if err := c.queue(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	c.mu.Lock()
	if c.uuid == uuid && (c.state == StateReady || c.state == StateSSR) {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	c.teardown(ctx)

	res := c.resource(uuid)
	log := c.logger.WithField("uuid", uuid)

	c.mu.Lock()
	gen := c.gen
	c.received = false
	c.mu.Unlock()

	fetched, err := retry.DoValue(ctx, c.policy, retry.Options{Name: "fetch " + res.String(), Logger: c.logger},
		func(ctx context.Context) (*T, error) {
			return c.get(ctx, uuid)
		})
	if err != nil {
		c.abandon(gen)
		return nil, err
	}
	if fetched == nil {
		log.Debug("Resource does not exist")
		return c.commit(uuid, StateStart, nil, nil), nil
	}
	if !c.sub.Interactive() {
		return c.commit(uuid, StateSSR, fetched, nil), nil
	}

	handle, err := c.subscribe(ctx, res, gen, false)
	if err != nil {
		c.abandon(gen)
		return nil, err
	}
	log.Debug("Resource loaded")
	return c.commit(uuid, StateReady, fetched, handle), nil
}

// commit stores the outcome of a load. A live message that arrived after
// the fetch started is newer than fetched and wins.
func (c *Cache[T]) commit(uuid string, state State, fetched *T, handle *live.Subscription) *T {
	c.mu.Lock()
	c.uuid = uuid
	c.state = state
	c.handle = handle
	if !c.received {
		c.value = fetched
	}
	v := c.value
	c.publishLocked()
	return v
}

// abandon empties the cache of generation gen after a load or resubscribe
// failed: the resource is no longer subscribed and must not stay on display.
func (c *Cache[T]) abandon(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.uuid = ""
	c.value = nil
	c.state = StateStart
	c.handle = nil
	c.publishLocked()
}

func (c *Cache[T]) subscribe(ctx context.Context, res protocol.Resource, gen uint64, stopOnNotFound bool) (*live.Subscription, error) {
	return retry.DoValue(ctx, c.policy, retry.Options{Name: "subscribe " + res.String(), Logger: c.logger},
		func(ctx context.Context) (*live.Subscription, error) {
			h, err := c.sub.SubscribeToResource(ctx, res, c.onChange(gen), c.onReconnect(gen))
			if err != nil && stopOnNotFound && errors.Is(err, errors.ErrCodeResourceNotFound) {
				return nil, retry.Permanent(err)
			}
			return h, err
		})
}

// teardown drops the current subscription. The caller holds the FIFO lock.
// The value is kept until the next commit.
func (c *Cache[T]) teardown(ctx context.Context) {
	c.mu.Lock()
	handle := c.handle
	prev := c.uuid
	c.handle = nil
	c.state = StateStart
	c.gen++
	c.received = false
	c.mu.Unlock()

	if handle == nil {
		return
	}
	result, err := handle.Unsubscribe(ctx)
	log := c.logger.WithField("uuid", prev)
	if err != nil {
		log.WithError(err).Warn("Failed to unsubscribe, continuing")
		return
	}
	log.WithField("result", result.String()).Debug("Unsubscribed")
}

func (c *Cache[T]) onChange(gen uint64) func(protocol.Response) error {
	return func(resp protocol.Response) error {
		switch resp.Kind {
		case protocol.KindChanged:
			v, err := c.decode(resp.Content)
			if err != nil {
				return err
			}
			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return nil
			}
			c.value = v
			c.received = true
			c.publishLocked()
			return nil
		case protocol.KindGone:
			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return nil
			}
			c.value = nil
			c.received = true
			c.publishLocked()
			if c.track() {
				go c.finishGone(gen)
			}
			return nil
		}
		return errors.UnexpectedKind(string(resp.Kind), string(resp.Resource), resp.UUID)
	}
}

// finishGone completes a gone message under the FIFO lock, since the
// dispatch goroutine must not wait for it.
func (c *Cache[T]) finishGone(gen uint64) {
	defer c.wg.Done()
	if err := c.lock(c.ctx); err != nil {
		return
	}
	defer c.unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	uuid := c.uuid
	c.mu.Unlock()

	// The server already dropped the subscription, so this is local only.
	c.teardown(c.ctx)

	c.mu.Lock()
	c.uuid = ""
	c.value = nil
	c.logger.WithField("uuid", uuid).Info("Resource is gone")
	c.publishLocked()
}

func (c *Cache[T]) onReconnect(gen uint64) func() {
	return func() {
		if !c.track() {
			return
		}
		defer c.wg.Done()
		c.resubscribe(gen)
	}
}

// resubscribe re-establishes the subscription of generation gen after the
// connection was replaced, then refetches to catch changes missed while
// offline. It is a no-op if the cache moved on in the meantime.
func (c *Cache[T]) resubscribe(gen uint64) {
	if err := c.lock(c.ctx); err != nil {
		return
	}
	defer c.unlock()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	c.mu.Lock()
	uuid, state, handle := c.uuid, c.state, c.handle
	current := c.gen == gen
	c.cancelResub = cancel
	if c.queued > 0 {
		cancel()
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelResub = nil
		c.mu.Unlock()
	}()

	log := c.logger.WithField("uuid", uuid)
	if !current || state != StateReady {
		log.WithField("state", state.String()).Warn("Reconnect for a superseded subscription, ignoring")
		return
	}
	if handle != nil && handle.Active() {
		return
	}

	res := c.resource(uuid)
	c.mu.Lock()
	c.received = false
	c.mu.Unlock()

	newHandle, err := c.subscribe(ctx, res, gen, true)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrCodeResourceNotFound):
			c.teardown(ctx)
			c.mu.Lock()
			c.uuid = ""
			c.value = nil
			log.Info("Resource disappeared while offline")
			c.publishLocked()
			return
		case c.ctx.Err() != nil:
			return
		case ctx.Err() != nil:
			log.Info("Resubscribe superseded by a newer load")
		default:
			log.WithError(err).Error("Failed to resubscribe after reconnect")
		}
		c.abandon(gen)
		return
	}

	c.mu.Lock()
	c.handle = newHandle
	c.mu.Unlock()
	log.Info("Resubscribed after reconnect")

	fetched, err := c.get(ctx, uuid)
	if err != nil || fetched == nil {
		if err != nil {
			log.WithError(err).Warn("Refetch after reconnect failed")
		}
		return
	}
	c.mu.Lock()
	if c.gen != gen || c.received {
		c.mu.Unlock()
		return
	}
	c.value = fetched
	c.publishLocked()
}

// Reset clears the cache back to StateStart. Watchers see the empty value
// immediately; the subscription is cancelled after any transition in flight.
func (c *Cache[T]) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.value = nil
	c.publishLocked()

	if err := c.queue(ctx); err != nil {
		return err
	}
	defer c.unlock()

	c.teardown(ctx)
	c.mu.Lock()
	c.uuid = ""
	if c.value == nil {
		c.mu.Unlock()
		return nil
	}
	// A load that was in flight committed a value in the meantime.
	c.value = nil
	c.publishLocked()
	return nil
}

// Close stops background work started by live messages. It does not
// unsubscribe; use Reset first for that.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
