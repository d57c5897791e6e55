package cache

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/internal/hub/hubtest"
	"github.com/projectify/live/pkg/live"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type task struct {
	Title string `json:"title"`
	Done  bool   `json:"done,omitempty"`
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

var fastRetry = retry.Policy{
	InitialInterval: 5 * time.Millisecond,
	MaxInterval:     20 * time.Millisecond,
	Multiplier:      2,
}

type env struct {
	hub     *hubtest.Fixture
	manager *live.Manager
	cache   *Cache[task]
	fetches atomic.Int32
	// gate, when set, is consulted before every fetch.
	gate func(ctx context.Context, uuid string) error

	mu      sync.Mutex
	emitted []Value[task]
}

func setup(t *testing.T, interactive bool) *env {
	t.Helper()
	e := &env{hub: hubtest.Start(t)}
	e.manager = live.New(live.Options{
		URL:            e.hub.WSURL(),
		Interactive:    interactive,
		Reconnect:      fastRetry,
		RequestTimeout: 2 * time.Second,
		Logger:         quietLogger(),
	})
	t.Cleanup(func() { e.manager.Close() })

	e.cache = New(Options[task]{
		Type:       protocol.ResourceTask,
		Subscriber: e.manager,
		Getter:     e.get,
		Retry:      fastRetry,
		Logger:     quietLogger(),
	})
	t.Cleanup(e.cache.Close)
	e.cache.Subscribe(func(v Value[task]) {
		e.mu.Lock()
		e.emitted = append(e.emitted, v)
		e.mu.Unlock()
	})
	return e
}

func (e *env) get(ctx context.Context, uuid string) (*task, error) {
	if e.gate != nil {
		if err := e.gate(ctx, uuid); err != nil {
			return nil, err
		}
	}
	e.fetches.Add(1)
	doc, ok, err := e.hub.Store().Get(protocol.Resource{Type: protocol.ResourceTask, UUID: uuid})
	if err != nil || !ok {
		return nil, err
	}
	var v task
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *env) last() Value[task] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emitted[len(e.emitted)-1]
}

func res(uuid string) protocol.Resource {
	return protocol.Resource{Type: protocol.ResourceTask, UUID: uuid}
}

func TestLoadSubscribeChangeGone(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "old"})

	v, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "old", v.Title)
	assert.Equal(t, int32(1), e.fetches.Load())
	assert.Equal(t, int64(1), e.manager.Stats().FramesSent)
	assert.Equal(t, StateReady, e.cache.State())
	assert.Equal(t, "task-1", e.cache.UUID())
	assert.Equal(t, "old", e.last().Or(task{}).Title)

	e.hub.Put(t, res("task-1"), task{Title: "new"})
	require.Eventually(t, func() bool { return e.last().Or(task{}).Title == "new" }, 2*time.Second, 10*time.Millisecond)

	e.hub.Delete(t, res("task-1"))
	require.Eventually(t, func() bool {
		return !e.last().Present() && e.cache.State() == StateStart
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "", e.cache.UUID())
	assert.Equal(t, "fallback", e.cache.Get().Or(task{Title: "fallback"}).Title)
	assert.Equal(t, 0, e.manager.Registry().Len())
}

func TestLoadSameUUIDIsCached(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "old"})

	_, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)
	v, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "old", v.Title)
	assert.Equal(t, int32(1), e.fetches.Load())
	assert.Equal(t, int64(1), e.manager.Stats().FramesSent)
}

func TestChangedReplacesWholesale(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "a", Done: true})
	_, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)

	require.NoError(t, e.hub.Publish(res("task-1"), json.RawMessage(`{"title":"b"}`)))
	require.Eventually(t, func() bool { return e.cache.Get().Or(task{}).Title == "b" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, task{Title: "b"}, e.last().Or(task{}))
}

func TestSwitchingUUIDUnsubscribesFirst(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("a"), task{Title: "A"})
	e.hub.Put(t, res("b"), task{Title: "B"})

	_, err := e.cache.LoadUUID(context.Background(), "a")
	require.NoError(t, err)
	v, err := e.cache.LoadUUID(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "B", v.Title)

	assert.Equal(t, 0, e.hub.Subscribers(res("a")))
	assert.Equal(t, 1, e.hub.Subscribers(res("b")))
	assert.Equal(t, 1, e.manager.Registry().Len())
	assert.Equal(t, []protocol.Resource{res("b")}, e.manager.Subscriptions())
}

func TestRapidSwitchBackConverges(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("a"), task{Title: "A"})
	e.hub.Put(t, res("b"), task{Title: "B"})
	_, err := e.cache.LoadUUID(context.Background(), "a")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.gate = func(_ context.Context, uuid string) error {
		if uuid == "b" {
			once.Do(func() { close(started) })
			<-release
		}
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := e.cache.LoadUUID(context.Background(), "b")
		assert.NoError(t, err)
	}()
	<-started
	go func() {
		defer wg.Done()
		_, err := e.cache.LoadUUID(context.Background(), "a")
		assert.NoError(t, err)
	}()
	close(release)
	wg.Wait()

	assert.Equal(t, "a", e.cache.UUID())
	assert.Equal(t, StateReady, e.cache.State())
	assert.Equal(t, "A", e.cache.Get().Or(task{}).Title)
	assert.Equal(t, 1, e.hub.Subscribers(res("a")))
	assert.Equal(t, 0, e.hub.Subscribers(res("b")))
	assert.Equal(t, 1, e.manager.Registry().Len())
}

func TestCancelledSwitchLeavesCacheEmpty(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("a"), task{Title: "A"})
	e.hub.Put(t, res("b"), task{Title: "B"})
	_, err := e.cache.LoadUUID(context.Background(), "a")
	require.NoError(t, err)

	e.gate = func(ctx context.Context, uuid string) error {
		if uuid == "b" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = e.cache.LoadUUID(ctx, "b")
	require.Error(t, err)

	assert.Equal(t, StateStart, e.cache.State())
	assert.Equal(t, "", e.cache.UUID())
	assert.False(t, e.cache.Get().Present())
	assert.False(t, e.last().Present())
	assert.Equal(t, 0, e.hub.Subscribers(res("a")))
	assert.Equal(t, 0, e.manager.Registry().Len())

	e.hub.Put(t, res("a"), task{Title: "A2"})
	assert.Never(t, func() bool { return e.cache.Get().Present() }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestReconnectResubscribes(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "v1"})
	_, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)

	e.hub.DropConnections()
	require.Eventually(t, func() bool {
		return e.manager.Stats().Reconnects == 1 && e.hub.Subscribers(res("task-1")) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateReady, e.cache.State())

	e.hub.Put(t, res("task-1"), task{Title: "v2"})
	require.Eventually(t, func() bool { return e.cache.Get().Or(task{}).Title == "v2" }, 2*time.Second, 10*time.Millisecond)
}

func TestLoadMissingResource(t *testing.T) {
	e := setup(t, true)

	v, err := e.cache.LoadUUID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, StateStart, e.cache.State())
	assert.Equal(t, "nope", e.cache.UUID())
	assert.Equal(t, int64(0), e.manager.Stats().FramesSent)
	assert.Equal(t, 0, e.hub.Connections())
}

func TestServerRenderingFetchesOnly(t *testing.T) {
	e := setup(t, false)
	e.hub.Put(t, res("task-1"), task{Title: "v1"})

	v, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Title)
	assert.Equal(t, StateSSR, e.cache.State())
	assert.Equal(t, 0, e.hub.Connections())

	_, err = e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.fetches.Load())
}

func TestReset(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "v1"})
	_, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)

	require.NoError(t, e.cache.Reset(context.Background()))
	assert.False(t, e.last().Present())
	assert.Equal(t, StateStart, e.cache.State())
	assert.Equal(t, "", e.cache.UUID())
	assert.Equal(t, 0, e.hub.Subscribers(res("task-1")))
	assert.Equal(t, 0, e.manager.Registry().Len())
}

func TestUnexpectedKindOnLiveListener(t *testing.T) {
	e := setup(t, true)
	err := e.cache.onChange(0)(protocol.Response{Kind: protocol.KindSubscribed, Resource: protocol.ResourceTask, UUID: "x"})
	assert.True(t, errors.Is(err, errors.ErrCodeUnexpectedKind))
}

func TestStaleGenerationIgnored(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("task-1"), task{Title: "v1"})
	_, err := e.cache.LoadUUID(context.Background(), "task-1")
	require.NoError(t, err)

	err = e.cache.onChange(0)(protocol.Response{
		Kind: protocol.KindChanged, Resource: protocol.ResourceTask, UUID: "task-1",
		Content: json.RawMessage(`{"title":"stale"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", e.cache.Get().Or(task{}).Title)

	// A reconnect handler from an older generation is a no-op.
	e.cache.resubscribe(0)
	assert.Equal(t, StateReady, e.cache.State())
	assert.Equal(t, 1, e.hub.Subscribers(res("task-1")))
}

// offlineSubscriber fails every subscribe to one uuid while it is set.
type offlineSubscriber struct {
	*live.Manager
	mu       sync.Mutex
	offline  string
	failures atomic.Int32
}

func (s *offlineSubscriber) fail(uuid string) {
	s.mu.Lock()
	s.offline = uuid
	s.mu.Unlock()
}

func (s *offlineSubscriber) SubscribeToResource(ctx context.Context, r protocol.Resource, onChange func(protocol.Response) error, onReconnect func()) (*live.Subscription, error) {
	s.mu.Lock()
	offline := s.offline == r.UUID
	s.mu.Unlock()
	if offline {
		s.failures.Add(1)
		return nil, errors.New(errors.ErrCodeTransportClosed, "offline")
	}
	return s.Manager.SubscribeToResource(ctx, r, onChange, onReconnect)
}

func TestLoadPreemptsPendingResubscribe(t *testing.T) {
	e := setup(t, true)
	e.hub.Put(t, res("a"), task{Title: "A"})
	e.hub.Put(t, res("b"), task{Title: "B"})

	sub := &offlineSubscriber{Manager: e.manager}
	c := New(Options[task]{
		Type:       protocol.ResourceTask,
		Subscriber: sub,
		Getter:     e.get,
		Retry:      fastRetry,
		Logger:     quietLogger(),
	})
	t.Cleanup(c.Close)

	_, err := c.LoadUUID(context.Background(), "a")
	require.NoError(t, err)

	sub.fail("a")
	e.hub.DropConnections()
	require.Eventually(t, func() bool { return sub.failures.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := c.LoadUUID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "B", v.Title)
	assert.Equal(t, "b", c.UUID())
	assert.Equal(t, StateReady, c.State())
}
