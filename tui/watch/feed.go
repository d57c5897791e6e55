package watch

import (
	"encoding/json"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/projectify/live/pkg/cache"
	"github.com/projectify/live/pkg/live"
)

// ValueMsg carries a published cache value.
type ValueMsg struct {
	Value cache.Value[json.RawMessage]
	State cache.State
}

// ConnMsg carries a connection state change.
type ConnMsg struct {
	State live.State
}

type batchMsg []tea.Msg

// Feed queues messages from cache and manager callbacks for the program.
// Push never blocks, so dispatch is never held up by rendering.
type Feed struct {
	mu      sync.Mutex
	pending []tea.Msg
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push queues msg.
func (f *Feed) Push(msg tea.Msg) {
	f.mu.Lock()
	f.pending = append(f.pending, msg)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Close releases a pending wait.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

// wait returns a command that blocks until messages are queued.
func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.signal:
		case <-f.done:
			return nil
		}
		f.mu.Lock()
		msgs := f.pending
		f.pending = nil
		f.mu.Unlock()
		return batchMsg(msgs)
	}
}

// Attach feeds c's values and m's state changes into f. The returned func
// detaches both.
func Attach(f *Feed, m *live.Manager, c *cache.Cache[json.RawMessage]) func() {
	f.Push(ConnMsg{State: m.State()})
	stopConn := m.OnStateChange(func(s live.State) {
		f.Push(ConnMsg{State: s})
	})
	stopValues := c.Subscribe(func(v cache.Value[json.RawMessage]) {
		f.Push(ValueMsg{Value: v, State: c.State()})
	})
	return func() {
		stopValues()
		stopConn()
	}
}
