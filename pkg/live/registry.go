package live

import (
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

// Listener is a registry entry interested in some kinds of message about one
// resource. Transient listeners correlate one request/response exchange and
// are removed by the registry when they receive their response. Durable
// listeners stay until removed explicitly.
type Listener struct {
	ID       ulid.ULID
	Resource protocol.Resource
	Kinds    protocol.KindSet
	// Callback receives matching messages on the dispatch goroutine and must
	// not block on the network.
	Callback func(protocol.Response) error
	// OnReconnect runs after the registry was flushed by a reopen.
	OnReconnect func()

	once bool
	seq  uint64
}

// NewListener builds a durable listener.
func NewListener(res protocol.Resource, kinds protocol.KindSet, callback func(protocol.Response) error, onReconnect func()) *Listener {
	return &Listener{
		ID:          ulid.Make(),
		Resource:    res,
		Kinds:       kinds,
		Callback:    callback,
		OnReconnect: onReconnect,
	}
}

// NewTransientListener builds a listener that is dropped on its first delivery.
func NewTransientListener(res protocol.Resource, kinds protocol.KindSet, callback func(protocol.Response) error, onReconnect func()) *Listener {
	l := NewListener(res, kinds, callback, onReconnect)
	l.once = true
	return l
}

// Transient reports whether the listener is one-shot.
func (l *Listener) Transient() bool {
	return l.once
}

func (l *Listener) matches(resp protocol.Response) bool {
	return l.Resource.Type == resp.Resource && l.Resource.UUID == resp.UUID && l.Kinds.Contains(resp.Kind)
}

// Registry holds the listeners of one connection. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	listeners map[ulid.ULID]*Listener
	seq       uint64
	logger    *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Entry) *Registry {
	return &Registry{
		listeners: make(map[ulid.ULID]*Listener),
		logger:    logger,
	}
}

// Add registers l. Adding the same listener twice is a programming error.
func (r *Registry) Add(l *Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listeners[l.ID]; exists {
		err := errors.DuplicateListener(l.ID.String())
		r.logger.WithError(err).WithField("resource", l.Resource.String()).Error("Listener registered twice")
		return err
	}
	r.seq++
	l.seq = r.seq
	r.listeners[l.ID] = l
	r.logger.WithFields(logrus.Fields{
		"listener": l.ID.String(),
		"resource": l.Resource.String(),
		"kinds":    l.Kinds.String(),
	}).Debug("Listener added")
	return nil
}

// Remove unregisters l. Removing a listener that is not present is a
// programming error.
func (r *Registry) Remove(l *Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listeners[l.ID]; !exists {
		err := errors.MissingListener(l.ID.String())
		r.logger.WithError(err).WithField("resource", l.Resource.String()).Error("Removing unknown listener")
		return err
	}
	delete(r.listeners, l.ID)
	r.logger.WithField("listener", l.ID.String()).Debug("Listener removed")
	return nil
}

// Discard removes l if present. It is used on teardown paths that race with
// a flush or a one-shot delivery.
func (r *Registry) Discard(l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listeners[l.ID]; !exists {
		return false
	}
	delete(r.listeners, l.ID)
	return true
}

// Contains reports whether l is registered.
func (r *Registry) Contains(l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.listeners[l.ID]
	return exists
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Dispatch delivers resp to the oldest listener that matches its resource
// and kind. It returns false when nobody matched, which is expected around
// gone/unsubscribe races and is only logged.
func (r *Registry) Dispatch(resp protocol.Response) (bool, error) {
	r.mu.Lock()
	var match *Listener
	for _, l := range r.listeners {
		if !l.matches(resp) {
			continue
		}
		if match == nil || l.seq < match.seq {
			match = l
		}
	}
	if match != nil && match.once {
		delete(r.listeners, match.ID)
	}
	r.mu.Unlock()

	fields := logrus.Fields{
		"kind":     string(resp.Kind),
		"resource": resp.Source().String(),
	}
	if match == nil {
		r.logger.WithFields(fields).Warn("No listener for message")
		return false, nil
	}

	if err := match.Callback(resp); err != nil {
		r.logger.WithFields(fields).WithError(err).Error("Listener callback failed")
		return true, err
	}
	return true, nil
}

// Flush removes every listener and returns them oldest first.
func (r *Registry) Flush() []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushed := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		flushed = append(flushed, l)
	}
	r.listeners = make(map[ulid.ULID]*Listener)
	sort.Slice(flushed, func(i, j int) bool { return flushed[i].seq < flushed[j].seq })
	return flushed
}
