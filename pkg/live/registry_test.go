package live

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

var (
	taskA = protocol.Resource{Type: protocol.ResourceTask, UUID: "a"}
	taskB = protocol.Resource{Type: protocol.ResourceTask, UUID: "b"}
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type delivery struct {
	got []protocol.Response
}

func (d *delivery) callback(resp protocol.Response) error {
	d.got = append(d.got, resp)
	return nil
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry(quietLogger())
	l := NewListener(taskA, protocol.LiveKinds, func(protocol.Response) error { return nil }, nil)

	require.NoError(t, r.Add(l))
	assert.True(t, r.Contains(l))
	assert.Equal(t, 1, r.Len())

	err := r.Add(l)
	assert.True(t, errors.Is(err, errors.ErrCodeListenerDuplicate))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Remove(l))
	err = r.Remove(l)
	assert.True(t, errors.Is(err, errors.ErrCodeListenerMissing))
	assert.False(t, r.Discard(l))
}

func TestRegistryDispatchMatchesResourceAndKind(t *testing.T) {
	r := NewRegistry(quietLogger())
	var a, b delivery
	require.NoError(t, r.Add(NewListener(taskA, protocol.LiveKinds, a.callback, nil)))
	require.NoError(t, r.Add(NewListener(taskB, protocol.LiveKinds, b.callback, nil)))

	matched, err := r.Dispatch(protocol.Response{Kind: protocol.KindChanged, Resource: protocol.ResourceTask, UUID: "b", Content: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Empty(t, a.got)
	assert.Len(t, b.got, 1)

	// Right resource, wrong kind.
	matched, err = r.Dispatch(protocol.Response{Kind: protocol.KindSubscribed, Resource: protocol.ResourceTask, UUID: "a"})
	require.NoError(t, err)
	assert.False(t, matched)

	// Same uuid, other type.
	matched, _ = r.Dispatch(protocol.Response{Kind: protocol.KindGone, Resource: protocol.ResourceProject, UUID: "a"})
	assert.False(t, matched)
}

func TestRegistryDispatchesToOldestMatchOnly(t *testing.T) {
	r := NewRegistry(quietLogger())
	var first, second delivery
	require.NoError(t, r.Add(NewTransientListener(taskA, protocol.SubscribeResponseKinds, first.callback, nil)))
	require.NoError(t, r.Add(NewTransientListener(taskA, protocol.SubscribeResponseKinds, second.callback, nil)))

	resp := protocol.Response{Kind: protocol.KindSubscribed, Resource: protocol.ResourceTask, UUID: "a"}
	matched, _ := r.Dispatch(resp)
	assert.True(t, matched)
	assert.Len(t, first.got, 1)
	assert.Empty(t, second.got)
	assert.Equal(t, 1, r.Len())

	r.Dispatch(resp)
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryTransientRemovedOnDelivery(t *testing.T) {
	r := NewRegistry(quietLogger())
	var durable, once delivery
	d := NewListener(taskA, protocol.LiveKinds, durable.callback, nil)
	o := NewTransientListener(taskA, protocol.UnsubscribeResponseKinds, once.callback, nil)
	require.NoError(t, r.Add(d))
	require.NoError(t, r.Add(o))
	assert.True(t, o.Transient())
	assert.False(t, d.Transient())

	r.Dispatch(protocol.Response{Kind: protocol.KindChanged, Resource: protocol.ResourceTask, UUID: "a", Content: []byte(`{}`)})
	r.Dispatch(protocol.Response{Kind: protocol.KindChanged, Resource: protocol.ResourceTask, UUID: "a", Content: []byte(`{}`)})
	r.Dispatch(protocol.Response{Kind: protocol.KindUnsubscribed, Resource: protocol.ResourceTask, UUID: "a"})

	assert.Len(t, durable.got, 2)
	assert.Len(t, once.got, 1)
	assert.True(t, r.Contains(d))
	assert.False(t, r.Contains(o))
}

func TestRegistryCallbackErrorIsReturned(t *testing.T) {
	r := NewRegistry(quietLogger())
	boom := stderrors.New("boom")
	require.NoError(t, r.Add(NewListener(taskA, protocol.LiveKinds, func(protocol.Response) error { return boom }, nil)))

	matched, err := r.Dispatch(protocol.Response{Kind: protocol.KindGone, Resource: protocol.ResourceTask, UUID: "a"})
	assert.True(t, matched)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryFlushOldestFirst(t *testing.T) {
	r := NewRegistry(quietLogger())
	var added []*Listener
	for i := 0; i < 5; i++ {
		l := NewListener(taskA, protocol.LiveKinds, func(protocol.Response) error { return nil }, nil)
		require.NoError(t, r.Add(l))
		added = append(added, l)
	}

	flushed := r.Flush()
	assert.Equal(t, added, flushed)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Flush())
}
