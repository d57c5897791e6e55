package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

var (
	ws1 = protocol.Resource{Type: protocol.ResourceWorkspace, UUID: "ws-1"}
	ws2 = protocol.Resource{Type: protocol.ResourceWorkspace, UUID: "ws-2"}
	t1  = protocol.Resource{Type: protocol.ResourceTask, UUID: "t-1"}
)

func backends(t *testing.T) map[string]Backend {
	ldb, err := OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"memory":  NewMemory(),
		"leveldb": ldb,
	}
}

func TestBackends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(b)
			defer s.Close()

			_, ok, err := s.Get(ws1)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ws1, json.RawMessage(`{"title":"one"}`)))
			require.NoError(t, s.Put(ws2, json.RawMessage(`{"title":"two"}`)))
			require.NoError(t, s.Put(t1, json.RawMessage(`{"title":"task"}`)))

			doc, ok, err := s.Get(ws1)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"title":"one"}`, string(doc))

			ids, err := s.List(protocol.ResourceWorkspace)
			require.NoError(t, err)
			assert.Equal(t, []string{"ws-1", "ws-2"}, ids)

			deleted, err := s.Delete(ws1)
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = s.Delete(ws1)
			require.NoError(t, err)
			assert.False(t, deleted)

			exists, err := s.Exists(ws1)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	s := New(NewMemory())
	err := s.Put(ws1, json.RawMessage(`{nope`))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestSubscribersSeeUpdatesInOrder(t *testing.T) {
	s := New(NewMemory())
	ch := s.Subscribe()

	require.NoError(t, s.Put(ws1, json.RawMessage(`{"v":1}`)))
	require.NoError(t, s.Put(ws1, json.RawMessage(`{"v":2}`)))
	_, err := s.Delete(ws1)
	require.NoError(t, err)
	// Deleting a missing resource publishes nothing.
	_, err = s.Delete(ws1)
	require.NoError(t, err)

	u := <-ch
	assert.Equal(t, UpdateChanged, u.Type)
	assert.JSONEq(t, `{"v":1}`, string(u.Content))
	u = <-ch
	assert.JSONEq(t, `{"v":2}`, string(u.Content))
	u = <-ch
	assert.Equal(t, UpdateGone, u.Type)
	assert.Equal(t, ws1, u.Resource)
	assert.Len(t, ch, 0)

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	// Unsubscribing twice is harmless.
	s.Unsubscribe(ch)
}
