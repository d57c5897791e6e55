package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

// dropConnection makes the scripted server close the socket without
// answering.
const dropConnection protocol.Kind = "drop"

// startScripted runs a websocket server that answers each request with the
// kind chosen by answer. conn counts connections from zero. An empty kind
// leaves the request unanswered.
func startScripted(t *testing.T, answer func(conn int, req protocol.Request) protocol.Kind) string {
	t.Helper()
	var upgrader websocket.Upgrader
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := int(conns.Add(1)) - 1
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			req, err := protocol.DecodeRequest(data)
			if err != nil {
				return
			}
			switch kind := answer(n, req); kind {
			case "":
			case dropConnection:
				return
			default:
				out, err := protocol.Encode(protocol.Response{Kind: kind, Resource: req.Resource, UUID: req.UUID})
				if err != nil || ws.WriteMessage(websocket.TextMessage, out) != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReconnectWhileSubscribing(t *testing.T) {
	url := startScripted(t, func(conn int, req protocol.Request) protocol.Kind {
		if conn == 0 {
			return dropConnection
		}
		return protocol.KindSubscribed
	})
	m := newManagerAt(t, url, 2*time.Second)

	_, err := m.SubscribeToResource(context.Background(), project, newSink().onChange, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeReconnected))
	assert.Equal(t, StateReopened, m.State())
	assert.Equal(t, 0, m.Registry().Len())

	sub, err := m.SubscribeToResource(context.Background(), project, newSink().onChange, nil)
	require.NoError(t, err)
	assert.True(t, sub.Active())
}

func TestReconnectWhileUnsubscribing(t *testing.T) {
	url := startScripted(t, func(conn int, req protocol.Request) protocol.Kind {
		switch {
		case req.Action == protocol.ActionSubscribe:
			return protocol.KindSubscribed
		case conn == 0:
			return dropConnection
		}
		return protocol.KindUnsubscribed
	})
	m := newManagerAt(t, url, 2*time.Second)

	sub, err := m.SubscribeToResource(context.Background(), project, newSink().onChange, nil)
	require.NoError(t, err)

	result, err := sub.Unsubscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeCrashed, result)
	assert.Equal(t, 0, m.Registry().Len())
	assert.Empty(t, m.Subscriptions())
}

func TestNotSubscribedDropsDurableEntry(t *testing.T) {
	url := startScripted(t, func(conn int, req protocol.Request) protocol.Kind {
		if req.Action == protocol.ActionSubscribe {
			return protocol.KindSubscribed
		}
		return protocol.KindNotSubscribed
	})
	m := newManagerAt(t, url, 2*time.Second)

	sub, err := m.SubscribeToResource(context.Background(), project, newSink().onChange, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Registry().Len())

	result, err := sub.Unsubscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UnsubscribeNotSubscribed, result)
	assert.False(t, sub.Active())
	assert.Equal(t, 0, m.Registry().Len())
	assert.Empty(t, m.Subscriptions())
}

func TestFailedUnsubscribeForgetsEntry(t *testing.T) {
	url := startScripted(t, func(conn int, req protocol.Request) protocol.Kind {
		if req.Action == protocol.ActionSubscribe {
			return protocol.KindSubscribed
		}
		return ""
	})
	m := newManagerAt(t, url, 100*time.Millisecond)

	sub, err := m.SubscribeToResource(context.Background(), project, newSink().onChange, nil)
	require.NoError(t, err)

	_, err = sub.Unsubscribe(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, m.Registry().Len())
	assert.Empty(t, m.Subscriptions())
	assert.Equal(t, int64(0), m.Stats().Listeners)
}
