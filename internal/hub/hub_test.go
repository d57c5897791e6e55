package hub_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/projectify/live/internal/hub"
	"github.com/projectify/live/internal/hub/hubtest"
	"github.com/projectify/live/pkg/protocol"
)

var project = protocol.Resource{Type: protocol.ResourceProject, UUID: "p-1"}

func dial(t *testing.T, f *hubtest.Fixture) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.WSURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req protocol.Request) protocol.Response {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) protocol.Response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(data)
	require.NoError(t, err)
	return resp
}

func TestSubscribeHandshake(t *testing.T) {
	f := hubtest.Start(t)
	conn := dial(t, f)

	resp := roundTrip(t, conn, protocol.Subscribe(project))
	assert.Equal(t, protocol.KindNotFound, resp.Kind)

	f.Put(t, project, map[string]string{"title": "Roadmap"})

	resp = roundTrip(t, conn, protocol.Subscribe(project))
	assert.Equal(t, protocol.KindSubscribed, resp.Kind)
	resp = roundTrip(t, conn, protocol.Subscribe(project))
	assert.Equal(t, protocol.KindAlreadySubscribed, resp.Kind)
	assert.Equal(t, 1, f.Subscribers(project))

	resp = roundTrip(t, conn, protocol.Unsubscribe(project))
	assert.Equal(t, protocol.KindUnsubscribed, resp.Kind)
	resp = roundTrip(t, conn, protocol.Unsubscribe(project))
	assert.Equal(t, protocol.KindNotSubscribed, resp.Kind)
	assert.Equal(t, 0, f.Subscribers(project))
}

func TestSubscriptionsArePerConnection(t *testing.T) {
	f := hubtest.Start(t)
	f.Put(t, project, map[string]string{"title": "Roadmap"})

	a, b := dial(t, f), dial(t, f)
	assert.Equal(t, protocol.KindSubscribed, roundTrip(t, a, protocol.Subscribe(project)).Kind)
	assert.Equal(t, protocol.KindSubscribed, roundTrip(t, b, protocol.Subscribe(project)).Kind)
	assert.Equal(t, 2, f.Subscribers(project))
}

func TestChangedAndGoneArePushed(t *testing.T) {
	f := hubtest.Start(t)
	f.Put(t, project, map[string]string{"title": "v1"})
	conn := dial(t, f)
	require.Equal(t, protocol.KindSubscribed, roundTrip(t, conn, protocol.Subscribe(project)).Kind)

	f.Put(t, project, map[string]string{"title": "v2"})
	resp := read(t, conn)
	assert.Equal(t, protocol.KindChanged, resp.Kind)
	assert.Equal(t, "v2", gjson.GetBytes(resp.Content, "title").String())

	f.Delete(t, project)
	resp = read(t, conn)
	assert.Equal(t, protocol.KindGone, resp.Kind)
	assert.Empty(t, resp.Content)

	// gone ends the subscription on the server.
	assert.Equal(t, 0, f.Subscribers(project))
	assert.Equal(t, protocol.KindNotSubscribed, roundTrip(t, conn, protocol.Unsubscribe(project)).Kind)
}

func TestInvalidRequestsAreIgnored(t *testing.T) {
	f := hubtest.Start(t)
	f.Put(t, project, map[string]string{"title": "v1"})
	conn := dial(t, f)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"explode","resource":"project","uuid":"p-1"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	// The next valid request is answered first, so nothing was sent for the
	// invalid ones.
	assert.Equal(t, protocol.KindSubscribed, roundTrip(t, conn, protocol.Subscribe(project)).Kind)
}

func TestDropConnections(t *testing.T) {
	f := hubtest.Start(t)
	conn := dial(t, f)
	require.Eventually(t, func() bool { return f.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.DropConnections())
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return f.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRESTRequiresCSRF(t *testing.T) {
	f := hubtest.Start(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	put := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, f.URL()+"/api/project/p-1", strings.NewReader(`{"title":"x"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(hub.CSRFHeader, token)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusForbidden, put("").StatusCode)

	resp, err := client.Get(f.URL() + "/csrf")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	token := gjson.GetBytes(body, "token").String()
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusForbidden, put("wrong").StatusCode)
	assert.Equal(t, http.StatusOK, put(token).StatusCode)

	resp, err = client.Get(f.URL() + "/api/project/p-1")
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	assert.Equal(t, "x", doc["title"])

	resp, err = client.Get(f.URL() + "/api/project")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `["p-1"]`, string(body))
}

func TestRESTNotFound(t *testing.T) {
	f := hubtest.Start(t)

	resp, err := http.Get(f.URL() + "/api/task/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(f.URL() + "/api/unicorn/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
