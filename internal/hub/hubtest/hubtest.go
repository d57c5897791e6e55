// Package hubtest starts an in-memory hub for tests.
package hubtest

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/internal/hub"
	"github.com/projectify/live/internal/hub/store"
	"github.com/projectify/live/pkg/protocol"
)

// Fixture is a running hub with an in-memory store.
type Fixture struct {
	*hub.Hub
	Server *httptest.Server
}

// Start runs a hub until the test ends.
func Start(t testing.TB) *Fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	h, err := hub.New(store.New(store.NewMemory()), hub.Options{
		WSPath: "/ws",
		Logger: logger.WithField("component", "hub"),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &Fixture{Hub: h, Server: srv}
}

// URL is the REST base URL.
func (f *Fixture) URL() string {
	return f.Server.URL
}

// WSURL is the websocket endpoint.
func (f *Fixture) WSURL() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + f.EndpointPath()
}

// Put stores v as the content of res, notifying subscribers.
func (f *Fixture) Put(t testing.TB, res protocol.Resource, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, f.Publish(res, data))
}

// Delete removes res, notifying subscribers.
func (f *Fixture) Delete(t testing.TB, res protocol.Resource) {
	t.Helper()
	_, err := f.Remove(res)
	require.NoError(t, err)
}
