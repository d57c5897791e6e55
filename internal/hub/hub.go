// Package hub is a small live update server: a REST API over the resource
// store plus the websocket endpoint that pushes changes to subscribers. It
// backs `live serve` and the client tests.
package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/internal/hub/store"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/schema"
)

const (
	// CSRFCookie and CSRFHeader must carry the same token on unsafe requests.
	CSRFCookie = "csrftoken"
	CSRFHeader = "X-CSRFToken"

	writeWait = 5 * time.Second
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Options configure a Hub.
type Options struct {
	// WSPath is the websocket path prefix; the endpoint is WSPath + "/websocket/".
	WSPath string
	Logger *logrus.Entry
}

// Hub serves resources and live updates.
type Hub struct {
	store     *store.Store
	logger    *logrus.Entry
	validator *schema.Validator
	upgrader  websocket.Upgrader
	wsPath    string

	updates chan store.Update
	wg      sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	writeMu sync.Mutex

	// guarded by Hub.mu
	subs map[protocol.Resource]struct{}
}

// New creates a hub on top of st and starts fanning out its updates.
func New(st *store.Store, opts Options) (*Hub, error) {
	validator, err := schema.NewMessageValidator()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("hub")
	}
	wsPath := opts.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	h := &Hub{
		store:     st,
		logger:    logger,
		validator: validator,
		wsPath:    "/" + strings.Trim(wsPath, "/") + protocol.EndpointSuffix,
		clients:   make(map[*client]struct{}),
		updates:   st.Subscribe(),
	}
	h.wg.Add(1)
	go h.fanOut()
	return h, nil
}

// Store returns the backing store.
func (h *Hub) Store() *store.Store {
	return h.store
}

// EndpointPath is the websocket path the hub listens on.
func (h *Hub) EndpointPath() string {
	return h.wsPath
}

// Handler builds the HTTP routes.
func (h *Hub) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/csrf", h.handleCSRF)
	r.GET(h.wsPath, h.handleWebsocket)

	api := r.Group("/api")
	api.GET("/:type", h.handleList)
	api.GET("/:type/:uuid", h.handleGet)
	api.PUT("/:type/:uuid", h.requireCSRF, h.handlePut)
	api.DELETE("/:type/:uuid", h.requireCSRF, h.handleDelete)
	return r
}

func (h *Hub) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Request served")
	}
}

func apiError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": string(errors.GetCode(err))})
}

func (h *Hub) handleCSRF(c *gin.Context) {
	token := uuid.NewString()
	c.SetCookie(CSRFCookie, token, 0, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Hub) requireCSRF(c *gin.Context) {
	cookie, err := c.Cookie(CSRFCookie)
	if err != nil || cookie == "" || c.GetHeader(CSRFHeader) != cookie {
		apiError(c, http.StatusForbidden, errors.New(errors.ErrCodeInvalidInput, "CSRF token missing or incorrect"))
		return
	}
	c.Next()
}

func resourceParam(c *gin.Context) (protocol.Resource, bool) {
	t, err := protocol.ParseResourceType(c.Param("type"))
	if err != nil {
		apiError(c, http.StatusNotFound, err)
		return protocol.Resource{}, false
	}
	return protocol.Resource{Type: t, UUID: c.Param("uuid")}, true
}

func (h *Hub) handleList(c *gin.Context) {
	t, err := protocol.ParseResourceType(c.Param("type"))
	if err != nil {
		apiError(c, http.StatusNotFound, err)
		return
	}
	ids, err := h.store.List(t)
	if err != nil {
		apiError(c, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Hub) handleGet(c *gin.Context) {
	res, ok := resourceParam(c)
	if !ok {
		return
	}
	doc, found, err := h.store.Get(res)
	if err != nil {
		apiError(c, http.StatusInternalServerError, err)
		return
	}
	if !found {
		apiError(c, http.StatusNotFound, errors.ResourceNotFound(string(res.Type), res.UUID))
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

func (h *Hub) handlePut(c *gin.Context) {
	res, ok := resourceParam(c)
	if !ok {
		return
	}
	var doc json.RawMessage
	if err := c.ShouldBindJSON(&doc); err != nil {
		apiError(c, http.StatusBadRequest, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid resource body"))
		return
	}
	if err := h.Publish(res, doc); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

func (h *Hub) handleDelete(c *gin.Context) {
	res, ok := resourceParam(c)
	if !ok {
		return
	}
	found, err := h.Remove(res)
	if err != nil {
		apiError(c, http.StatusInternalServerError, err)
		return
	}
	if !found {
		apiError(c, http.StatusNotFound, errors.ResourceNotFound(string(res.Type), res.UUID))
		return
	}
	c.Status(http.StatusNoContent)
}

// Publish stores content and pushes a changed message to subscribers.
func (h *Hub) Publish(res protocol.Resource, content json.RawMessage) error {
	return h.store.Put(res, content)
}

// Remove deletes res and pushes a gone message to subscribers.
func (h *Hub) Remove(res protocol.Resource) (bool, error) {
	return h.store.Delete(res)
}

func (h *Hub) handleWebsocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	cl := &client{id: uuid.New(), conn: conn, subs: make(map[protocol.Resource]struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[cl] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.WithField("client", cl.id.String()).Debug("Client connected")
	h.serve(cl)
}

func (h *Hub) serve(cl *client) {
	defer h.wg.Done()
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		cl.conn.Close()
		h.logger.WithField("client", cl.id.String()).Debug("Client disconnected")
	}()

	for {
		mt, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := h.validator.ValidateJSON(data); err != nil {
			h.logger.WithError(err).WithField("client", cl.id.String()).Warn("Ignoring invalid request")
			continue
		}
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			h.logger.WithError(err).WithField("client", cl.id.String()).Warn("Ignoring invalid request")
			continue
		}
		resp, err := h.handleRequest(cl, req)
		if err != nil {
			h.logger.WithError(err).Error("Failed to handle request")
			continue
		}
		if err := h.write(cl, resp); err != nil {
			return
		}
	}
}

func (h *Hub) handleRequest(cl *client, req protocol.Request) (protocol.Response, error) {
	res := req.Target()
	resp := protocol.Response{Resource: res.Type, UUID: res.UUID}

	switch req.Action {
	case protocol.ActionSubscribe:
		exists, err := h.store.Exists(res)
		if err != nil {
			return resp, err
		}
		h.mu.Lock()
		_, subscribed := cl.subs[res]
		switch {
		case !exists:
			resp.Kind = protocol.KindNotFound
		case subscribed:
			resp.Kind = protocol.KindAlreadySubscribed
		default:
			cl.subs[res] = struct{}{}
			resp.Kind = protocol.KindSubscribed
		}
		h.mu.Unlock()
	case protocol.ActionUnsubscribe:
		h.mu.Lock()
		if _, ok := cl.subs[res]; ok {
			delete(cl.subs, res)
			resp.Kind = protocol.KindUnsubscribed
		} else {
			resp.Kind = protocol.KindNotSubscribed
		}
		h.mu.Unlock()
	}
	return resp, nil
}

func (h *Hub) write(cl *client, resp protocol.Response) error {
	data, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, data)
}

// fanOut turns store updates into changed and gone messages.
func (h *Hub) fanOut() {
	defer h.wg.Done()
	for u := range h.updates {
		resp := protocol.Response{Resource: u.Resource.Type, UUID: u.Resource.UUID}
		switch u.Type {
		case store.UpdateChanged:
			resp.Kind = protocol.KindChanged
			resp.Content = u.Content
		case store.UpdateGone:
			resp.Kind = protocol.KindGone
		}

		h.mu.Lock()
		var targets []*client
		for cl := range h.clients {
			if _, ok := cl.subs[u.Resource]; !ok {
				continue
			}
			targets = append(targets, cl)
			if u.Type == store.UpdateGone {
				delete(cl.subs, u.Resource)
			}
		}
		h.mu.Unlock()

		for _, cl := range targets {
			if err := h.write(cl, resp); err != nil {
				h.logger.WithError(err).WithField("client", cl.id.String()).Debug("Dropping update for client")
			}
		}
	}
}

// Connections returns the number of connected websocket clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribers returns how many clients subscribe to res.
func (h *Hub) Subscribers(res protocol.Resource) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for cl := range h.clients {
		if _, ok := cl.subs[res]; ok {
			n++
		}
	}
	return n
}

// DropConnections closes every websocket without a close handshake, the way
// a network failure or server restart looks to clients.
func (h *Hub) DropConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		cl.conn.Close()
	}
	return len(h.clients)
}

// Close disconnects every client and stops the fan-out. The store stays open.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for cl := range h.clients {
		cl.writeMu.Lock()
		_ = cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"), time.Now().Add(writeWait))
		cl.writeMu.Unlock()
		cl.conn.Close()
	}
	h.mu.Unlock()

	h.store.Unsubscribe(h.updates)
	h.wg.Wait()
}
