package hub

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
)

// Server runs a Hub over TCP.
type Server struct {
	hub    *Hub
	logger *logrus.Entry
	server *http.Server
	addr   net.Addr
}

// NewServer creates a Server for hub.
func NewServer(hub *Hub, logger *logrus.Entry) *Server {
	return &Server{hub: hub, logger: logger}
}

// Listen binds addr. It is separate from Serve so callers can learn the
// chosen port before blocking.
func (s *Server) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to listen").WithDetail("addr", addr)
	}
	s.addr = ln.Addr()
	return ln, nil
}

// Addr returns the bound address once Listen succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve blocks until the server stops or fails.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"endpoint": s.hub.EndpointPath(),
	}).Info("Hub listening")
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := s.Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown closes websockets first, since http.Server.Shutdown does not
// track hijacked connections, then drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down hub...")
	s.hub.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
