// Package server exposes the control plane over HTTP/JSON.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents a Cascade server. It serves the REST API used by
// pilots, the CLI and admins, and the Prometheus metrics endpoint.
type Server struct {
	HTTPPort         string
	AuthToken        string
	DisableHTTPCache bool

	store  *store.Store
	queue  *queue.Queue
	worker *materialize.Worker
	log    *logger.Logger
	events events.Writer
}

// New returns a new server instance.
func New(conf config.Config, s *store.Store, q *queue.Queue, w *materialize.Worker, log *logger.Logger, ev events.Writer) *Server {
	log.Debug("Server Config", "config.Server", conf.Server)
	if ev == nil {
		ev = events.Discard
	}
	return &Server{
		HTTPPort:         conf.Server.HTTPPort,
		AuthToken:        conf.Server.AuthToken,
		DisableHTTPCache: conf.Server.DisableHTTPCache,
		store:            s,
		queue:            q,
		worker:           w,
		log:              log,
		events:           ev,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.authenticate)
	if s.DisableHTTPCache {
		api.Use(disableCache)
	}
	s.routes(api)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, errRouteNotFound)
	})
	return r
}

// Serve starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", ":"+s.HTTPPort)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.Serve(lis)
	}()
	s.log.Info("HTTP server listening", "httpPort", s.HTTPPort)

	select {
	case err := <-errc:
		s.log.Error("HTTP server error", err)
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdown)
	}
}

// Set a cache-control header that disables response caching
// and pass through to the next handler.
func disableCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(resp, req)
	})
}
