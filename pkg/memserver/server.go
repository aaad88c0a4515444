// Package memserver exposes a memory monitor over HTTP: JSON queries over the
// retained window, a websocket stream of samples, Prometheus metrics and
// remote control of the monitoring lifecycle.
package memserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"emperror.dev/errors"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/memwatch/pkg/memsource"
	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/statscollector"
)

var ErrServerStopped = errors.New("server is stopped")

type Server struct {
	server    *http.Server
	router    *mux.Router
	cfg       *Options
	monitor   *monitor.Monitor
	stats     *statscollector.Collector
	hub       *Hub
	exporter  *Exporter
	sink      monitor.Sinks
	mock      *memsource.Mock
	processes *ttlcache.Cache[string, *process.Process]

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func New(source monitor.Source, opts ...Option) (*Server, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if source == nil {
		return nil, errors.New("a metric source is required")
	}

	exporter, err := NewExporter()
	if err != nil {
		return nil, errors.WrapIf(err, "failed to register metrics")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      options,
		router:   mux.NewRouter(),
		monitor:  monitor.New(source, monitor.WithGracePeriod(options.GracePeriod)),
		stats:    statscollector.NewCollector(options.MaxSamples, statscollector.WithEventCapacity(options.EventCapacity)),
		hub:      NewHub(),
		exporter: exporter,
		processes: ttlcache.New[string, *process.Process](
			ttlcache.WithTTL[string, *process.Process](options.ProcessTTL),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	s.sink = monitor.Sinks{s.stats, s.hub, s.exporter}

	if mock, ok := source.(*memsource.Mock); ok {
		s.mock = mock
	} else if options.MockMode {
		log.Warn("mock mode requested but source is not a mock, mock endpoints will fail")
	}

	s.registerRoutes()
	go s.hub.Run(ctx)

	return s, nil
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stats returns the collector fed by the monitor.
func (s *Server) Stats() *statscollector.Collector {
	return s.stats
}

// StartMonitoring fails with ErrServerStopped once Stop was called.
func (s *Server) StartMonitoring() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMonitoringLocked()
}

func (s *Server) startMonitoringLocked() error {
	if s.ctx.Err() != nil {
		return errors.WithStack(ErrServerStopped)
	}
	return s.monitor.Start(s.cfg.InitialDelay, s.cfg.Period, s.sink)
}

func (s *Server) StopMonitoring() error {
	return s.monitor.Stop()
}

func (s *Server) Running() bool {
	return s.monitor.Running()
}

// Start serves HTTP until Stop is called. It returns nil without serving or
// monitoring when Stop already ran.
func (s *Server) Start() error {
	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port), Handler: s.router}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.AutoStart {
		if err := s.startMonitoringLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.server = srv
	s.mu.Unlock()

	log.Infof("server started listening on %s:%d ...", s.cfg.Host, s.cfg.Port)
	err := srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop halts monitoring, disconnects stream clients and shuts the HTTP server
// down. Only the first call has any effect.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		log.Info("stopping server")

		// cancelling under the lock orders this against Start: either Start
		// already launched monitoring and it is stopped below, or it never will
		s.mu.Lock()
		s.cancel()
		srv := s.server
		s.mu.Unlock()

		if err := s.StopMonitoring(); err != nil {
			log.WithError(err).Warn("monitor did not stop cleanly")
		}
		if srv == nil {
			return
		}

		log.Debug("shutting down http server")
		ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownAfter)
		defer cancel()
		s.stopErr = srv.Shutdown(ctx)
	})
	return s.stopErr
}
