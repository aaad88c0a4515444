package memserver

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"k8s.io/kube-openapi/pkg/validation/strfmt"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/statscollector"
)

const defaultGCWindow = 5 * time.Minute

type Status struct {
	Running bool `json:"running"`
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	s.router.HandleFunc("/monitor/start", s.startMonitoring).Methods(http.MethodPost)
	s.router.HandleFunc("/monitor/stop", s.stopMonitoring).Methods(http.MethodPost)
	s.router.HandleFunc("/stats/latest", s.latest).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/heap", s.heapStats).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/allocation_rate", s.allocationRate).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/gc", s.gcActivity).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/process", s.processStats).Methods(http.MethodGet)
	s.router.HandleFunc("/series/{metric}", s.series).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.events).Methods(http.MethodGet)
	s.router.HandleFunc("/samples", s.samples).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.exporter.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.stream).Methods(http.MethodGet)
	s.router.HandleFunc("/shutdown", s.shutdown).Methods(http.MethodPost)

	// Mock endpoints for testing
	s.router.HandleFunc("/mock/heap", s.mockSetHeap).Methods(http.MethodPost)
	s.router.HandleFunc("/mock/gc", s.mockTriggerGC).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("error encoding response to json: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func writeText(w http.ResponseWriter, body string) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// parseWindow reads an optional duration query parameter. Day and week units
// are accepted.
func parseWindow(r *http.Request, key string) (time.Duration, bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, false, nil
	}
	d, err := strfmt.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, "ok")
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, Status{Running: s.Running()})
}

func (s *Server) startMonitoring(w http.ResponseWriter, _ *http.Request) {
	if err := s.StartMonitoring(); err != nil {
		log.WithError(err).Error("failed to start monitoring")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, Status{Running: s.Running()})
}

func (s *Server) stopMonitoring(w http.ResponseWriter, _ *http.Request) {
	if err := s.StopMonitoring(); err != nil && !errors.Is(err, monitor.ErrStopTimeout) {
		log.WithError(err).Error("failed to stop monitoring")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, Status{Running: s.Running()})
}

func (s *Server) latest(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.stats.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, snapshot)
}

func (s *Server) heapStats(w http.ResponseWriter, r *http.Request) {
	since, average, err := parseWindow(r, "average")
	if err != nil {
		http.Error(w, "invalid average duration", http.StatusBadRequest)
		return
	}

	var heap uint64
	if average {
		heap = s.stats.AverageHeapUsage(since)
	} else if snapshot, ok := s.stats.Latest(); ok {
		heap = snapshot.HeapUsed
	}

	log.WithField("heap", heap).Debug("retrieved heap usage")
	writeText(w, strconv.FormatUint(heap, 10))
}

func (s *Server) allocationRate(w http.ResponseWriter, r *http.Request) {
	since, average, err := parseWindow(r, "average")
	if err != nil {
		http.Error(w, "invalid average duration", http.StatusBadRequest)
		return
	}

	var rate float64
	if average {
		rate = s.stats.AverageAllocationRate(since)
	} else if snapshot, ok := s.stats.Latest(); ok {
		rate = snapshot.AllocationRateMBps
	}

	log.WithField("rate", rate).Debug("retrieved allocation rate")
	writeText(w, strconv.FormatFloat(rate, 'f', -1, 64))
}

func (s *Server) gcActivity(w http.ResponseWriter, r *http.Request) {
	since, ok, err := parseWindow(r, "since")
	if err != nil {
		http.Error(w, "invalid since duration", http.StatusBadRequest)
		return
	}
	if !ok {
		since = defaultGCWindow
	}
	writeJSON(w, s.stats.GCActivity(since))
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	metric := statscollector.Metric(mux.Vars(r)["metric"])
	if !statscollector.ValidMetric(metric) {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}
	writeJSON(w, s.stats.Series(metric))
}

func (s *Server) events(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Events())
}

// samples returns every retained snapshot, or those taken within ?since=.
func (s *Server) samples(w http.ResponseWriter, r *http.Request) {
	since, ok, err := parseWindow(r, "since")
	if err != nil {
		http.Error(w, "invalid since duration", http.StatusBadRequest)
		return
	}
	if !ok {
		since = math.MaxInt64
	}
	writeJSON(w, s.stats.GetSamples(since))
}

func (s *Server) processStats(w http.ResponseWriter, _ *http.Request) {
	proc, err := s.monitoredProcess()
	if err != nil {
		log.Errorf("error finding monitored process: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := GetProcessStats(proc)
	if err != nil {
		log.Errorf("error getting process stats: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(s.ctx, w, r)
}

func (s *Server) shutdown(w http.ResponseWriter, _ *http.Request) {
	log.Info("shutdown requested")
	writeText(w, "ok")

	go func() {
		if err := s.Stop(); err != nil {
			log.Errorf("failed to stop server: %v", err)
		}
	}()
}
