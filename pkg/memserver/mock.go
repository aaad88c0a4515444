package memserver

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/voluzi/memwatch/pkg/utils"
)

func (s *Server) mockEnabled(w http.ResponseWriter, endpoint string) bool {
	if !s.cfg.MockMode || s.mock == nil {
		log.WithField("endpoint", endpoint).Warn("mock endpoint called but mock mode not enabled")
		http.Error(w, "mock mode not enabled", http.StatusForbidden)
		return false
	}
	return true
}

// mockSetHeap handles POST /mock/heap to set the mock heap usage.
// Accepts: ?size=300MB or ?bytes=314572800
func (s *Server) mockSetHeap(w http.ResponseWriter, r *http.Request) {
	log.Debug("mock endpoint: /mock/heap called")

	if !s.mockEnabled(w, "/mock/heap") {
		return
	}

	if size := r.URL.Query().Get("size"); size != "" {
		val, err := utils.ParseSize(size)
		if err != nil {
			log.WithField("value", size).Warn("mock endpoint: invalid size value")
			http.Error(w, "invalid size value", http.StatusBadRequest)
			return
		}
		s.mock.SetHeapUsed(val)
		writeText(w, "ok")
		return
	}

	if b := r.URL.Query().Get("bytes"); b != "" {
		val, err := strconv.ParseUint(b, 10, 64)
		if err != nil {
			log.WithField("value", b).Warn("mock endpoint: invalid bytes value")
			http.Error(w, "invalid bytes value", http.StatusBadRequest)
			return
		}
		s.mock.SetHeapUsed(val)
		writeText(w, "ok")
		return
	}

	log.Warn("mock endpoint: /mock/heap called without size or bytes parameter")
	http.Error(w, "must specify 'size' or 'bytes' query parameter", http.StatusBadRequest)
}

// mockTriggerGC handles POST /mock/gc to record a collection.
// Accepts an optional ?pause_ms=5 (default 1).
func (s *Server) mockTriggerGC(w http.ResponseWriter, r *http.Request) {
	log.Debug("mock endpoint: /mock/gc called")

	if !s.mockEnabled(w, "/mock/gc") {
		return
	}

	pause := uint64(1)
	if p := r.URL.Query().Get("pause_ms"); p != "" {
		val, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			log.WithField("value", p).Warn("mock endpoint: invalid pause_ms value")
			http.Error(w, "invalid pause_ms value", http.StatusBadRequest)
			return
		}
		pause = val
	}

	writeJSON(w, s.mock.TriggerGC(pause))
}
