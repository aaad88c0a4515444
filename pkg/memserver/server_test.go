package memserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluzi/memwatch/pkg/memsource"
	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/statscollector"
)

const (
	eventually = 2 * time.Second
	tick       = 10 * time.Millisecond
)

func newTestServer(t *testing.T, source monitor.Source, opts ...Option) (*Server, *httptest.Server) {
	opts = append([]Option{WithSchedule(0, tick)}, opts...)
	s, err := New(source, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Stop()
	})
	return s, srv
}

func post(t *testing.T, url string) *http.Response {
	resp, err := http.Post(url, "text/plain", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestServer_Lifecycle(t *testing.T) {
	s, srv := newTestServer(t, memsource.NewMock())
	client := NewClientForURL(srv.URL)
	ctx := context.Background()

	status, _ := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)

	running, err := client.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	latest, err := client.GetLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, client.StartMonitoring(ctx))
	assert.True(t, s.Running())

	require.Eventually(t, func() bool {
		latest, err := client.GetLatest(ctx)
		return err == nil && latest != nil
	}, eventually, tick)

	heap, err := client.GetHeapStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(300*1024*1024), heap)

	avg, err := client.GetHeapStats(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(300*1024*1024), avg)

	rate, err := client.GetAllocationRate(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, rate)

	require.NoError(t, client.StopMonitoring(ctx))
	assert.False(t, s.Running())
}

func TestServer_MockEndpoints(t *testing.T) {
	mock := memsource.NewMock()
	s, srv := newTestServer(t, mock, WithMockMode(true))
	client := NewClientForURL(srv.URL)
	ctx := context.Background()

	require.NoError(t, s.StartMonitoring())
	require.Eventually(t, func() bool {
		_, ok := s.Stats().Latest()
		return ok
	}, eventually, tick)

	resp := post(t, srv.URL+"/mock/heap?size=512MB")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		heap, err := client.GetHeapStats(ctx, 0)
		return err == nil && heap == 512*1024*1024
	}, eventually, tick)

	resp = post(t, srv.URL+"/mock/gc?pause_ms=4")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var reading monitor.Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reading))
	assert.Equal(t, uint64(1), reading.GCCount)

	require.Eventually(t, func() bool {
		events, err := client.GetEvents(ctx)
		return err == nil && len(events) == 1
	}, eventually, tick)

	activity, err := client.GetGCActivity(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, statscollector.GCActivity{Cycles: 1, PauseMillis: 4}, activity)

	resp = post(t, srv.URL+"/mock/heap")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, srv.URL+"/mock/heap?size=lots")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_MockEndpointsDisabled(t *testing.T) {
	_, srv := newTestServer(t, memsource.NewMock())

	resp := post(t, srv.URL+"/mock/heap?size=1GB")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = post(t, srv.URL+"/mock/gc")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_Series(t *testing.T) {
	s, srv := newTestServer(t, memsource.NewMock())
	client := NewClientForURL(srv.URL)

	require.NoError(t, s.StartMonitoring())
	require.Eventually(t, func() bool {
		points, err := client.GetSeries(context.Background(), statscollector.HeapUsed)
		return err == nil && len(points) >= 2
	}, eventually, tick)

	points, err := client.GetSeries(context.Background(), statscollector.HeapUsed)
	require.NoError(t, err)
	assert.Equal(t, float64(300), points[0].Value)
	assert.Equal(t, 0.0, points[0].Elapsed)

	samples, err := client.GetSamples(context.Background(), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(samples), 2)
	assert.Equal(t, uint64(300*1024*1024), samples[0].HeapUsed)

	status, _ := get(t, srv.URL+"/series/cpu")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_InvalidWindow(t *testing.T) {
	_, srv := newTestServer(t, memsource.NewMock())

	status, _ := get(t, srv.URL+"/stats/heap?average=soon")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = get(t, srv.URL+"/stats/gc?since=soon")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = get(t, srv.URL+"/samples?since=soon")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Metrics(t *testing.T) {
	s, srv := newTestServer(t, memsource.NewMock())

	require.NoError(t, s.StartMonitoring())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.exporter.samples) > 0
	}, eventually, tick)

	status, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "memwatch_heap_used_bytes 3.145728e+08")
	assert.Contains(t, body, "memwatch_heap_max_bytes -1")
}

func TestServer_ProcessStats(t *testing.T) {
	s, srv := newTestServer(t, memsource.NewMock())
	client := NewClientForURL(srv.URL)

	stats, err := client.GetProcessStats(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, stats.MemoryRSS)

	// the handle is cached for the configured ttl
	require.NotNil(t, s.processes.Get(selfProcessKey))
}

func TestServer_Stream(t *testing.T) {
	mock := memsource.NewMock()
	s, srv := newTestServer(t, mock, WithMockMode(true))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, eventually, tick)
	require.NoError(t, s.StartMonitoring())

	seen := map[string]bool{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(eventually)))
	for !seen[MessageReset] || !seen[MessageSample] {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = true
	}

	mock.TriggerGC(1)
	for !seen[MessageGC] {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = true
		if msg.Type == MessageGC {
			var event monitor.GCEvent
			require.NoError(t, json.Unmarshal(msg.Payload, &event))
			assert.Equal(t, uint64(1), event.GCCount)
		}
	}
}

func TestServer_Shutdown(t *testing.T) {
	s, err := New(memsource.NewMock(), WithHost("127.0.0.1"), WithPort(0), WithSchedule(0, tick))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, s.Running, eventually, tick)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shutdown", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("server did not shut down")
	}
	assert.False(t, s.Running())
	assert.True(t, errors.Is(s.StartMonitoring(), ErrServerStopped))
}

func TestServer_StopBeforeStart(t *testing.T) {
	source := &countingSource{source: memsource.NewMock()}
	s, err := New(source, WithHost("127.0.0.1"), WithPort(0), WithSchedule(0, 5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Start())

	assert.False(t, s.Running())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, source.reads.Load())
	assert.Empty(t, s.Stats().GetSamples(time.Hour))
}

// countingSource counts reads of the wrapped source.
type countingSource struct {
	source monitor.Source
	reads  atomic.Int32
}

func (c *countingSource) Read(ctx context.Context) (monitor.Reading, error) {
	c.reads.Add(1)
	return c.source.Read(ctx)
}
