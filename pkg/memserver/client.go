package memserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/statscollector"
)

var (
	// httpClient is a shared HTTP client with reasonable timeout
	httpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
)

// StatsClient is the query surface of a memwatch server, kept small so it can
// be mocked in tests.
type StatsClient interface {
	GetHeapStats(ctx context.Context, since time.Duration) (uint64, error)
	GetAllocationRate(ctx context.Context, since time.Duration) (float64, error)
	GetGCActivity(ctx context.Context, since time.Duration) (statscollector.GCActivity, error)
}

// Client provides methods to interact with the memwatch HTTP server.
type Client struct {
	url string
}

var _ StatsClient = (*Client)(nil)

// NewClient creates a client for the server on host, listening on the default
// port. The host should not carry a scheme or port.
func NewClient(host string) *Client {
	return &Client{url: fmt.Sprintf("http://%s:%d", host, DefaultPort)}
}

// NewClientForURL creates a client for a server base URL such as
// http://127.0.0.1:8000.
func NewClientForURL(baseURL string) *Client {
	return &Client{url: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) do(ctx context.Context, method, endpoint string, validStatuses ...int) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+endpoint, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	for _, status := range validStatuses {
		if resp.StatusCode == status {
			return resp.StatusCode, body, nil
		}
	}
	return resp.StatusCode, nil, errors.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// httpGet performs an HTTP GET request and returns the response body as a string.
func (c *Client) httpGet(ctx context.Context, endpoint string) (string, error) {
	_, body, err := c.do(ctx, http.MethodGet, endpoint, http.StatusOK)
	return string(body), err
}

// httpGetJSON performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) httpGetJSON(ctx context.Context, endpoint string, target interface{}) error {
	_, body, err := c.do(ctx, http.MethodGet, endpoint, http.StatusOK)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, target)
}

func withWindow(endpoint, key string, d time.Duration) string {
	if d <= 0 {
		return endpoint
	}
	params := url.Values{}
	params.Set(key, d.String())
	return endpoint + "?" + params.Encode()
}

// GetLatest returns the most recent sample, or nil when none was taken yet.
func (c *Client) GetLatest(ctx context.Context) (*monitor.Snapshot, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/stats/latest", http.StatusOK, http.StatusNoContent)
	if err != nil {
		return nil, errors.WrapIf(err, "failed to get latest sample")
	}
	if status == http.StatusNoContent {
		return nil, nil
	}

	var snapshot monitor.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, errors.WrapIf(err, "failed to parse latest sample")
	}
	return &snapshot, nil
}

// GetHeapStats returns the heap usage in bytes.
// If since is greater than 0, it returns the average over that duration.
func (c *Client) GetHeapStats(ctx context.Context, since time.Duration) (uint64, error) {
	body, err := c.httpGet(ctx, withWindow("/stats/heap", "average", since))
	if err != nil {
		return 0, errors.WrapIf(err, "failed to get heap stats")
	}

	val, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return 0, errors.WrapIf(err, "failed to parse heap stats")
	}
	return val, nil
}

// GetAllocationRate returns the allocation rate in MB/s.
// If since is greater than 0, it returns the average over that duration.
func (c *Client) GetAllocationRate(ctx context.Context, since time.Duration) (float64, error) {
	body, err := c.httpGet(ctx, withWindow("/stats/allocation_rate", "average", since))
	if err != nil {
		return 0, errors.WrapIf(err, "failed to get allocation rate")
	}

	val, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, errors.WrapIf(err, "failed to parse allocation rate")
	}
	return val, nil
}

// GetGCActivity returns collections and pause time over the given duration, or
// over the server default when since is not positive.
func (c *Client) GetGCActivity(ctx context.Context, since time.Duration) (statscollector.GCActivity, error) {
	var activity statscollector.GCActivity
	if err := c.httpGetJSON(ctx, withWindow("/stats/gc", "since", since), &activity); err != nil {
		return statscollector.GCActivity{}, errors.WrapIf(err, "failed to get gc activity")
	}
	return activity, nil
}

func (c *Client) GetSeries(ctx context.Context, metric statscollector.Metric) ([]statscollector.Point, error) {
	var points []statscollector.Point
	if err := c.httpGetJSON(ctx, "/series/"+url.PathEscape(string(metric)), &points); err != nil {
		return nil, errors.WrapIfWithDetails(err, "failed to get series", "metric", metric)
	}
	return points, nil
}

func (c *Client) GetEvents(ctx context.Context) ([]monitor.GCEvent, error) {
	var events []monitor.GCEvent
	if err := c.httpGetJSON(ctx, "/events", &events); err != nil {
		return nil, errors.WrapIf(err, "failed to get gc events")
	}
	return events, nil
}

// GetSamples returns the snapshots taken within since, or every retained one
// when since is not positive.
func (c *Client) GetSamples(ctx context.Context, since time.Duration) ([]monitor.Snapshot, error) {
	var samples []monitor.Snapshot
	if err := c.httpGetJSON(ctx, withWindow("/samples", "since", since), &samples); err != nil {
		return nil, errors.WrapIf(err, "failed to get samples")
	}
	return samples, nil
}

func (c *Client) GetProcessStats(ctx context.Context) (*ProcessStats, error) {
	var stats ProcessStats
	if err := c.httpGetJSON(ctx, "/stats/process", &stats); err != nil {
		return nil, errors.WrapIf(err, "failed to get process stats")
	}
	return &stats, nil
}

func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	var status Status
	if err := c.httpGetJSON(ctx, "/status", &status); err != nil {
		return false, err
	}
	return status.Running, nil
}

func (c *Client) StartMonitoring(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, "/monitor/start", http.StatusOK)
	return errors.WrapIf(err, "failed to start monitoring")
}

func (c *Client) StopMonitoring(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, "/monitor/stop", http.StatusOK)
	return errors.WrapIf(err, "failed to stop monitoring")
}

// ShutdownServer asks the server to stop monitoring and exit.
func (c *Client) ShutdownServer(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/shutdown", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
