package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func passing() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

type fakePool struct {
	err   error
	pings int
}

func (p *fakePool) Ping(_ context.Context) error {
	p.pings++
	return p.err
}

func hitLive(h *Health) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	return w
}

func hitReady(h *Health) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// --- Tests ---

func TestLiveEndpointAllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing())
	h.AddLivenessCheck("gc", time.Second, passing())

	w := hitLive(h)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeStatus(t, w).Status)
}

func TestLiveEndpointFailingCheck(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, failing("connection refused"))

	// Checks start healthy; three consecutive failures flip the state.
	ctx := context.Background()
	c := h.livenessChecks[0]
	c.run(ctx)
	c.run(ctx)
	c.run(ctx)

	w := hitLive(h)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeStatus(t, w)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["postgres"])
}

func TestLiveEndpointFailureBelowThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, failing("temporary"))

	// Two of three needed failures, still healthy.
	ctx := context.Background()
	h.livenessChecks[0].run(ctx)
	h.livenessChecks[0].run(ctx)

	assert.Equal(t, http.StatusOK, hitLive(h).Code)
}

func TestReadyEndpointLifecycle(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())

	// Not ready until SetReady(true).
	w := hitReady(h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeStatus(t, w).Checks, "_readiness")

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, hitReady(h).Code)

	// Graceful shutdown flips it back.
	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, hitReady(h).Code)
}

func TestReadyEndpointOneCheckFailing(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())
	h.AddReadinessCheck("gateway", time.Second, failing("gateway unreachable"))
	h.SetReady(true)

	ctx := context.Background()
	c := h.readinessChecks[1]
	c.run(ctx)
	c.run(ctx)
	c.run(ctx)

	w := hitReady(h)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeStatus(t, w)
	assert.Contains(t, body.Checks, "gateway")
	assert.NotContains(t, body.Checks, "postgres")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())

	assert.False(t, h.IsReady(), "not ready before SetReady")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestNoRegisteredChecks(t *testing.T) {
	h := New()
	h.SetReady(true)

	assert.Equal(t, http.StatusOK, hitLive(h).Code)
	assert.Equal(t, http.StatusOK, hitReady(h).Code)
}

func TestCheckRecovery(t *testing.T) {
	// A failing check becomes healthy again after successThreshold passes.
	failing := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	c := h.livenessChecks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	c.run(ctx)
	assert.False(t, c.isHealthy())

	failing = false
	c.run(ctx)
	assert.True(t, c.isHealthy(), "one pass should recover with successThreshold 1")
}

func TestCheckLastErrorStored(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, failing("timeout"))
	c := h.livenessChecks[0]

	assert.Nil(t, c.getLastError())

	c.run(context.Background())
	assert.EqualError(t, c.getLastError(), "timeout")
}

func TestStopIsIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, passing())

	h.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	// run() and the HTTP endpoints must be safe to call concurrently.
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, failing("err"))
	h.AddReadinessCheck("postgres", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				hitLive(h)
				hitReady(h)
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestDatabasePingCheck(t *testing.T) {
	pool := &fakePool{}
	check := DatabasePingCheck(pool)

	require.NoError(t, check(context.Background()))
	assert.Equal(t, 1, pool.pings)

	pool.err = errors.New("connection refused")
	err := check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDatabasePingCheckDrivesReadiness(t *testing.T) {
	pool := &fakePool{err: errors.New("pool closed")}
	h := New()
	h.AddReadinessCheck("postgres", time.Second, DatabasePingCheck(pool))
	h.SetReady(true)

	ctx := context.Background()
	c := h.readinessChecks[0]
	c.run(ctx)
	c.run(ctx)
	c.run(ctx)

	assert.False(t, h.IsReady())
	w := hitReady(h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeStatus(t, w).Checks["postgres"], "pool closed")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
