package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	t.Parallel()

	// Each call owns its registry, so repeated construction never collides.
	for range 3 {
		m, err := NewMetrics()
		require.NoError(t, err)
		require.NotNil(t, m.Listener)
		require.NotNil(t, m.Learning)
		require.NotNil(t, m.Health)
		require.NotNil(t, m.Datastore)
		require.NotNil(t, m.EventBus)
		require.NotNil(t, m.Notify)
	}
}

func TestMetricsHandlerServesCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Listener.Detections.WithLabelValues("help").Inc()
	m.Datastore.RecordOperation(metrics.OpPing, metrics.StatusSuccess)

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hearken_listener_detections_total{trigger="help"} 1`)
	assert.Contains(t, string(body), "hearken_datastore_reachable 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDatastoreRecorder(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	var r metrics.Recorder = m.Datastore
	r.RecordOperation(metrics.OpPing, metrics.StatusError)
	r.RecordError(metrics.OpSaveState, "persistence")
	r.RecordDuration(metrics.OpSaveState, 0.01)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Datastore, "hearken_datastore_errors_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Datastore, "hearken_datastore_reachable"))
	metrics.OrNoOp(nil).RecordOperation("x", "y")
}

func TestNotifyObserveDelivery(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Notify.ObserveDelivery("mqtt", time.Now(), nil)
	m.Notify.ObserveDelivery("mqtt", time.Now(), assert.AnError)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Notify.Delivered.WithLabelValues("mqtt")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Notify.Errors.WithLabelValues("mqtt")), 0)
}

func TestEndpointDisabled(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewEndpoint(&conf.TelemetrySettings{Enabled: false}, m)
	assert.Error(t, err)
}

func TestEndpointRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint(&conf.TelemetrySettings{Enabled: true, Listen: addr}, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint did not stop")
	}
}
