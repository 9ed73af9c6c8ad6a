package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_IncrementCounter(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.IncrementCounter(ConnCacheAcquireTotal, "path", "fast", "result", "ok")
	collector.IncrementCounter(ConnCacheAcquireTotal, "path", "fast", "result", "ok")

	counter := collector.counters[ConnCacheAcquireTotal]
	require.NotNil(t, counter, "Counter should be created")

	value := testutil.ToFloat64(counter.WithLabelValues("fast", "ok"))
	assert.Equal(t, float64(2), value, "Counter should be incremented twice")
}

func TestPrometheusCollector_RecordHistogram(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.RecordHistogram(HTTPRequestDuration, 0.042, "route", "/healthz")

	histogram := collector.histograms[HTTPRequestDuration]
	require.NotNil(t, histogram, "Histogram should be created")

	count := testutil.CollectAndCount(histogram)
	assert.Equal(t, 1, count, "Histogram should have one series")
}

func TestPrometheusCollector_RecordGauge(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.RecordGauge("profile_cache_entries", 42.0)

	gauge := collector.gauges["profile_cache_entries"]
	require.NotNil(t, gauge, "Gauge should be created")

	assert.Equal(t, 42.0, testutil.ToFloat64(gauge.WithLabelValues()))
}

func TestPrometheusCollector_StartTimer(t *testing.T) {
	collector := NewPrometheusCollector()
	timer := collector.StartTimer("test_timer_seconds")

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.Greater(t, duration, 0.0)
	assert.Less(t, duration, 1.0)
	assert.NotNil(t, collector.histograms["test_timer_seconds"], "Stop should record the duration")
}

func TestPrometheusCollector_Concurrent(t *testing.T) {
	collector := NewPrometheusCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter(HTTPRequestsTotal, "status", "200")
		}()
	}
	wg.Wait()

	value := testutil.ToFloat64(collector.counters[HTTPRequestsTotal].WithLabelValues("200"))
	assert.Equal(t, float64(20), value)
}

func TestPrometheusCollector_Handler(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.IncrementCounter(ConnCacheDialTotal, "result", "ok")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `conncache_dial_total{result="ok"} 1`))
}

func TestParseLabelPairs(t *testing.T) {
	tests := []struct {
		name       string
		labels     []string
		wantNames  []string
		wantValues []string
	}{
		{
			name:       "empty labels",
			labels:     []string{},
			wantNames:  []string{},
			wantValues: []string{},
		},
		{
			name:       "single pair",
			labels:     []string{"key1", "value1"},
			wantNames:  []string{"key1"},
			wantValues: []string{"value1"},
		},
		{
			name:       "multiple pairs",
			labels:     []string{"key1", "value1", "key2", "value2"},
			wantNames:  []string{"key1", "key2"},
			wantValues: []string{"value1", "value2"},
		},
		{
			name:       "odd number of labels",
			labels:     []string{"key1", "value1", "key2"},
			wantNames:  []string{"key1"},
			wantValues: []string{"value1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, values := parseLabelPairs(tt.labels)
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantValues, values)
		})
	}
}

func TestMetricsServer(t *testing.T) {
	server := NewMetricsServer("127.0.0.1:0", NewPrometheusCollector().Handler())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

func TestMetricsServer_StopWithoutStart(t *testing.T) {
	server := NewMetricsServer(":0", http.NotFoundHandler())
	assert.NoError(t, server.Stop(context.Background()))
}
