package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHitRatioTracksLookups(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit("snapshot")
	m.RecordCacheHit("snapshot")
	m.RecordCacheHit("snapshot")
	m.RecordCacheMiss("snapshot")

	assert.InDelta(t, 0.75, m.HitRatio(), 1e-9)
}

func TestHitRatioSpansLookupKinds(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit("snapshot")
	m.RecordCacheMiss("token")

	assert.InDelta(t, 0.5, m.HitRatio(), 1e-9)
}

func TestHitRatioZeroBeforeTraffic(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.HitRatio())
}

func TestRecordEventsCountsByKind(t *testing.T) {
	m := NewMetrics()

	m.RecordEvents([]string{"batch_update", "price_alert", "price_alert"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("batch_update")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("price_alert")))
}

func TestFetchAndTickRecording(t *testing.T) {
	m := NewMetrics()

	m.RecordFetch("dexscreener", 120*time.Millisecond)
	m.RecordFetchError("coingecko", "rate_limited")
	m.RecordRateLimited("coingecko")
	m.RecordTick("success", 300*time.Millisecond)
	m.RecordTickSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("coingecko", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("coingecko")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksSkipped))
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordTick("success", 250*time.Millisecond)
	m.SnapshotTokens.Set(42)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "aggregator_tick_duration_seconds")
	assert.Contains(t, string(body), "aggregator_snapshot_tokens 42")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.WSClients.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.WSClients))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.WSClients))
}

func TestSamplerPopulatesGauges(t *testing.T) {
	m := NewMetrics()
	s := NewSampler(m, 10*time.Millisecond, zerolog.Nop())

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	stats := s.Stats()
	assert.False(t, stats.SampledAt.IsZero())
	assert.Greater(t, stats.Goroutines, 0)
	assert.Greater(t, stats.HeapAllocBytes, uint64(0))
	assert.Greater(t, testutil.ToFloat64(m.SysGoroutines), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.SysHeapAlloc), 0.0)
}

func TestSamplerStopWithoutStart(t *testing.T) {
	s := NewSampler(NewMetrics(), time.Second, zerolog.Nop())
	s.Stop()
}
