// ABOUTME: Tests for metrics collectors
// ABOUTME: Uses private registries and the client_golang testutil helpers

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(3, 1, 7, 2*time.Second)
	m.ObserveRun(4, 0, 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerRuns))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.SchedulerFeeds.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerFeeds.WithLabelValues("failure")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.SchedulerNewItems))
	assert.Greater(t, testutil.ToFloat64(m.SchedulerLastRun), 0.0)
}

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("GET", "/rss-feed/items", 200, time.Millisecond)
	m.ObserveRequest("GET", "/rss-feed/items", 404, time.Millisecond)
	m.ObserveRequest("GET", "/rss-feed/items", 204, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/rss-feed/items", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/rss-feed/items", "4xx")))
}

func TestInit(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Init("1.2.3", "sqlite")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ApplicationInfo.WithLabelValues("1.2.3", "sqlite")))
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "2xx", 301: "3xx", 400: "4xx", 502: "5xx"}
	for status, want := range tests {
		assert.Equal(t, want, statusLabel(status), "status %d", status)
	}
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
