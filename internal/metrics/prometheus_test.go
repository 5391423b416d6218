package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CheckStarted("service", 0.2)
	m.CheckStarted("service", 0.1)
	m.CheckStarted("host", 0)
	m.SetQueueDepth(7)
	m.ResultReaped("service", "CRITICAL", 1.5)
	m.ResultDropped()
	m.StateChange("service", "HARD")
	m.NotificationSent("PROBLEM")
	m.FlappingDelta("host", 1)
	m.FlappingDelta("host", 1)
	m.FlappingDelta("host", -1)
	m.Resolution(2, 0)
	m.CheckOrphaned("service")
	m.ReaperPassDone(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChecksExecuted.WithLabelValues("service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksExecuted.WithLabelValues("host")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultsReaped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateChanges.WithLabelValues("service", "HARD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("PROBLEM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flapping.WithLabelValues("host")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResolveIssues.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksOrphaned.WithLabelValues("service")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var m *Collector
	assert.NotPanics(t, func() {
		m.CheckStarted("service", 1)
		m.SetQueueDepth(1)
		m.ResultReaped("host", "UP", 0)
		m.ResultDropped()
		m.StateChange("host", "SOFT")
		m.NotificationSent("RECOVERY")
		m.FlappingDelta("service", 1)
		m.Resolution(1, 1)
		m.CheckOrphaned("host")
		m.ReaperPassDone(time.Second)
	})
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
