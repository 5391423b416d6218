package freshness

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

var now = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

type requested struct {
	c       *objects.Checkable
	options int
}

func newChecker(start time.Time) (*Checker, *[]requested) {
	var got []requested
	fc := &Checker{
		Cfg:        objects.DefaultConfig(),
		EventStart: start,
		Request: func(c *objects.Checkable, _ time.Time, options int) bool {
			got = append(got, requested{c, options})
			return true
		},
	}
	return fc, &got
}

func passiveService(lastCheck time.Time, threshold int) *objects.Checkable {
	svc := objects.NewService("web01", "HTTP")
	svc.CheckFreshness = true
	svc.LastCheck = lastCheck
	svc.FreshnessThreshold = threshold
	return svc
}

func TestFreshResultIsLeftAlone(t *testing.T) {
	fc, got := newChecker(now.Add(-10 * time.Minute))
	svc := passiveService(now.Add(-2*time.Minute), 300)

	assert.Zero(t, fc.Check([]*objects.Checkable{svc}, objects.KindService, now))
	assert.Empty(t, *got)
}

func TestStaleResultForcesCheck(t *testing.T) {
	fc, got := newChecker(now.Add(-10 * time.Minute))
	log, hook := test.NewNullLogger()
	fc.Log = log
	svc := passiveService(now.Add(-10*time.Minute), 300)

	require.Equal(t, 1, fc.Check([]*objects.Checkable{svc}, objects.KindService, now))
	require.Len(t, *got, 1)
	assert.Equal(t, objects.CheckOptionForceExecution|objects.CheckOptionFreshnessCheck, (*got)[0].options)
	assert.True(t, svc.IsBeingFreshened)
	assert.Equal(t, "web01", hook.LastEntry().Data["host"])

	// Already being freshened: not requested twice.
	assert.Zero(t, fc.Check([]*objects.Checkable{svc}, objects.KindService, now.Add(time.Minute)))
}

func TestSkips(t *testing.T) {
	fc, _ := newChecker(now.Add(-10 * time.Minute))

	disabled := passiveService(now.Add(-time.Hour), 300)
	disabled.CheckFreshness = false

	executing := passiveService(now.Add(-time.Hour), 300)
	executing.IsExecuting = true

	noChecks := passiveService(now.Add(-time.Hour), 300)
	noChecks.ActiveChecksEnabled = false
	noChecks.PassiveChecksEnabled = false

	host := objects.NewHost("web01")
	host.CheckFreshness = true
	host.FreshnessThreshold = 60
	host.LastCheck = now.Add(-time.Hour)

	assert.Zero(t, fc.Check([]*objects.Checkable{disabled, executing, noChecks, host}, objects.KindService, now))
	assert.Equal(t, 1, fc.Check([]*objects.Checkable{host}, objects.KindHost, now))
}

func TestAutomaticThreshold(t *testing.T) {
	fc, got := newChecker(now.Add(-60 * time.Minute))
	svc := passiveService(now.Add(-20*time.Minute), 0)
	svc.Latency = 0.5

	// 5 intervals of 60s + 0.5s latency + 15s additional latency
	assert.Equal(t, 315500*time.Millisecond, fc.Threshold(svc))
	assert.Equal(t, 1, fc.Check([]*objects.Checkable{svc}, objects.KindService, now))
	assert.Len(t, *got, 1)

	svc.StateType = objects.StateTypeSoft
	svc.CurrentState = objects.ServiceCritical
	assert.Equal(t, 75500*time.Millisecond, fc.Threshold(svc), "soft problems use the retry interval")
}

func TestLongOutageCountsFromStartup(t *testing.T) {
	start := now.Add(-5 * time.Minute)
	fc, got := newChecker(start)
	svc := passiveService(start.Add(-2*time.Hour), 600)
	svc.ActiveChecksEnabled = false

	assert.Zero(t, fc.Check([]*objects.Checkable{svc}, objects.KindService, now))
	assert.Equal(t, 1, fc.Check([]*objects.Checkable{svc}, objects.KindService, start.Add(11*time.Minute)))
	assert.Len(t, *got, 1)
}

func TestNeverCheckedCountsFromStartup(t *testing.T) {
	start := now.Add(-5 * time.Minute)
	fc, _ := newChecker(start)
	svc := passiveService(time.Time{}, 600)

	assert.False(t, fc.IsStale(svc, now))
	assert.True(t, fc.IsStale(svc, start.Add(10*time.Minute+time.Second)))
}

func TestActiveChecksGetSpreadGrace(t *testing.T) {
	start := now.Add(-time.Minute)
	fc, _ := newChecker(start)
	svc := passiveService(start.Add(-time.Second), 0)

	threshold := fc.Threshold(svc)
	deadline := start.Add(threshold + 30*time.Minute)
	assert.False(t, fc.IsStale(svc, deadline))
	assert.True(t, fc.IsStale(svc, deadline.Add(time.Second)))
}
