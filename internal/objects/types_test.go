package objects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationTypeName(t *testing.T) {
	tests := []struct {
		name  string
		ntype int
		state int
		want  string
	}{
		{"Acknowledgement", NotificationAcknowledgement, 0, "ACKNOWLEDGEMENT"},
		{"FlappingStart", NotificationFlappingStart, 0, "FLAPPINGSTART"},
		{"FlappingStop", NotificationFlappingStop, 0, "FLAPPINGSTOP"},
		{"FlappingDisabled", NotificationFlappingDisabled, 0, "FLAPPINGDISABLED"},
		{"DowntimeStart", NotificationDowntimeStart, 0, "DOWNTIMESTART"},
		{"DowntimeEnd", NotificationDowntimeEnd, 0, "DOWNTIMEEND"},
		{"DowntimeCancelled", NotificationDowntimeCancelled, 0, "DOWNTIMECANCELLED"},
		{"Custom", NotificationCustom, 0, "CUSTOM"},
		{"HostRecovery", NotificationNormal, HostUp, "RECOVERY"},
		{"HostProblem", NotificationNormal, HostDown, "PROBLEM"},
		{"ServiceProblem", NotificationNormal, ServiceCritical, "PROBLEM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NotificationTypeName(tt.ntype, tt.state))
		})
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "UNREACHABLE", HostStateName(HostUnreachable))
	assert.Equal(t, "UNKNOWN", HostStateName(99))
	assert.Equal(t, "WARNING", ServiceStateName(ServiceWarning))
	assert.Equal(t, "UNKNOWN", ServiceStateName(99))
	assert.Equal(t, "HARD", StateTypeName(StateTypeHard))
	assert.Equal(t, "SOFT", StateTypeName(StateTypeSoft))

	h := NewHost("db")
	s := NewService("db", "disk")
	assert.Equal(t, "DOWN", h.StateName(1))
	assert.Equal(t, "WARNING", s.StateName(1))
}

func TestStateMatchesOptions(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		state int
		opts  uint32
		want  bool
	}{
		{"Down+OptDown", KindHost, HostDown, OptDown, true},
		{"Down+OptUnreachable", KindHost, HostDown, OptUnreachable, false},
		{"Unreachable+OptUnreachable", KindHost, HostUnreachable, OptUnreachable, true},
		{"Up+OptRecovery", KindHost, HostUp, OptRecovery, true},
		{"Warning+OptWarning", KindService, ServiceWarning, OptWarning, true},
		{"Warning+OptCritical", KindService, ServiceWarning, OptCritical, false},
		{"Unknown+OptUnknown", KindService, ServiceUnknown, OptUnknown, true},
		{"OK+OptWarning", KindService, ServiceOK, OptWarning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checkable{Kind: tt.kind}
			assert.Equal(t, tt.want, c.StateMatchesOptions(tt.state, tt.opts))
		})
	}
}

func TestParseOptions(t *testing.T) {
	assert.Equal(t, OptDown|OptUnreachable|OptRecovery, ParseOptions("d,u,r", true))
	assert.Equal(t, OptWarning|OptUnknown|OptCritical, ParseOptions("w,u,c", false))
	assert.Equal(t, OptAll, ParseOptions("a", false))
	assert.Equal(t, OptNone, ParseOptions("n", true))
}

func TestCheckWindow(t *testing.T) {
	s := NewService("web", "http")
	s.CheckInterval = 5
	s.RetryInterval = 1

	assert.Equal(t, 5*time.Minute, s.CheckWindow(60))

	s.CurrentState = ServiceCritical
	s.StateType = StateTypeSoft
	assert.Equal(t, time.Minute, s.CheckWindow(60), "soft problem uses retry interval")

	s.StateType = StateTypeHard
	assert.Equal(t, 5*time.Minute, s.CheckWindow(60))
}

func TestFlapThresholdsFallBackToGlobal(t *testing.T) {
	cfg := DefaultConfig()
	s := NewService("web", "http")
	low, high := s.FlapThresholds(cfg)
	assert.Equal(t, 20.0, low)
	assert.Equal(t, 30.0, high)

	s.HighFlapThreshold = 50
	_, high = s.FlapThresholds(cfg)
	assert.Equal(t, 50.0, high)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.IntervalLength)
	assert.Equal(t, 60, cfg.ServiceCheckTimeout)
	assert.Equal(t, 30, cfg.HostCheckTimeout)
	assert.Equal(t, 30, cfg.MaxServiceCheckSpread)
	assert.True(t, cfg.ExecuteServiceChecks)
	assert.True(t, cfg.ExecuteHostChecks)
	assert.Equal(t, ServiceUnknown, cfg.ServiceCheckTimeoutState)
	assert.InDelta(t, 0.025, cfg.FlapWeightDecay, 1e-9)
}

func TestConfigCounters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint64(1), cfg.NextEvent())
	assert.Equal(t, uint64(2), cfg.NextEvent())
	assert.Equal(t, uint64(1), cfg.NextProblem())
	assert.Equal(t, uint64(1), cfg.NextNotification())
}
