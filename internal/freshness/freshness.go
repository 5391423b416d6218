// Package freshness detects hosts and services whose last result is too
// old and forces a fresh check.
package freshness

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

const goldenRatio = 0.618

// Checker finds stale results and asks the scheduler for a forced check.
type Checker struct {
	Cfg *objects.Config
	// EventStart is when the engine started.
	EventStart time.Time
	Log        logrus.FieldLogger

	// Request forces a check of c. It is wired to the scheduler's
	// immediate-check request.
	Request func(c *objects.Checkable, now time.Time, options int) bool
}

// Check examines every checkable of the given kind and returns how many
// were stale.
func (fc *Checker) Check(cs []*objects.Checkable, kind objects.Kind, now time.Time) int {
	stale := 0
	for _, c := range cs {
		if c.Kind != kind || !fc.IsStale(c, now) {
			continue
		}
		c.IsBeingFreshened = true
		if fc.Log != nil {
			fc.Log.WithFields(logrus.Fields{
				"host":    c.HostName,
				"service": c.Description,
				"age":     now.Sub(c.LastCheck).Round(time.Second).String(),
			}).Warn("check result is stale, forcing an immediate check")
		}
		if fc.Request != nil {
			fc.Request(c, now, objects.CheckOptionForceExecution|objects.CheckOptionFreshnessCheck)
		}
		stale++
	}
	return stale
}

// IsStale reports whether the last result of c has expired.
func (fc *Checker) IsStale(c *objects.Checkable, now time.Time) bool {
	if !c.CheckFreshness || c.IsExecuting || c.IsBeingFreshened {
		return false
	}
	if !c.ActiveChecksEnabled && !c.PassiveChecksEnabled {
		return false
	}
	if c.CheckInterval == 0 && c.FreshnessThreshold == 0 {
		return false
	}

	threshold := fc.Threshold(c)
	if threshold <= 0 {
		return false
	}
	return now.After(fc.expiration(c, threshold))
}

func (fc *Checker) intervalLength() int {
	if fc.Cfg.IntervalLength > 0 {
		return fc.Cfg.IntervalLength
	}
	return 60
}

// Threshold returns the freshness threshold: the configured one, or the
// current check window plus latency and the additional latency setting.
func (fc *Checker) Threshold(c *objects.Checkable) time.Duration {
	if c.FreshnessThreshold > 0 {
		return time.Duration(c.FreshnessThreshold) * time.Second
	}
	extra := time.Duration((c.Latency + float64(fc.Cfg.AdditionalFreshnessLatency)) * float64(time.Second))
	return c.CheckWindow(fc.intervalLength()) + extra
}

func (fc *Checker) expiration(c *objects.Checkable, threshold time.Duration) time.Time {
	if c.LastCheck.IsZero() {
		return fc.EventStart.Add(threshold)
	}

	// After a long outage, count from startup instead of flooding the
	// queue with freshness checks.
	if c.LastCheck.Before(fc.EventStart) {
		down := fc.EventStart.Sub(c.LastCheck)
		if down.Seconds() > goldenRatio*threshold.Seconds() {
			return fc.EventStart.Add(threshold)
		}
	}

	// Active checks get the initial spread to run first.
	if c.ActiveChecksEnabled && fc.EventStart.After(c.LastCheck) && c.FreshnessThreshold == 0 {
		spread := fc.Cfg.MaxServiceCheckSpread
		if c.IsHost() {
			spread = fc.Cfg.MaxHostCheckSpread
		}
		return fc.EventStart.Add(threshold + time.Duration(spread)*time.Minute)
	}

	return c.LastCheck.Add(threshold)
}
