package checker

import (
	"math"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

const maxStateHistoryEntries = objects.MaxStateHistoryEntries

// UpdateFlapHistory records a new state in the circular buffer and recalculates
// the weighted percent state change.
func UpdateFlapHistory(c *objects.Checkable, newState int, decay float64) {
	c.StateHistory[c.StateHistoryIndex] = newState
	c.StateHistoryIndex = (c.StateHistoryIndex + 1) % maxStateHistoryEntries
	c.PercentStateChange = CalculateFlapPercent(&c.StateHistory, c.StateHistoryIndex, decay)
}

// CalculateFlapPercent computes an exponentially weighted percent state change
// over the 20 transitions held in the 21-entry ring. currentIdx is the slot
// the next sample will be written to, so the newest sample sits just before
// it. The newest transition has weight 1 and each older one is scaled by
// (1-decay); a decay of 0 weighs every transition equally.
func CalculateFlapPercent(history *[maxStateHistoryEntries]int, currentIdx int, decay float64) float64 {
	if decay < 0 || decay >= 1 {
		decay = 0
	}
	var changed, total float64
	weight := 1.0
	newest := (currentIdx - 1 + maxStateHistoryEntries) % maxStateHistoryEntries
	for k := 0; k < maxStateHistoryEntries-1; k++ {
		this := (newest - k + maxStateHistoryEntries) % maxStateHistoryEntries
		prev := (this - 1 + maxStateHistoryEntries) % maxStateHistoryEntries
		if history[this] != history[prev] {
			changed += weight
		}
		total += weight
		weight *= 1 - decay
	}
	if total == 0 {
		return 0
	}
	return math.Round(changed*100.0/total*1e6) / 1e6
}

// CheckFlapping evaluates whether an object has started or stopped flapping
// based on the current percent state change and the high/low thresholds.
// Flapping starts at or above high and stops only at or below low.
// Returns (isFlapping, stateChanged).
func CheckFlapping(currentlyFlapping bool, percentChange float64, lowThreshold, highThreshold float64) (bool, bool) {
	if lowThreshold <= 0 {
		lowThreshold = 20.0
	}
	if highThreshold <= 0 {
		highThreshold = 30.0
	}

	if !currentlyFlapping && percentChange >= highThreshold {
		return true, true
	}
	if currentlyFlapping && percentChange <= lowThreshold {
		return false, true
	}
	return currentlyFlapping, false
}

// ShouldRecordFlapState reports whether a result is sampled into the flap
// history. Hosts record every result; services skip SOFT non-OK states.
func ShouldRecordFlapState(c *objects.Checkable, newState int) bool {
	if c.IsHost() {
		return true
	}
	return !(c.StateType == objects.StateTypeSoft && newState != objects.ServiceOK)
}
