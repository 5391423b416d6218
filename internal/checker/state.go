package checker

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/perfdata"
)

// Transition describes what a single result did to a checkable.
type Transition struct {
	OldState     int
	NewState     int
	OldStateType int
	NewStateType int
	StateChange  bool
	HardChange   bool
	Recovered    bool
	FlapStarted  bool
	FlapStopped  bool
	// Degraded is set when malformed output forced the state to UNKNOWN.
	Degraded bool
}

// ResultHandler applies check results to checkables and drives the
// SOFT/HARD state machine. It never touches the event queue; callers
// reschedule after it returns.
type ResultHandler struct {
	Cfg *objects.Config
	// OnNotification is called when a notification should be sent. It runs
	// before recovery clears the notification counters.
	OnNotification func(c *objects.Checkable, notifType int)
	// ScheduleHostCheck requests a host check (for parent/child propagation).
	ScheduleHostCheck func(h *objects.Checkable, options int)
}

// HandleResult processes a check result for a host or a service.
func (h *ResultHandler) HandleResult(c *objects.Checkable, cr *objects.CheckResult) Transition {
	now := cr.FinishTime
	if now.IsZero() {
		now = time.Now()
	}

	c.IsExecuting = false
	c.Latency = cr.Latency
	c.ExecutionTime = cr.ExecutionTime
	c.LastCheck = cr.StartTime
	if c.LastCheck.IsZero() {
		c.LastCheck = now
	}
	c.HasBeenChecked = true
	c.CheckType = cr.CheckType
	if cr.CheckOptions&objects.CheckOptionFreshnessCheck != 0 {
		c.IsBeingFreshened = false
	}

	raw := ResultOutput(cr)
	c.RawOutput = raw
	parsed := ParseCheckOutput(raw, h.Cfg.NewlinesAreEscaped)
	c.PluginOutput = parsed.ShortOutput
	c.LongPluginOutput = parsed.LongOutput
	c.PerfData = parsed.PerfData

	var tr Transition
	newState := h.resultState(c, cr)
	if c.IsService() && parsed.PerfData != "" {
		if err := perfdata.Validate(parsed.PerfData); err != nil {
			newState = objects.ServiceUnknown
			c.PerfData = ""
			tr.Degraded = true
		}
	}
	if newState >= 0 && newState < len(c.LastTimeIn) {
		c.LastTimeIn[newState] = now
	}

	lastState := c.CurrentState
	lastStateType := c.StateType
	stateChange := newState != lastState
	hardChange := false
	recovered := false
	passiveHost := c.IsHost() && cr.CheckType == objects.CheckTypePassive

	// Callbacks must see the new state.
	c.CurrentState = newState
	c.LastState = lastState

	hostProblem := c.IsService() && newState != objects.ServiceOK &&
		c.Host != nil && c.Host.CurrentState != objects.HostUp

	switch {
	case newState == objects.ServiceOK:
		if lastState != objects.ServiceOK {
			// NotifiedOn survives until the recovery notification has been
			// evaluated; the viability check needs it.
			c.ProblemAcknowledged = false
			c.AckType = objects.AckNone
			c.LastNotification = time.Time{}
			c.NextNotification = time.Time{}
			c.NoMoreNotifications = false
			c.FirstProblemTime = time.Time{}
			c.StateType = objects.StateTypeHard
			c.CurrentAttempt = 1
			if lastStateType == objects.StateTypeHard {
				hardChange = true
				recovered = true
				h.notify(c)
			}
			c.CurrentNotificationNumber = 0
			c.NotifiedOn = 0
			c.LastProblemID = c.CurrentProblemID
			c.CurrentProblemID = 0
		} else {
			c.StateType = objects.StateTypeHard
			c.CurrentAttempt = 1
		}
		c.HostProblemAtLastCheck = false

	case hostProblem:
		// Services of a failed host harden at once but stay quiet.
		if lastStateType == objects.StateTypeSoft || lastState == objects.ServiceOK || stateChange {
			hardChange = true
		}
		c.StateType = objects.StateTypeHard
		c.CurrentAttempt = c.MaxCheckAttempts
		c.HostProblemAtLastCheck = true

	case c.MaxCheckAttempts <= 1 || (passiveHost && lastState == objects.HostUp):
		c.StateType = objects.StateTypeHard
		c.CurrentAttempt = max(c.MaxCheckAttempts, 1)
		if stateChange || lastStateType == objects.StateTypeSoft {
			hardChange = true
			h.notify(c)
		} else if c.IsVolatile {
			h.notify(c)
		}
		c.HostProblemAtLastCheck = false

	case lastState == objects.ServiceOK:
		c.StateType = objects.StateTypeSoft
		c.CurrentAttempt = 1
		c.HostProblemAtLastCheck = false

	case lastStateType == objects.StateTypeSoft:
		if c.CurrentAttempt < c.MaxCheckAttempts {
			c.CurrentAttempt++
		}
		if c.CurrentAttempt >= c.MaxCheckAttempts {
			c.StateType = objects.StateTypeHard
			hardChange = true
			h.notify(c)
		}
		c.HostProblemAtLastCheck = false

	default:
		// HARD non-OK. A change between problem states stays HARD and is
		// itself a hard change; volatile services notify on every result.
		c.StateType = objects.StateTypeHard
		c.CurrentAttempt = c.MaxCheckAttempts
		if stateChange {
			hardChange = true
			h.notify(c)
		} else if c.IsVolatile {
			h.notify(c)
		}
		c.HostProblemAtLastCheck = false
	}

	if lastState == objects.ServiceOK && newState != objects.ServiceOK {
		c.CurrentProblemID = h.Cfg.NextProblem()
		c.FirstProblemTime = now
	}

	// A normal acknowledgement lasts until the state changes.
	if stateChange && c.ProblemAcknowledged && c.AckType == objects.AckNormal {
		c.ProblemAcknowledged = false
		c.AckType = objects.AckNone
	}

	if hardChange {
		c.LastHardState = newState
		c.LastHardStateChange = now
	}
	if stateChange {
		c.LastStateChange = now
		c.LastEventID = c.CurrentEventID
		c.CurrentEventID = h.Cfg.NextEvent()
	}

	tr.OldState = lastState
	tr.NewState = newState
	tr.OldStateType = lastStateType
	tr.NewStateType = c.StateType
	tr.StateChange = stateChange
	tr.HardChange = hardChange
	tr.Recovered = recovered

	if c.FlapDetectionEnabled && h.Cfg.EnableFlapDetection && ShouldRecordFlapState(c, newState) {
		UpdateFlapHistory(c, newState, h.Cfg.FlapWeightDecay)
		low, high := c.FlapThresholds(h.Cfg)
		flapping, changed := CheckFlapping(c.IsFlapping, c.PercentStateChange, low, high)
		if changed {
			c.IsFlapping = flapping
			tr.FlapStarted = flapping
			tr.FlapStopped = !flapping
		}
	}

	if c.IsHost() && stateChange && h.ScheduleHostCheck != nil {
		h.propagateChecks(c, lastState, newState)
	}

	return tr
}

func (h *ResultHandler) notify(c *objects.Checkable) {
	if h.OnNotification != nil {
		h.OnNotification(c, objects.NotificationNormal)
	}
}

func (h *ResultHandler) resultState(c *objects.Checkable, cr *objects.CheckResult) int {
	if c.IsService() {
		return ServiceState(cr, h.Cfg.ServiceCheckTimeoutState)
	}
	var state int
	if cr.CheckType == objects.CheckTypePassive {
		state = PassiveHostState(cr.ReturnCode)
	} else {
		state = HostState(cr)
	}
	if state == objects.HostDown {
		state = DetermineHostReachability(c, state)
	}
	return state
}

// DetermineHostReachability checks whether a non-UP host is DOWN or UNREACHABLE
// based on parent host states.
func DetermineHostReachability(host *objects.Checkable, currentState int) int {
	if currentState == objects.HostUp {
		return objects.HostUp
	}
	if len(host.Parents) == 0 {
		return objects.HostDown
	}
	for _, parent := range host.Parents {
		if parent.CurrentState == objects.HostUp {
			return objects.HostDown
		}
	}
	return objects.HostUnreachable
}

func (h *ResultHandler) propagateChecks(host *objects.Checkable, oldState, newState int) {
	if newState != objects.HostUp && oldState == objects.HostUp {
		for _, parent := range host.Parents {
			if parent.CurrentState == objects.HostUp {
				h.ScheduleHostCheck(parent, objects.CheckOptionDependencyCheck)
			}
		}
		for _, child := range host.Children {
			if child.CurrentState != objects.HostUnreachable {
				h.ScheduleHostCheck(child, objects.CheckOptionDependencyCheck)
			}
		}
	} else if newState == objects.HostUp && oldState != objects.HostUp {
		for _, parent := range host.Parents {
			if parent.CurrentState != objects.HostUp {
				h.ScheduleHostCheck(parent, objects.CheckOptionDependencyCheck)
			}
		}
		for _, child := range host.Children {
			if child.CurrentState != objects.HostUp {
				h.ScheduleHostCheck(child, objects.CheckOptionDependencyCheck)
			}
		}
	}
}
