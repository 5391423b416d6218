// Package dependency implements host and service dependency checking.
package dependency

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// Result of a dependency evaluation.
type Result int

const (
	OK Result = iota
	Failed
)

func (r Result) String() string {
	if r == Failed {
		return "failed"
	}
	return "ok"
}

// Check evaluates c's notification or execution dependencies at now.
// depType is objects.NotificationDependency or objects.ExecutionDependency.
func Check(c *objects.Checkable, depType int, softStateDeps bool, now time.Time) Result {
	return check(deps(c, depType), depType, softStateDeps, now, nil)
}

// CanExecute reports whether c's execution dependencies allow a check.
func CanExecute(c *objects.Checkable, softStateDeps bool, now time.Time) bool {
	return Check(c, objects.ExecutionDependency, softStateDeps, now) == OK
}

// CanNotify reports whether c's notification dependencies allow a notification.
func CanNotify(c *objects.Checkable, softStateDeps bool, now time.Time) bool {
	return Check(c, objects.NotificationDependency, softStateDeps, now) == OK
}

func deps(c *objects.Checkable, depType int) []*objects.Dependency {
	if depType == objects.NotificationDependency {
		return c.NotifyDeps
	}
	return c.ExecDeps
}

func check(list []*objects.Dependency, depType int, softStateDeps bool, now time.Time, visited map[*objects.Checkable]bool) Result {
	if visited == nil {
		visited = make(map[*objects.Checkable]bool)
	}
	for _, dep := range list {
		master := dep.Master
		if master == nil || visited[master] {
			continue
		}

		failOpts := dep.ExecutionFailureOptions
		if depType == objects.NotificationDependency {
			failOpts = dep.NotificationFailureOptions
		}
		if failOpts == objects.OptNone {
			continue
		}

		// Outside its period a dependency does not apply.
		if !timeperiod.IsCovered(dep.DependencyPeriod, now) {
			continue
		}

		if masterFails(master, failOpts, softStateDeps) {
			return Failed
		}

		if dep.InheritsParent {
			visited[master] = true
			if check(deps(master, depType), depType, softStateDeps, now, visited) == Failed {
				return Failed
			}
		}
	}
	return OK
}

func masterFails(master *objects.Checkable, opts uint32, softStateDeps bool) bool {
	if !master.HasBeenChecked {
		return opts&objects.OptPending != 0
	}
	state := master.CurrentState
	if master.StateType == objects.StateTypeSoft && !softStateDeps {
		state = master.LastHardState
	}
	if master.IsHost() {
		return stateMatchesHostFailOpts(state, opts)
	}
	return stateMatchesSvcFailOpts(state, opts)
}

func stateMatchesSvcFailOpts(state int, opts uint32) bool {
	switch state {
	case objects.ServiceOK:
		return opts&objects.OptOK != 0
	case objects.ServiceWarning:
		return opts&objects.OptWarning != 0
	case objects.ServiceCritical:
		return opts&objects.OptCritical != 0
	case objects.ServiceUnknown:
		return opts&objects.OptUnknown != 0
	}
	return false
}

func stateMatchesHostFailOpts(state int, opts uint32) bool {
	switch state {
	case objects.HostUp:
		return opts&objects.OptOK != 0
	case objects.HostDown:
		return opts&objects.OptDown != 0
	case objects.HostUnreachable:
		return opts&objects.OptUnreachable != 0
	}
	return false
}
