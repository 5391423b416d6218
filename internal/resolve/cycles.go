package resolve

import (
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// checkCycles reports circular parents, dependencies and time-period
// exclusions. Each cycle counts once, from the first object found on it.
func (rv *resolver) checkCycles() {
	for _, h := range rv.reg.Hosts() {
		if walkParents(h, map[*objects.Checkable]bool{}) {
			rv.errorf(nil, "circular parent relationship through host '%s'", h.HostName)
			break
		}
	}

	adj := make(map[*objects.Checkable][]*objects.Checkable)
	for _, d := range rv.reg.Dependencies {
		adj[d.Dependent] = append(adj[d.Dependent], d.Master)
	}
	for dep := range adj {
		if walkDeps(dep, adj, map[*objects.Checkable]bool{}) {
			rv.errorf(nil, "circular dependency through '%s'", dep)
			break
		}
	}

	for _, tp := range rv.reg.Timeperiods {
		if walkExclusions(tp, map[*timeperiod.Timeperiod]bool{}) {
			rv.errorf(nil, "circular timeperiod exclusion through '%s'", tp.Name)
			break
		}
	}
}

func walkParents(h *objects.Checkable, visiting map[*objects.Checkable]bool) bool {
	if visiting[h] {
		return true
	}
	visiting[h] = true
	for _, p := range h.Parents {
		if walkParents(p, visiting) {
			return true
		}
	}
	delete(visiting, h)
	return false
}

func walkDeps(c *objects.Checkable, adj map[*objects.Checkable][]*objects.Checkable, visiting map[*objects.Checkable]bool) bool {
	if visiting[c] {
		return true
	}
	visiting[c] = true
	for _, m := range adj[c] {
		if walkDeps(m, adj, visiting) {
			return true
		}
	}
	delete(visiting, c)
	return false
}

func walkExclusions(tp *timeperiod.Timeperiod, visiting map[*timeperiod.Timeperiod]bool) bool {
	if visiting[tp] {
		return true
	}
	visiting[tp] = true
	for _, ex := range tp.Exclusions {
		if walkExclusions(ex, visiting) {
			return true
		}
	}
	delete(visiting, tp)
	return false
}
