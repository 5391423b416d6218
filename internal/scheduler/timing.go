package scheduler

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// Nudge bounds for checks pushed back by the parallel check limit.
const (
	NudgeMin = 5
	NudgeMax = 17
)

// autoRescheduleWindow is how far ahead the auto-rescheduling pass looks.
const autoRescheduleWindow = 180 * time.Second

// NudgeDuration returns the delay applied to an overloaded check. It is
// derived from the event handle so reruns of the same queue behave the
// same way.
func NudgeDuration(h Handle) time.Duration {
	n := NudgeMin + int(uint64(h)%uint64(NudgeMax-NudgeMin+1))
	return time.Duration(n) * time.Second
}

// Schedulable reports whether c gets regular active checks.
func Schedulable(c *objects.Checkable) bool {
	return c.ShouldBeScheduled && c.ActiveChecksEnabled && c.CheckInterval > 0
}

type spreadGroup struct {
	kind   objects.Kind
	window time.Duration
}

// Spread assigns every schedulable checkable a deterministic offset inside
// its check window. Objects sharing a kind and window are numbered and
// placed ordinal*slot apart, where slot is the window (capped by the
// configured maximum spread) divided by the group size. Services are
// numbered round-robin across hosts so one host's services do not run
// back to back.
func Spread(cfg *objects.Config, checkables []*objects.Checkable) map[objects.ID]time.Duration {
	il := cfg.IntervalLength
	if il <= 0 {
		il = 60
	}

	groups := make(map[spreadGroup][]*objects.Checkable)
	var order []spreadGroup
	for _, c := range checkables {
		if !Schedulable(c) {
			continue
		}
		g := spreadGroup{kind: c.Kind, window: c.CheckWindow(il)}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], c)
	}

	offsets := make(map[objects.ID]time.Duration, len(checkables))
	for _, g := range order {
		members := groups[g]
		if g.kind == objects.KindService {
			members = interleave(members)
		}
		n := time.Duration(len(members))
		slot := g.window / n
		maxSpread := time.Duration(cfg.MaxServiceCheckSpread) * time.Minute
		if g.kind == objects.KindHost {
			maxSpread = time.Duration(cfg.MaxHostCheckSpread) * time.Minute
		}
		if maxSpread > 0 && maxSpread/n < slot {
			slot = maxSpread / n
		}
		for i, c := range members {
			offsets[c.ID] = time.Duration(i) * slot
		}
	}
	return offsets
}

// interleave reorders services round-robin by host, preserving the input
// order within each host.
func interleave(svcs []*objects.Checkable) []*objects.Checkable {
	byHost := make(map[string][]*objects.Checkable)
	var hosts []string
	for _, s := range svcs {
		if _, ok := byHost[s.HostName]; !ok {
			hosts = append(hosts, s.HostName)
		}
		byHost[s.HostName] = append(byHost[s.HostName], s)
	}
	out := make([]*objects.Checkable, 0, len(svcs))
	for round := 0; len(out) < len(svcs); round++ {
		for _, h := range hosts {
			if list := byHost[h]; round < len(list) {
				out = append(out, list[round])
			}
		}
	}
	return out
}

// checkKind maps a checkable to its check event kind.
func checkKind(c *objects.Checkable) Kind {
	if c.IsHost() {
		return EventHostCheck
	}
	return EventServiceCheck
}

// preferNew decides whether a check requested for newDue/newOpts should
// replace an already queued one. Forced checks win over regular ones;
// otherwise the earlier one stays.
func preferNew(existing *Event, newDue time.Time, newOpts int) bool {
	existForced := existing.CheckOptions&objects.CheckOptionForceExecution != 0
	newForced := newOpts&objects.CheckOptionForceExecution != 0
	switch {
	case existForced && !newForced:
		return false
	case !existForced && newForced:
		return true
	default:
		return newDue.Before(existing.Due)
	}
}

// RecurringEvents returns the standard set of recurring housekeeping
// events for cfg, first due one interval after now.
func RecurringEvents(cfg *objects.Config, now time.Time) []*Event {
	var events []*Event
	add := func(kind Kind, interval time.Duration) {
		if interval <= 0 {
			return
		}
		events = append(events, &Event{
			Kind:      kind,
			Due:       now.Add(interval),
			Recurring: true,
			Interval:  interval,
		})
	}

	add(EventCheckReaper, time.Duration(cfg.CheckReaperInterval)*time.Second)
	add(EventOrphanCheck, time.Duration(cfg.OrphanCheckInterval)*time.Second)
	if cfg.CheckServiceFreshness {
		add(EventSFreshnessCheck, time.Duration(cfg.ServiceFreshnessCheckInterval)*time.Second)
	}
	if cfg.CheckHostFreshness {
		add(EventHFreshnessCheck, time.Duration(cfg.HostFreshnessCheckInterval)*time.Second)
	}
	add(EventRetentionSave, time.Duration(cfg.RetentionUpdateInterval)*time.Minute)
	if cfg.AutoReschedulingEnabled {
		add(EventRescheduleChecks, time.Duration(cfg.AutoReschedulingInterval)*time.Second)
	}
	return events
}
