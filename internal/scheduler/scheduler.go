// Package scheduler owns the timed event queue and the main loop that
// dispatches checks and housekeeping events.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/dependency"
	"github.com/centreon/centreon-engine-sub012/internal/metrics"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// Scheduler is the single-threaded event loop. Everything except Submit
// and Stop must be called from the loop itself (or from tests driving
// RunPending directly).
type Scheduler struct {
	cfg     *objects.Config
	reg     *objects.Registry
	queue   *Queue
	log     logrus.FieldLogger
	metrics *metrics.Collector

	spread map[objects.ID]time.Duration

	funcCh chan func(now time.Time)
	stopCh chan struct{}

	// Callbacks set by the engine
	OnRunCheck      func(c *objects.Checkable, options int, now time.Time)
	OnReaper        func(now time.Time)
	OnFreshness     func(kind objects.Kind, now time.Time)
	OnRetentionSave func(now time.Time)
	OnDowntimeStart func(id uint64, now time.Time)
	OnDowntimeEnd   func(id uint64, now time.Time)
	OnCommentExpire func(id uint64, now time.Time)
	OnReload        func(now time.Time)

	// Clock returns the current time; tests replace it.
	Clock func() time.Time

	currentlyRunningServiceChecks int
	lastTick                      time.Time
}

// New creates a scheduler over reg. m may be nil.
func New(cfg *objects.Config, reg *objects.Registry, log logrus.FieldLogger, m *metrics.Collector) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		cfg:     cfg,
		reg:     reg,
		queue:   NewQueue(),
		log:     log.WithField("component", "scheduler"),
		metrics: m,
		spread:  make(map[objects.ID]time.Duration),
		funcCh:  make(chan func(time.Time), 256),
		stopCh:  make(chan struct{}),
		Clock:   time.Now,
	}
}

// Queue exposes the event queue.
func (s *Scheduler) Queue() *Queue { return s.queue }

// QueueLen returns the number of events in the queue.
func (s *Scheduler) QueueLen() int { return s.queue.Len() }

// SetRegistry swaps the object registry after a reload.
func (s *Scheduler) SetRegistry(reg *objects.Registry) { s.reg = reg }

// Init seeds the initial check for every schedulable object and the
// recurring housekeeping events.
func (s *Scheduler) Init(now time.Time) {
	s.Seed(s.reg.Checkables(), now)
	for _, e := range RecurringEvents(s.cfg, now) {
		s.queue.Schedule(e)
	}
	s.metrics.SetQueueDepth(s.queue.Len())
}

// Seed recomputes the spread for the whole registry and schedules a check
// for each of cs.
func (s *Scheduler) Seed(cs []*objects.Checkable, now time.Time) {
	for _, c := range s.reg.Checkables() {
		c.ShouldBeScheduled = c.CheckInterval > 0 && c.ActiveChecksEnabled
	}
	s.spread = Spread(s.cfg, s.reg.Checkables())
	for _, c := range cs {
		if c.PendingImmediateCheck && c.ChecksEnabled(s.cfg) {
			s.honorPending(c, now)
			continue
		}
		s.Reschedule(c, now)
	}
}

// Reschedule queues the next regular check for c: last check plus the
// current check window, never in the past, moved into the check period.
// Objects never checked start at their spread offset. A check already
// queued for c is kept unless the new one is earlier.
func (s *Scheduler) Reschedule(c *objects.Checkable, now time.Time) {
	if !Schedulable(c) {
		return
	}
	var next time.Time
	if c.LastCheck.IsZero() {
		next = now.Add(s.spread[c.ID])
	} else {
		next = c.LastCheck.Add(c.CheckWindow(s.cfg.IntervalLength))
		if next.Before(now) {
			next = now
		}
	}
	next = timeperiod.NextValidTime(c.CheckPeriod, next)
	s.ScheduleAt(c, next, objects.CheckOptionNone)
}

// ScheduleAt queues a check for c at due unless an equal or better one is
// already queued. It reports whether the queue changed.
func (s *Scheduler) ScheduleAt(c *objects.Checkable, due time.Time, options int) bool {
	kind := checkKind(c)
	if h, ok := s.queue.Find(kind, uint64(c.ID)); ok {
		existing, _ := s.queue.Get(h)
		if !preferNew(existing, due, options) {
			return false
		}
		s.queue.Cancel(h)
	}
	s.queue.Schedule(&Event{
		Kind:         kind,
		Due:          due,
		Payload:      uint64(c.ID),
		CheckOptions: options,
	})
	c.NextCheck = due
	c.CheckOptions = options
	return true
}

// RequestImmediate replaces any queued check for c with a forced one due
// now. When checks are disabled for c the request is remembered and
// honoured by EnableChecks or SetExecuteChecks. It reports whether a
// check was queued.
func (s *Scheduler) RequestImmediate(c *objects.Checkable, now time.Time, options int) bool {
	options |= objects.CheckOptionForceExecution
	if !c.ChecksEnabled(s.cfg) {
		c.PendingImmediateCheck = true
		c.PendingImmediateOptions |= options
		s.log.WithField("object", c.String()).Debug("checks disabled, immediate check left pending")
		return false
	}
	if h, ok := s.queue.Find(checkKind(c), uint64(c.ID)); ok {
		s.queue.Cancel(h)
	}
	return s.ScheduleAt(c, now, options)
}

func (s *Scheduler) honorPending(c *objects.Checkable, now time.Time) {
	opts := c.PendingImmediateOptions
	c.PendingImmediateCheck = false
	c.PendingImmediateOptions = 0
	s.RequestImmediate(c, now, opts)
}

// EnableChecks turns active checks back on for c, honouring a pending
// immediate request.
func (s *Scheduler) EnableChecks(c *objects.Checkable, now time.Time) {
	c.ActiveChecksEnabled = true
	c.ModifiedAttributes |= objects.ModAttrActiveChecksEnabled
	c.ShouldBeScheduled = c.CheckInterval > 0
	if c.PendingImmediateCheck && c.ChecksEnabled(s.cfg) {
		s.honorPending(c, now)
		return
	}
	s.Reschedule(c, now)
}

// DisableChecks turns off active checks for c and drops its queued check.
func (s *Scheduler) DisableChecks(c *objects.Checkable) {
	c.ActiveChecksEnabled = false
	c.ModifiedAttributes |= objects.ModAttrActiveChecksEnabled
	c.ShouldBeScheduled = false
	if h, ok := s.queue.Find(checkKind(c), uint64(c.ID)); ok {
		s.queue.Cancel(h)
	}
}

// SetExecuteChecks flips the global active check toggle for one kind.
// Enabling it honours every pending immediate request of that kind.
func (s *Scheduler) SetExecuteChecks(kind objects.Kind, enabled bool, now time.Time) {
	if kind == objects.KindHost {
		s.cfg.ExecuteHostChecks = enabled
		s.cfg.ModifiedHostAttributes |= objects.ModAttrActiveChecksEnabled
	} else {
		s.cfg.ExecuteServiceChecks = enabled
		s.cfg.ModifiedServiceAttributes |= objects.ModAttrActiveChecksEnabled
	}
	if !enabled {
		return
	}
	for _, c := range s.reg.Checkables() {
		if c.Kind == kind && c.PendingImmediateCheck && c.ChecksEnabled(s.cfg) {
			s.honorPending(c, now)
		}
	}
}

// Remove cancels every check event referring to c. It must run before
// the registry forgets c.
func (s *Scheduler) Remove(c *objects.Checkable) {
	for _, k := range []Kind{EventServiceCheck, EventHostCheck} {
		if h, ok := s.queue.Find(k, uint64(c.ID)); ok {
			s.queue.Cancel(h)
		}
	}
	if c.IsExecuting {
		s.CheckFinished(c)
	}
	delete(s.spread, c.ID)
}

// ScheduleEvent queues a one-shot event for a downtime, comment or other
// payload, replacing any event already queued for the same (kind, payload).
func (s *Scheduler) ScheduleEvent(kind Kind, due time.Time, payload uint64) Handle {
	if h, ok := s.queue.Find(kind, payload); ok {
		s.queue.Cancel(h)
	}
	return s.queue.Schedule(&Event{Kind: kind, Due: due, Payload: payload})
}

// CancelEvent drops the queued (kind, payload) event, if any.
func (s *Scheduler) CancelEvent(kind Kind, payload uint64) bool {
	h, ok := s.queue.Find(kind, payload)
	if !ok {
		return false
	}
	return s.queue.Cancel(h)
}

// ScheduleFunc queues fn to run on the loop at due.
func (s *Scheduler) ScheduleFunc(due time.Time, fn func(now time.Time)) Handle {
	return s.queue.Schedule(&Event{Kind: EventUserFunction, Due: due, Func: fn})
}

// CheckFinished clears the executing flag once a result is processed.
func (s *Scheduler) CheckFinished(c *objects.Checkable) {
	if !c.IsExecuting {
		return
	}
	c.IsExecuting = false
	if c.IsService() && s.currentlyRunningServiceChecks > 0 {
		s.currentlyRunningServiceChecks--
	}
}

// RunningServiceChecks returns the number of service checks in flight.
func (s *Scheduler) RunningServiceChecks() int { return s.currentlyRunningServiceChecks }

// Submit runs fn on the scheduler loop. Safe for concurrent use.
func (s *Scheduler) Submit(fn func(now time.Time)) {
	select {
	case s.funcCh <- fn:
	case <-s.stopCh:
	}
}

// Stop signals the scheduler to shut down. Safe to call multiple times.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Run is the main event loop. It blocks until ctx is done or Stop is
// called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.lastTick = s.Clock()
	for {
		wait := time.Second
		if e := s.queue.Peek(); e != nil {
			if d := e.Due.Sub(s.Clock()); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.stopCh:
			timer.Stop()
			return nil
		case fn := <-s.funcCh:
			timer.Stop()
			fn(s.Clock())
		case <-timer.C:
			now := s.Clock()
			s.detectTimeChange(now, wait)
			s.RunPending(now)
		}
	}
}

// detectTimeChange compensates queued events when the wall clock jumped
// between two loop iterations.
func (s *Scheduler) detectTimeChange(now time.Time, waited time.Duration) {
	drift := now.Sub(s.lastTick.Add(waited))
	s.lastTick = now
	if drift > -30*time.Second && drift < 5*time.Minute {
		return
	}
	s.log.WithField("drift", drift.String()).Warn("system time change detected, adjusting events")
	s.compensateTimeChange(drift)
}

func (s *Scheduler) compensateTimeChange(drift time.Duration) {
	s.queue.Adjust(drift)
	for _, e := range s.queue.Events() {
		if e.Kind != EventServiceCheck && e.Kind != EventHostCheck {
			continue
		}
		if c := s.reg.Lookup(objects.ID(e.Payload)); c != nil {
			c.NextCheck = e.Due
		}
	}
}

// RunPending fires every event due at or before now and returns how many
// fired. Recurring events go back into the queue.
func (s *Scheduler) RunPending(now time.Time) int {
	fired := 0
	for {
		e := s.queue.PopDue(now)
		if e == nil {
			break
		}
		fired++
		s.dispatch(e, now)

		if e.Recurring && e.Interval > 0 {
			next := e.Due.Add(e.Interval)
			if next.Before(now) {
				next = now.Add(e.Interval)
			}
			s.queue.Requeue(e, next)
		}
	}
	s.metrics.SetQueueDepth(s.queue.Len())
	return fired
}

func (s *Scheduler) dispatch(e *Event, now time.Time) {
	switch e.Kind {
	case EventServiceCheck, EventHostCheck:
		s.runCheckEvent(e, now)
	case EventCheckReaper:
		if s.OnReaper != nil {
			s.OnReaper(now)
		}
	case EventSFreshnessCheck:
		if s.OnFreshness != nil {
			s.OnFreshness(objects.KindService, now)
		}
	case EventHFreshnessCheck:
		if s.OnFreshness != nil {
			s.OnFreshness(objects.KindHost, now)
		}
	case EventRetentionSave:
		if s.OnRetentionSave != nil {
			s.OnRetentionSave(now)
		}
	case EventOrphanCheck:
		s.checkOrphans(now)
	case EventRescheduleChecks:
		s.autoReschedule(now)
	case EventScheduledDowntime:
		if s.OnDowntimeStart != nil {
			s.OnDowntimeStart(e.Payload, now)
		}
	case EventExpireDowntime:
		if s.OnDowntimeEnd != nil {
			s.OnDowntimeEnd(e.Payload, now)
		}
	case EventExpireComment:
		if s.OnCommentExpire != nil {
			s.OnCommentExpire(e.Payload, now)
		}
	case EventProgramReload:
		if s.OnReload != nil {
			s.OnReload(now)
		}
	case EventUserFunction:
		if e.Func != nil {
			e.Func(now)
		}
	case EventSleep:
	}
}

// runCheckEvent applies the fire-time gates and hands the check to
// OnRunCheck. A gated check is re-queued, never dropped.
func (s *Scheduler) runCheckEvent(e *Event, now time.Time) {
	c := s.reg.Lookup(objects.ID(e.Payload))
	if c == nil {
		s.log.WithField("id", e.Payload).Warn("check event for unknown object dropped")
		return
	}
	log := s.log.WithField("object", c.String())
	forced := e.CheckOptions&objects.CheckOptionForceExecution != 0
	freshness := e.CheckOptions&objects.CheckOptionFreshnessCheck != 0
	window := c.CheckWindow(s.cfg.IntervalLength)

	if !freshness && !c.ChecksEnabled(s.cfg) {
		if forced {
			c.PendingImmediateCheck = true
			c.PendingImmediateOptions |= e.CheckOptions
		}
		s.requeueCheck(c, now.Add(window))
		return
	}

	if c.IsExecuting {
		log.Debug("check still running, rescheduling")
		s.requeueCheck(c, now.Add(window))
		return
	}

	if !forced {
		if c.IsService() && s.cfg.MaxParallelServiceChecks > 0 &&
			s.currentlyRunningServiceChecks >= s.cfg.MaxParallelServiceChecks {
			log.Debug("max parallel service checks reached, nudging check")
			s.ScheduleAt(c, now.Add(NudgeDuration(e.handle)), e.CheckOptions)
			return
		}
		if !timeperiod.IsCovered(c.CheckPeriod, now) {
			next := timeperiod.NextValidTime(c.CheckPeriod, now)
			if !next.After(now) {
				next = now.Add(window)
			}
			s.ScheduleAt(c, next, e.CheckOptions)
			return
		}
		if !dependency.CanExecute(c, s.cfg.SoftStateDependencies, now) {
			log.Debug("execution dependencies failed, skipping check")
			s.requeueCheck(c, now.Add(window))
			return
		}
		if c.IsService() && s.cfg.HostDownDisableServiceChecks && c.Host != nil &&
			c.Host.CurrentState != objects.HostUp && c.Host.StateType == objects.StateTypeHard {
			s.requeueCheck(c, now.Add(window))
			return
		}
	}

	c.Latency = now.Sub(e.Due).Seconds()
	if c.Latency < 0 {
		c.Latency = 0
	}
	c.IsExecuting = true
	c.CheckOptions = e.CheckOptions
	if c.IsService() {
		s.currentlyRunningServiceChecks++
	}
	s.metrics.CheckStarted(c.Kind.String(), c.Latency)
	if s.OnRunCheck != nil {
		s.OnRunCheck(c, e.CheckOptions, now)
	}
}

func (s *Scheduler) requeueCheck(c *objects.Checkable, due time.Time) {
	if !Schedulable(c) {
		return
	}
	s.ScheduleAt(c, timeperiod.NextValidTime(c.CheckPeriod, due), objects.CheckOptionNone)
}

// checkOrphans finds checks that have been executing too long and reschedules them.
func (s *Scheduler) checkOrphans(now time.Time) {
	reaperSlack := time.Duration(s.cfg.CheckReaperInterval)*time.Second + 10*time.Minute

	for _, c := range s.reg.Checkables() {
		if !c.IsExecuting {
			continue
		}
		expected := c.NextCheck.Add(time.Duration(c.Latency*float64(time.Second)) + c.CheckTimeout(s.cfg) + reaperSlack)
		if !expected.Before(now) {
			continue
		}
		s.log.WithField("object", c.String()).Warn("check result never arrived, rescheduling orphaned check")
		s.metrics.CheckOrphaned(c.Kind.String())
		s.CheckFinished(c)
		if h, ok := s.queue.Find(checkKind(c), uint64(c.ID)); ok {
			s.queue.Cancel(h)
		}
		s.ScheduleAt(c, now, objects.CheckOptionOrphanCheck)
	}
}

// autoReschedule evens out regular checks due inside the next window.
func (s *Scheduler) autoReschedule(now time.Time) {
	horizon := now.Add(autoRescheduleWindow)
	var due []*Event
	for _, e := range s.queue.Events() {
		if e.Kind != EventServiceCheck && e.Kind != EventHostCheck {
			continue
		}
		if e.CheckOptions&objects.CheckOptionForceExecution != 0 || e.Due.After(horizon) {
			continue
		}
		due = append(due, e)
	}
	if len(due) < 2 {
		return
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].Due.Equal(due[j].Due) {
			return due[i].Due.Before(due[j].Due)
		}
		return due[i].handle < due[j].handle
	})
	step := autoRescheduleWindow / time.Duration(len(due))
	for i, e := range due {
		next := now.Add(time.Duration(i) * step)
		c := s.reg.Lookup(objects.ID(e.Payload))
		if c == nil {
			continue
		}
		if !timeperiod.IsCovered(c.CheckPeriod, next) {
			continue
		}
		s.queue.Reschedule(e.handle, next)
		c.NextCheck = next
	}
}
