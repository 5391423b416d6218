// Package reaper drains completed check results and turns them into state
// transitions and their side effects.
package reaper

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/broker"
	"github.com/centreon/centreon-engine-sub012/internal/checker"
	"github.com/centreon/centreon-engine-sub012/internal/downtime"
	"github.com/centreon/centreon-engine-sub012/internal/metrics"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/perfdata"
)

// Scheduler is the part of the scheduler the reaper drives.
type Scheduler interface {
	CheckFinished(c *objects.Checkable)
	Reschedule(c *objects.Checkable, now time.Time)
	RequestImmediate(c *objects.Checkable, now time.Time, options int) bool
	QueueLen() int
}

// Notifier sends notifications.
type Notifier interface {
	Notify(c *objects.Checkable, ntype int, author, data string, options int, now time.Time) bool
}

// AlertLogger writes the classic alert log lines.
type AlertLogger interface {
	Alert(c *objects.Checkable)
	Flapping(c *objects.Checkable, started bool, pct, threshold float64)
	PassiveCheck(c *objects.Checkable, returnCode int, output string)
}

// Reaper consumes the completion channel on the scheduler loop.
type Reaper struct {
	cfg     *objects.Config
	reg     *objects.Registry
	results <-chan *objects.CheckResult
	sched   Scheduler
	handler *checker.ResultHandler
	log     logrus.FieldLogger

	Notifier  Notifier
	Downtimes *downtime.Manager
	Alerts    AlertLogger
	Broker    *broker.Broker
	Metrics   *metrics.Collector

	// Performance data writers per kind; nil disables.
	HostPerfdata    *perfdata.Writer
	ServicePerfdata *perfdata.Writer

	// Clock bounds a pass; tests replace it.
	Clock func() time.Time

	now time.Time
}

// New creates a reaper reading results from ch.
func New(cfg *objects.Config, reg *objects.Registry, ch <-chan *objects.CheckResult, sched Scheduler, log logrus.FieldLogger) *Reaper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reaper{
		cfg:     cfg,
		reg:     reg,
		results: ch,
		sched:   sched,
		log:     log.WithField("component", "reaper"),
		Clock:   time.Now,
	}
	r.handler = &checker.ResultHandler{
		Cfg: cfg,
		OnNotification: func(c *objects.Checkable, ntype int) {
			if r.Notifier != nil {
				r.Notifier.Notify(c, ntype, "", "", objects.NotificationOptionNone, r.now)
			}
		},
		ScheduleHostCheck: func(h *objects.Checkable, options int) {
			sched.RequestImmediate(h, r.now, options)
		},
	}
	return r
}

// SetRegistry swaps the registry after a reload.
func (r *Reaper) SetRegistry(reg *objects.Registry) { r.reg = reg }

// Reap processes queued results in completion order until the channel is
// empty or MaxCheckReaperTime has elapsed. Results left over wait for the
// next pass. It returns the number of results processed.
func (r *Reaper) Reap(now time.Time) int {
	started := r.Clock()
	limit := time.Duration(r.cfg.MaxCheckReaperTime) * time.Second
	n := 0

loop:
	for {
		if limit > 0 && r.Clock().Sub(started) >= limit {
			r.log.WithField("processed", n).Warn("reaper pass hit its time limit, remaining results wait for the next pass")
			break
		}
		select {
		case cr, ok := <-r.results:
			if !ok {
				break loop
			}
			if r.Process(cr, now) {
				n++
			}
		default:
			break loop
		}
	}

	r.Metrics.ReaperPassDone(r.Clock().Sub(started))
	if r.sched != nil {
		r.Metrics.SetQueueDepth(r.sched.QueueLen())
	}
	return n
}

// Process applies a single result. It reports false when the result was
// dropped.
func (r *Reaper) Process(cr *objects.CheckResult, now time.Time) bool {
	c := r.reg.Lookup(cr.ID)
	if c == nil {
		r.log.WithField("checkable_id", cr.ID).Warn("dropping result for an object that no longer exists")
		r.Metrics.ResultDropped()
		return false
	}

	passive := cr.CheckType == objects.CheckTypePassive
	if passive {
		if !c.PassiveAccepted(r.cfg) {
			r.log.WithFields(logrus.Fields{"host": c.HostName, "service": c.Description}).
				Debug("passive result rejected, passive checks are disabled")
			r.Metrics.ResultDropped()
			return false
		}
		if r.Alerts != nil {
			r.Alerts.PassiveCheck(c, cr.ReturnCode, cr.Output)
		}
	} else {
		r.sched.CheckFinished(c)
	}

	if !cr.FinishTime.IsZero() {
		now = cr.FinishTime
	}
	r.now = now

	hadAck := c.ProblemAcknowledged
	tr := r.handler.HandleResult(c, cr)
	if tr.Degraded {
		r.log.WithFields(logrus.Fields{"host": c.HostName, "service": c.Description}).
			Warn("malformed performance data, result degraded to UNKNOWN")
	}

	softProblem := c.StateType == objects.StateTypeSoft && c.CurrentState != objects.ServiceOK
	if r.Alerts != nil && (tr.StateChange || tr.HardChange || softProblem) {
		r.Alerts.Alert(c)
	}
	if tr.StateChange || tr.HardChange {
		r.Broker.StateChange(c, tr.OldState, tr.HardChange, now)
		r.Metrics.StateChange(c.Kind.String(), objects.StateTypeName(c.StateType))
	}

	// The problem an acknowledgement referred to is over.
	if hadAck && !c.ProblemAcknowledged && r.Downtimes != nil {
		r.Downtimes.Comments().DeleteAckComments(c.ID)
	}

	if r.Downtimes != nil && c.PendingFlexDowntime > 0 && c.CurrentState != objects.ServiceOK {
		r.Downtimes.CheckPendingFlex(c, now)
	}

	r.handleFlapping(c, tr, now)

	w := r.ServicePerfdata
	if c.IsHost() {
		w = r.HostPerfdata
	}
	if err := w.Update(c, c.LastCheck.Unix()); err != nil {
		r.log.WithError(err).Warn("writing performance data")
	}

	if !passive {
		r.sched.Reschedule(c, now)
	}

	r.Metrics.ResultReaped(c.Kind.String(), c.StateName(c.CurrentState), cr.ExecutionTime)
	return true
}

func (r *Reaper) handleFlapping(c *objects.Checkable, tr checker.Transition, now time.Time) {
	if !tr.FlapStarted && !tr.FlapStopped {
		return
	}
	low, high := c.FlapThresholds(r.cfg)

	if tr.FlapStarted {
		if r.Alerts != nil {
			r.Alerts.Flapping(c, true, c.PercentStateChange, high)
		}
		if r.Downtimes != nil {
			msg := fmt.Sprintf("Notifications for this %s are being suppressed because it was detected as having been flapping between different states (%.1f%% change >= %.1f%% threshold).  When the %s state stabilizes and the flapping stops, notifications will be re-enabled.",
				c.Kind, c.PercentStateChange, high, c.Kind)
			c.FlappingCommentID = r.Downtimes.Comments().AddFor(c, objects.FlappingCommentEntry, false, "(Centreon Engine Process)", msg, now)
		}
		r.Broker.Annotation(broker.TypeFlapping, c, "flapping started", now)
		r.Metrics.FlappingDelta(c.Kind.String(), 1)
		if r.Notifier != nil {
			r.Notifier.Notify(c, objects.NotificationFlappingStart, "", "", objects.NotificationOptionNone, now)
		}
		return
	}

	if r.Alerts != nil {
		r.Alerts.Flapping(c, false, c.PercentStateChange, low)
	}
	if r.Downtimes != nil && c.FlappingCommentID != 0 {
		r.Downtimes.Comments().Delete(c.FlappingCommentID)
	}
	c.FlappingCommentID = 0
	r.Broker.Annotation(broker.TypeFlapping, c, "flapping stopped", now)
	r.Metrics.FlappingDelta(c.Kind.String(), -1)
	if r.Notifier != nil {
		r.Notifier.Notify(c, objects.NotificationFlappingStop, "", "", objects.NotificationOptionNone, now)
	}
}
