// Package engine is the context object of a running core. It owns the
// object registry and wires the scheduler, check executor, reaper,
// notifications, downtimes, freshness checks, retention and metrics.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/centreon/centreon-engine-sub012/internal/broker"
	"github.com/centreon/centreon-engine-sub012/internal/checker"
	"github.com/centreon/centreon-engine-sub012/internal/config"
	"github.com/centreon/centreon-engine-sub012/internal/downtime"
	"github.com/centreon/centreon-engine-sub012/internal/freshness"
	"github.com/centreon/centreon-engine-sub012/internal/logging"
	"github.com/centreon/centreon-engine-sub012/internal/macros"
	"github.com/centreon/centreon-engine-sub012/internal/metrics"
	"github.com/centreon/centreon-engine-sub012/internal/notify"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/perfdata"
	"github.com/centreon/centreon-engine-sub012/internal/reaper"
	"github.com/centreon/centreon-engine-sub012/internal/resolve"
	"github.com/centreon/centreon-engine-sub012/internal/retention"
	"github.com/centreon/centreon-engine-sub012/internal/scheduler"
)

// Version is stamped into retention snapshots.
const Version = "1.0.0"

const resultQueueSize = 1024

// CheckRunner executes check requests and delivers their results on the
// engine's result channel. *checker.Executor is the production runner.
type CheckRunner interface {
	Submit(req checker.Request)
}

// RetentionStore persists snapshots. *retention.BoltStore satisfies it.
type RetentionStore interface {
	Save(s *retention.Snapshot) error
	Load() (*retention.Snapshot, error)
	Close() error
}

// Options configure New. Zero fields get production defaults.
type Options struct {
	Settings config.Settings
	Log      *logging.Logger
	// Registerer receives the engine metrics; nil disables metrics.
	Registerer prometheus.Registerer
	Sinks      []broker.Sink

	// NewChecks builds the check runner around the result channel. nil
	// uses a worker pool of MaxConcurrentChecks.
	NewChecks     func(results chan<- *objects.CheckResult) CheckRunner
	Notifications notify.Runner
	Store         RetentionStore
}

// Engine is one running monitoring core. Apart from the Request* methods
// and Stop, its methods must be called on the scheduler loop.
type Engine struct {
	InstanceID string
	Cfg        *objects.Config
	Metrics    *metrics.Collector
	Broker     *broker.Broker

	settings config.Settings
	log      *logging.Logger
	flog     logrus.FieldLogger

	reg        *objects.Registry
	results    chan *objects.CheckResult
	sched      *scheduler.Scheduler
	checks     CheckRunner
	executor   *checker.Executor
	notifyExec *notify.CommandExecutor
	notifier   *notify.Engine
	downtimes  *downtime.Manager
	fresh      *freshness.Checker
	macros     *macros.Expander
	reaper     *reaper.Reaper
	store      RetentionStore
	hostPerf   *perfdata.Writer
	svcPerf    *perfdata.Writer

	started time.Time
}

// New builds an engine with an empty registry. Load installs objects.
func New(opts Options) (*Engine, error) {
	s := opts.Settings
	cfg := s.EngineConfig()
	if s.ResourceFile != "" {
		if err := config.ReadResourceFile(s.ResourceFile, &cfg.UserMacros); err != nil {
			return nil, err
		}
	}

	log := opts.Log
	if log == nil {
		log = logging.NewWithLogger(logrus.StandardLogger(), s.Log)
	}
	e := &Engine{
		InstanceID: uuid.NewString(),
		Cfg:        cfg,
		settings:   s,
		log:        log,
		flog:       log.FieldLogger(),
		reg:        objects.NewRegistry(),
		results:    make(chan *objects.CheckResult, resultQueueSize),
	}
	e.flog = e.flog.WithField("instance", e.InstanceID)
	if opts.Registerer != nil {
		e.Metrics = metrics.New(opts.Registerer)
	}
	e.Broker = broker.New(e.InstanceID, opts.Sinks...)

	e.sched = scheduler.New(cfg, e.reg, e.flog, e.Metrics)
	if opts.NewChecks != nil {
		e.checks = opts.NewChecks(e.results)
	} else {
		e.executor = checker.NewExecutor(cfg.MaxConcurrentChecks, e.results, e.flog)
		e.checks = e.executor
	}

	runner := opts.Notifications
	if runner == nil {
		e.notifyExec = notify.NewCommandExecutor(time.Duration(cfg.ServiceCheckTimeout)*time.Second, e.flog)
		runner = e.notifyExec
	}
	e.macros = &macros.Expander{Cfg: cfg, Reg: e.reg}

	comments := downtime.NewComments(1, e.sched)
	e.downtimes = downtime.NewManager(1, comments, e.reg, e.sched)
	e.downtimes.Log = log
	e.downtimes.Broker = e.Broker

	e.notifier = notify.New(cfg, log, e.macros, runner)
	e.notifier.Comments = comments
	e.notifier.Broker = e.Broker
	e.notifier.Metrics = e.Metrics
	e.downtimes.Notifier = e.notifier

	e.fresh = &freshness.Checker{Cfg: cfg, Log: e.flog, Request: e.sched.RequestImmediate}

	e.reaper = reaper.New(cfg, e.reg, e.results, e.sched, e.flog)
	e.reaper.Notifier = e.notifier
	e.reaper.Downtimes = e.downtimes
	e.reaper.Alerts = log
	e.reaper.Broker = e.Broker
	e.reaper.Metrics = e.Metrics

	if p := s.Perfdata; p.Enabled {
		mode := s.PerfdataMode()
		if p.HostFile != "" {
			e.hostPerf = perfdata.NewWriter(p.HostFile, p.HostTemplate, mode)
		}
		if p.ServiceFile != "" {
			e.svcPerf = perfdata.NewWriter(p.ServiceFile, p.ServiceTemplate, mode)
		}
		e.reaper.HostPerfdata = e.hostPerf
		e.reaper.ServicePerfdata = e.svcPerf
	}

	e.store = opts.Store
	if e.store == nil && s.Retention.Enabled && s.Retention.File != "" {
		store, err := retention.Open(s.Retention.File, Version)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	e.wire()
	return e, nil
}

func (e *Engine) wire() {
	s := e.sched
	s.OnRunCheck = e.runCheck
	s.OnReaper = func(now time.Time) { e.reaper.Reap(now) }
	s.OnFreshness = func(kind objects.Kind, now time.Time) {
		e.fresh.Check(e.reg.Checkables(), kind, now)
	}
	s.OnRetentionSave = func(now time.Time) {
		if err := e.SaveRetention(now); err != nil {
			e.flog.WithError(err).Error("saving retention data")
		}
	}
	s.OnDowntimeStart = e.downtimes.HandleStart
	s.OnDowntimeEnd = e.downtimes.HandleEnd
	s.OnCommentExpire = func(id uint64, now time.Time) {
		e.downtimes.Comments().Expire(id, now)
	}
	s.OnReload = e.ReloadFile
}

// Scheduler exposes the event loop.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// Registry returns the active object registry.
func (e *Engine) Registry() *objects.Registry { return e.reg }

// Downtimes returns the downtime and comment manager.
func (e *Engine) Downtimes() *downtime.Manager { return e.downtimes }

// Notifier returns the notification engine.
func (e *Engine) Notifier() *notify.Engine { return e.notifier }

// Load resolves ds and activates the result. Nothing changes when the
// resolution reports errors. After Start, activation is a reload: the
// runtime state of objects that survive is carried over by identity key.
func (e *Engine) Load(ds *config.Definitions, now time.Time) resolve.Result {
	reg, res := resolve.Resolve(ds)
	e.Metrics.Resolution(res.Warnings, res.Errors)
	for _, w := range multierr.Errors(res.Warn) {
		e.flog.Warn(w.Error())
	}
	for _, err := range multierr.Errors(res.Err) {
		e.flog.Error(err.Error())
	}
	if !res.OK() {
		e.flog.WithFields(logrus.Fields{
			"warnings": res.Warnings,
			"errors":   res.Errors,
		}).Error("configuration rejected, keeping the active one")
		return res
	}

	if e.started.IsZero() {
		for _, c := range reg.Checkables() {
			c.InitState()
		}
		e.setRegistry(reg)
	} else {
		e.reload(reg, now)
	}
	e.flog.WithFields(logrus.Fields{
		"hosts":    len(reg.Hosts()),
		"services": len(reg.Services()),
		"warnings": res.Warnings,
	}).Info("configuration activated")
	return res
}

// ReloadFile re-reads the objects file and activates it.
func (e *Engine) ReloadFile(now time.Time) {
	ds, err := config.LoadObjects(e.settings.ObjectsFile)
	if err != nil {
		e.flog.WithError(err).Error("reload failed, keeping the active configuration")
		return
	}
	e.Load(ds, now)
}

func (e *Engine) setRegistry(reg *objects.Registry) {
	e.reg = reg
	e.sched.SetRegistry(reg)
	e.reaper.SetRegistry(reg)
	e.macros.Reg = reg
	e.downtimes.Relink(reg)
	e.downtimes.Comments().Relink(reg)
}

func (e *Engine) reload(reg *objects.Registry, now time.Time) {
	old := e.reg
	reg.Renumber(old)
	for _, c := range reg.Checkables() {
		c.InitState()
	}
	retention.Capture(e.Cfg, old, nil, now).Apply(e.Cfg, reg, nil)

	for _, prev := range old.Checkables() {
		c := reg.ByKey(prev.Key())
		if c == nil {
			e.sched.Remove(prev)
			continue
		}
		c.IsExecuting = prev.IsExecuting
		c.ScheduledDowntimeDepth = prev.ScheduledDowntimeDepth
		c.PendingFlexDowntime = prev.PendingFlexDowntime
		c.IsBeingFreshened = prev.IsBeingFreshened
	}
	e.setRegistry(reg)
	e.sched.Seed(reg.Checkables(), now)
}

// Start restores retained state and queues the initial checks and the
// recurring housekeeping events.
func (e *Engine) Start(now time.Time) error {
	e.started = now
	e.Cfg.ProgramStart = now
	e.fresh.EventStart = now

	if e.store != nil {
		snap, err := e.store.Load()
		switch {
		case errors.Cause(err) == retention.ErrNoSnapshot:
			e.flog.Info("no retention data, starting fresh")
		case err != nil:
			e.flog.WithError(err).Warn("ignoring retention data")
		default:
			n := snap.Apply(e.Cfg, e.reg, e.downtimes)
			e.flog.WithField("objects", n).Info("retention data restored")
		}
	}
	for _, c := range e.reg.Checkables() {
		e.log.InitialState(c)
	}

	var errs error
	for _, w := range []*perfdata.Writer{e.hostPerf, e.svcPerf} {
		if w != nil {
			errs = multierr.Append(errs, w.Open())
		}
	}
	if errs != nil {
		return errors.Wrap(errs, "opening performance data files")
	}

	e.sched.Init(now)
	e.flog.WithField("events", e.sched.QueueLen()).Info("initial checks scheduled")
	return nil
}

// Run drives the scheduler loop until ctx is done or Stop is called, then
// saves retention data and releases resources.
func (e *Engine) Run(ctx context.Context) error {
	err := e.sched.Run(ctx)
	e.shutdown(e.sched.Clock())
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}

// Stop asks Run to return. Safe for concurrent use.
func (e *Engine) Stop() { e.sched.Stop() }

func (e *Engine) shutdown(now time.Time) {
	if err := e.SaveRetention(now); err != nil {
		e.flog.WithError(err).Error("saving retention data at shutdown")
	}
	if e.executor != nil {
		done := make(chan struct{})
		go func() {
			e.executor.Stop()
			close(done)
		}()
		// Workers may be blocked on a full result channel.
	drain:
		for {
			select {
			case <-done:
				break drain
			case <-e.results:
			}
		}
	}
	if e.notifyExec != nil {
		e.notifyExec.Wait()
	}
	var errs error
	for _, w := range []*perfdata.Writer{e.hostPerf, e.svcPerf} {
		if w != nil {
			errs = multierr.Append(errs, w.Close())
		}
	}
	if e.store != nil {
		errs = multierr.Append(errs, e.store.Close())
	}
	if errs != nil {
		e.flog.WithError(errs).Warn("shutdown")
	}
	e.flog.Info("engine stopped")
}

// SaveRetention writes a snapshot when a store is configured.
func (e *Engine) SaveRetention(now time.Time) error {
	if e.store == nil {
		return nil
	}
	snap := retention.Capture(e.Cfg, e.reg, e.downtimes, now)
	snap.InstanceID = e.InstanceID
	if err := e.store.Save(snap); err != nil {
		return err
	}
	e.flog.WithField("objects", len(snap.Checkables)).Debug("retention data saved")
	return nil
}

func (e *Engine) runCheck(c *objects.Checkable, options int, now time.Time) {
	if c.CheckCommand == nil {
		e.deliver(&objects.CheckResult{
			ID:           c.ID,
			CheckType:    objects.CheckTypeActive,
			CheckOptions: options,
			Output:       "(No check command defined - host assumed UP)",
			StartTime:    now,
			FinishTime:   now,
			Latency:      c.Latency,
		})
		return
	}
	var args []string
	if c.CheckCommandArgs != "" {
		args = strings.Split(c.CheckCommandArgs, "!")
	}
	cmd := e.macros.Expand(c.CheckCommand.CommandLine, &macros.Context{Checkable: c, Args: args, Now: now})
	e.checks.Submit(checker.Request{
		ID:        c.ID,
		Command:   cmd,
		Timeout:   c.CheckTimeout(e.Cfg),
		Options:   options,
		CheckType: objects.CheckTypeActive,
		Latency:   c.Latency,
	})
}

// deliver queues a result without blocking the loop.
func (e *Engine) deliver(cr *objects.CheckResult) {
	select {
	case e.results <- cr:
	default:
		go func() { e.results <- cr }()
	}
}

// Lookup finds a host (empty description) or a service.
func (e *Engine) Lookup(hostName, description string) *objects.Checkable {
	if description == "" {
		return e.reg.Host(hostName)
	}
	return e.reg.Service(hostName, description)
}

// PassiveResult is a check result submitted from outside the engine.
type PassiveResult struct {
	HostName    string
	Description string // empty for a host result
	ReturnCode  int
	Output      string
	// CheckTime defaults to the submission time.
	CheckTime time.Time
}

// SubmitPassive queues a passive result. Safe for concurrent use.
func (e *Engine) SubmitPassive(pr PassiveResult) {
	e.sched.Submit(func(now time.Time) {
		c := e.Lookup(pr.HostName, pr.Description)
		if c == nil {
			e.flog.WithFields(logrus.Fields{
				"host":    pr.HostName,
				"service": pr.Description,
			}).Warn("passive result for an unknown object")
			return
		}
		at := pr.CheckTime
		if at.IsZero() {
			at = now
		}
		e.reaper.Process(&objects.CheckResult{
			ID:         c.ID,
			CheckType:  objects.CheckTypePassive,
			ReturnCode: pr.ReturnCode,
			Output:     pr.Output,
			StartTime:  at,
			FinishTime: at,
			Latency:    now.Sub(at).Seconds(),
		}, now)
	})
}

// RequestReload re-reads the objects file on the loop. Safe for
// concurrent use.
func (e *Engine) RequestReload() {
	e.sched.Submit(e.ReloadFile)
}

// ReopenLog reopens the log file after rotation. Safe for concurrent use.
func (e *Engine) ReopenLog() {
	if err := e.log.Reopen(); err != nil {
		e.flog.WithError(err).Error("reopening log file")
	}
}

// Acknowledge acknowledges the current problem of a host or service.
func (e *Engine) Acknowledge(hostName, description, author, comment string, sticky, notify bool, now time.Time) error {
	c := e.Lookup(hostName, description)
	if c == nil {
		return errors.Errorf("no such object %s;%s", hostName, description)
	}
	if !e.notifier.Acknowledge(c, author, comment, sticky, notify, false, now) {
		return errors.Errorf("%s has no problem to acknowledge", c)
	}
	return nil
}

// ScheduleDowntime schedules d on a host or service and returns its id.
func (e *Engine) ScheduleDowntime(hostName, description string, d *downtime.Downtime, now time.Time) (uint64, error) {
	c := e.Lookup(hostName, description)
	if c == nil {
		return 0, errors.Errorf("no such object %s;%s", hostName, description)
	}
	return e.downtimes.Schedule(c, d, now)
}
