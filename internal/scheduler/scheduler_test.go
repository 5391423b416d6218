package scheduler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

var t0 = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	cfg  *objects.Config
	reg  *objects.Registry
	s    *Scheduler
	host *objects.Checkable
	svcs []*objects.Checkable
	ran  []*objects.Checkable
}

func newFixture(t *testing.T, nsvc int) *fixture {
	t.Helper()
	f := &fixture{cfg: objects.DefaultConfig(), reg: objects.NewRegistry()}
	f.host = objects.NewHost("web01")
	require.NoError(t, f.reg.AddHost(f.host))
	for i := 0; i < nsvc; i++ {
		svc := objects.NewService("web01", "svc"+string(rune('a'+i)))
		require.NoError(t, f.reg.AddService(svc))
		f.svcs = append(f.svcs, svc)
	}
	f.s = New(f.cfg, f.reg, nil, nil)
	f.s.OnRunCheck = func(c *objects.Checkable, _ int, _ time.Time) {
		f.ran = append(f.ran, c)
	}
	return f
}

func (f *fixture) queued(c *objects.Checkable) *Event {
	h, ok := f.s.Queue().Find(checkKind(c), uint64(c.ID))
	if !ok {
		return nil
	}
	e, _ := f.s.Queue().Get(h)
	return e
}

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()
	q.Schedule(&Event{Kind: EventServiceCheck, Due: t0.Add(3 * time.Second), Payload: 1})
	q.Schedule(&Event{Kind: EventHostCheck, Due: t0.Add(1 * time.Second), Payload: 2})
	q.Schedule(&Event{Kind: EventRetentionSave, Due: t0.Add(2 * time.Second)})

	now := t0.Add(time.Minute)
	assert.Equal(t, EventHostCheck, q.PopDue(now).Kind)
	assert.Equal(t, EventRetentionSave, q.PopDue(now).Kind)
	assert.Equal(t, EventServiceCheck, q.PopDue(now).Kind)
	assert.Nil(t, q.PopDue(now))
}

func TestQueueKindPriorityAtSameTime(t *testing.T) {
	q := NewQueue()
	q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: 1})
	q.Schedule(&Event{Kind: EventHostCheck, Due: t0, Payload: 2})
	q.Schedule(&Event{Kind: EventRetentionSave, Due: t0})
	q.Schedule(&Event{Kind: EventSFreshnessCheck, Due: t0})
	q.Schedule(&Event{Kind: EventCheckReaper, Due: t0})

	var got []Kind
	for e := q.PopDue(t0); e != nil; e = q.PopDue(t0) {
		got = append(got, e.Kind)
	}
	assert.Equal(t, []Kind{
		EventCheckReaper,
		EventSFreshnessCheck,
		EventRetentionSave,
		EventHostCheck,
		EventServiceCheck,
	}, got)
}

func TestQueueFIFOOnTies(t *testing.T) {
	q := NewQueue()
	for i := uint64(1); i <= 5; i++ {
		q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: i})
	}
	for i := uint64(1); i <= 5; i++ {
		assert.Equal(t, i, q.PopDue(t0).Payload)
	}
}

func TestQueuePopDueNotYetDue(t *testing.T) {
	q := NewQueue()
	q.Schedule(&Event{Kind: EventCheckReaper, Due: t0.Add(time.Second)})
	assert.Nil(t, q.PopDue(t0))
	assert.Equal(t, 1, q.Len())
	assert.NotNil(t, q.PopDue(t0.Add(time.Second)))
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue()
	h1 := q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: 7})
	h2 := q.Schedule(&Event{Kind: EventHostCheck, Due: t0, Payload: 8})

	assert.True(t, q.Cancel(h1))
	assert.False(t, q.Cancel(h1), "second cancel is a no-op")
	_, ok := q.Find(EventServiceCheck, 7)
	assert.False(t, ok)

	e := q.PopDue(t0)
	require.NotNil(t, e)
	assert.Equal(t, h2, e.Handle())
	assert.False(t, q.Cancel(h2), "cancel after firing is a no-op")
	assert.Zero(t, q.Len())
}

func TestQueueHandlesNeverReused(t *testing.T) {
	q := NewQueue()
	seen := make(map[Handle]bool)
	for i := 0; i < 50; i++ {
		h := q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: 1})
		require.False(t, seen[h])
		seen[h] = true
		if i%2 == 0 {
			q.Cancel(h)
		} else {
			q.PopDue(t0)
		}
	}
}

func TestQueueFindIndex(t *testing.T) {
	q := NewQueue()
	h := q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: 3})

	got, ok := q.Find(EventServiceCheck, 3)
	assert.True(t, ok)
	assert.Equal(t, h, got)

	_, ok = q.Find(EventHostCheck, 3)
	assert.False(t, ok, "index is keyed by kind and payload")

	q.PopDue(t0)
	_, ok = q.Find(EventServiceCheck, 3)
	assert.False(t, ok)

	q.Schedule(&Event{Kind: EventUserFunction, Due: t0})
	_, ok = q.Find(EventUserFunction, 0)
	assert.False(t, ok, "user functions are not indexed")
}

func TestQueueRescheduleKeepsHandle(t *testing.T) {
	q := NewQueue()
	h := q.Schedule(&Event{Kind: EventServiceCheck, Due: t0, Payload: 1})
	q.Schedule(&Event{Kind: EventServiceCheck, Due: t0.Add(time.Second), Payload: 2})

	require.True(t, q.Reschedule(h, t0.Add(time.Minute)))
	assert.Equal(t, uint64(2), q.Peek().Payload)
	e, ok := q.Get(h)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), e.Due)
}

func TestRescheduleIsIdempotent(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]

	f.s.Reschedule(svc, t0)
	f.s.Reschedule(svc, t0)
	f.s.Reschedule(svc, t0.Add(time.Second))

	count := 0
	for _, e := range f.s.Queue().Events() {
		if e.Kind == EventServiceCheck && e.Payload == uint64(svc.ID) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRescheduleUsesCheckWindow(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	svc.LastCheck = t0

	f.s.Reschedule(svc, t0)
	assert.Equal(t, t0.Add(5*time.Minute), svc.NextCheck)

	f.s.Queue().Cancel(f.queued(svc).Handle())
	svc.CurrentState = objects.ServiceCritical
	svc.StateType = objects.StateTypeSoft
	f.s.Reschedule(svc, t0)
	assert.Equal(t, t0.Add(time.Minute), svc.NextCheck, "soft problems retry")
}

func TestRescheduleClampsToNow(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	svc.LastCheck = t0.Add(-time.Hour)

	f.s.Reschedule(svc, t0)
	assert.Equal(t, t0, svc.NextCheck)
}

func TestRescheduleKeepsEarlierQueuedCheck(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]

	require.True(t, f.s.ScheduleAt(svc, t0.Add(time.Minute), 0))
	assert.False(t, f.s.ScheduleAt(svc, t0.Add(2*time.Minute), 0))
	assert.True(t, f.s.ScheduleAt(svc, t0.Add(30*time.Second), 0))
	assert.Equal(t, t0.Add(30*time.Second), f.queued(svc).Due)

	// A forced check is not displaced by an earlier regular one.
	require.True(t, f.s.ScheduleAt(svc, t0.Add(time.Hour), objects.CheckOptionForceExecution))
	assert.False(t, f.s.ScheduleAt(svc, t0, 0))
	assert.Equal(t, t0.Add(time.Hour), f.queued(svc).Due)
}

func TestRescheduleIntoCheckPeriod(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	office := timeperiod.New("office")
	for d := time.Sunday; d <= time.Saturday; d++ {
		require.NoError(t, office.SetDay(d, "09:00-17:00"))
	}
	svc.CheckPeriod = office
	evening := time.Date(2024, 7, 10, 19, 58, 0, 0, time.UTC)
	svc.LastCheck = evening

	f.s.Reschedule(svc, evening)
	assert.Equal(t, time.Date(2024, 7, 11, 9, 0, 0, 0, time.UTC), svc.NextCheck)
}

func TestSpreadIsDeterministicAndDistinct(t *testing.T) {
	f := newFixture(t, 10)
	a := Spread(f.cfg, f.reg.Checkables())
	b := Spread(f.cfg, f.reg.Checkables())
	assert.Equal(t, a, b)

	seen := make(map[time.Duration]bool)
	for _, svc := range f.svcs {
		off := a[svc.ID]
		assert.False(t, seen[off], "two services share offset %s", off)
		seen[off] = true
		assert.Less(t, off, 5*time.Minute)
	}
	assert.Zero(t, a[f.host.ID], "a lone host starts immediately")
}

func TestSpreadInterleavesHosts(t *testing.T) {
	cfg := objects.DefaultConfig()
	reg := objects.NewRegistry()
	for _, h := range []string{"a", "b"} {
		require.NoError(t, reg.AddHost(objects.NewHost(h)))
		for _, d := range []string{"1", "2"} {
			require.NoError(t, reg.AddService(objects.NewService(h, d)))
		}
	}
	off := Spread(cfg, reg.Checkables())
	slot := 5 * time.Minute / 4
	assert.Equal(t, 0*slot, off[reg.Service("a", "1").ID])
	assert.Equal(t, 1*slot, off[reg.Service("b", "1").ID])
	assert.Equal(t, 2*slot, off[reg.Service("a", "2").ID])
	assert.Equal(t, 3*slot, off[reg.Service("b", "2").ID])
}

func TestSpreadCappedByMaxSpread(t *testing.T) {
	f := newFixture(t, 4)
	for _, svc := range f.svcs {
		svc.CheckInterval = 120
	}
	f.cfg.MaxServiceCheckSpread = 4
	off := Spread(f.cfg, f.reg.Checkables())
	assert.Equal(t, 3*time.Minute, off[f.svcs[3].ID])
}

func TestInitSeedsChecksAndRecurringEvents(t *testing.T) {
	f := newFixture(t, 3)
	f.s.Init(t0)

	for _, c := range f.reg.Checkables() {
		require.NotNil(t, f.queued(c), c.String())
	}
	_, ok := f.s.Queue().Find(EventCheckReaper, 0)
	assert.True(t, ok)
	_, ok = f.s.Queue().Find(EventSFreshnessCheck, 0)
	assert.True(t, ok)
	_, ok = f.s.Queue().Find(EventHFreshnessCheck, 0)
	assert.False(t, ok, "host freshness is off by default")
}

func TestRequestImmediateReplacesNaturalCheck(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	svc.LastCheck = t0
	f.s.Reschedule(svc, t0)
	natural := f.queued(svc).Handle()

	require.True(t, f.s.RequestImmediate(svc, t0.Add(time.Second), 0))
	_, stillQueued := f.s.Queue().Get(natural)
	assert.False(t, stillQueued)

	e := f.queued(svc)
	require.NotNil(t, e)
	assert.Equal(t, t0.Add(time.Second), e.Due)
	assert.NotZero(t, e.CheckOptions&objects.CheckOptionForceExecution)

	f.s.RunPending(t0.Add(time.Second))
	assert.Equal(t, []*objects.Checkable{svc}, f.ran)
}

func TestRequestImmediatePendingWhileDisabled(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	f.s.DisableChecks(svc)

	assert.False(t, f.s.RequestImmediate(svc, t0, 0))
	assert.True(t, svc.PendingImmediateCheck)
	assert.Nil(t, f.queued(svc))

	f.s.EnableChecks(svc, t0.Add(time.Minute))
	assert.False(t, svc.PendingImmediateCheck)
	e := f.queued(svc)
	require.NotNil(t, e)
	assert.Equal(t, t0.Add(time.Minute), e.Due)
	assert.NotZero(t, e.CheckOptions&objects.CheckOptionForceExecution)
}

func TestRequestImmediatePendingWhileGloballyDisabled(t *testing.T) {
	f := newFixture(t, 2)
	f.s.SetExecuteChecks(objects.KindService, false, t0)

	f.s.RequestImmediate(f.svcs[1], t0, 0)
	assert.True(t, f.svcs[1].PendingImmediateCheck)

	f.s.SetExecuteChecks(objects.KindService, true, t0.Add(time.Minute))
	assert.False(t, f.svcs[1].PendingImmediateCheck)
	require.NotNil(t, f.queued(f.svcs[1]))
	assert.Nil(t, f.queued(f.svcs[0]))
}

func TestDisabledAtFireTimeKeepsForcedRequest(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	require.True(t, f.s.RequestImmediate(svc, t0, 0))
	f.cfg.ExecuteServiceChecks = false

	f.s.RunPending(t0)
	assert.Empty(t, f.ran)
	assert.True(t, svc.PendingImmediateCheck)
	assert.Equal(t, t0.Add(5*time.Minute), f.queued(svc).Due, "regular check re-queued")
}

func TestFreshnessCheckRunsWithActiveChecksDisabled(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	svc.ActiveChecksEnabled = false

	f.s.ScheduleAt(svc, t0, objects.CheckOptionForceExecution|objects.CheckOptionFreshnessCheck)
	f.s.RunPending(t0)
	assert.Equal(t, []*objects.Checkable{svc}, f.ran)
}

func TestParallelLimitNudges(t *testing.T) {
	f := newFixture(t, 2)
	f.cfg.MaxParallelServiceChecks = 1
	f.s.ScheduleAt(f.svcs[0], t0, 0)
	f.s.ScheduleAt(f.svcs[1], t0, 0)

	f.s.RunPending(t0)
	require.Len(t, f.ran, 1)
	assert.Equal(t, f.svcs[0], f.ran[0])
	assert.Equal(t, 1, f.s.RunningServiceChecks())

	e := f.queued(f.svcs[1])
	require.NotNil(t, e)
	delay := e.Due.Sub(t0)
	assert.GreaterOrEqual(t, delay, NudgeMin*time.Second)
	assert.LessOrEqual(t, delay, NudgeMax*time.Second)

	f.s.CheckFinished(f.svcs[0])
	assert.Zero(t, f.s.RunningServiceChecks())
}

func TestCheckOutsidePeriodIsDeferred(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	office := timeperiod.New("office")
	for d := time.Sunday; d <= time.Saturday; d++ {
		require.NoError(t, office.SetDay(d, "09:00-17:00"))
	}
	svc.CheckPeriod = office
	evening := time.Date(2024, 7, 10, 20, 0, 0, 0, time.UTC)
	f.s.ScheduleAt(svc, evening, 0)

	f.s.RunPending(evening)
	assert.Empty(t, f.ran)
	assert.Equal(t, time.Date(2024, 7, 11, 9, 0, 0, 0, time.UTC), svc.NextCheck)
}

func TestExecutionDependencySkipsCheck(t *testing.T) {
	f := newFixture(t, 2)
	master, svc := f.svcs[0], f.svcs[1]
	master.HasBeenChecked = true
	master.CurrentState = objects.ServiceCritical
	master.LastHardState = objects.ServiceCritical
	require.NoError(t, f.reg.AddDependency(&objects.Dependency{
		Dependent:               svc,
		Master:                  master,
		ExecutionFailureOptions: objects.OptCritical,
	}))

	f.s.ScheduleAt(svc, t0, 0)
	f.s.RunPending(t0)
	assert.Empty(t, f.ran)
	assert.Equal(t, t0.Add(5*time.Minute), svc.NextCheck)
}

func TestRunCheckMarksExecuting(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	f.s.ScheduleAt(svc, t0, 0)

	f.s.RunPending(t0.Add(2 * time.Second))
	assert.True(t, svc.IsExecuting)
	assert.InDelta(t, 2.0, svc.Latency, 1e-9)

	// A second event while executing is pushed back, not run twice.
	f.s.ScheduleAt(svc, t0.Add(3*time.Second), 0)
	f.s.RunPending(t0.Add(3 * time.Second))
	assert.Len(t, f.ran, 1)
}

func TestRemoveCancelsEvents(t *testing.T) {
	f := newFixture(t, 1)
	f.s.Init(t0)
	svc := f.svcs[0]
	require.NotNil(t, f.queued(svc))

	f.s.Remove(svc)
	f.reg.Remove(svc.ID)
	assert.Nil(t, f.queued(svc))

	f.s.RunPending(t0.Add(time.Hour))
	for _, c := range f.ran {
		assert.NotEqual(t, svc, c)
	}
}

func TestRecurringEventsRequeue(t *testing.T) {
	f := newFixture(t, 0)
	reaped := 0
	f.s.OnReaper = func(time.Time) { reaped++ }
	f.s.Init(t0)

	f.s.RunPending(t0.Add(10 * time.Second))
	f.s.RunPending(t0.Add(20 * time.Second))
	assert.Equal(t, 2, reaped)

	h, ok := f.s.Queue().Find(EventCheckReaper, 0)
	require.True(t, ok)
	e, _ := f.s.Queue().Get(h)
	assert.Equal(t, t0.Add(30*time.Second), e.Due)
}

func TestOneShotEvents(t *testing.T) {
	f := newFixture(t, 0)
	var started, ended, expired []uint64
	f.s.OnDowntimeStart = func(id uint64, _ time.Time) { started = append(started, id) }
	f.s.OnDowntimeEnd = func(id uint64, _ time.Time) { ended = append(ended, id) }
	f.s.OnCommentExpire = func(id uint64, _ time.Time) { expired = append(expired, id) }

	f.s.ScheduleEvent(EventScheduledDowntime, t0, 4)
	f.s.ScheduleEvent(EventExpireDowntime, t0.Add(time.Hour), 4)
	f.s.ScheduleEvent(EventExpireComment, t0.Add(time.Minute), 9)
	f.s.ScheduleEvent(EventExpireComment, t0.Add(2*time.Minute), 9)
	assert.True(t, f.s.CancelEvent(EventExpireDowntime, 4))

	f.s.RunPending(t0.Add(2 * time.Hour))
	assert.Equal(t, []uint64{4}, started)
	assert.Empty(t, ended)
	assert.Equal(t, []uint64{9}, expired, "rescheduling replaces the queued event")
}

func TestOrphanedCheckRequeued(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	f.s.ScheduleAt(svc, t0.Add(-2*time.Hour), 0)
	f.s.RunPending(t0.Add(-2 * time.Hour))
	require.True(t, svc.IsExecuting)

	f.s.checkOrphans(t0)
	assert.False(t, svc.IsExecuting)
	assert.Zero(t, f.s.RunningServiceChecks())
	e := f.queued(svc)
	require.NotNil(t, e)
	assert.Equal(t, t0, e.Due)
	assert.Equal(t, objects.CheckOptionOrphanCheck, e.CheckOptions)
}

func TestAutoRescheduleSpreadsDueChecks(t *testing.T) {
	f := newFixture(t, 3)
	for _, svc := range f.svcs {
		f.s.ScheduleAt(svc, t0.Add(10*time.Second), 0)
	}
	f.s.autoReschedule(t0)

	dues := make(map[time.Time]bool)
	for _, svc := range f.svcs {
		dues[f.queued(svc).Due] = true
	}
	assert.Len(t, dues, 3)
	assert.True(t, dues[t0])
	assert.True(t, dues[t0.Add(60*time.Second)])
	assert.True(t, dues[t0.Add(120*time.Second)])
}

func TestTimeChangeCompensation(t *testing.T) {
	f := newFixture(t, 1)
	svc := f.svcs[0]
	f.s.ScheduleAt(svc, t0.Add(10*time.Second), 0)
	f.s.lastTick = t0

	f.s.detectTimeChange(t0.Add(time.Hour+time.Second), time.Second)
	assert.Equal(t, t0.Add(time.Hour+10*time.Second), f.queued(svc).Due)
	assert.Equal(t, t0.Add(time.Hour+10*time.Second), svc.NextCheck)

	f.s.detectTimeChange(t0.Add(time.Hour+2*time.Second), time.Second)
	assert.Equal(t, t0.Add(time.Hour+10*time.Second), f.queued(svc).Due, "normal ticks do not shift")
}

func TestRunProcessesSubmittedFuncs(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx) }()

	ran := make(chan struct{})
	f.s.Submit(func(time.Time) { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted func never ran")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStopEndsRun(t *testing.T) {
	f := newFixture(t, 0)
	done := make(chan error, 1)
	go func() { done <- f.s.Run(context.Background()) }()
	f.s.Stop()
	f.s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNudgeDurationBounds(t *testing.T) {
	for h := Handle(0); h < 100; h++ {
		d := NudgeDuration(h)
		assert.GreaterOrEqual(t, d, NudgeMin*time.Second)
		assert.LessOrEqual(t, d, NudgeMax*time.Second)
	}
	assert.Equal(t, NudgeDuration(42), NudgeDuration(42))
}

func BenchmarkSpreadAndInit(b *testing.B) {
	cfg := objects.DefaultConfig()
	reg := objects.NewRegistry()
	for h := 0; h < 1000; h++ {
		host := objects.NewHost("host" + strconv.Itoa(h))
		if err := reg.AddHost(host); err != nil {
			b.Fatal(err)
		}
		for s := 0; s < 10; s++ {
			if err := reg.AddService(objects.NewService(host.HostName, "svc"+strconv.Itoa(s))); err != nil {
				b.Fatal(err)
			}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := New(cfg, reg, nil, nil)
		s.Init(t0)
	}
}
