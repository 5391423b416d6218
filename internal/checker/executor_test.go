package checker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

func waitResult(t *testing.T, ch <-chan *objects.CheckResult) *objects.CheckResult {
	t.Helper()
	select {
	case cr := <-ch:
		return cr
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for a check result")
		return nil
	}
}

// Submit must never block the scheduler loop, even with far more checks
// than workers and a small result buffer.
func TestExecutorSubmitDoesNotBlock(t *testing.T) {
	const (
		concurrency = 4
		numSubmits  = 20
	)

	resultCh := make(chan *objects.CheckResult, concurrency)
	executor := NewExecutor(concurrency, resultCh, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < numSubmits; i++ {
			executor.Submit(Request{ID: objects.ID(i), Command: "true", Timeout: 5 * time.Second})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Submit blocked")
	}

	for i := 0; i < numSubmits; i++ {
		waitResult(t, resultCh)
	}
}

func TestExecutorConcurrencyLimit(t *testing.T) {
	const concurrency = 4
	resultCh := make(chan *objects.CheckResult, 100)
	executor := NewExecutor(concurrency, resultCh, nil)

	for i := 0; i < 12; i++ {
		executor.Submit(Request{Command: "sleep 0.1", Timeout: 5 * time.Second})
	}
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, executor.JobsRunning(), int64(concurrency))

	for i := 0; i < 12; i++ {
		waitResult(t, resultCh)
	}
}

func TestExecutorDefaultConcurrency(t *testing.T) {
	executor := NewExecutor(0, make(chan *objects.CheckResult, 1), nil)
	defer executor.Stop()
	assert.Equal(t, 64, executor.Workers())
}

func TestExecutorResultCarriesRequest(t *testing.T) {
	resultCh := make(chan *objects.CheckResult, 1)
	executor := NewExecutor(1, resultCh, nil)
	defer executor.Stop()

	executor.Submit(Request{
		ID:        42,
		Command:   `echo "WARNING - $LEVEL | v=1"; exit 1`,
		Timeout:   5 * time.Second,
		Options:   objects.CheckOptionForceExecution,
		CheckType: objects.CheckTypeActive,
		Latency:   0.5,
		Env:       map[string]string{"LEVEL": "high"},
	})
	cr := waitResult(t, resultCh)

	assert.Equal(t, objects.ID(42), cr.ID)
	assert.Equal(t, 1, cr.ReturnCode)
	assert.Equal(t, "WARNING - high | v=1", cr.Output)
	assert.Equal(t, objects.CheckOptionForceExecution, cr.CheckOptions)
	assert.Equal(t, 0.5, cr.Latency)
	assert.False(t, cr.Abnormal)
	assert.False(t, cr.FinishTime.Before(cr.StartTime))
}

func TestExecutorTimeoutYieldsUnknownResult(t *testing.T) {
	resultCh := make(chan *objects.CheckResult, 2)
	executor := NewExecutor(1, resultCh, nil)
	defer executor.Stop()

	executor.Submit(Request{ID: 1, Command: "sleep 30", Timeout: 500 * time.Millisecond})
	cr := waitResult(t, resultCh)
	assert.True(t, cr.EarlyTimeout)
	assert.Equal(t, 3, cr.ReturnCode)
	assert.Contains(t, cr.Output, "timed out")

	// The worker recovers with a fresh shell.
	executor.Submit(Request{ID: 2, Command: "echo back", Timeout: 5 * time.Second})
	cr = waitResult(t, resultCh)
	assert.Equal(t, "back", cr.Output)
}

func TestExecutorWorkerPoolProcessesAllJobs(t *testing.T) {
	const numJobs = 50
	resultCh := make(chan *objects.CheckResult, numJobs)
	executor := NewExecutor(8, resultCh, nil)

	for i := 0; i < numJobs; i++ {
		executor.Submit(Request{Command: "true", Timeout: 5 * time.Second})
	}
	for i := 0; i < numJobs; i++ {
		waitResult(t, resultCh)
	}
}

// Stopping with checks still waiting for a buffer slot must not panic.
func TestExecutorStopWithBacklog(t *testing.T) {
	resultCh := make(chan *objects.CheckResult, 32)
	executor := NewExecutor(1, resultCh, nil)

	for i := 0; i < 20; i++ {
		executor.Submit(Request{ID: objects.ID(i), Command: "sleep 0.05", Timeout: 5 * time.Second})
	}
	assert.NotPanics(t, executor.Stop)
	assert.NotPanics(t, func() {
		executor.Submit(Request{ID: 99, Command: "true", Timeout: time.Second})
	})
	assert.NotPanics(t, executor.Stop)

	assert.NotEmpty(t, resultCh)
	assert.LessOrEqual(t, len(resultCh), 20)
	for len(resultCh) > 0 {
		assert.NotEqual(t, objects.ID(99), (<-resultCh).ID)
	}
}

func TestRunPluginFallback(t *testing.T) {
	e := &Executor{}
	cr := e.runPlugin(Request{ID: 3, Command: "echo direct; exit 2", Timeout: 5 * time.Second, Env: map[string]string{"A": "b"}})
	require.NotNil(t, cr)
	assert.Equal(t, 2, cr.ReturnCode)
	assert.Equal(t, "direct\n", cr.Output)

	cr = e.runPlugin(Request{Command: "sleep 5", Timeout: 200 * time.Millisecond})
	assert.True(t, cr.EarlyTimeout)
	assert.Equal(t, 3, cr.ReturnCode)
}
