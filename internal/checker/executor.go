package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

const maxOutputLength = 8192

// Request is one check execution: a macro-expanded command line plus the
// bookkeeping copied into its result.
type Request struct {
	ID        objects.ID
	Command   string
	Timeout   time.Duration
	Options   int
	CheckType int
	Latency   float64
	Env       map[string]string
}

// Executor runs check plugins with a fixed-size worker pool. Each worker
// owns a persistent /bin/sh process (fork server) to avoid expensive
// fork() calls from the large Go parent process. Completed results,
// including synthetic timeout results, are delivered on the results
// channel in completion order.
type Executor struct {
	jobCh       chan Request
	jobsRunning atomic.Int64
	resultCh    chan<- *objects.CheckResult
	workers     int
	sentinel    string
	log         logrus.FieldLogger
	wg          sync.WaitGroup

	// mu orders Submit against Stop; overflow senders give up on stop.
	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	senders sync.WaitGroup
}

// NewExecutor creates an executor with the given concurrency limit.
func NewExecutor(maxConcurrent int, resultCh chan<- *objects.CheckResult, log logrus.FieldLogger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	e := &Executor{
		jobCh:    make(chan Request, maxConcurrent*4),
		stop:     make(chan struct{}),
		resultCh: resultCh,
		workers:  maxConcurrent,
		sentinel: strings.ReplaceAll(uuid.NewString(), "-", ""),
		log:      log.WithField("component", "executor"),
	}
	e.wg.Add(maxConcurrent)
	for i := 0; i < maxConcurrent; i++ {
		go e.forkServerWorker()
	}
	return e
}

// Workers returns the configured worker pool size.
func (e *Executor) Workers() int {
	return e.workers
}

// JobsRunning returns the current number of executing checks.
func (e *Executor) JobsRunning() int64 {
	return e.jobsRunning.Load()
}

// Submit queues a check for async execution. If the job buffer is full a
// short-lived goroutine hands the job over so the scheduler loop never
// blocks. Checks submitted after Stop are dropped.
func (e *Executor) Submit(req Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		e.log.WithField("checkable_id", req.ID).Debug("executor stopped, check dropped")
		return
	}
	select {
	case e.jobCh <- req:
	default:
		e.senders.Add(1)
		go func() {
			defer e.senders.Done()
			select {
			case e.jobCh <- req:
			case <-e.stop:
			}
		}()
	}
}

// Stop shuts down all workers and waits for in-flight checks to finish.
// Jobs still waiting for a buffer slot are abandoned.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.stopped = true
	close(e.stop)
	e.mu.Unlock()

	e.senders.Wait()
	close(e.jobCh)
	e.wg.Wait()
}

// forkServerWorker owns a persistent shell process and processes jobs through it.
// If the shell can't be started or crashes irrecoverably, falls back to runPlugin.
func (e *Executor) forkServerWorker() {
	defer e.wg.Done()

	sw, err := newShellWorker(e.sentinel)
	if err != nil {
		e.log.WithError(err).Warn("fork server unavailable, falling back to direct exec")
		sw = nil
	}
	defer func() {
		if sw != nil {
			sw.Close()
		}
	}()

	for req := range e.jobCh {
		e.jobsRunning.Add(1)
		cr := e.runViaShell(sw, req)
		if cr == nil {
			if sw != nil {
				sw.Close()
			}
			sw, err = newShellWorker(e.sentinel)
			if err != nil {
				sw = nil
			}
			cr = e.runViaShell(sw, req)
			if cr == nil {
				cr = e.runPlugin(req)
			}
		}
		if cr.EarlyTimeout && sw != nil && !sw.alive {
			sw.Close()
			if sw, err = newShellWorker(e.sentinel); err != nil {
				sw = nil
			}
		}
		e.jobsRunning.Add(-1)
		e.resultCh <- cr
	}
}

func newResult(req Request) *objects.CheckResult {
	return &objects.CheckResult{
		ID:           req.ID,
		CheckType:    req.CheckType,
		CheckOptions: req.Options,
		Latency:      req.Latency,
	}
}

func timedOut(cr *objects.CheckResult, timeout time.Duration) {
	cr.EarlyTimeout = true
	cr.ReturnCode = 3
	cr.Output = fmt.Sprintf("(Check timed out after %.2f seconds)", timeout.Seconds())
}

// runViaShell executes a check through the persistent shell worker.
// Returns nil if the shell is unavailable or failed at the protocol level.
func (e *Executor) runViaShell(sw *shellWorker, req Request) *objects.CheckResult {
	if sw == nil || !sw.alive {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), req.Timeout)
	defer cancel()

	cr := newResult(req)
	cr.StartTime = time.Now()
	reply, err := sw.Exec(ctx, envPrefix(req.Env)+req.Command)
	cr.FinishTime = time.Now()
	cr.ExecutionTime = cr.FinishTime.Sub(cr.StartTime).Seconds()

	if err != nil {
		if errors.Is(err, errShellTimeout) {
			timedOut(cr, req.Timeout)
			return cr
		}
		return nil
	}

	cr.ReturnCode = reply.Code
	cr.Output = reply.Output
	return cr
}

// runPlugin executes the command via direct fork+exec and captures output/return code.
// Used as fallback when the fork server is unavailable.
func (e *Executor) runPlugin(req Request) *objects.CheckResult {
	cr := newResult(req)

	ctx, cancel := context.WithTimeout(context.Background(), req.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", req.Command)
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for _, k := range sortedKeys(req.Env) {
			cmd.Env = append(cmd.Env, k+"="+req.Env[k])
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cr.StartTime = time.Now()
	err := cmd.Run()
	cr.FinishTime = time.Now()
	cr.ExecutionTime = cr.FinishTime.Sub(cr.StartTime).Seconds()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			timedOut(cr, req.Timeout)
			return cr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				cr.ReturnCode = ws.ExitStatus()
			} else {
				cr.ReturnCode = 2
				cr.Abnormal = true
			}
		} else {
			cr.ReturnCode = 127
			cr.Abnormal = true
			cr.Output = fmt.Sprintf("(Could not execute plugin: %v)", err)
			return cr
		}
	}

	if stdout.Len() > 0 {
		cr.Output = truncate(stdout.String())
	} else if stderr.Len() > 0 {
		cr.Output = "(No output on stdout) stderr: " + truncate(stderr.String())
	}
	return cr
}

func truncate(s string) string {
	if len(s) > maxOutputLength {
		return s[:maxOutputLength]
	}
	return s
}

// envPrefix renders the request environment as shell exports that apply
// to the command only. Values are single-line.
func envPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range sortedKeys(env) {
		v := strings.NewReplacer("\n", " ", "\r", " ").Replace(env[k])
		fmt.Fprintf(&b, "export %s=%s; ", k, shellQuote(v))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
