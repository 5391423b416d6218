package notify

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner runs an expanded notification command line.
type Runner interface {
	Execute(cmdLine string)
}

// CommandExecutor runs notification commands through /bin/sh in their own
// goroutine so a slow mailer never blocks the scheduler loop.
type CommandExecutor struct {
	Timeout time.Duration
	Log     logrus.FieldLogger

	wg sync.WaitGroup
}

// NewCommandExecutor creates an executor with the given timeout.
func NewCommandExecutor(timeout time.Duration, log logrus.FieldLogger) *CommandExecutor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CommandExecutor{Timeout: timeout, Log: log}
}

// Execute starts cmdLine and returns immediately.
func (e *CommandExecutor) Execute(cmdLine string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(cmdLine); err != nil {
			e.Log.WithError(err).WithField("command", cmdLine).Warn("notification command failed")
		}
	}()
}

// Run executes cmdLine synchronously.
func (e *CommandExecutor) Run(cmdLine string) error {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return exec.CommandContext(ctx, "/bin/sh", "-c", cmdLine).Run()
}

// Wait blocks until every started command has finished.
func (e *CommandExecutor) Wait() {
	e.wg.Wait()
}
