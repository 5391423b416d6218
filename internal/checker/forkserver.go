package checker

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
)

// shellLoop runs inside every persistent shell. One command line is read
// per iteration and evaluated in a subshell with stderr folded into
// stdout; "<token> <rc>" then marks the end of its output.
const shellLoop = `t="$1"; while IFS= read -r line; do (eval "$line") </dev/null 2>&1; printf '%s %d\n' "$t" $?; done`

var (
	errShellTimeout = errors.New("check timed out")
	errShellGone    = errors.New("check shell exited")
)

// shellReply is what a command produced.
type shellReply struct {
	Output string
	Code   int
}

// shellWorker keeps one /bin/sh alive for a worker so that each check
// costs a fork of the small shell instead of the engine process.
type shellWorker struct {
	proc   *exec.Cmd
	in     io.WriteCloser
	out    *bufio.Scanner
	marker string // "<token> "
	alive  bool
	runs   int
}

func newShellWorker(token string) (*shellWorker, error) {
	proc := exec.Command("/bin/sh", "-c", shellLoop, "--", token)
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	in, err := proc.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "check shell stdin")
	}
	out, err := proc.StdoutPipe()
	if err != nil {
		in.Close()
		return nil, errors.Wrap(err, "check shell stdout")
	}
	if err := proc.Start(); err != nil {
		in.Close()
		return nil, errors.Wrap(err, "starting check shell")
	}

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &shellWorker{proc: proc, in: in, out: sc, marker: token + " ", alive: true}, nil
}

// Pid of the shell, 0 once it is gone.
func (sw *shellWorker) Pid() int {
	if !sw.alive || sw.proc.Process == nil {
		return 0
	}
	return sw.proc.Process.Pid
}

func (sw *shellWorker) kill() {
	if sw.proc.Process != nil {
		syscall.Kill(-sw.proc.Process.Pid, syscall.SIGKILL)
	}
}

// Exec runs one command line. When ctx ends first the shell's process
// group is killed, the worker is dead afterwards and errShellTimeout is
// returned.
func (sw *shellWorker) Exec(ctx context.Context, line string) (shellReply, error) {
	if !sw.alive {
		return shellReply{Code: -1}, errShellGone
	}
	// One command per line on the wire.
	line = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(line)
	if _, err := io.WriteString(sw.in, line+"\n"); err != nil {
		sw.alive = false
		return shellReply{Code: -1}, errors.Wrap(err, "sending command to check shell")
	}
	sw.runs++

	var expired atomic.Bool
	stop := context.AfterFunc(ctx, func() {
		expired.Store(true)
		sw.kill()
	})
	defer stop()

	var buf strings.Builder
	for sw.out.Scan() {
		text := sw.out.Text()
		if rest, ok := strings.CutPrefix(text, sw.marker); ok {
			rc, err := strconv.Atoi(rest)
			if err != nil {
				rc = 2
			}
			return shellReply{Output: truncate(buf.String()), Code: rc}, nil
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
	}

	sw.alive = false
	if sw.proc.ProcessState == nil {
		sw.proc.Wait()
	}
	if expired.Load() {
		return shellReply{Code: -1}, errShellTimeout
	}
	return shellReply{Code: -1}, errShellGone
}

// Close kills the shell and reaps it.
func (sw *shellWorker) Close() {
	if sw.proc.Process != nil {
		sw.kill()
		if sw.proc.ProcessState == nil {
			sw.proc.Wait()
		}
	}
	sw.alive = false
}
