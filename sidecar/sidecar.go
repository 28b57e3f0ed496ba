// Package sidecar implements the Subprocess Supervisor: spawning external
// inference processes, multiplexing their stdout/stderr onto the event
// sink, detecting readiness, and guaranteeing the child is killed when its
// owner goes away.
package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
)

// Handle is a running supervised process. The zero value is not usable;
// construct via Spawn.
type Handle struct {
	name string
	cmd  *exec.Cmd
	pid  int

	events chan event.Event
	sink   event.Sink
	logger log.Logger

	mu       sync.Mutex
	killed   bool
	exitCode *int
	waitErr  error
	done     chan struct{}
}

// Spawn starts binary with args under name (used to label every event this
// handle produces) and begins multiplexing its stdout/stderr. The child is
// killed, process-group and all, when ctx is cancelled — the Go idiom for
// "dropping the handle kills the child", since there is no destructor to
// hook.
func Spawn(ctx context.Context, name, binary string, args []string, sink event.Sink, logger log.Logger) (*Handle, error) {
	if sink == nil {
		sink = event.NullSink{}
	}
	if logger == nil {
		logger = &log.NoOpLogger{}
	}

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, engineerr.Newf(engineerr.StartupFailed, "sidecar %s: stdout pipe: %v", name, err).WithCause(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, engineerr.Newf(engineerr.StartupFailed, "sidecar %s: stderr pipe: %v", name, err).WithCause(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, engineerr.Newf(engineerr.StartupFailed, "sidecar %s: start: %v", name, err).WithCause(err)
	}

	h := &Handle{
		name:   name,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		events: make(chan event.Event, 256),
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}

	var scanWG sync.WaitGroup
	scanWG.Add(2)
	go h.scanLines(stdout, event.KindSidecarStdout, &scanWG)
	go h.scanLines(stderr, event.KindSidecarStderr, &scanWG)

	go func() {
		scanWG.Wait()
		waitErr := cmd.Wait()
		h.mu.Lock()
		h.waitErr = waitErr
		var code *int
		if cmd.ProcessState != nil {
			c := cmd.ProcessState.ExitCode()
			code = &c
		}
		h.exitCode = code
		h.mu.Unlock()
		h.publish(event.Event{Kind: event.KindSidecarTerminated, SidecarName: name, ExitCode: code})
		close(h.done)
	}()

	go func() {
		<-ctx.Done()
		h.Kill()
	}()

	return h, nil
}

func (h *Handle) scanLines(r io.Reader, kind event.Kind, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		h.publish(event.Event{Kind: kind, SidecarName: h.name, Data: line})
	}
	if err := scanner.Err(); err != nil {
		h.publish(event.Event{Kind: event.KindSidecarError, SidecarName: h.name, Err: err})
	}
}

func (h *Handle) publish(e event.Event) {
	select {
	case h.events <- e:
	default:
		h.logger.Warn("sidecar %s: event buffer full, dropping %s event", h.name, e.Kind)
	}
	h.sink.Publish(e)
}

// PID returns the child process's process id.
func (h *Handle) PID() int { return h.pid }

// Events returns the channel of Stdout/Stderr/Error/Terminated events for
// this process, in addition to whatever was published to the shared sink.
func (h *Handle) Events() <-chan event.Event { return h.events }

// Done is closed once the child has exited and output scanning has
// finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the child exits and returns the error cmd.Wait()
// reported, if any: nil for a zero exit status, an error for a non-zero
// status or for a process ended by a signal (including Kill).
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// ExitCode returns the child's exit code once Done is closed; ok is false
// before that or if no process state was recorded. A process ended by a
// signal (including Kill) reports -1.
func (h *Handle) ExitCode() (code int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exitCode == nil {
		return 0, false
	}
	return *h.exitCode, true
}

// Kill terminates the child's entire process group. Safe to call more than
// once and safe to call after the process has already exited.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return nil
	}
	h.killed = true
	h.mu.Unlock()

	err := syscall.Kill(-h.pid, syscall.SIGKILL)
	if err != nil && err != syscall.ESRCH {
		return engineerr.Newf(engineerr.ExecutionFailed, "sidecar %s: kill: %v", h.name, err).WithCause(err)
	}
	return nil
}

// WaitForReady consumes this handle's events until a Stdout or Stderr line
// contains readinessToken, the process terminates, or ctx's deadline
// passes (in which case the child is killed before returning
// ReadinessTimeout).
func (h *Handle) WaitForReady(ctx context.Context, readinessToken string) error {
	for {
		select {
		case e, ok := <-h.events:
			if !ok {
				return engineerr.New(engineerr.ProcessExited, "sidecar "+h.name+": event stream closed before becoming ready")
			}
			switch e.Kind {
			case event.KindSidecarStdout, event.KindSidecarStderr:
				if strings.Contains(e.Data, readinessToken) {
					return nil
				}
			case event.KindSidecarTerminated:
				return engineerr.Newf(engineerr.ProcessExited, "sidecar %s: terminated before readiness token %q observed", h.name, readinessToken)
			}
		case <-ctx.Done():
			_ = h.Kill()
			return engineerr.Newf(engineerr.ReadinessTimeout, "sidecar %s: readiness token %q not observed before deadline", h.name, readinessToken)
		}
	}
}

// PortFree reports whether a TCP listener can bind port on localhost.
func PortFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindFreePort scans [start, start+count) for the first free port,
// returning PortConflict if none are available.
func FindFreePort(start, count int) (int, error) {
	for p := start; p < start+count; p++ {
		if PortFree(p) {
			return p, nil
		}
	}
	return 0, engineerr.Newf(engineerr.PortConflict, "no free port in [%d, %d)", start, start+count)
}
