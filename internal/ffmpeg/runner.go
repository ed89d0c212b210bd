// Package ffmpeg drives the external media binary: one subprocess per
// invocation, wall-clock timeouts with forced kill, and progress extraction
// from the binary's diagnostic stream.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Spec describes one subprocess invocation. It is owned by the Run call and
// never reused.
type Spec struct {
	BinaryPath string
	Args       []string
	Timeout    time.Duration
}

// Outcome is the result of one subprocess invocation. ExitCode is only
// meaningful when KilledByTimeout is false; interpreting zero vs non-zero is
// the caller's job.
type Outcome struct {
	ExitCode        int
	KilledByTimeout bool
	Output          string
}

// LaunchError reports that the binary could not be started at all, as opposed
// to running and exiting non-zero.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Run spawns the binary described by spec and waits for it to finish or for
// the timeout to expire, whichever comes first. On expiry the process is
// killed and the outcome carries KilledByTimeout with no exit code.
//
// Every chunk read from the subprocess's stderr is forwarded to onChunk (when
// non-nil) before being appended to Outcome.Output; this is the only channel
// through which live progress is observable. Run never retries.
func Run(ctx context.Context, spec Spec, onChunk func(string)) (Outcome, error) {
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.BinaryPath, spec.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, &LaunchError{Binary: spec.BinaryPath, Err: err}
	}

	var captured strings.Builder
	reader := bufio.NewReader(stderr)
	buf := make([]byte, 4096)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			if onChunk != nil {
				onChunk(chunk)
			}
			captured.WriteString(chunk)
		}
		if readErr != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	outcome := Outcome{ExitCode: -1, Output: captured.String()}

	// A process that exited cleanly on its own keeps its real status even
	// when the deadline fired while stderr was still being drained; the
	// timeout only counts when the process did not get to finish.
	if state := cmd.ProcessState; state != nil && state.Success() {
		outcome.ExitCode = 0
		return outcome, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.KilledByTimeout = true
		return outcome, nil
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return outcome, fmt.Errorf("wait for %s: %w", spec.BinaryPath, waitErr)
	}

	outcome.ExitCode = 0
	return outcome, nil
}
