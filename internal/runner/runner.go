package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one external command invocation.
type Cmd struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Output is what a finished command left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports a zero exit status.
func (o Output) Success() bool { return o.ExitCode == 0 }

// Runner lets us stub external commands in tests.
// Run returns a non-nil error only when the command could not be run at all;
// a non-zero exit is reported through Output.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Output, error)
}

type execRunner struct {
	logger *slog.Logger
}

// NewExec returns a Runner backed by os/exec.
func NewExec(logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, c Cmd) (Output, error) {
	start := time.Now()
	r.logger.Debug("running command", "cmd_line", c.String(), "dir", c.Dir)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)
	res := Output{Stdout: out.Bytes(), Stderr: errb.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		r.logger.Warn("exec exited non-zero",
			"cmd", c.Name,
			"exit_code", res.ExitCode,
			"duration_ms", dur.Milliseconds(),
			"stderr", Truncate(errb.String(), 8<<10), // cap at 8KB
		)
		return res, nil
	case err != nil:
		r.logger.Error("exec failed",
			"cmd", c.Name,
			"args", strings.Join(c.Args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
		)
		return res, err
	}

	r.logger.Debug("exec ok",
		"cmd", c.Name,
		"args", strings.Join(c.Args, " "),
		"duration_ms", dur.Milliseconds(),
		"stdout_bytes", out.Len(),
		"stderr_bytes", errb.Len(),
	)
	return res, nil
}

// Truncate caps s at max bytes for log output.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
