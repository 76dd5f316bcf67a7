package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/runner"
)

// SubmitRetries is how many times a rejected submission is retried.
const SubmitRetries = 5

// NoJobID is returned when the submit command prints nothing.
const NoJobID = "no jobid"

// submitWithRetry runs cmd until it exits zero, retrying non-zero exits up to
// SubmitRetries times with sleep between attempts. The calling goroutine is
// blocked for the whole backoff.
func submitWithRetry(ctx context.Context, r runner.Runner, cmd runner.Cmd, sleep time.Duration, logger *slog.Logger) (string, error) {
	retries := SubmitRetries
	for {
		out, err := r.Run(ctx, cmd)
		if err != nil {
			return "", common.SubmissionError(fmt.Sprintf("failed to run `%s`", cmd), err)
		}
		if out.Success() {
			return jobIDFromStdout(out.Stdout), nil
		}
		if retries == 0 {
			return "", common.SubmissionError(fmt.Sprintf(
				"`%s` failed with exit code %d after %d retries\nstdout: %s\nstderr: %s",
				cmd, out.ExitCode, SubmitRetries, out.Stdout, out.Stderr), nil)
		}
		logger.Warn("submission failed, retrying",
			"cmd", cmd.String(),
			"exit_code", out.ExitCode,
			"retries_left", retries,
			"stdout", runner.Truncate(string(out.Stdout), 4<<10),
			"stderr", runner.Truncate(string(out.Stderr), 4<<10),
		)
		retries--
		if err := sleepCtx(ctx, sleep); err != nil {
			return "", common.SubmissionError("interrupted while waiting to retry", err)
		}
	}
}

// jobIDFromStdout takes the last whitespace-delimited token that starts with
// a digit, which is the last token for schedulers printing an acceptance line
// ending in the id, and also covers "your job 12345 submitted". Without such
// a token the last token is used.
func jobIDFromStdout(stdout []byte) string {
	fields := strings.Fields(strings.TrimSpace(string(stdout)))
	if len(fields) == 0 {
		return NoJobID
	}
	for i := len(fields) - 1; i >= 0; i-- {
		if c := fields[i][0]; c >= '0' && c <= '9' {
			return fields[i]
		}
	}
	return fields[len(fields)-1]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
