package queue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/qcqueue/internal/async"
	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
)

// State is a job's position in its lifecycle.
type State int

const (
	Pending State = iota
	Submitted
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Submitted:
		return "SUBMITTED"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

// Job is one independent calculation. The scheduler owns it until it is
// finished.
type Job struct {
	// Name is the unique input basename inside the queue directory.
	Name      string
	Program   program.Program
	Procedure program.Procedure

	Index int
	State State
	JobID string
	Chunk int
}

// Chunk is a batch of jobs submitted under one script.
type Chunk struct {
	Index  int
	Jobs   []*Job
	Script string
	JobID  string

	misses int
}

// Outcome is the result of one job, in the order jobs were given to Drain.
type Outcome struct {
	Name   string
	Index  int
	JobID  string
	Chunk  int
	Result program.Result
	// Err is a JobError when the program run failed.
	Err error
}

// Recorder observes lifecycle transitions, e.g. to persist them. Errors are
// logged and do not stop the drain.
type Recorder interface {
	Submitted(ctx context.Context, c *Chunk) error
	Running(ctx context.Context, c *Chunk) error
	Finished(ctx context.Context, j *Job, o Outcome) error
}

// Sink receives scratch files to delete.
type Sink interface {
	Send(name string)
	Shutdown(ctx context.Context)
}

// Scheduler partitions jobs into chunks, keeps at most JobLimit of them
// outstanding and collects results as chunks leave the queue.
//
// Finished chunks are detected by their job id disappearing from the status
// snapshot. If the scheduler hands a finished job's id to a new job between
// two polls, the old chunk looks like it is still running; this id-reuse race
// is accepted, not detected.
type Scheduler struct {
	q           Queue
	logger      *slog.Logger
	recorder    Recorder
	sink        Sink
	finishAfter int
}

type SchedulerOption func(*Scheduler)

// WithRecorder attaches a lifecycle observer.
func WithRecorder(r Recorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// WithSink replaces the cleanup sink Drain would otherwise create. The
// caller keeps ownership and must shut it down.
func WithSink(sink Sink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithFinishAfterMisses sets how many consecutive status snapshots must miss a
// chunk's id before it counts as finished.
func WithFinishAfterMisses(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.finishAfter = n
		}
	}
}

func NewScheduler(q Queue, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{q: q, logger: logger, finishAfter: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Drain runs every job to completion. Per-job failures are reported in the
// outcomes; submission, script and status failures abort the drain.
func (s *Scheduler) Drain(ctx context.Context, jobs []*Job) ([]Outcome, error) {
	logger := common.LoggerFromContext(ctx, s.logger)

	sink := s.sink
	if sink == nil && !s.q.NoDel() {
		d := async.NewDump(logger)
		defer d.Shutdown(context.Background())
		sink = d
	}

	limit, size := s.q.JobLimit(), s.q.ChunkSize()
	outcomes := make([]Outcome, len(jobs))
	pending := make([]*Job, len(jobs))
	for i, j := range jobs {
		j.Index = i
		j.State = Pending
		pending[i] = j
	}

	var (
		active     []*Chunk
		activeJobs int
		nextChunk  int
		finished   int
	)
	logger.Info("drain started", "jobs", len(jobs), "chunk_size", size, "job_limit", limit)

	for len(pending) > 0 || len(active) > 0 {
		for activeJobs < limit && len(pending) > 0 {
			n := min(size, len(pending), limit-activeJobs)
			chunk, err := s.submitChunk(ctx, logger, nextChunk, pending[:n])
			if err != nil {
				return outcomes, err
			}
			pending = pending[n:]
			nextChunk++
			if s.q.Synchronous() {
				finished += s.collect(ctx, logger, chunk, sink, outcomes)
				continue
			}
			active = append(active, chunk)
			activeJobs += n
		}
		if len(active) == 0 {
			continue
		}

		if err := sleepCtx(ctx, s.q.SleepInt()); err != nil {
			return outcomes, err
		}
		ids, err := s.q.Status(ctx)
		if err != nil {
			return outcomes, err
		}

		still := active[:0]
		for _, c := range active {
			if _, ok := ids[c.JobID]; ok {
				c.misses = 0
				s.markRunning(ctx, logger, c)
				still = append(still, c)
				continue
			}
			c.misses++
			if c.misses < s.finishAfter {
				still = append(still, c)
				continue
			}
			finished += s.collect(ctx, logger, c, sink, outcomes)
			activeJobs -= len(c.Jobs)
		}
		active = still
		logger.Debug("poll complete",
			"active_chunks", len(active),
			"active_jobs", activeJobs,
			"pending", len(pending),
			"finished", finished,
		)
	}

	logger.Info("drain complete", "jobs", len(jobs), "chunks", nextChunk)
	return outcomes, nil
}

// submitChunk writes the inputs and script for jobs and submits them.
func (s *Scheduler) submitChunk(ctx context.Context, logger *slog.Logger, idx int, jobs []*Job) (*Chunk, error) {
	dir := s.q.Dir()
	infiles := make([]string, len(jobs))
	for i, j := range jobs {
		j.Program.SetFilename(filepath.Join(dir, j.Name))
		if err := j.Program.WriteInput(j.Procedure); err != nil {
			return nil, common.ScriptWriteError(fmt.Sprintf("failed to write input for %s", j.Name), err)
		}
		infiles[i] = j.Program.Filename()
	}

	script := filepath.Join(dir, fmt.Sprintf("main%d.%s", idx, s.q.ScriptExt()))
	if err := s.q.WriteSubmitScript(infiles, script); err != nil {
		return nil, err
	}
	id, err := s.q.Submit(ctx, script)
	if err != nil {
		return nil, err
	}

	c := &Chunk{Index: idx, Jobs: jobs, Script: script, JobID: id}
	for _, j := range jobs {
		j.State = Submitted
		j.JobID = id
		j.Chunk = idx
	}
	logger.Info("chunk submitted", "chunk", idx, "job_id", id, "jobs", len(jobs), "script", script)
	if s.recorder != nil {
		if err := s.recorder.Submitted(ctx, c); err != nil {
			logger.Warn("failed to record submission", "chunk", idx, "error", err)
		}
	}
	return c, nil
}

func (s *Scheduler) markRunning(ctx context.Context, logger *slog.Logger, c *Chunk) {
	if c.Jobs[0].State == Running {
		return
	}
	for _, j := range c.Jobs {
		j.State = Running
	}
	if s.recorder != nil {
		if err := s.recorder.Running(ctx, c); err != nil {
			logger.Warn("failed to record running chunk", "chunk", c.Index, "error", err)
		}
	}
}

// collect reads every job's output and queues its scratch files for deletion.
// It returns the number of jobs finished.
func (s *Scheduler) collect(ctx context.Context, logger *slog.Logger, c *Chunk, sink Sink, outcomes []Outcome) int {
	failed := 0
	for _, j := range c.Jobs {
		o := Outcome{Name: j.Name, Index: j.Index, JobID: j.JobID, Chunk: c.Index}
		res, err := j.Program.ReadOutput()
		if err != nil {
			o.Err = common.JobError(fmt.Sprintf("job %s", j.Name), err)
			failed++
			logger.Warn("job failed", "job", j.Name, "chunk", c.Index, "error", err)
		} else {
			o.Result = res
		}
		j.State = Finished
		outcomes[j.Index] = o

		if s.recorder != nil {
			if err := s.recorder.Finished(ctx, j, o); err != nil {
				logger.Warn("failed to record finished job", "job", j.Name, "error", err)
			}
		}
		if sink != nil && !s.q.NoDel() {
			for _, f := range j.Program.AssociatedFiles() {
				sink.Send(f)
			}
		}
	}
	logger.Info("chunk finished", "chunk", c.Index, "job_id", c.JobID, "jobs", len(c.Jobs), "failed", failed)
	return len(c.Jobs)
}
