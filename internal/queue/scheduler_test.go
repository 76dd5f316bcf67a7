package queue

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
)

func TestDrain_ThirdChunkWithheldUntilPoll(t *testing.T) {
	q := newFakeQueue(100, 200)
	jobs, _ := makeJobs(300)
	sink := &recordingSink{}

	outcomes, err := NewScheduler(q, slog.Default(), WithSink(sink)).Drain(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{100, 100, 100}, q.submitted); diff != "" {
		t.Errorf("chunk sizes (-want +got):\n%s", diff)
	}
	if q.submittedBeforePoll[0] != 2 {
		t.Errorf("submitted %d chunks before the first poll, want 2", q.submittedBeforePoll[0])
	}
	if q.maxActive > 200 {
		t.Errorf("max active jobs = %d, limit 200", q.maxActive)
	}
	if len(outcomes) != 300 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Err != nil || o.Result.Energy != float64(i) || o.Index != i {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
	if len(sink.names) != 600 {
		t.Errorf("sent %d files for deletion, want 600", len(sink.names))
	}
}

func TestDrain_PartitionsEveryJobOnce(t *testing.T) {
	tests := []struct {
		n, size, limit int
	}{
		{1, 1, 1},
		{7, 3, 3},
		{10, 4, 9},
		{250, 100, 200},
		{0, 5, 5},
	}
	for _, tt := range tests {
		q := newFakeQueue(tt.size, tt.limit)
		jobs, _ := makeJobs(tt.n)
		outcomes, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
		if err != nil {
			t.Fatal(err)
		}
		total := 0
		for _, n := range q.submitted {
			if n < 1 || n > tt.size {
				t.Errorf("%+v: chunk of %d jobs", tt, n)
			}
			total += n
		}
		if total != tt.n {
			t.Errorf("%+v: submitted %d jobs, want %d", tt, total, tt.n)
		}
		if q.maxActive > tt.limit {
			t.Errorf("%+v: max active %d over limit", tt, q.maxActive)
		}
		seen := map[int]bool{}
		for _, j := range jobs {
			if j.State != Finished {
				t.Errorf("%+v: job %s left in %v", tt, j.Name, j.State)
			}
			seen[j.Chunk] = true
		}
		if len(seen) != len(q.submitted) && tt.n > 0 {
			t.Errorf("%+v: jobs span %d chunks, submitted %d", tt, len(seen), len(q.submitted))
		}
		if len(outcomes) != tt.n {
			t.Errorf("%+v: %d outcomes", tt, len(outcomes))
		}
	}
}

func TestDrain_ReadOutputFailureIsPerJob(t *testing.T) {
	q := newFakeQueue(2, 2)
	jobs, progs := makeJobs(4)
	progs[1].readErr = program.ErrEnergyNotFound

	outcomes, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(outcomes[1].Err, common.ErrJob) || !errors.Is(outcomes[1].Err, program.ErrEnergyNotFound) {
		t.Errorf("outcome 1 err = %v", outcomes[1].Err)
	}
	for _, i := range []int{0, 2, 3} {
		if outcomes[i].Err != nil {
			t.Errorf("outcome %d err = %v", i, outcomes[i].Err)
		}
	}
}

func TestDrain_WritesInputsWithQueueDir(t *testing.T) {
	q := newFakeQueue(5, 5)
	jobs, progs := makeJobs(3)
	jobs[2].Procedure = program.Opt
	if _, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs); err != nil {
		t.Fatal(err)
	}
	if progs[0].filename != "pts/job.00000000" {
		t.Errorf("filename = %q", progs[0].filename)
	}
	if !progs[2].wrote || progs[2].written != program.Opt {
		t.Errorf("input for job 2 not written as opt: %+v", progs[2])
	}
	if q.scripts["pts/main0.pbs"] != 3 {
		t.Errorf("scripts = %v", q.scripts)
	}
}

func TestDrain_NoDelKeepsFiles(t *testing.T) {
	q := newFakeQueue(2, 4)
	q.noDel = true
	jobs, _ := makeJobs(4)
	sink := &recordingSink{}
	if _, err := NewScheduler(q, slog.Default(), WithSink(sink)).Drain(context.Background(), jobs); err != nil {
		t.Fatal(err)
	}
	if len(sink.names) != 0 {
		t.Errorf("no_del run sent %v", sink.names)
	}
}

func TestDrain_FatalErrorsAbort(t *testing.T) {
	t.Run("submission", func(t *testing.T) {
		q := newFakeQueue(1, 1)
		q.submitErr = common.SubmissionError("qsub rejected", nil)
		jobs, _ := makeJobs(2)
		_, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
		if !errors.Is(err, common.ErrSubmission) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("status", func(t *testing.T) {
		q := newFakeQueue(1, 1)
		q.statusErr = common.StatusParseError("bad table", nil)
		jobs, _ := makeJobs(2)
		_, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
		if !errors.Is(err, common.ErrStatusParse) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("input", func(t *testing.T) {
		q := newFakeQueue(1, 1)
		jobs, progs := makeJobs(1)
		progs[0].writeErr = errors.New("disk full")
		_, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
		if !errors.Is(err, common.ErrScriptWrite) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDrain_SynchronousNeverPolls(t *testing.T) {
	q := newFakeQueue(3, 3)
	q.sync = true
	jobs, _ := makeJobs(7)
	outcomes, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{})).Drain(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if q.polls != 0 {
		t.Errorf("polled %d times", q.polls)
	}
	if diff := cmp.Diff([]int{3, 3, 1}, q.submitted); diff != "" {
		t.Error(diff)
	}
	if len(outcomes) != 7 || outcomes[6].Chunk != 2 {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestDrain_FinishAfterMisses(t *testing.T) {
	q := newFakeQueue(1, 1)
	jobs, _ := makeJobs(2)
	_, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{}), WithFinishAfterMisses(2)).
		Drain(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	// each chunk drops out on one poll and needs a second miss to finish
	if q.polls != 4 {
		t.Errorf("polls = %d, want 4", q.polls)
	}
}

type recorderLog struct {
	events []string
}

func (r *recorderLog) Submitted(_ context.Context, c *Chunk) error {
	r.events = append(r.events, "submitted:"+c.JobID)
	return nil
}

func (r *recorderLog) Running(_ context.Context, c *Chunk) error {
	r.events = append(r.events, "running:"+c.JobID)
	return nil
}

func (r *recorderLog) Finished(_ context.Context, j *Job, _ Outcome) error {
	r.events = append(r.events, "finished:"+j.Name)
	return errors.New("ledger offline")
}

func TestDrain_RecorderSeesTransitions(t *testing.T) {
	q := newFakeQueue(1, 2)
	jobs, _ := makeJobs(2)
	rec := &recorderLog{}
	if _, err := NewScheduler(q, slog.Default(), WithSink(&recordingSink{}), WithRecorder(rec)).
		Drain(context.Background(), jobs); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"submitted:1.pbs",
		"submitted:2.pbs",
		"finished:job.00000000",
		"running:2.pbs",
		"finished:job.00000001",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
