package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/qcqueue/constants"
	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: ":memory:", DialTimeout: time.Second}, discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close(discard()) })
	return db
}

func testJobs(names ...string) []*queue.Job {
	jobs := make([]*queue.Job, len(names))
	for i, n := range names {
		jobs[i] = &queue.Job{Name: n, Procedure: program.SinglePt}
	}
	return jobs
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{}, discard())
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	for _, stmt := range schema {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("re-running schema: %v", err)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), discard())
	runID := uuid.New()
	jobs := testJobs("job.0000000", "job.0000001", "job.0000002")

	if err := repo.CreateRun(ctx, runID, jobs); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	rec := repo.ForRun(runID)
	chunk := &queue.Chunk{Index: 0, Jobs: jobs[:2], JobID: "4242"}
	if err := rec.Submitted(ctx, chunk); err != nil {
		t.Fatalf("Submitted: %v", err)
	}
	if err := rec.Running(ctx, chunk); err != nil {
		t.Fatalf("Running: %v", err)
	}
	if err := rec.Finished(ctx, jobs[0], queue.Outcome{Result: program.Result{Energy: -76.4, Time: 12.5}}); err != nil {
		t.Fatalf("Finished ok: %v", err)
	}
	if err := rec.Finished(ctx, jobs[1], queue.Outcome{Err: program.ErrEnergyNotFound}); err != nil {
		t.Fatalf("Finished failed: %v", err)
	}

	rows, err := repo.ListByRun(ctx, runID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	var gotNames []string
	var gotStatus []constants.JobStatus
	for _, r := range rows {
		gotNames = append(gotNames, r.Name)
		gotStatus = append(gotStatus, r.Status)
	}
	if diff := cmp.Diff([]string{"job.0000000", "job.0000001", "job.0000002"}, gotNames); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	wantStatus := []constants.JobStatus{constants.JobStatusFinished, constants.JobStatusFailed, constants.JobStatusPending}
	if diff := cmp.Diff(wantStatus, gotStatus); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	ok := rows[0]
	if ok.Energy == nil || *ok.Energy != -76.4 {
		t.Errorf("energy = %v, want -76.4", ok.Energy)
	}
	if ok.RunTime == nil || *ok.RunTime != 12.5 {
		t.Errorf("run time = %v, want 12.5", ok.RunTime)
	}
	if ok.SchedulerID == nil || *ok.SchedulerID != "4242" {
		t.Errorf("scheduler id = %v, want 4242", ok.SchedulerID)
	}
	if ok.Chunk == nil || *ok.Chunk != 0 {
		t.Errorf("chunk = %v, want 0", ok.Chunk)
	}
	if ok.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if ok.RunID != runID {
		t.Errorf("run id = %v, want %v", ok.RunID, runID)
	}

	failed := rows[1]
	if failed.ErrorMessage == nil || *failed.ErrorMessage != program.ErrEnergyNotFound.Error() {
		t.Errorf("error message = %v", failed.ErrorMessage)
	}
	if failed.Energy != nil {
		t.Errorf("failed job has energy %v", *failed.Energy)
	}

	pending := rows[2]
	if pending.Chunk != nil || pending.SchedulerID != nil || pending.FinishedAt != nil {
		t.Errorf("pending job has lifecycle fields set: %+v", pending)
	}
}

func TestRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), discard())
	a, b := uuid.New(), uuid.New()
	if err := repo.CreateRun(ctx, a, testJobs("x", "y")); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateRun(ctx, b, testJobs("x")); err != nil {
		t.Fatal(err)
	}
	if err := repo.FinishSuccess(ctx, b, "x", -1, 1); err != nil {
		t.Fatal(err)
	}

	rowsA, err := repo.ListByRun(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rowsA {
		if r.Status != constants.JobStatusPending {
			t.Errorf("run a job %s = %s, want PENDING", r.Name, r.Status)
		}
	}
	rowsB, err := repo.ListByRun(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(rowsB) != 1 || rowsB[0].Status != constants.JobStatusFinished {
		t.Errorf("run b rows = %+v", rowsB)
	}
}

func TestCreateRunBatchesLargeRuns(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t), discard())
	runID := uuid.New()
	names := make([]string, insertBatch*2+7)
	for i := range names {
		names[i] = uuid.NewString()
	}
	if err := repo.CreateRun(ctx, runID, testJobs(names...)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	rows, err := repo.ListByRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(names) {
		t.Fatalf("got %d rows, want %d", len(rows), len(names))
	}
	for i, r := range rows {
		if r.Index != i || r.Name != names[i] {
			t.Fatalf("row %d = (%d, %s), want (%d, %s)", i, r.Index, r.Name, i, names[i])
		}
	}
}

func TestUpdateUnknownJob(t *testing.T) {
	repo := NewJobRepository(openTestDB(t), discard())
	err := repo.FinishFailure(context.Background(), uuid.New(), "missing", errors.New("boom"))
	if !errors.Is(err, common.ErrDatabase) {
		t.Fatalf("err = %v, want ErrDatabase", err)
	}
}

func TestHealthCheckCountsRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	n, err := db.HealthCheck(ctx, time.Second, discard())
	if err != nil || n != 0 {
		t.Fatalf("HealthCheck = %d, %v; want 0, nil", n, err)
	}
	if err := NewJobRepository(db, discard()).CreateRun(ctx, uuid.New(), testJobs("a", "b")); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.HealthCheck(ctx, 0, discard()); n != 2 {
		t.Errorf("HealthCheck = %d, want 2", n)
	}
}
