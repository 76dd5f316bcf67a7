package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/qcqueue/constants"
	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/entity"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
)

const (
	jobTable     = "qc_job"
	insertBatch  = 200
	colID        = "id"
	colRunID     = "run_id"
	colIndex     = "job_index"
	colName      = "name"
	colProcedure = "procedure_kind"
	colStatus    = "status"
	colChunk     = "chunk"
	colSchedID   = "scheduler_id"
	colEnergy    = "energy"
	colRunTime   = "run_time"
	colError     = "error_message"
	colCreatedAt = "created_at"
	colFinished  = "finished_at"
)

var jobColumns = []string{
	colID, colRunID, colIndex, colName, colProcedure, colStatus, colChunk,
	colSchedID, colEnergy, colRunTime, colError, colCreatedAt, colFinished,
}

// JobRepository persists the lifecycle of every job in a run.
type JobRepository interface {
	CreateRun(ctx context.Context, runID uuid.UUID, jobs []*queue.Job) error
	MarkSubmitted(ctx context.Context, runID uuid.UUID, c *queue.Chunk) error
	MarkRunning(ctx context.Context, runID uuid.UUID, c *queue.Chunk) error
	FinishSuccess(ctx context.Context, runID uuid.UUID, name string, energy, runTime float64) error
	FinishFailure(ctx context.Context, runID uuid.UUID, name string, cause error) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]entity.JobRecord, error)
	// ForRun adapts the repository to the scheduler's Recorder for one run.
	ForRun(runID uuid.UUID) queue.Recorder
}

type jobRepo struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewJobRepository(db *DB, logger *slog.Logger) JobRepository {
	return &jobRepo{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (r *jobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

// CreateRun inserts one PENDING row per job in a single transaction.
func (r *jobRepo) CreateRun(ctx context.Context, runID uuid.UUID, jobs []*queue.Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewAppError(common.CodeDatabase, "begin create run", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := r.now().UnixMilli()
	for start := 0; start < len(jobs); start += insertBatch {
		end := min(start+insertBatch, len(jobs))
		ins := r.builder().Insert(jobTable).
			Columns(colID, colRunID, colIndex, colName, colProcedure, colStatus, colCreatedAt)
		for i, j := range jobs[start:end] {
			ins.Values(uuid.New().String(), runID.String(), start+i, j.Name, j.Procedure.String(),
				string(constants.JobStatusPending), created)
		}
		query, args := ins.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.Error("failed to insert jobs", "run_id", runID, "offset", start, "error", err)
			return common.NewAppError(common.CodeDatabase, "insert jobs", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.NewAppError(common.CodeDatabase, "commit create run", err)
	}
	r.logger.Debug("run recorded", "run_id", runID, "jobs", len(jobs))
	return nil
}

func chunkNames(c *queue.Chunk) []any {
	names := make([]any, len(c.Jobs))
	for i, j := range c.Jobs {
		names[i] = j.Name
	}
	return names
}

func (r *jobRepo) MarkSubmitted(ctx context.Context, runID uuid.UUID, c *queue.Chunk) error {
	upd := r.builder().Update(jobTable).
		Set(colStatus, string(constants.JobStatusSubmitted)).
		Set(colChunk, c.Index).
		Set(colSchedID, c.JobID).
		Where(entsql.And(
			entsql.EQ(colRunID, runID.String()),
			entsql.In(colName, chunkNames(c)...),
		))
	if err := r.exec(ctx, upd); err != nil {
		r.logger.Error("failed to mark chunk submitted", "run_id", runID, "chunk", c.Index, "error", err)
		return err
	}
	return nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, runID uuid.UUID, c *queue.Chunk) error {
	upd := r.builder().Update(jobTable).
		Set(colStatus, string(constants.JobStatusRunning)).
		Where(entsql.And(
			entsql.EQ(colRunID, runID.String()),
			entsql.In(colName, chunkNames(c)...),
		))
	if err := r.exec(ctx, upd); err != nil {
		r.logger.Error("failed to mark chunk running", "run_id", runID, "chunk", c.Index, "error", err)
		return err
	}
	return nil
}

func (r *jobRepo) FinishSuccess(ctx context.Context, runID uuid.UUID, name string, energy, runTime float64) error {
	upd := r.builder().Update(jobTable).
		Set(colStatus, string(constants.JobStatusFinished)).
		Set(colEnergy, energy).
		Set(colRunTime, runTime).
		Set(colFinished, r.now().UnixMilli()).
		Where(entsql.And(
			entsql.EQ(colRunID, runID.String()),
			entsql.EQ(colName, name),
		))
	if err := r.exec(ctx, upd); err != nil {
		r.logger.Error("failed to finish job", "run_id", runID, "job", name, "error", err)
		return err
	}
	return nil
}

func (r *jobRepo) FinishFailure(ctx context.Context, runID uuid.UUID, name string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	upd := r.builder().Update(jobTable).
		Set(colStatus, string(constants.JobStatusFailed)).
		Set(colError, msg).
		Set(colFinished, r.now().UnixMilli()).
		Where(entsql.And(
			entsql.EQ(colRunID, runID.String()),
			entsql.EQ(colName, name),
		))
	if err := r.exec(ctx, upd); err != nil {
		r.logger.Error("failed to record job failure", "run_id", runID, "job", name, "error", err)
		return err
	}
	return nil
}

func (r *jobRepo) exec(ctx context.Context, q entsql.Querier) error {
	query, args := q.Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return common.NewAppError(common.CodeDatabase, "update job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError(common.CodeDatabase, "update job", fmt.Errorf("no rows matched"))
	}
	return nil
}

// ListByRun returns the run's rows in job order.
func (r *jobRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]entity.JobRecord, error) {
	query, args := r.builder().Select(jobColumns...).
		From(entsql.Table(jobTable)).
		Where(entsql.EQ(colRunID, runID.String())).
		OrderBy(colIndex).
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list jobs", "run_id", runID, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "list jobs", err)
	}
	defer rows.Close()

	var out []entity.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, common.NewAppError(common.CodeDatabase, "scan job", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "list jobs", err)
	}
	return out, nil
}

func scanJob(rows *sql.Rows) (entity.JobRecord, error) {
	var (
		rec             entity.JobRecord
		id, run, status string
		chunk, finished sql.NullInt64
		schedID, errMsg sql.NullString
		energy, runTime sql.NullFloat64
		created         int64
	)
	if err := rows.Scan(&id, &run, &rec.Index, &rec.Name, &rec.Procedure, &status, &chunk,
		&schedID, &energy, &runTime, &errMsg, &created, &finished); err != nil {
		return rec, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return rec, err
	}
	if rec.RunID, err = uuid.Parse(run); err != nil {
		return rec, err
	}
	rec.Status = constants.JobStatus(status)
	rec.CreatedAt = time.UnixMilli(created)
	if chunk.Valid {
		c := int(chunk.Int64)
		rec.Chunk = &c
	}
	if schedID.Valid {
		rec.SchedulerID = &schedID.String
	}
	if energy.Valid {
		rec.Energy = &energy.Float64
	}
	if runTime.Valid {
		rec.RunTime = &runTime.Float64
	}
	if errMsg.Valid {
		rec.ErrorMessage = &errMsg.String
	}
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		rec.FinishedAt = &t
	}
	return rec, nil
}

func (r *jobRepo) ForRun(runID uuid.UUID) queue.Recorder {
	return &runRecorder{repo: r, runID: runID}
}

type runRecorder struct {
	repo  *jobRepo
	runID uuid.UUID
}

func (rr *runRecorder) Submitted(ctx context.Context, c *queue.Chunk) error {
	return rr.repo.MarkSubmitted(ctx, rr.runID, c)
}

func (rr *runRecorder) Running(ctx context.Context, c *queue.Chunk) error {
	return rr.repo.MarkRunning(ctx, rr.runID, c)
}

func (rr *runRecorder) Finished(ctx context.Context, j *queue.Job, o queue.Outcome) error {
	if o.Err != nil {
		return rr.repo.FinishFailure(ctx, rr.runID, j.Name, o.Err)
	}
	return rr.repo.FinishSuccess(ctx, rr.runID, j.Name, o.Result.Energy, o.Result.Time)
}
