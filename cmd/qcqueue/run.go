package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/export"
	"github.com/joseph-ayodele/qcqueue/internal/manifest"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
	"github.com/joseph-ayodele/qcqueue/internal/repository"
	"github.com/joseph-ayodele/qcqueue/internal/server"
)

type runFlags struct {
	inputTemplate string
	report        string
}

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run MANIFEST",
		Short: "Drain every job in a batch manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0], rf)
		},
	}
	f := cmd.Flags()
	q := &a.cfg.Queue
	f.IntVar(&q.ChunkSize, "chunk-size", q.ChunkSize, "jobs per submission script")
	f.IntVar(&q.JobLimit, "job-limit", q.JobLimit, "maximum jobs outstanding at once")
	f.DurationVar(&q.SleepInt, "sleep", q.SleepInt, "interval between status polls")
	f.BoolVar(&q.NoDel, "no-del", q.NoDel, "keep scratch files of finished jobs")
	f.StringVar(&q.TemplatePath, "template", q.TemplatePath, "submit script header overriding the built-in one")
	f.IntVar(&q.FinishAfterMisses, "finish-after", q.FinishAfterMisses, "status polls a chunk must be missing from before it is collected")
	f.StringVar(&a.cfg.Server.HealthAddr, "health-addr", a.cfg.Server.HealthAddr, "serve gRPC health on this address while draining")
	f.StringVar(&rf.inputTemplate, "input-template", "", "program input template used when the manifest has none")
	f.StringVar(&rf.report, "report", "", "write an XLSX report of the outcomes to this path")
	return cmd
}

func (a *app) run(ctx context.Context, manifestPath string, rf runFlags) (retErr error) {
	logger := a.logger
	start := time.Now()

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	var fallback program.Template
	if rf.inputTemplate != "" {
		if fallback, err = program.LoadTemplate(rf.inputTemplate); err != nil {
			return common.NewAppError(common.CodeConfig, "input template", err)
		}
	}
	jobs, err := m.BuildJobs(fallback)
	if err != nil {
		return err
	}
	progKind, err := program.ParseKind(m.Program)
	if err != nil {
		return err
	}
	proc, err := program.ParseProcedure(m.Procedure)
	if err != nil {
		return err
	}

	header := ""
	if a.cfg.Queue.TemplatePath != "" {
		b, err := os.ReadFile(a.cfg.Queue.TemplatePath)
		if err != nil {
			return common.NewAppError(common.CodeConfig, "submit script template", err)
		}
		header = string(b)
	}
	backend, err := queue.ParseKind(a.cfg.Queue.Backend)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "backend", err)
	}
	q, err := queue.New(backend, progKind, queue.OptionsFromConfig(a.cfg.Queue, a.cfg.Programs, progKind, header), nil, logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(q.Dir(), 0o755); err != nil {
		return common.NewAppError(common.CodeConfig, "create queue dir", err)
	}

	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID.String())
	ctx = common.WithLogger(ctx, logger)
	opts := []queue.SchedulerOption{queue.WithFinishAfterMisses(a.cfg.Queue.FinishAfterMisses)}

	var repo repository.JobRepository
	if a.cfg.Database.DSN != "" {
		db, err := a.openLedger(ctx)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		repo = repository.NewJobRepository(db, logger)
		if err := repo.CreateRun(ctx, runID, jobs); err != nil {
			return err
		}
		opts = append(opts, queue.WithRecorder(repo.ForRun(runID)))
	}

	if a.cfg.Server.HealthAddr != "" {
		h, err := server.StartHealth(a.cfg.Server.HealthAddr, logger)
		if err != nil {
			return common.NewAppError(common.CodeConfig, "health server", err)
		}
		defer h.Stop()
		h.DrainStarted()
		defer func() { h.DrainFinished(retErr) }()
	}

	logger.Info("run started",
		"run_id", runID.String(),
		"manifest", manifestPath,
		"program", progKind,
		"procedure", proc.String(),
		"backend", backend,
		"jobs", len(jobs),
	)
	outcomes, err := queue.NewScheduler(q, logger, opts...).Drain(ctx, jobs)

	if rf.report != "" {
		if rerr := writeReport(export.NewService(repo, logger), proc, outcomes, rf.report); rerr != nil {
			logger.Error("failed to write report", "path", rf.report, "error", rerr)
		}
	}
	if err != nil {
		if common.IsFatal(err) {
			logger.Error("drain aborted", "run_id", runID.String(), "error", err)
		}
		return err
	}

	printSummary(runID, outcomes)
	logger.Info("run complete", "run_id", runID.String(), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func writeReport(svc *export.Service, proc program.Procedure, outcomes []queue.Outcome, path string) error {
	data, err := svc.ExportOutcomesXLSX(proc, outcomes)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(runID uuid.UUID, outcomes []queue.Outcome) {
	failed := 0
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Energy", "Time (s)", "Error"})
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			table.Append([]string{o.Name, "", "", o.Err.Error()})
			continue
		}
		table.Append([]string{
			o.Name,
			strconv.FormatFloat(o.Result.Energy, 'f', 10, 64),
			strconv.FormatFloat(o.Result.Time, 'f', 1, 64),
			"",
		})
	}
	table.Render()
	fmt.Printf("run %s: %d jobs, %d failed\n", runID, len(outcomes), failed)
}
