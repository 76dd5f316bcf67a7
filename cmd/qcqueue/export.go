package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/entity"
	"github.com/joseph-ayodele/qcqueue/internal/export"
	"github.com/joseph-ayodele/qcqueue/internal/repository"
)

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export RUN_ID",
		Short: "Export a run from the job ledger as XLSX, or print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd.Context(), args[0], out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "XLSX output path; prints a table when empty")
	return cmd
}

func (a *app) export(ctx context.Context, rawID, out string) error {
	v := common.NewValidator().
		Field("RUN_ID", rawID, common.UUID).
		Field("QCQ_DB_URL", a.cfg.Database.DSN, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	runID := uuid.MustParse(rawID)

	db, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer db.Close(a.logger)
	repo := repository.NewJobRepository(db, a.logger)

	if out != "" {
		data, err := export.NewService(repo, a.logger).ExportRunXLSX(ctx, runID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		a.logger.Info("export written", "run_id", rawID, "path", out)
		return nil
	}

	recs, err := repo.ListByRun(ctx, runID)
	if err != nil {
		return err
	}
	printRecords(recs)
	return nil
}

func printRecords(recs []entity.JobRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Status", "Scheduler ID", "Energy", "Error"})
	for _, r := range recs {
		row := []string{r.Name, string(r.Status), "", "", ""}
		if r.SchedulerID != nil {
			row[2] = *r.SchedulerID
		}
		if r.Energy != nil {
			row[3] = strconv.FormatFloat(*r.Energy, 'f', 10, 64)
		}
		if r.ErrorMessage != nil {
			row[4] = *r.ErrorMessage
		}
		table.Append(row)
	}
	table.Render()
}
