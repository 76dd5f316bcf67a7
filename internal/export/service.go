package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/qcqueue/constants"
	"github.com/joseph-ayodele/qcqueue/internal/entity"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
	"github.com/joseph-ayodele/qcqueue/internal/repository"
)

// SheetName is the worksheet every report is written to.
const SheetName = "Jobs"

var headers = []string{
	"Name",
	"Procedure",
	"Status",
	"Scheduler ID",
	"Chunk",
	"Energy",
	"Time (s)",
	"Error",
}

// Service renders job reports as XLSX bytes.
type Service struct {
	jobsRepo repository.JobRepository
	logger   *slog.Logger
}

func NewService(repo repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobsRepo: repo, logger: logger}
}

// row is one report line; nil pointers render as empty cells.
type row struct {
	name      string
	procedure string
	status    string
	schedID   string
	errMsg    string
	chunk     *int
	energy    *float64
	elapsed   *float64
}

// ExportRunXLSX loads a run from the ledger and renders it.
func (s *Service) ExportRunXLSX(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	if s.jobsRepo == nil {
		return nil, fmt.Errorf("export: no job ledger configured")
	}
	recs, err := s.jobsRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	s.logger.Debug("export.run", "run_id", runID.String(), "rows", len(recs))
	return s.ExportRecordsXLSX(recs)
}

// ExportRecordsXLSX renders ledger rows.
func (s *Service) ExportRecordsXLSX(recs []entity.JobRecord) ([]byte, error) {
	rows := make([]row, len(recs))
	for i, r := range recs {
		rows[i] = row{
			name:      r.Name,
			procedure: r.Procedure,
			status:    string(r.Status),
			chunk:     r.Chunk,
			energy:    r.Energy,
			elapsed:   r.RunTime,
		}
		if r.SchedulerID != nil {
			rows[i].schedID = *r.SchedulerID
		}
		if r.ErrorMessage != nil {
			rows[i].errMsg = *r.ErrorMessage
		}
	}
	return s.write(rows)
}

// ExportOutcomesXLSX renders the outcomes of a drain. Slots a drain never
// reached, because it aborted, are reported as PENDING.
func (s *Service) ExportOutcomesXLSX(proc program.Procedure, outcomes []queue.Outcome) ([]byte, error) {
	rows := make([]row, len(outcomes))
	for i, o := range outcomes {
		r := row{name: o.Name, procedure: proc.String(), schedID: o.JobID}
		switch {
		case o.Name == "":
			r.status = string(constants.JobStatusPending)
		case o.Err != nil:
			r.status = string(constants.JobStatusFailed)
			r.errMsg = o.Err.Error()
			r.chunk = &o.Chunk
		default:
			r.status = string(constants.JobStatusFinished)
			r.chunk = &o.Chunk
			r.energy = &o.Result.Energy
			r.elapsed = &o.Result.Time
		}
		rows[i] = r
	}
	return s.write(rows)
}

func (s *Service) write(rows []row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	// Rename the default sheet so the workbook has exactly one.
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, r := range rows {
		line := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, r.name)
		write(2, r.procedure)
		write(3, r.status)
		if r.schedID != "" {
			write(4, r.schedID)
		}
		if r.chunk != nil {
			write(5, *r.chunk)
		}
		if r.energy != nil {
			write(6, *r.energy)
		}
		if r.elapsed != nil {
			write(7, *r.elapsed)
		}
		if r.errMsg != "" {
			write(8, truncate(r.errMsg, 200))
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24) // name
	_ = f.SetColWidth(SheetName, "B", "C", 12)
	_ = f.SetColWidth(SheetName, "D", "E", 14)
	_ = f.SetColWidth(SheetName, "F", "F", 22) // energy
	_ = f.SetColWidth(SheetName, "G", "G", 12)
	_ = f.SetColWidth(SheetName, "H", "H", 60) // error
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
