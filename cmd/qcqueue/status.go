package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
)

func newStatusCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the job ids the scheduler still knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.Context(), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the status command output unparsed")
	return cmd
}

func (a *app) status(ctx context.Context, raw bool) error {
	backend, err := queue.ParseKind(a.cfg.Queue.Backend)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "backend", err)
	}
	// The program only shapes submit scripts, which status never writes.
	q, err := queue.New(backend, program.KindMolpro,
		queue.OptionsFromConfig(a.cfg.Queue, a.cfg.Programs, program.KindMolpro, ""), nil, a.logger)
	if err != nil {
		return err
	}

	if raw {
		out, err := q.StatCmd(ctx)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	ids, err := q.Status(ctx)
	if err != nil {
		return err
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job ID"})
	for _, id := range sorted {
		table.Append([]string{id})
	}
	table.Render()
	a.logger.Debug("status listed", "user", a.cfg.Queue.User, "jobs", len(sorted))
	return nil
}
