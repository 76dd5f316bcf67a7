package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/qcqueue/internal/common"
)

func newDBCheckCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbcheck",
		Short: "Check that the job ledger is reachable and migrated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.ValidateAndReturnError(
				common.NewValidator().Field("QCQ_DB_URL", a.cfg.Database.DSN, common.Required),
			); err != nil {
				return err
			}
			db, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close(a.logger)

			n, err := db.HealthCheck(cmd.Context(), timeout, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("DB health OK", "dialect", db.Dialect, "jobs", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "ping timeout")
	return cmd
}
