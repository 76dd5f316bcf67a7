package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: common.LoadConfig()}

	root := &cobra.Command{
		Use:           "qcqueue",
		Short:         "Dispatch quantum chemistry jobs to PBS or the local shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(a.cfg.Log.Level)
			if err != nil {
				return err
			}
			a.logger = logger
			slog.SetDefault(logger)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger.Debug("configuration loaded",
				"backend", a.cfg.Queue.Backend,
				"chunk_size", a.cfg.Queue.ChunkSize,
				"job_limit", a.cfg.Queue.JobLimit,
				"dir", a.cfg.Queue.Dir,
			)
			return nil
		},
	}

	// Flags bind straight into the env-loaded config, so an unset flag keeps the env value.
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.Log.Level, "log-level", a.cfg.Log.Level, "debug, info, warn or error")
	pf.StringVar(&a.cfg.Queue.Backend, "backend", a.cfg.Queue.Backend, "queue backend: pbs or local")
	pf.StringVar(&a.cfg.Queue.Dir, "dir", a.cfg.Queue.Dir, "directory for inputs, outputs and scripts")
	pf.StringVar(&a.cfg.Queue.User, "user", a.cfg.Queue.User, "user passed to qstat -u")
	pf.StringVar(&a.cfg.Database.DSN, "db", a.cfg.Database.DSN, "job ledger DSN (postgres:// URL or sqlite path)")

	root.AddCommand(newRunCmd(a), newStatusCmd(a), newExportCmd(a), newDBCheckCmd(a))
	return root
}

func (a *app) openLedger(ctx context.Context) (*repository.DB, error) {
	return repository.Open(ctx, repository.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		DialTimeout:     a.cfg.Database.DialTimeout,
	}, a.logger)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "invalid log level "+level, common.ErrInvalidInput)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
