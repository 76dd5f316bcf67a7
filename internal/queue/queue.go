// Package queue drives batches of quantum chemistry jobs through a batch
// scheduler (PBS) or the local shell: chunking, submission with retry,
// status polling and handing finished scratch files to the cleanup sink.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/runner"
)

// Queue is the capability set of one scheduler backend.
type Queue interface {
	// Submit hands script to the scheduler and returns its job id.
	Submit(ctx context.Context, script string) (string, error)
	// WriteSubmitScript renders a script running every input in infiles.
	// Entries are job filenames without extension.
	WriteSubmitScript(infiles []string, filename string) error
	// Status returns the ids of the jobs the scheduler still knows about.
	Status(ctx context.Context) (map[string]struct{}, error)
	// StatCmd returns the raw output of the status command.
	StatCmd(ctx context.Context) (string, error)

	Dir() string
	ChunkSize() int
	JobLimit() int
	SleepInt() time.Duration
	NoDel() bool
	ScriptExt() string
	// Synchronous backends have finished a chunk by the time Submit returns.
	Synchronous() bool
}

// Kind tags a backend.
type Kind string

const (
	KindPbs   Kind = "pbs"
	KindLocal Kind = "local"
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindPbs, KindLocal:
		return k, nil
	}
	return "", fmt.Errorf("unsupported queue backend %q", s)
}

// Options is the immutable configuration shared by all backends.
type Options struct {
	ChunkSize int
	JobLimit  int
	SleepInt  time.Duration
	Dir       string
	NoDel     bool
	// Template overrides the built-in script header when non-empty.
	Template string
	// User is passed to the status command.
	User string
	// Binary is the program executable named in the scripts.
	Binary string
	// LibDir is exported as LD_LIBRARY_PATH by local scripts when set.
	LibDir string
}

// OptionsFromConfig maps the loaded configuration for the given program.
func OptionsFromConfig(cfg common.QueueConfig, progs common.ProgramsConfig, kind program.Kind, template string) Options {
	o := Options{
		ChunkSize: cfg.ChunkSize,
		JobLimit:  cfg.JobLimit,
		SleepInt:  cfg.SleepInt,
		Dir:       cfg.Dir,
		NoDel:     cfg.NoDel,
		Template:  template,
		User:      cfg.User,
	}
	switch kind {
	case program.KindMolpro:
		o.Binary = progs.Molpro
	case program.KindMopac:
		o.Binary = progs.Mopac
		o.LibDir = progs.MopacLibDir
	}
	return o
}

// New builds the backend of the given kind for prog.
func New(kind Kind, prog program.Kind, opts Options, r runner.Runner, logger *slog.Logger) (Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = runner.NewExec(logger)
	}
	if opts.ChunkSize < 1 {
		return nil, common.NewAppError(common.CodeConfig, "chunk size must be at least 1", common.ErrInvalidInput)
	}
	if opts.JobLimit < opts.ChunkSize {
		return nil, common.NewAppError(common.CodeConfig,
			fmt.Sprintf("job limit %d below chunk size %d", opts.JobLimit, opts.ChunkSize), common.ErrInvalidInput)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	switch kind {
	case KindPbs:
		return NewPbs(prog, opts, r, logger)
	case KindLocal:
		return NewLocal(prog, opts, r, logger)
	}
	return nil, fmt.Errorf("unsupported queue backend %q", kind)
}

// base carries the accessors every backend shares.
type base struct {
	opts   Options
	runner runner.Runner
	logger *slog.Logger
}

func (b *base) Dir() string             { return b.opts.Dir }
func (b *base) ChunkSize() int          { return b.opts.ChunkSize }
func (b *base) JobLimit() int           { return b.opts.JobLimit }
func (b *base) SleepInt() time.Duration { return b.opts.SleepInt }
func (b *base) NoDel() bool             { return b.opts.NoDel }
