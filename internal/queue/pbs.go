package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/runner"
)

// pbsFlavor holds the per-program quirks of PBS submission.
type pbsFlavor struct {
	header string
	// line renders the invocation for one input (filename without extension).
	line   func(bin, infile string) string
	footer string
	// submitFromDir runs qsub inside the script's directory with only the
	// script's base name; Molpro's submit wrapper refuses other paths.
	submitFromDir bool
}

var pbsFlavors = map[program.Kind]pbsFlavor{
	program.KindMolpro: {
		header: `#!/bin/sh
#PBS -N {{.basename}}
#PBS -S /bin/bash
#PBS -j oe
#PBS -o {{.basename}}.out
#PBS -W umask=022
#PBS -l walltime=1000:00:00
#PBS -l ncpus=1
#PBS -l mem=8gb
#PBS -q workq

module load openpbs molpro

export WORKDIR=$PBS_O_WORKDIR
export TMPDIR=/tmp/$USER/$PBS_JOBID
cd $WORKDIR
mkdir -p $TMPDIR
`,
		line: func(bin, infile string) string {
			return fmt.Sprintf("%s -t $NCPUS --no-xml-output %s.inp", bin, filepath.Base(infile))
		},
		footer:        "rm -rf $TMPDIR",
		submitFromDir: true,
	},
	program.KindMopac: {
		header: `#!/bin/sh
#PBS -N {{.basename}}
#PBS -S /bin/bash
#PBS -j oe
#PBS -o {{.filename}}.out
#PBS -W umask=022
#PBS -l walltime=1000:00:00
#PBS -l ncpus=1
#PBS -l mem=1gb
#PBS -q workq

module load openpbs

export WORKDIR=$PBS_O_WORKDIR
cd $WORKDIR

`,
		line: func(bin, infile string) string {
			return fmt.Sprintf("%s %s.mop", bin, infile)
		},
	},
}

// Pbs submits chunks with qsub and polls them with qstat.
type Pbs struct {
	base
	flavor pbsFlavor
}

func NewPbs(prog program.Kind, opts Options, r runner.Runner, logger *slog.Logger) (*Pbs, error) {
	flavor, ok := pbsFlavors[prog]
	if !ok {
		return nil, fmt.Errorf("pbs: unsupported program %q", prog)
	}
	if opts.Binary == "" {
		opts.Binary = string(prog)
	}
	return &Pbs{base: base{opts: opts, runner: r, logger: logger}, flavor: flavor}, nil
}

func (p *Pbs) ScriptExt() string { return "pbs" }
func (p *Pbs) Synchronous() bool { return false }

// DefaultSubmitScript is the built-in header for this program.
func (p *Pbs) DefaultSubmitScript() string { return p.flavor.header }

func (p *Pbs) WriteSubmitScript(infiles []string, filename string) error {
	header := p.opts.Template
	if header == "" {
		header = p.flavor.header
	}
	var b strings.Builder
	b.WriteString(renderHeader(header, filename))
	for _, f := range infiles {
		b.WriteString(p.flavor.line(p.opts.Binary, f))
		b.WriteByte('\n')
	}
	if p.flavor.footer != "" {
		b.WriteString(p.flavor.footer)
		b.WriteByte('\n')
	}
	return writeScript(filename, b.String())
}

func (p *Pbs) Submit(ctx context.Context, script string) (string, error) {
	cmd := runner.Cmd{Name: "qsub", Args: []string{"-f", script}}
	if p.flavor.submitFromDir {
		cmd = runner.Cmd{Name: "qsub", Args: []string{filepath.Base(script)}, Dir: filepath.Dir(script)}
	}
	return submitWithRetry(ctx, p.runner, cmd, p.opts.SleepInt, p.logger)
}

// StatCmd runs `qstat -u <user>`.
func (p *Pbs) StatCmd(ctx context.Context) (string, error) {
	cmd := runner.Cmd{Name: "qstat", Args: []string{"-u", p.opts.User}}
	out, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return "", common.StatusParseError(fmt.Sprintf("failed to run `%s`", cmd), err)
	}
	if !out.Success() {
		return "", common.StatusParseError(fmt.Sprintf("`%s` failed with exit code %d\nstdout: %s\nstderr: %s",
			cmd, out.ExitCode, out.Stdout, out.Stderr), nil)
	}
	return string(out.Stdout), nil
}

func (p *Pbs) Status(ctx context.Context) (map[string]struct{}, error) {
	out, err := p.StatCmd(ctx)
	if err != nil {
		return nil, err
	}
	return parseQstat(out)
}

// renderHeader fills the script-level placeholders.
func renderHeader(header, filename string) string {
	return strings.NewReplacer(
		"{{.basename}}", filepath.Base(filename),
		"{{.filename}}", filename,
	).Replace(header)
}

func writeScript(filename, body string) error {
	if err := os.WriteFile(filename, []byte(body), 0o644); err != nil {
		return common.ScriptWriteError(fmt.Sprintf("failed to create submit script %s", filename), err)
	}
	return nil
}
