package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/runner"
)

// ErrNoStatus is returned by Local.Status: local chunks are synchronous and
// have no scheduler to ask.
var ErrNoStatus = common.StatusParseError("no status available for local queue", nil)

// Local runs each chunk with bash on this machine, blocking until it ends.
type Local struct {
	base
	prog program.Kind
	ext  string
}

func NewLocal(prog program.Kind, opts Options, r runner.Runner, logger *slog.Logger) (*Local, error) {
	l := &Local{base: base{opts: opts, runner: r, logger: logger}, prog: prog}
	switch prog {
	case program.KindMopac:
		l.ext = "mop"
		if l.opts.Binary == "" {
			l.opts.Binary = "/opt/mopac/mopac"
		}
	case program.KindMolpro:
		l.ext = "inp"
		if l.opts.Binary == "" {
			l.opts.Binary = "molpro"
		}
	default:
		return nil, fmt.Errorf("local: unsupported program %q", prog)
	}
	return l, nil
}

func (l *Local) ScriptExt() string { return "slurm" }
func (l *Local) Synchronous() bool { return true }

// WriteSubmitScript writes a bash script that runs every input in turn and
// collects each input and output pair in <filename>.out, followed by a
// separator, then stamps the finish time.
func (l *Local) WriteSubmitScript(infiles []string, filename string) error {
	var b strings.Builder
	if l.opts.LibDir != "" {
		fmt.Fprintf(&b, "export LD_LIBRARY_PATH=%s\n", l.opts.LibDir)
	}
	for _, f := range infiles {
		fmt.Fprintf(&b, "%s &> %s.out\n", l.invocation(f), filename)
		fmt.Fprintf(&b, "cat %s.%s %s.out >> %s.out\n", f, l.ext, f, filename)
		fmt.Fprintf(&b, "echo \"================\" >> %s.out\n", filename)
	}
	fmt.Fprintf(&b, "date +%%s >> %s.out\n", filename)
	return writeScript(filename, b.String())
}

func (l *Local) invocation(infile string) string {
	if l.prog == program.KindMolpro {
		return fmt.Sprintf("%s --no-xml-output %s.inp", l.opts.Binary, infile)
	}
	return fmt.Sprintf("%s %s.mop", l.opts.Binary, infile)
}

func (l *Local) Submit(ctx context.Context, script string) (string, error) {
	return submitWithRetry(ctx, l.runner, runner.Cmd{Name: "bash", Args: []string{script}}, l.opts.SleepInt, l.logger)
}

func (l *Local) StatCmd(context.Context) (string, error) {
	return "", ErrNoStatus
}

func (l *Local) Status(context.Context) (map[string]struct{}, error) {
	l.logger.Error("status requested from local queue", "dir", l.opts.Dir)
	return nil, ErrNoStatus
}
