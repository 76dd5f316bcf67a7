// Package program holds the adapters that turn a job's structure into an
// on-disk input deck for a quantum chemistry program and read its output back.
package program

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Procedure is the kind of computation requested for a job.
type Procedure int

const (
	SinglePt Procedure = iota
	Opt
	Freq
)

func (p Procedure) String() string {
	switch p {
	case SinglePt:
		return "sp"
	case Opt:
		return "opt"
	case Freq:
		return "freq"
	}
	return fmt.Sprintf("Procedure(%d)", int(p))
}

// ParseProcedure accepts the short names used in manifests and on the command line.
func ParseProcedure(s string) (Procedure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sp", "single", "singlept", "single-point", "":
		return SinglePt, nil
	case "opt", "optimize", "optimization":
		return Opt, nil
	case "freq", "frequency", "frequencies":
		return Freq, nil
	}
	return SinglePt, fmt.Errorf("unknown procedure %q", s)
}

// Result is what a successful job run produces.
type Result struct {
	Energy float64
	// Geom is only set for optimizations.
	Geom *Geom
	// Time is the wall or cpu time reported by the program, in seconds.
	Time float64
}

// Failure kinds returned by ReadOutput.
var (
	ErrFileNotFound   = errors.New("output file not found")
	ErrErrorInOutput  = errors.New("error in output")
	ErrEnergyNotFound = errors.New("energy not found")
	ErrEnergyParse    = errors.New("failed to parse energy")
	ErrGeomNotFound   = errors.New("geometry not found")
)

// Program is the capability set the queue needs from a QC program.
type Program interface {
	// Filename is the path of the job without extension.
	Filename() string
	SetFilename(name string)
	// Extension of the input file, without dot.
	Extension() string
	Charge() int
	WriteInput(proc Procedure) error
	ReadOutput() (Result, error)
	// AssociatedFiles lists every scratch file the job leaves behind.
	AssociatedFiles() []string
}

// Kind names a supported program.
type Kind string

const (
	KindMolpro Kind = "molpro"
	KindMopac  Kind = "mopac"
)

// ParseKind validates a program name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindMolpro, KindMopac:
		return k, nil
	}
	return "", fmt.Errorf("unsupported program %q", s)
}

// New builds a program of the given kind.
func New(kind Kind, filename string, tmpl Template, charge int, geom *Geom) (Program, error) {
	switch kind {
	case KindMolpro:
		return NewMolpro(filename, tmpl, charge, geom), nil
	case KindMopac:
		return NewMopac(filename, tmpl, charge, geom), nil
	}
	return nil, fmt.Errorf("unsupported program %q", kind)
}

// Template is the header of an input deck. It may contain the {{.geom}} and
// {{.charge}} placeholders.
type Template struct {
	Header string
}

// LoadTemplate reads a template from disk.
func LoadTemplate(path string) (Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template %s: %w", path, err)
	}
	return Template{Header: string(b)}, nil
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	return strings.Split(string(b), "\n"), nil
}
