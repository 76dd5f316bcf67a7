package program

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// kcal/mol per Hartree
const kcalPerHartree = 627.5091809

// Mopac writes MOPAC input decks and reads the .aux summary file.
type Mopac struct {
	filename string
	template Template
	charge   int
	geom     *Geom
	proc     Procedure
}

func NewMopac(filename string, tmpl Template, charge int, geom *Geom) *Mopac {
	return &Mopac{filename: filename, template: tmpl, charge: charge, geom: geom}
}

func (m *Mopac) Filename() string        { return m.filename }
func (m *Mopac) SetFilename(name string) { m.filename = name }
func (m *Mopac) Extension() string       { return "mop" }
func (m *Mopac) Charge() int             { return m.charge }

// WriteInput writes <filename>.mop: the keyword line from the template, a
// title, a blank comment line and the geometry. Only the first template line
// carrying keywords is used; the geometry always follows the comment line, so
// a {{.geom}} placeholder just marks that position. 1SCF is forced for single
// points and FORCE for frequencies; both are stripped for optimizations.
func (m *Mopac) WriteInput(proc Procedure) error {
	if m.geom == nil {
		return fmt.Errorf("mopac: no geometry for %s", m.filename)
	}
	m.proc = proc

	keywords := make([]string, 0)
	for _, kw := range strings.Fields(m.keywordLine()) {
		switch strings.ToUpper(kw) {
		case "1SCF", "FORCE":
			continue
		}
		keywords = append(keywords, kw)
	}
	switch proc {
	case SinglePt:
		keywords = append(keywords, "1SCF")
	case Freq:
		keywords = append(keywords, "FORCE")
	}

	var b strings.Builder
	b.WriteString(strings.Join(keywords, " "))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s\n\n", filepath.Base(m.filename))
	if m.geom.IsZmat() {
		b.WriteString(m.geom.String())
		b.WriteString("\n")
	} else {
		for i := 0; i < m.geom.Len(); i++ {
			label, xyz := m.geom.Atom(i)
			fmt.Fprintf(&b, "%-2s %20.12f 1 %20.12f 1 %20.12f 1\n", label, xyz[0], xyz[1], xyz[2])
		}
	}

	name := m.filename + "." + m.Extension()
	if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	return nil
}

func (m *Mopac) keywordLine() string {
	for _, line := range strings.Split(m.template.Header, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "{{.geom}}", ""))
		if line != "" {
			return strings.ReplaceAll(line, "{{.charge}}", strconv.Itoa(m.charge))
		}
	}
	return ""
}

// ReadOutput checks <filename>.out for errors and pulls the energy, timing
// and, for optimizations, the final geometry from <filename>.aux.
func (m *Mopac) ReadOutput() (Result, error) {
	if out, err := os.ReadFile(m.filename + ".out"); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if strings.Contains(line, "ERROR") {
				return Result{}, fmt.Errorf("%w: %s", ErrErrorInOutput, strings.TrimSpace(line))
			}
		}
	}
	lines, err := readLines(m.filename + ".aux")
	if err != nil {
		return Result{}, err
	}

	var (
		res      Result
		found    bool
		labels   []string
		coords   []float64
		wantXYZ  int
		inLabels bool
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "HEAT_OF_FORMATION:KCAL/MOL="):
			v, err := parseFortran(strings.TrimPrefix(line, "HEAT_OF_FORMATION:KCAL/MOL="))
			if err != nil {
				return Result{}, fmt.Errorf("%w: %q", ErrEnergyParse, line)
			}
			res.Energy = v / kcalPerHartree
			found = true
		case strings.HasPrefix(line, "CPU_TIME:SECONDS[1]="):
			if v, err := parseFortran(strings.TrimPrefix(line, "CPU_TIME:SECONDS[1]=")); err == nil {
				res.Time = v
			}
		case strings.HasPrefix(line, "ATOM_EL["):
			labels = labels[:0]
			inLabels = true
		case strings.HasPrefix(line, "ATOM_X_OPT:ANGSTROMS["):
			coords = coords[:0]
			wantXYZ = auxCount(line)
			inLabels = false
		case strings.Contains(line, "=") || strings.Contains(line, ":"):
			inLabels = false
			wantXYZ = 0
		case inLabels:
			labels = append(labels, strings.Fields(line)...)
		case wantXYZ > len(coords):
			for _, f := range strings.Fields(line) {
				v, err := parseFortran(f)
				if err != nil {
					return Result{}, fmt.Errorf("%w: %v", ErrGeomNotFound, err)
				}
				coords = append(coords, v)
			}
		}
	}
	if !found {
		return Result{}, ErrEnergyNotFound
	}
	if m.proc == Opt {
		if len(coords) == 0 {
			return Result{}, ErrGeomNotFound
		}
		g, err := NewXYZ(labels, coords)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrGeomNotFound, err)
		}
		res.Geom = g
	}
	return res, nil
}

func (m *Mopac) AssociatedFiles() []string {
	f := m.filename
	return []string{f + ".mop", f + ".out", f + ".arc", f + ".aux"}
}

// auxCount pulls n out of "NAME[n]=".
func auxCount(line string) int {
	open, end := strings.IndexByte(line, '['), strings.IndexByte(line, ']')
	if open < 0 || end < open {
		return 0
	}
	n, err := strconv.Atoi(line[open+1 : end])
	if err != nil {
		return 0
	}
	return n
}

// parseFortran handles D exponents such as +0.97127D+02.
func parseFortran(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("D", "E", "d", "e").Replace(s)
	return strconv.ParseFloat(s, 64)
}
