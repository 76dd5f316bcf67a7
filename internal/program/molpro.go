package program

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// optg at the end of a line or followed by a comma; optgrad does not match
	molproOptg   = regexp.MustCompile(`(?i)optg(,|\s*$)`)
	molproEnergy = regexp.MustCompile(`(?i)^\s*!.*\benergy\s+(\S+)\s*$`)
	molproTime   = regexp.MustCompile(`REAL TIME\s+\*\s+([0-9.]+)\s+SEC`)
)

const (
	molproOptLine = "{optg,grms=1.d-8,srms=1.d-8}"
	molproGeomHdr = "Current geometry (xyz format"
)

// Molpro writes Molpro 2022 input decks.
type Molpro struct {
	filename string
	template Template
	charge   int
	geom     *Geom
	proc     Procedure
}

func NewMolpro(filename string, tmpl Template, charge int, geom *Geom) *Molpro {
	return &Molpro{filename: filename, template: tmpl, charge: charge, geom: geom}
}

func (m *Molpro) Filename() string        { return m.filename }
func (m *Molpro) SetFilename(name string) { m.filename = name }
func (m *Molpro) Extension() string       { return "inp" }
func (m *Molpro) Charge() int             { return m.charge }

// WriteInput renders the template into <filename>.inp. The template's
// geometry block is left open: the closing brace goes after Cartesian atoms,
// or between a Z-matrix and its parameter values.
//
// An optg line is appended for optimizations that lack one and removed from
// single points that carry one.
func (m *Molpro) WriteInput(proc Procedure) error {
	if proc == Freq {
		return fmt.Errorf("molpro: %s procedure not supported", proc)
	}
	if m.geom == nil {
		return fmt.Errorf("molpro: no geometry for %s", m.filename)
	}
	m.proc = proc

	lines := strings.Split(strings.TrimRight(m.template.Header, "\n"), "\n")
	foundOpt := false
	body := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if molproOptg.MatchString(line) {
			foundOpt = true
			if proc == SinglePt {
				continue
			}
		}
		body = append(body, line)
	}
	if proc == Opt && !foundOpt {
		body = append(body, molproOptLine)
	}

	text := strings.Join(body, "\n") + "\n"
	text = strings.ReplaceAll(text, "{{.geom}}", m.geomBlock())
	text = strings.ReplaceAll(text, "{{.charge}}", strconv.Itoa(m.charge))

	name := m.filename + "." + m.Extension()
	if err := os.WriteFile(name, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	return nil
}

func (m *Molpro) geomBlock() string {
	if !m.geom.IsZmat() {
		return m.geom.String() + "\n}"
	}
	var b strings.Builder
	closed := false
	for _, line := range strings.Split(m.geom.String(), "\n") {
		if !closed && strings.Contains(line, "=") {
			closed = true
			b.WriteString("}\n")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if !closed {
		b.WriteString("}\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ReadOutput parses <filename>.out.
func (m *Molpro) ReadOutput() (Result, error) {
	lines, err := readLines(m.filename + ".out")
	if err != nil {
		return Result{}, err
	}

	var (
		res       Result
		energyStr string
		geomAt    = -1
	)
	for i, line := range lines {
		switch {
		case strings.Contains(line, "ERROR"):
			return Result{}, fmt.Errorf("%w: %s", ErrErrorInOutput, strings.TrimSpace(line))
		case strings.Contains(line, molproGeomHdr):
			geomAt = i
		}
		if sm := molproEnergy.FindStringSubmatch(line); sm != nil {
			energyStr = sm[1]
		}
		if sm := molproTime.FindStringSubmatch(line); sm != nil {
			if t, err := strconv.ParseFloat(sm[1], 64); err == nil {
				res.Time = t
			}
		}
	}
	if energyStr == "" {
		return Result{}, ErrEnergyNotFound
	}
	res.Energy, err = strconv.ParseFloat(energyStr, 64)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrEnergyParse, energyStr)
	}

	if m.proc == Opt {
		if geomAt < 0 {
			return Result{}, ErrGeomNotFound
		}
		g, err := molproGeom(lines[geomAt+1:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrGeomNotFound, err)
		}
		res.Geom = g
	}
	return res, nil
}

// molproGeom reads an xyz block: atom count, comment line, atoms.
func molproGeom(lines []string) (*Geom, error) {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("truncated geometry block")
	}
	n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("bad atom count %q", lines[0])
	}
	if len(lines) < n+2 {
		return nil, fmt.Errorf("want %d atoms, block has %d lines", n, len(lines)-2)
	}
	return parseXYZLines(lines[2 : n+2])
}

func (m *Molpro) AssociatedFiles() []string {
	return []string{m.filename + ".inp", m.filename + ".out"}
}
