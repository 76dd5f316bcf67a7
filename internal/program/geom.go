package program

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Geom is a molecular geometry, either Cartesian or a Z-matrix.
type Geom struct {
	Atoms []string
	// Coords holds one row per atom, in Angstrom. Nil for Z-matrices.
	Coords *mat.Dense
	Zmat   string
}

// NewXYZ builds a Cartesian geometry from labels and a flat x,y,z slice.
func NewXYZ(atoms []string, coords []float64) (*Geom, error) {
	if len(atoms) == 0 {
		return nil, fmt.Errorf("empty geometry")
	}
	if len(coords) != 3*len(atoms) {
		return nil, fmt.Errorf("got %d coordinates for %d atoms", len(coords), len(atoms))
	}
	c := make([]float64, len(coords))
	copy(c, coords)
	return &Geom{Atoms: atoms, Coords: mat.NewDense(len(atoms), 3, c)}, nil
}

// NewZmat wraps a Z-matrix, including its trailing name=value lines.
func NewZmat(zmat string) *Geom {
	return &Geom{Zmat: strings.TrimRight(zmat, "\n")}
}

func (g *Geom) IsZmat() bool { return g.Coords == nil }

// Len is the number of Cartesian atoms, 0 for Z-matrices.
func (g *Geom) Len() int {
	if g.Coords == nil {
		return 0
	}
	r, _ := g.Coords.Dims()
	return r
}

// Atom returns the label and coordinates of atom i.
func (g *Geom) Atom(i int) (string, [3]float64) {
	var xyz [3]float64
	mat.Row(xyz[:], i, g.Coords)
	return g.Atoms[i], xyz
}

// String renders one atom per line, or the Z-matrix verbatim.
func (g *Geom) String() string {
	if g.IsZmat() {
		return g.Zmat
	}
	var b strings.Builder
	for i := range g.Atoms {
		label, xyz := g.Atom(i)
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-2s %20.12f %20.12f %20.12f", label, xyz[0], xyz[1], xyz[2])
	}
	return b.String()
}

// parseXYZLines reads "El x y z" lines.
func parseXYZLines(lines []string) (*Geom, error) {
	atoms := make([]string, 0, len(lines))
	coords := make([]float64, 0, 3*len(lines))
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) != 4 {
			return nil, fmt.Errorf("malformed geometry line %q", line)
		}
		atoms = append(atoms, f[0])
		for _, s := range f[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed coordinate in %q: %w", line, err)
			}
			coords = append(coords, v)
		}
	}
	return NewXYZ(atoms, coords)
}
