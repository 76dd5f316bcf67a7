package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/qcqueue/internal/common"
	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/queue"
)

//go:embed schema.json
var schemaJSON []byte

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("manifest.json")
})

// Manifest describes one batch: a program, a procedure and the geometries to run.
type Manifest struct {
	Program   string  `json:"program"`
	Procedure string  `json:"procedure,omitempty"`
	Charge    int     `json:"charge,omitempty"`
	Template  string  `json:"template,omitempty"`
	Jobs      []Entry `json:"jobs"`
}

// Entry is one geometry. Exactly one of Atoms+Coords or Zmat is set.
type Entry struct {
	Name   string    `json:"name,omitempty"`
	Charge *int      `json:"charge,omitempty"`
	Atoms  []string  `json:"atoms,omitempty"`
	Coords []float64 `json:"coords,omitempty"`
	Zmat   string    `json:"zmat,omitempty"`
}

// Parse validates data against the manifest schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	schema, err := compiled()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "manifest is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "manifest does not match schema", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "decode manifest", err)
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("read manifest %s", path), err)
	}
	return Parse(data)
}

// BuildJobs turns the manifest into scheduler jobs. The manifest's inline
// template wins over fallback. Unnamed entries are called job.NNNNNNN after
// their position.
func (m *Manifest) BuildJobs(fallback program.Template) ([]*queue.Job, error) {
	kind, err := program.ParseKind(m.Program)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "manifest program", err)
	}
	proc, err := program.ParseProcedure(m.Procedure)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "manifest procedure", err)
	}
	tmpl := fallback
	if m.Template != "" {
		tmpl = program.Template{Header: m.Template}
	}

	seen := make(map[string]int, len(m.Jobs))
	jobs := make([]*queue.Job, 0, len(m.Jobs))
	for i, e := range m.Jobs {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("job.%07d", i)
		}
		if prev, dup := seen[name]; dup {
			return nil, common.NewAppError(common.CodeConfig,
				fmt.Sprintf("job %d reuses name %q from job %d", i, name, prev), common.ErrInvalidInput)
		}
		seen[name] = i

		geom, err := e.geom()
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("job %s", name), err)
		}
		charge := m.Charge
		if e.Charge != nil {
			charge = *e.Charge
		}
		prog, err := program.New(kind, name, tmpl, charge, geom)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("job %s", name), err)
		}
		jobs = append(jobs, &queue.Job{Name: name, Program: prog, Procedure: proc})
	}
	return jobs, nil
}

func (e Entry) geom() (*program.Geom, error) {
	if e.Zmat != "" {
		return program.NewZmat(e.Zmat), nil
	}
	return program.NewXYZ(e.Atoms, e.Coords)
}
