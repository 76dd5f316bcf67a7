package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joseph-ayodele/qcqueue/internal/program"
	"github.com/joseph-ayodele/qcqueue/internal/runner"
)

// scriptedRunner replays outputs in order and records every command.
type scriptedRunner struct {
	mu      sync.Mutex
	outputs []runner.Output
	err     error
	calls   []runner.Cmd
}

func (r *scriptedRunner) Run(_ context.Context, cmd runner.Cmd) (runner.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	if r.err != nil {
		return runner.Output{}, r.err
	}
	if len(r.outputs) == 0 {
		return runner.Output{ExitCode: 1}, nil
	}
	out := r.outputs[0]
	if len(r.outputs) > 1 {
		r.outputs = r.outputs[1:]
	}
	return out, nil
}

// fakeProgram records what the scheduler asked of it.
type fakeProgram struct {
	filename string
	written  program.Procedure
	wrote    bool
	energy   float64
	readErr  error
	writeErr error
}

func (p *fakeProgram) Filename() string        { return p.filename }
func (p *fakeProgram) SetFilename(name string) { p.filename = name }
func (p *fakeProgram) Extension() string       { return "inp" }
func (p *fakeProgram) Charge() int             { return 0 }

func (p *fakeProgram) WriteInput(proc program.Procedure) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.written, p.wrote = proc, true
	return nil
}

func (p *fakeProgram) ReadOutput() (program.Result, error) {
	if p.readErr != nil {
		return program.Result{}, p.readErr
	}
	return program.Result{Energy: p.energy}, nil
}

func (p *fakeProgram) AssociatedFiles() []string {
	return []string{p.filename + ".inp", p.filename + ".out"}
}

// fakeQueue simulates a batch scheduler. Each Status call retires the oldest
// `finishPerPoll` outstanding chunks.
type fakeQueue struct {
	chunkSize, jobLimit int
	sync                bool
	noDel               bool
	finishPerPoll       int
	statusErr           error
	submitErr           error

	scripts     map[string]int // script -> jobs
	submitted   []int          // jobs per submitted chunk, in order
	outstanding []string       // job ids still "in the queue"
	sizes       map[string]int
	active      int
	maxActive   int
	polls       int
	// submittedBeforePoll[i] is how many chunks had been submitted when poll i ran
	submittedBeforePoll []int
	nextID              int
}

func newFakeQueue(chunkSize, jobLimit int) *fakeQueue {
	return &fakeQueue{
		chunkSize:     chunkSize,
		jobLimit:      jobLimit,
		finishPerPoll: 1,
		scripts:       map[string]int{},
		sizes:         map[string]int{},
	}
}

func (q *fakeQueue) Submit(_ context.Context, script string) (string, error) {
	if q.submitErr != nil {
		return "", q.submitErr
	}
	n := q.scripts[script]
	q.submitted = append(q.submitted, n)
	q.nextID++
	id := fmt.Sprintf("%d.pbs", q.nextID)
	if q.sync {
		return id, nil
	}
	q.outstanding = append(q.outstanding, id)
	q.sizes[id] = n
	q.active += n
	q.maxActive = max(q.maxActive, q.active)
	return id, nil
}

func (q *fakeQueue) WriteSubmitScript(infiles []string, filename string) error {
	q.scripts[filename] = len(infiles)
	return nil
}

func (q *fakeQueue) Status(context.Context) (map[string]struct{}, error) {
	if q.statusErr != nil {
		return nil, q.statusErr
	}
	q.polls++
	q.submittedBeforePoll = append(q.submittedBeforePoll, len(q.submitted))
	for i := 0; i < q.finishPerPoll && len(q.outstanding) > 0; i++ {
		q.active -= q.sizes[q.outstanding[0]]
		q.outstanding = q.outstanding[1:]
	}
	ids := make(map[string]struct{}, len(q.outstanding))
	for _, id := range q.outstanding {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (q *fakeQueue) StatCmd(context.Context) (string, error) { return "", nil }
func (q *fakeQueue) Dir() string                             { return "pts" }
func (q *fakeQueue) ChunkSize() int                          { return q.chunkSize }
func (q *fakeQueue) JobLimit() int                           { return q.jobLimit }
func (q *fakeQueue) SleepInt() time.Duration                 { return 0 }
func (q *fakeQueue) NoDel() bool                             { return q.noDel }
func (q *fakeQueue) ScriptExt() string                       { return "pbs" }
func (q *fakeQueue) Synchronous() bool                       { return q.sync }

// recordingSink collects sent names.
type recordingSink struct {
	names    []string
	shutdown bool
}

func (s *recordingSink) Send(name string)         { s.names = append(s.names, name) }
func (s *recordingSink) Shutdown(context.Context) { s.shutdown = true }

func makeJobs(n int) ([]*Job, []*fakeProgram) {
	jobs := make([]*Job, n)
	progs := make([]*fakeProgram, n)
	for i := range jobs {
		progs[i] = &fakeProgram{energy: float64(i)}
		jobs[i] = &Job{Name: fmt.Sprintf("job.%08d", i), Program: progs[i], Procedure: program.SinglePt}
	}
	return jobs, progs
}
