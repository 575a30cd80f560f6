package pipeline

import "sync"

// State is how far a run progressed.
type State int

const (
	StateCreated State = iota
	StateCaseWritten
	StateSolverInvoked
	StateLogsHarvested
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCaseWritten:
		return "case_written"
	case StateSolverInvoked:
		return "solver_invoked"
	case StateLogsHarvested:
		return "logs_harvested"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// runRegistry tracks run ids currently owned by a Run call.
type runRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunRegistry() *runRegistry {
	return &runRegistry{active: make(map[string]struct{})}
}

// acquire claims id. The returned func releases it and is safe to call more
// than once.
func (r *runRegistry) acquire(id string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[id]; busy {
		return nil, false
	}
	r.active[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, id)
			r.mu.Unlock()
		})
	}, true
}

func (c *Controller) registry() *runRegistry {
	c.runsOnce.Do(func() { c.runs = newRunRegistry() })
	return c.runs
}

// Active reports whether a run with id is in flight.
func (c *Controller) Active(id string) bool {
	r := c.registry()
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.active[id]
	return busy
}
