package swirl

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Performer runs the work associated with one job type. env is the
// caller-supplied, process-wide environment value given to
// NewBuilder; pool is the same connection pool the runner itself
// uses, made available so performers can issue their own queries.
type Performer func(ctx context.Context, data []byte, env any, pool *pgxpool.Pool) error

// Registry is a process-wide, read-only mapping from job_type to
// Performer. It is built with NewRegistry/Register and then handed to
// a Runner; once a Runner has been built from it, it must not be
// mutated further.
type Registry struct {
	mu         sync.RWMutex
	performers map[string]Performer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{performers: make(map[string]Performer)}
}

// Register associates jobType with a Performer. Registering the same
// jobType twice is an error; callers are expected to treat it as fatal
// at startup.
func (r *Registry) Register(jobType string, p Performer) error {
	if jobType == "" {
		return fmt.Errorf("job type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.performers[jobType]; exists {
		return fmt.Errorf("job type %q is already registered", jobType)
	}
	r.performers[jobType] = p
	return nil
}

// Get returns the Performer registered for jobType, or false if none
// was registered.
func (r *Registry) Get(jobType string) (Performer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.performers[jobType]
	return p, ok
}
