package core

import (
	"log"
	"sync"
)

// ParameterStore guards the live Parameters behind a single mutex, replacing
// the original implementation's CommonLogic singleton. Every read/write goes
// through here so there is exactly one place that can mutate control
// parameters at runtime.
type ParameterStore struct {
	mu   sync.RWMutex
	params Parameters
}

// NewParameterStore creates a store seeded with the given parameters. The
// parameters are validated (and repaired if necessary) before being stored.
func NewParameterStore(p Parameters) *ParameterStore {
	p.Validate()
	return &ParameterStore{params: p}
}

// Get returns a copy of the current parameters.
func (s *ParameterStore) Get() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Update applies fn to the stored parameters under the lock, then
// validates/repairs the invariant in place. It reports whether a repair was
// necessary so the caller can log it.
func (s *ParameterStore) Update(fn func(*Parameters)) (repaired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.params)
	repaired = s.params.Validate()
	return repaired
}

// Context is the explicit, passed-around execution context every component
// receives instead of reaching for a package-global logger or singleton.
type Context struct {
	Logger     *log.Logger
	Config     *Config
	Parameters *ParameterStore
}

// NewContext builds a Context from a loaded Config and logger.
func NewContext(cfg *Config, logger *log.Logger) *Context {
	return &Context{
		Logger:     logger,
		Config:     cfg,
		Parameters: NewParameterStore(cfg.Parameters()),
	}
}
