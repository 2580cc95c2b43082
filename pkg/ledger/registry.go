package ledger

import (
	"errors"
	"path/filepath"
	"sync"
)

// Registry hands out one Ledger per user directory so that every walk for
// the same user shares a single writer.
type Registry struct {
	opts *Options

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewRegistry creates an empty registry
func NewRegistry(opts *Options) *Registry {
	return &Registry{opts: opts, ledgers: make(map[string]*Ledger)}
}

// For returns the ledger stored in userDir
func (r *Registry) For(userDir string) *Ledger {
	path := filepath.Join(filepath.Clean(userDir), FileName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.ledgers[path]; ok {
		return l
	}
	l := Open(path, r.opts)
	r.ledgers[path] = l
	return l
}

// Close closes every ledger handed out so far
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path, l := range r.ledgers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.ledgers, path)
	}
	return errors.Join(errs...)
}
