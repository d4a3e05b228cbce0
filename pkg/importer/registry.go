package importer

import (
	"context"
	"fmt"
	"sync"

	"github.com/albertocavalcante/assetpipe/pkg/util"
)

// Registry maps asset-type tags to routines.
type Registry struct {
	mu        sync.RWMutex
	importers map[string]Importer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{importers: make(map[string]Importer)}
}

// Register binds a routine to an asset type. A later registration for the
// same type replaces the earlier one.
func (r *Registry) Register(assetType string, imp Importer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.importers[assetType] = imp
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(assetType string, fn func(ctx context.Context, req *Request) (*Result, error)) {
	r.Register(assetType, Func(fn))
}

// Get returns the routine for an asset type.
func (r *Registry) Get(assetType string) (Importer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	imp, ok := r.importers[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAssetType, assetType)
	}
	return imp, nil
}

// Has checks if a routine is registered for the type.
func (r *Registry) Has(assetType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.importers[assetType]
	return ok
}

// Types returns the registered asset types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return util.SortedKeys(r.importers)
}

// Version returns the version of the routine registered for the type,
// or 0 when there is none.
func (r *Registry) Version(assetType string) int {
	imp, err := r.Get(assetType)
	if err != nil {
		return 0
	}
	return VersionOf(imp)
}
