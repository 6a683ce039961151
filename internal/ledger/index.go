package ledger

import (
	"context"
	"fmt"
	"sync"
)

// LoadFunc reads the current allocation rows of every export shipment.
type LoadFunc func(ctx context.Context) ([]ExportAllocations, error)

// Index caches a built Ledger between reads. The semantics stay those of a
// full rescan: any write to an export shipment's allocation rows must call
// Invalidate, after which the next read rebuilds from the loader.
type Index struct {
	mu    sync.Mutex
	load  LoadFunc
	built *Ledger
	stale bool
}

// NewIndex returns an Index over load; the first read builds the ledger.
func NewIndex(load LoadFunc) *Index {
	return &Index{load: load, stale: true}
}

// Invalidate marks the cached ledger stale.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.stale = true
	ix.mu.Unlock()
}

// Ledger returns the current ledger, rebuilding it if a write invalidated
// the cache since the last read.
func (ix *Index) Ledger(ctx context.Context) (*Ledger, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.stale && ix.built != nil {
		return ix.built, nil
	}
	if ix.load == nil {
		return nil, fmt.Errorf("ledger index has no loader")
	}
	exports, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	ix.built = Build(exports)
	ix.stale = false
	return ix.built, nil
}
