package reachability

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// BitSet is a roaring bitmap over symbol indices, safe for concurrent use.
type BitSet struct {
	mu     sync.RWMutex
	bitmap *roaring.Bitmap
}

// NewBitSet creates an empty bitset.
func NewBitSet() *BitSet {
	return &BitSet{bitmap: roaring.New()}
}

// TestAndSet marks index and reports whether it was previously unset.
// Exactly one of several concurrent callers for the same index wins.
func (b *BitSet) TestAndSet(index uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitmap.CheckedAdd(index)
}

// IsSet reports whether index is marked.
func (b *BitSet) IsSet(index uint32) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.Contains(index)
}

// Count returns the number of marked indices.
func (b *BitSet) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.GetCardinality()
}

// Snapshot returns a copy of the underlying bitmap.
func (b *BitSet) Snapshot() *roaring.Bitmap {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.Clone()
}
