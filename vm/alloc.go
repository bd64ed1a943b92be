package vm

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// onAlloc is the guest allocator callback. Allocations have osize 0,
// frees have nsize 0, anything else is a resize.
func (s *State) onAlloc(osize, nsize int) {
	s.allocated += int64(nsize) - int64(osize)
}

// AllocatedBytes returns the bytes the guest currently holds according to
// the allocator callback.
func (s *State) AllocatedBytes() int64 { return s.allocated }

// verifyAllocations checks the allocator bookkeeping. It returns a report
// line describing the inconsistency, or "" when the books balance.
func (s *State) verifyAllocations() string {
	if s.allocated < 0 {
		return fmt.Sprintf("allocator bookkeeping corrupt: %d bytes outstanding", s.allocated)
	}
	if s.g != nil {
		if live := int64(s.g.Allocated()); live != s.allocated {
			return fmt.Sprintf("allocator bookkeeping corrupt: counted %s, guest holds %s",
				humanize.Bytes(uint64(max(s.allocated, 0))), humanize.Bytes(uint64(live)))
		}
	}
	return ""
}
