package filesystem

import (
	"fmt"

	"github.com/blockfs/blockfs/bitmap"
)

// filetable is the fixed-capacity descriptor table: a bit-per-descriptor
// bitmap tracking allocation, and a parallel array of borrowed record
// pointers indexed by descriptor. Descriptor 0 is reserved as the error
// sentinel and is permanently marked allocated. Grounded on the reference
// implementation's fd_bitmap / file_array and get_unused_fd / mark_fd_as_unused
// (file_system.c:46-98), with the bit-twiddling delegated to package bitmap.
type filetable struct {
	bits    *bitmap.Bitmap
	records []*record
	maxFD   int
}

func newFiletable(maxFD int) (*filetable, error) {
	if maxFD%8 != 0 {
		return nil, fmt.Errorf("filetable: MAX_FD %d must be a multiple of 8: %w", maxFD, ErrBadConfig)
	}
	ft := &filetable{
		bits:    bitmap.New(maxFD),
		records: make([]*record, maxFD),
		maxFD:   maxFD,
	}
	// Descriptor 0 is reserved as the error sentinel and never allocatable.
	_ = ft.bits.Set(0)
	return ft, nil
}

// allocate finds the lowest free descriptor, marks it used, installs r, and
// returns the descriptor. It never returns 0.
func (ft *filetable) allocate(r *record) (int, error) {
	fd := ft.bits.FirstFree(1)
	if fd < 0 || fd >= ft.maxFD {
		return 0, fmt.Errorf("filetable: no free descriptor: %w", ErrDescriptors)
	}
	if ft.records[fd] != nil {
		return 0, fmt.Errorf("filetable: descriptor %d unexpectedly in use: %w", fd, ErrDescriptors)
	}
	if err := ft.bits.Set(fd); err != nil {
		return 0, fmt.Errorf("filetable: marking descriptor %d used: %w", fd, err)
	}
	ft.records[fd] = r
	return fd, nil
}

// lookup returns the record for fd, or nil if fd is unallocated or
// out of range.
func (ft *filetable) lookup(fd int) *record {
	if fd <= 0 || fd >= ft.maxFD {
		return nil
	}
	return ft.records[fd]
}

// release clears fd's slot and bitmap bit. Out-of-range fd is a no-op.
func (ft *filetable) release(fd int) error {
	if fd <= 0 || fd >= ft.maxFD {
		return fmt.Errorf("filetable: release of out-of-range descriptor %d", fd)
	}
	ft.records[fd] = nil
	return ft.bits.Clear(fd)
}
