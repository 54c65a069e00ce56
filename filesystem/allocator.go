package filesystem

import (
	"fmt"

	"github.com/blockfs/blockfs/blockio"
)

// allocator implements the contiguous-extent allocation and tail-expansion
// policy over the directory's file list. Grounded on the reference
// implementation's expand_empty_file / expand_existing_file /
// expand_file_size (file_system.c:287-405).
type allocator struct {
	io              *blockio.IO
	dir             *directory
	dirBlocks       int
	partitionBlocks int
	blockSize       int
}

func newAllocator(io *blockio.IO, dir *directory, dirBlocks, partitionBlocks, blockSize int) *allocator {
	return &allocator{
		io:              io,
		dir:             dir,
		dirBlocks:       dirBlocks,
		partitionBlocks: partitionBlocks,
		blockSize:       blockSize,
	}
}

// Extent is a read-only view of one file's owned block range, used for
// diagnostics and tests asserting invariant P1 (disjoint extents).
type Extent struct {
	Filename   string
	StartBlock uint32
	NumBlocks  uint32
}

// Extents returns every non-empty file's extent, in file-list order.
func (a *allocator) Extents() []Extent {
	var out []Extent
	for _, r := range a.dir.records {
		if r.numBlocks == 0 {
			continue
		}
		out = append(out, Extent{Filename: r.filename, StartBlock: r.startBlock, NumBlocks: r.numBlocks})
	}
	return out
}

// allocateEmpty places a brand-new file's extent at the current
// end-of-partition (the highest start+numBlocks of any known file, or
// DIR_BLOCKS if there are none yet), zero-fills it, and mutates r in place.
func (a *allocator) allocateEmpty(r *record, neededBlocks uint32) error {
	start := uint32(a.dirBlocks)
	for _, other := range a.dir.records {
		if other.extentEnd() > start {
			start = other.extentEnd()
		}
	}

	if uint64(start)+uint64(neededBlocks) >= uint64(a.partitionBlocks) {
		return fmt.Errorf("allocator: no space for %d new blocks at end of partition: %w", neededBlocks, ErrNoSpace)
	}

	if err := a.zeroFill(start, neededBlocks); err != nil {
		return err
	}

	r.startBlock = start
	r.numBlocks = neededBlocks
	return nil
}

// expandExisting attempts to grow r's extent at the tail by neededBlocks. It
// fails if another file's start_block falls inside the prospective tail
// range, or if the tail range would run past the partition.
func (a *allocator) expandExisting(r *record, neededBlocks uint32) error {
	tailStart := r.extentEnd()
	tailEnd := tailStart + neededBlocks

	for _, other := range a.dir.records {
		if other == r {
			continue
		}
		if other.startBlock >= tailStart && other.startBlock < tailEnd {
			return fmt.Errorf("allocator: tail blocked by %q: %w", other.filename, ErrNoSpace)
		}
	}

	if uint64(tailEnd) > uint64(a.partitionBlocks) {
		return fmt.Errorf("allocator: tail expansion would exceed partition bounds: %w", ErrNoSpace)
	}

	if err := a.zeroFill(tailStart, neededBlocks); err != nil {
		return err
	}

	r.numBlocks += neededBlocks
	return nil
}

func (a *allocator) zeroFill(start, count uint32) error {
	zero := make([]byte, int(count)*a.blockSize)
	if _, err := a.io.WriteBlocks(int(start), int(count), zero); err != nil {
		return fmt.Errorf("allocator: zero-filling blocks [%d,%d): %w", start, start+count, err)
	}
	return nil
}

// expandTo grows r so that r.size == newSize, allocating blocks only if the
// current tail doesn't already have room. A newSize <= r.size is a no-op
// (invariant P7). On allocation failure, r is left unchanged and the error
// is returned; the directory is not updated in that case.
func (a *allocator) expandTo(r *record, newSize uint32) error {
	if newSize <= r.size {
		return nil
	}

	var neededBytes uint32
	if r.size == 0 {
		neededBytes = newSize
	} else {
		neededBytes = newSize - r.size
	}

	needsBlock := true
	if r.size%uint32(a.blockSize) != 0 {
		leftover := uint32(a.blockSize) - (r.size % uint32(a.blockSize))
		if leftover >= neededBytes {
			needsBlock = false
		}
	}

	if needsBlock {
		neededBlocks := neededBytes / uint32(a.blockSize)
		if neededBytes%uint32(a.blockSize) != 0 {
			neededBlocks++
		}

		var err error
		if r.size == 0 {
			err = a.allocateEmpty(r, neededBlocks)
		} else {
			err = a.expandExisting(r, neededBlocks)
		}
		if err != nil {
			return err
		}
	}

	r.size = newSize
	if err := a.dir.updateRecord(r); err != nil {
		// Known inconsistent state: the allocation above already succeeded
		// and mutated r (and, for allocateEmpty, zero-filled storage), but
		// the directory now disagrees with it. This implementation accepts
		// the divergence rather than rolling back, matching the reference's
		// own "FIXME: the dir is not consistent" behavior (see DESIGN.md).
		return err
	}
	return a.dir.flush()
}
