// Package memstore provides an in-memory blockdevice.BlockDevice, used to
// drive the filesystem core in tests without touching disk: a hand-rolled
// fake implementing the production interface.
package memstore

import (
	"fmt"

	"github.com/blockfs/blockfs/blockdevice"
)

// Store is an in-memory BlockDevice backed by a map, so that "never written"
// and "written with zeros" remain distinguishable, matching the real
// filestore.Store's file-exists semantics.
type Store struct {
	blockSize int
	blocks    map[int][]byte
}

// New creates an empty in-memory store with the given block size.
func New(blockSize int) *Store {
	return &Store{
		blockSize: blockSize,
		blocks:    make(map[int][]byte),
	}
}

var _ blockdevice.BlockDevice = (*Store)(nil)

// BlockSize reports the fixed block size for this store.
func (s *Store) BlockSize() int {
	return s.blockSize
}

// ReadBlock returns blockdevice.ErrNoContent for a block never written.
func (s *Store) ReadBlock(index int) ([]byte, error) {
	b, ok := s.blocks[index]
	if !ok {
		return nil, blockdevice.ErrNoContent
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// WriteBlock stores a copy of data as the block at index.
func (s *Store) WriteBlock(index int, data []byte) (int, error) {
	if len(data) != s.blockSize {
		return 0, fmt.Errorf("memstore: write of %d bytes does not match block size %d", len(data), s.blockSize)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[index] = cp
	return len(data), nil
}

// Written reports whether a block has ever been written, for test assertions.
func (s *Store) Written(index int) bool {
	_, ok := s.blocks[index]
	return ok
}
