// Package blockdevice declares the contract the filesystem core uses to read
// and write fixed-size blocks. It deliberately knows nothing about files,
// directories, or byte offsets within a block — that is the job of the
// blockio package layered on top.
package blockdevice

import "errors"

var (
	// ErrNoContent is returned by ReadBlock when the device has never seen
	// a write for the requested block. Callers (blockio) are expected to
	// treat this as "materialize a zero block," not as a hard failure.
	ErrNoContent = errors.New("blockdevice: no content for requested block")

	// ErrOutOfRange is returned when an operation addresses a block index
	// outside the device's configured extent.
	ErrOutOfRange = errors.New("blockdevice: block index out of range")
)

// BlockDevice is the external collaborator the core filesystem is built
// against. Any storage that can read and write fixed-size blocks by index is
// conformant; the reference implementation (package filestore) maps indices
// to one file per block, and memstore maps them to an in-memory slice for
// tests.
type BlockDevice interface {
	// BlockSize reports the fixed size, in bytes, of every block.
	BlockSize() int

	// ReadBlock reads the block at the given 0-based index. It returns
	// ErrNoContent (wrapped or bare, checked with errors.Is) if no data has
	// ever been written for that block.
	ReadBlock(index int) ([]byte, error)

	// WriteBlock writes data as the block at the given 0-based index. len(data)
	// must equal BlockSize(); implementations may pad or reject otherwise.
	WriteBlock(index int, data []byte) (int, error)
}
