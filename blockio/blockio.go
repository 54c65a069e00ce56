// Package blockio realizes byte-ranged reads and writes on top of a
// block-granular blockdevice.BlockDevice, so the filesystem core operates on
// (block, offset, length) triples without repeating the read-modify-write
// pattern a partial-block write requires. Grounded on the original C
// read_blocks/write_blocks/read_from_block/write_to_block helpers.
package blockio

import (
	"errors"
	"fmt"

	"github.com/blockfs/blockfs/blockdevice"
)

// ErrOffsetOverflow is returned when a single-block operation's offset+len
// would run past the end of the block.
var ErrOffsetOverflow = errors.New("blockio: offset+len exceeds block size")

// IO performs byte-ranged transfers against a BlockDevice.
type IO struct {
	dev       blockdevice.BlockDevice
	blockSize int
}

// New wraps dev for byte-ranged access.
func New(dev blockdevice.BlockDevice) *IO {
	return &IO{dev: dev, blockSize: dev.BlockSize()}
}

// BlockSize reports the underlying device's fixed block size.
func (b *IO) BlockSize() int {
	return b.blockSize
}

// ReadBlocks reads count whole blocks starting at start. When the device has
// no content for a requested block, that block is lazily materialized as
// zero bytes and persisted before being returned.
func (b *IO) ReadBlocks(start, count int) ([]byte, int, error) {
	out := make([]byte, 0, count*b.blockSize)
	for i := 0; i < count; i++ {
		block, err := b.dev.ReadBlock(start + i)
		if errors.Is(err, blockdevice.ErrNoContent) {
			zero := make([]byte, b.blockSize)
			if _, werr := b.dev.WriteBlock(start+i, zero); werr != nil {
				return out, len(out), fmt.Errorf("blockio: zero-filling block %d: %w", start+i, werr)
			}
			block = zero
		} else if err != nil {
			return out, len(out), fmt.Errorf("blockio: reading block %d: %w", start+i, err)
		}
		out = append(out, block...)
	}
	return out, len(out), nil
}

// WriteBlocks writes data across count whole blocks starting at start.
// len(data) must equal count*BlockSize(). Returns the cumulative number of
// bytes actually written; a short write on one block halts the loop.
func (b *IO) WriteBlocks(start, count int, data []byte) (int, error) {
	written := 0
	for i := 0; i < count; i++ {
		chunk := data[i*b.blockSize : (i+1)*b.blockSize]
		n, err := b.dev.WriteBlock(start+i, chunk)
		written += n
		if err != nil {
			return written, fmt.Errorf("blockio: writing block %d: %w", start+i, err)
		}
		if n != b.blockSize {
			return written, nil
		}
	}
	return written, nil
}

// ReadFromBlock reads length bytes from a single block at byte offset.
// It fails if offset+length exceeds the block size.
func (b *IO) ReadFromBlock(block, offset, length int) ([]byte, int, error) {
	if offset+length > b.blockSize {
		return nil, 0, ErrOffsetOverflow
	}
	buf, _, err := b.ReadBlocks(block, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) != b.blockSize {
		return nil, 0, nil
	}
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, length, nil
}

// WriteToBlock performs a partial-block write: offset and length must fit
// within one block. If the write does not cover the full block, the block is
// first read into a scratch buffer, the range is patched in, and the whole
// block is written back.
func (b *IO) WriteToBlock(block, offset, length int, data []byte) (int, error) {
	if offset+length > b.blockSize {
		return 0, ErrOffsetOverflow
	}

	var buf []byte
	if offset == 0 && length == b.blockSize {
		buf = make([]byte, b.blockSize)
	} else {
		var err error
		buf, _, err = b.ReadBlocks(block, 1)
		if err != nil {
			return 0, err
		}
		if len(buf) != b.blockSize {
			return 0, nil
		}
	}

	copy(buf[offset:offset+length], data[:length])

	n, err := b.WriteBlocks(block, 1, buf)
	if err != nil {
		return 0, err
	}
	if n >= length {
		return length, nil
	}
	return n, nil
}
