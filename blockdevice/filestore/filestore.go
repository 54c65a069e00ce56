// Package filestore is the reference blockdevice.BlockDevice: one file per
// block, named block<index>.txt, living under a base directory. This mirrors
// the original C implementation's block%d.txt scheme, re-expressed as an
// injected collaborator rather than hardcoded filenames scattered through the
// core (see DESIGN.md).
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/blockfs/blockfs/blockdevice"
)

// Store is a directory-of-files BlockDevice.
type Store struct {
	dir       string
	blockSize int
}

// New creates a Store rooted at dir, which is created if it does not exist.
// blockSize must be positive.
func New(dir string, blockSize int) (*Store, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("filestore: invalid block size %d", blockSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating base dir %s: %w", dir, err)
	}
	return &Store{dir: dir, blockSize: blockSize}, nil
}

var _ blockdevice.BlockDevice = (*Store)(nil)

// BlockSize reports the fixed block size for this store.
func (s *Store) BlockSize() int {
	return s.blockSize
}

func (s *Store) path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("block%d.txt", index))
}

// ReadBlock reads the block file for index. If it does not exist,
// blockdevice.ErrNoContent is returned so blockio can lazy zero-fill it.
func (s *Store) ReadBlock(index int) ([]byte, error) {
	f, err := os.Open(s.path(index))
	if os.IsNotExist(err) {
		return nil, blockdevice.ErrNoContent
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: opening block %d: %w", index, err)
	}
	defer f.Close()

	buf := make([]byte, s.blockSize)
	n, err := io.ReadFull(f, buf)
	if err != nil {
		return nil, fmt.Errorf("filestore: reading block %d: %w", index, err)
	}
	return buf[:n], nil
}

// WriteBlock writes data to the block file for index, creating it if needed,
// and fsyncs it before returning so a crash immediately after a successful
// write cannot lose the block.
func (s *Store) WriteBlock(index int, data []byte) (int, error) {
	f, err := os.OpenFile(s.path(index), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("filestore: creating block %d: %w", index, err)
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return n, fmt.Errorf("filestore: writing block %d: %w", index, err)
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return n, fmt.Errorf("filestore: fsync block %d: %w", index, err)
	}
	return n, nil
}

