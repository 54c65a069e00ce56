// Package filesystem composes BlockIO, a persisted Directory, an Allocator,
// and a fixed-capacity FileTable into the public boot-partition filesystem
// API: Initialize, Open, Read, Write, Close, Shutdown. Grounded on the
// reference implementation's file_system_open_file / _write_to_file /
// _read_from_file / _close_file / initialize_file_system / close_file_system
// (file_system.c:412-717), composed the way go-diskfs's fat32.FileSystem
// composes a Directory with allocation and backend I/O.
package filesystem

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blockfs/blockfs/blockdevice"
	"github.com/blockfs/blockfs/blockio"
)

// Reference defaults, matching the original fixed constants for block size,
// directory size, descriptor table size, and filename length.
const (
	DefaultBlockSize   = 512
	DefaultDirBlocks   = 2
	DefaultMaxFD       = 64
	DefaultMaxFilename = 256
)

// Mode selects Open's behavior when the named file does not already exist.
type Mode int

const (
	// ModeOpen opens an existing file only; it fails if the file is absent.
	ModeOpen Mode = iota
	// ModeCreate opens an existing file, or creates a new empty one.
	ModeCreate
)

// Option configures a FileSystem at construction time.
type Option func(*config)

type config struct {
	maxFD       int
	dirBlocks   int
	maxFilename int
	expectBlock int // 0 means "don't validate against the device"
	logger      logrus.FieldLogger
}

// WithMaxFD overrides the descriptor table capacity. Must be a multiple of 8.
func WithMaxFD(n int) Option {
	return func(c *config) { c.maxFD = n }
}

// WithDirBlocks overrides how many leading blocks hold the directory.
func WithDirBlocks(n int) Option {
	return func(c *config) { c.dirBlocks = n }
}

// WithMaxFilename overrides the maximum stored filename length in bytes.
func WithMaxFilename(n int) Option {
	return func(c *config) { c.maxFilename = n }
}

// WithBlockSize asserts the expected device block size; Initialize fails if
// the device reports a different one. It does not change the block size: the
// filesystem always operates at the device's actual block size.
func WithBlockSize(n int) Option {
	return func(c *config) { c.expectBlock = n }
}

// WithLogger overrides the logrus.FieldLogger used for diagnostics. Defaults
// to logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.logger = l }
}

// FileSystem is the boot-partition filesystem aggregate: one owning instance
// per block device, holding the directory, allocator, and descriptor table
// that used to be process-wide globals in the reference implementation.
type FileSystem struct {
	dev             blockdevice.BlockDevice
	io              *blockio.IO
	dir             *directory
	alloc           *allocator
	ft              *filetable
	partitionBlocks int
	blockSize       int
	maxFD           int
	maxFilename     int
	instanceID      uuid.UUID
	log             logrus.FieldLogger
}

// Initialize boots a FileSystem over dev for a partition of partitionBlocks
// blocks: it resets the descriptor table, loads (or creates) the directory,
// and mints a fresh instance id used only for log correlation.
func Initialize(dev blockdevice.BlockDevice, partitionBlocks int, opts ...Option) (*FileSystem, error) {
	cfg := config{
		maxFD:       DefaultMaxFD,
		dirBlocks:   DefaultDirBlocks,
		maxFilename: DefaultMaxFilename,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	blockSize := dev.BlockSize()
	if cfg.expectBlock != 0 && cfg.expectBlock != blockSize {
		return nil, fmt.Errorf("filesystem: device block size %d does not match expected %d: %w", blockSize, cfg.expectBlock, ErrBadConfig)
	}
	if partitionBlocks <= cfg.dirBlocks {
		return nil, fmt.Errorf("filesystem: partition of %d blocks too small for %d directory blocks: %w", partitionBlocks, cfg.dirBlocks, ErrBadConfig)
	}

	ft, err := newFiletable(cfg.maxFD)
	if err != nil {
		return nil, err
	}

	instanceID := uuid.New()
	log := cfg.logger.WithFields(logrus.Fields{
		"component": "filesystem",
		"instance":  instanceID.String(),
	})

	io := blockio.New(dev)
	dirCapacity := blockSize * cfg.dirBlocks
	dir := newDirectory(io, cfg.dirBlocks, dirCapacity, cfg.maxFilename)
	if err := dir.load(); err != nil {
		return nil, fmt.Errorf("filesystem: loading directory: %w", err)
	}

	alloc := newAllocator(io, dir, cfg.dirBlocks, partitionBlocks, blockSize)

	fs := &FileSystem{
		dev:             dev,
		io:              io,
		dir:             dir,
		alloc:           alloc,
		ft:              ft,
		partitionBlocks: partitionBlocks,
		blockSize:       blockSize,
		maxFD:           cfg.maxFD,
		maxFilename:     cfg.maxFilename,
		instanceID:      instanceID,
		log:             log,
	}

	log.WithField("partition_blocks", partitionBlocks).Debug("filesystem initialized")
	return fs, nil
}

// Shutdown flushes the directory buffer. It is idempotent and safe to call
// before re-Initializing against the same block device.
func (fs *FileSystem) Shutdown() error {
	if err := fs.dir.flush(); err != nil {
		fs.log.WithError(err).Error("shutdown: flush failed")
		return err
	}
	fs.log.Debug("filesystem shut down")
	return nil
}

// Extents exposes the allocator's read-only extent view, for diagnostics and
// for tests asserting that files never share blocks.
func (fs *FileSystem) Extents() []Extent {
	return fs.alloc.Extents()
}

// Open finds or creates filename per mode and returns a 1-based descriptor,
// or 0 on any failure (already open, not found under ModeOpen, no
// descriptors free, or a directory append failure under ModeCreate).
func (fs *FileSystem) Open(filename string, mode Mode) uint32 {
	fd, err := fs.open(filename, mode)
	if err != nil {
		fs.log.WithFields(logrus.Fields{"op": "open", "filename": filename, "mode": mode}).WithError(err).Warn("open failed")
		return 0
	}
	fs.log.WithFields(logrus.Fields{"op": "open", "filename": filename, "fd": fd}).Debug("opened")
	return uint32(fd)
}

func (fs *FileSystem) open(filename string, mode Mode) (int, error) {
	if mode != ModeOpen && mode != ModeCreate {
		return 0, fmt.Errorf("filesystem: invalid open mode %v: %w", mode, ErrInvalid)
	}

	r := fs.dir.findByName(filename)
	if r != nil && r.opened {
		return 0, fmt.Errorf("filesystem: %q is already open: %w", filename, ErrAlreadyOpen)
	}

	if r == nil {
		if mode == ModeOpen {
			return 0, fmt.Errorf("filesystem: %q: %w", filename, ErrNotFound)
		}
		if len(filename) > fs.maxFilename {
			return 0, fmt.Errorf("filesystem: filename %q exceeds %d bytes: %w", filename, fs.maxFilename, ErrInvalid)
		}
		r = &record{filename: filename}
		if err := fs.dir.appendRecord(r); err != nil {
			return 0, err
		}
	}

	fd, err := fs.ft.allocate(r)
	if err != nil {
		return 0, err
	}

	r.opened = true
	return fd, nil
}

// Write writes data at offset into the file behind fd, growing the file via
// the allocator's tail-expansion policy when offset+len(data) exceeds the
// current size. It returns the number of bytes actually written, which may
// be less than len(data) if the tail could not be expanded enough.
func (fs *FileSystem) Write(fd uint32, data []byte, offset uint32) uint32 {
	n, err := fs.write(int(fd), data, offset)
	logf := fs.log.WithFields(logrus.Fields{"op": "write", "fd": fd, "offset": offset, "requested": len(data)})
	if err != nil {
		logf.WithError(err).Warn("write failed")
	} else {
		logf.WithField("written", n).Debug("write")
	}
	return uint32(n)
}

func (fs *FileSystem) write(fd int, data []byte, offset uint32) (int, error) {
	r, err := fs.validateOpenFD(fd)
	if err != nil {
		return 0, err
	}

	size := uint32(len(data))
	if offset > r.size {
		return 0, fmt.Errorf("filesystem: write offset %d beyond size %d: %w", offset, r.size, ErrBadOffset)
	}

	if offset+size > r.size {
		if err := fs.alloc.expandTo(r, offset+size); err != nil {
			fs.log.WithFields(logrus.Fields{"op": "write", "fd": fd}).WithError(err).Warn("expand failed, writing within existing capacity")
		}
	}

	if offset >= r.size {
		return 0, nil
	}
	if offset+size > r.size {
		size = r.size - offset
	}
	if size == 0 {
		return 0, nil
	}

	return fs.transfer(r, data[:size], offset, true)
}

// Read reads into buf from offset within the file behind fd, clamping to the
// file's current size. It returns the number of bytes actually read.
func (fs *FileSystem) Read(fd uint32, buf []byte, offset uint32) uint32 {
	n, err := fs.read(int(fd), buf, offset)
	logf := fs.log.WithFields(logrus.Fields{"op": "read", "fd": fd, "offset": offset, "requested": len(buf)})
	if err != nil {
		logf.WithError(err).Warn("read failed")
	} else {
		logf.WithField("read", n).Debug("read")
	}
	return uint32(n)
}

func (fs *FileSystem) read(fd int, buf []byte, offset uint32) (int, error) {
	r, err := fs.validateOpenFD(fd)
	if err != nil {
		return 0, err
	}

	if offset >= r.size {
		return 0, nil
	}

	size := uint32(len(buf))
	if offset+size > r.size {
		size = r.size - offset
	}
	if size == 0 {
		return 0, nil
	}

	return fs.transfer(r, buf[:size], offset, false)
}

// transfer performs the block-local read or write loop shared by Read and
// Write: translate offset into (block, block-offset), and walk forward one
// block at a time until the whole buffer has been transferred or a short
// transfer occurs.
func (fs *FileSystem) transfer(r *record, buf []byte, offset uint32, write bool) (int, error) {
	blockNum := int(offset) / fs.blockSize
	blockOffset := int(offset) % fs.blockSize

	transferred := 0
	remaining := len(buf)
	for transferred < len(buf) {
		next := fs.blockSize - blockOffset
		if next > remaining {
			next = remaining
		}

		absBlock := int(r.startBlock) + blockNum
		var (
			n   int
			err error
		)
		if write {
			n, err = fs.io.WriteToBlock(absBlock, blockOffset, next, buf[transferred:transferred+next])
		} else {
			var out []byte
			out, n, err = fs.io.ReadFromBlock(absBlock, blockOffset, next)
			if n > 0 {
				copy(buf[transferred:transferred+n], out)
			}
		}
		if err != nil {
			return transferred, err
		}
		transferred += n
		if n != next {
			break
		}

		remaining -= next
		blockNum++
		blockOffset = 0
	}

	return transferred, nil
}

// Close marks fd's file not-open, releases the descriptor, and returns
// CodeOK on success or CodeInvalid for a bad or not-open descriptor.
func (fs *FileSystem) Close(fd uint32) int32 {
	if err := fs.close(int(fd)); err != nil {
		fs.log.WithFields(logrus.Fields{"op": "close", "fd": fd}).WithError(err).Warn("close failed")
		return CodeInvalid
	}
	fs.log.WithFields(logrus.Fields{"op": "close", "fd": fd}).Debug("closed")
	return CodeOK
}

func (fs *FileSystem) close(fd int) error {
	r := fs.ft.lookup(fd)
	if r == nil || !r.opened {
		return fmt.Errorf("filesystem: descriptor %d: %w", fd, ErrNotOpen)
	}
	r.opened = false
	return fs.ft.release(fd)
}

// validateOpenFD checks fd is in range, mapped, and open, returning its
// record. Grounded on the validation repeated at the top of
// file_system_write_to_file / file_system_read_from_file in the reference.
func (fs *FileSystem) validateOpenFD(fd int) (*record, error) {
	if fd <= 0 || fd >= fs.maxFD {
		return nil, fmt.Errorf("filesystem: descriptor %d out of range: %w", fd, ErrInvalid)
	}
	r := fs.ft.lookup(fd)
	if r == nil {
		return nil, fmt.Errorf("filesystem: descriptor %d: %w", fd, ErrInvalid)
	}
	if !r.opened {
		return nil, fmt.Errorf("filesystem: descriptor %d: %w", fd, ErrNotOpen)
	}
	return r, nil
}
