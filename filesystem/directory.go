package filesystem

import (
	"encoding/binary"
	"fmt"

	"github.com/blockfs/blockfs/blockio"
)

// directorySignature is the literal 4-byte magic marking an initialized
// directory buffer.
var directorySignature = [4]byte{'$', '%', '^', '&'}

const dirHeaderSize = 6 // 4-byte signature + 2-byte file count

// directory owns the in-memory directory buffer and the ordered list of
// records parsed from (or appended to) it. Grounded on the reference
// implementation's dir_data byte array plus add_file_to_directory,
// update_file_in_directory, and the directory-parsing half of
// initialize_file_system, re-expressed with explicit little-endian encoding
// instead of pointer punning.
type directory struct {
	buf     []byte
	ptr     int
	records []*record

	capacity    int
	maxFilename int
	dirBlocks   int
	io          *blockio.IO
}

func newDirectory(io *blockio.IO, dirBlocks, capacity, maxFilename int) *directory {
	return &directory{
		buf:         make([]byte, capacity),
		capacity:    capacity,
		maxFilename: maxFilename,
		dirBlocks:   dirBlocks,
		io:          io,
	}
}

// flush writes the in-memory directory buffer back to blocks [0, dirBlocks).
func (d *directory) flush() error {
	if _, err := d.io.WriteBlocks(0, d.dirBlocks, d.buf); err != nil {
		return fmt.Errorf("directory: flushing to storage: %w", err)
	}
	return nil
}

// load reads the directory from storage and parses it, initializing and
// flushing a fresh blank directory if no valid signature is found.
func (d *directory) load() error {
	raw, n, err := d.io.ReadBlocks(0, d.dirBlocks)
	if err != nil {
		return fmt.Errorf("directory: loading from storage: %w", err)
	}
	if n != d.capacity {
		return fmt.Errorf("directory: short read of directory blocks (%d of %d bytes)", n, d.capacity)
	}

	hadSignature := len(raw) >= 4 &&
		raw[0] == directorySignature[0] &&
		raw[1] == directorySignature[1] &&
		raw[2] == directorySignature[2] &&
		raw[3] == directorySignature[3]

	d.loadFromBytes(raw)
	if !hadSignature {
		return d.flush()
	}
	return nil
}

// reset discards in-memory state and re-initializes a blank, signed buffer,
// without touching storage. Used by load() when no valid signature is found.
func (d *directory) reset() {
	d.buf = make([]byte, d.capacity)
	copy(d.buf[0:4], directorySignature[:])
	binary.LittleEndian.PutUint16(d.buf[4:6], 0)
	d.ptr = dirHeaderSize
	d.records = nil
}

// hasSignature reports whether buf currently carries the magic bytes.
func (d *directory) hasSignature() bool {
	return len(d.buf) >= 4 &&
		d.buf[0] == directorySignature[0] &&
		d.buf[1] == directorySignature[1] &&
		d.buf[2] == directorySignature[2] &&
		d.buf[3] == directorySignature[3]
}

// loadFromBytes replaces the buffer with raw and parses records from it,
// stopping early (silently truncating the tail) on any malformed length.
// raw must be exactly capacity bytes.
func (d *directory) loadFromBytes(raw []byte) {
	d.buf = make([]byte, d.capacity)
	copy(d.buf, raw)
	d.records = nil

	if !d.hasSignature() {
		d.reset()
		return
	}

	numFiles := binary.LittleEndian.Uint16(d.buf[4:6])
	d.ptr = dirHeaderSize

	for i := 0; i < int(numFiles); i++ {
		off := d.ptr
		if off+2 > d.capacity {
			break
		}
		filenameSize := int(binary.LittleEndian.Uint16(d.buf[off : off+2]))
		if filenameSize > d.maxFilename {
			break
		}
		total := filenameSize + 15
		if off+total > d.capacity {
			break
		}

		p := off + 2
		name := string(d.buf[p : p+filenameSize])
		p += filenameSize + 1 // skip filename bytes and the NUL terminator

		start := binary.LittleEndian.Uint32(d.buf[p : p+4])
		p += 4
		num := binary.LittleEndian.Uint32(d.buf[p : p+4])
		p += 4
		size := binary.LittleEndian.Uint32(d.buf[p : p+4])

		d.records = append(d.records, &record{
			filename:   name,
			startBlock: start,
			numBlocks:  num,
			size:       size,
			dirOffset:  off,
			opened:     false,
		})
		d.ptr = off + total
	}
}

// encodeRecord writes r's encoding into buf at r.dirOffset. Callers must have
// already validated filename length and capacity.
func (d *directory) encodeRecord(r *record) {
	off := r.dirOffset
	filenameSize := len(r.filename)

	binary.LittleEndian.PutUint16(d.buf[off:off+2], uint16(filenameSize))
	p := off + 2
	copy(d.buf[p:p+filenameSize], r.filename)
	d.buf[p+filenameSize] = 0 // NUL terminator
	p += filenameSize + 1

	binary.LittleEndian.PutUint32(d.buf[p:p+4], r.startBlock)
	p += 4
	binary.LittleEndian.PutUint32(d.buf[p:p+4], r.numBlocks)
	p += 4
	binary.LittleEndian.PutUint32(d.buf[p:p+4], r.size)
}

// updateRecord re-encodes r in place at its existing dirOffset.
func (d *directory) updateRecord(r *record) error {
	if len(r.filename) > d.maxFilename {
		return fmt.Errorf("directory: filename %q exceeds %d bytes: %w", r.filename, d.maxFilename, ErrInvalid)
	}
	if r.dirOffset+r.serializedSize() > d.capacity {
		return fmt.Errorf("directory: encoding %q would overflow directory capacity: %w", r.filename, ErrMemory)
	}
	d.encodeRecord(r)
	return nil
}

// appendRecord assigns r.dirOffset at the current cursor, encodes it,
// advances the cursor, increments the stored file count, adds r to the
// in-memory list, and flushes the directory to storage.
func (d *directory) appendRecord(r *record) error {
	if len(r.filename) > d.maxFilename {
		return fmt.Errorf("directory: filename %q exceeds %d bytes: %w", r.filename, d.maxFilename, ErrInvalid)
	}
	size := r.serializedSize()
	if d.ptr+size > d.capacity {
		return fmt.Errorf("directory: appending %q would overflow directory capacity: %w", r.filename, ErrMemory)
	}

	r.dirOffset = d.ptr
	d.encodeRecord(r)
	d.ptr += size

	count := binary.LittleEndian.Uint16(d.buf[4:6])
	binary.LittleEndian.PutUint16(d.buf[4:6], count+1)

	d.records = append(d.records, r)
	return d.flush()
}

// findByName returns the record with the given filename, or nil.
func (d *directory) findByName(filename string) *record {
	for _, r := range d.records {
		if r.filename == filename {
			return r
		}
	}
	return nil
}
