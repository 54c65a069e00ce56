package filesystem

import (
	"testing"

	"github.com/blockfs/blockfs/blockdevice/memstore"
	"github.com/blockfs/blockfs/blockio"
)

const (
	testBlockSize = 64
	testDirBlocks = 2
)

func newTestDirectory(t *testing.T) *directory {
	t.Helper()
	dev := memstore.New(testBlockSize)
	io := blockio.New(dev)
	d := newDirectory(io, testDirBlocks, testBlockSize*testDirBlocks, 32)
	if err := d.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return d
}

func TestDirectoryLoadOnBlankStorageWritesSignature(t *testing.T) {
	dev := memstore.New(testBlockSize)
	io := blockio.New(dev)
	d := newDirectory(io, testDirBlocks, testBlockSize*testDirBlocks, 32)

	if err := d.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(d.records) != 0 {
		t.Fatalf("expected no records on first load, got %d", len(d.records))
	}

	raw, _, err := io.ReadBlocks(0, testDirBlocks)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if raw[0] != '$' || raw[1] != '%' || raw[2] != '^' || raw[3] != '&' {
		t.Fatal("expected directory signature to be persisted after first load")
	}
}

func TestDirectoryAppendAndFindByName(t *testing.T) {
	d := newTestDirectory(t)

	r := &record{filename: "alpha.txt", startBlock: 2, numBlocks: 3, size: 10}
	if err := d.appendRecord(r); err != nil {
		t.Fatalf("appendRecord: %v", err)
	}

	found := d.findByName("alpha.txt")
	if found == nil {
		t.Fatal("expected to find appended record")
	}
	if found.startBlock != 2 || found.numBlocks != 3 || found.size != 10 {
		t.Fatalf("unexpected record fields: %+v", found)
	}

	if d.findByName("missing") != nil {
		t.Fatal("expected nil for unknown filename")
	}
}

func TestDirectoryPersistsAcrossReload(t *testing.T) {
	dev := memstore.New(testBlockSize)
	io := blockio.New(dev)

	d1 := newDirectory(io, testDirBlocks, testBlockSize*testDirBlocks, 32)
	if err := d1.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := d1.appendRecord(&record{filename: "one", startBlock: 2, numBlocks: 1, size: 5}); err != nil {
		t.Fatalf("appendRecord: %v", err)
	}
	if err := d1.appendRecord(&record{filename: "two", startBlock: 3, numBlocks: 1, size: 8}); err != nil {
		t.Fatalf("appendRecord: %v", err)
	}

	d2 := newDirectory(io, testDirBlocks, testBlockSize*testDirBlocks, 32)
	if err := d2.load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(d2.records) != 2 {
		t.Fatalf("expected 2 records after reload, got %d", len(d2.records))
	}
	if d2.findByName("one") == nil || d2.findByName("two") == nil {
		t.Fatal("expected both records to survive reload")
	}
}

func TestDirectoryUpdateRecordDoesNotFlushImmediately(t *testing.T) {
	d := newTestDirectory(t)
	r := &record{filename: "f", startBlock: 2, numBlocks: 1, size: 0}
	if err := d.appendRecord(r); err != nil {
		t.Fatalf("appendRecord: %v", err)
	}

	r.size = 42
	if err := d.updateRecord(r); err != nil {
		t.Fatalf("updateRecord: %v", err)
	}

	// The in-memory buffer must reflect the update even before flush.
	reloaded := newDirectory(d.io, testDirBlocks, testBlockSize*testDirBlocks, 32)
	reloaded.buf = append([]byte(nil), d.buf...)
	reloaded.loadFromBytes(reloaded.buf)
	if reloaded.findByName("f").size != 42 {
		t.Fatal("expected updateRecord to be reflected in the in-memory buffer")
	}

	// Storage must still hold the pre-update record until flush is called.
	raw, _, err := d.io.ReadBlocks(0, testDirBlocks)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	onDisk := newDirectory(d.io, testDirBlocks, testBlockSize*testDirBlocks, 32)
	onDisk.loadFromBytes(raw)
	if onDisk.findByName("f").size != 0 {
		t.Fatal("expected updateRecord not to write the directory to storage")
	}
}

func TestDirectoryAppendRejectsOverlongFilename(t *testing.T) {
	d := newTestDirectory(t)
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	r := &record{filename: string(long)}
	if err := d.appendRecord(r); err == nil {
		t.Fatal("expected error for filename exceeding maxFilename")
	}
}
