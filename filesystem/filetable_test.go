package filesystem

import "testing"

func TestNewFiletableRejectsNonMultipleOf8(t *testing.T) {
	if _, err := newFiletable(10); err == nil {
		t.Fatal("expected error for MAX_FD not a multiple of 8")
	}
}

func TestFiletableReservesDescriptorZero(t *testing.T) {
	ft, err := newFiletable(8)
	if err != nil {
		t.Fatalf("newFiletable: %v", err)
	}
	if ft.lookup(0) != nil {
		t.Fatal("descriptor 0 must never resolve to a record")
	}
}

func TestFiletableAllocateLookupRelease(t *testing.T) {
	ft, err := newFiletable(8)
	if err != nil {
		t.Fatalf("newFiletable: %v", err)
	}

	r := &record{filename: "a.txt"}
	fd, err := ft.allocate(r)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if fd == 0 {
		t.Fatal("allocate must never return descriptor 0")
	}
	if ft.lookup(fd) != r {
		t.Fatalf("lookup(%d) did not return the allocated record", fd)
	}

	if err := ft.release(fd); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ft.lookup(fd) != nil {
		t.Fatal("descriptor should be unmapped after release")
	}
}

func TestFiletableExhaustion(t *testing.T) {
	ft, err := newFiletable(8)
	if err != nil {
		t.Fatalf("newFiletable: %v", err)
	}

	// Descriptor 0 is reserved, leaving 7 allocatable slots.
	for i := 0; i < 7; i++ {
		if _, err := ft.allocate(&record{}); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}

	if _, err := ft.allocate(&record{}); err == nil {
		t.Fatal("expected no free descriptor error once the table is full")
	}
}

func TestFiletableReuseAfterRelease(t *testing.T) {
	ft, err := newFiletable(8)
	if err != nil {
		t.Fatalf("newFiletable: %v", err)
	}

	first, err := ft.allocate(&record{filename: "one"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := ft.release(first); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := ft.allocate(&record{filename: "two"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if second != first {
		t.Fatalf("expected descriptor reuse: got %d, want %d", second, first)
	}
}
