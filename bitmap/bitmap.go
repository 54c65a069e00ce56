// Package bitmap implements a small bit-per-slot allocation primitive.
// It backs the filesystem's descriptor table the way util/bitmap backs
// cluster and inode allocation in a full-sized filesystem implementation,
// trimmed here to the operations a fixed-capacity table actually needs:
// set, clear, test, and find-first-free.
package bitmap

import "fmt"

// Bitmap is a fixed-size bit vector.
type Bitmap struct {
	bits []byte
}

// New creates a bitmap able to address nBits entries, all initially clear.
func New(nBits int) *Bitmap {
	if nBits < 0 {
		nBits = 0
	}
	nBytes := (nBits + 7) / 8
	return &Bitmap{bits: make([]byte, nBytes)}
}

// Len returns the number of addressable bits.
func (bm *Bitmap) Len() int {
	return len(bm.bits) * 8
}

func findBitForIndex(index int) (byteNumber int, bitNumber uint8) {
	return index / 8, uint8(index % 8)
}

func (bm *Bitmap) checkRange(location int) error {
	if location < 0 {
		return fmt.Errorf("bitmap: location %d is negative", location)
	}
	byteNumber, _ := findBitForIndex(location)
	if byteNumber >= len(bm.bits) {
		return fmt.Errorf("bitmap: location %d is not in %d-bit bitmap", location, bm.Len())
	}
	return nil
}

// IsSet reports whether the bit at location is set.
func (bm *Bitmap) IsSet(location int) (bool, error) {
	if err := bm.checkRange(location); err != nil {
		return false, err
	}
	byteNumber, bitNumber := findBitForIndex(location)
	mask := byte(0x1) << bitNumber
	return bm.bits[byteNumber]&mask == mask, nil
}

// Set sets the bit at location.
func (bm *Bitmap) Set(location int) error {
	if err := bm.checkRange(location); err != nil {
		return err
	}
	byteNumber, bitNumber := findBitForIndex(location)
	bm.bits[byteNumber] |= byte(0x1) << bitNumber
	return nil
}

// Clear clears the bit at location.
func (bm *Bitmap) Clear(location int) error {
	if err := bm.checkRange(location); err != nil {
		return err
	}
	byteNumber, bitNumber := findBitForIndex(location)
	bm.bits[byteNumber] &^= byte(0x1) << bitNumber
	return nil
}

// FirstFree returns the lowest clear bit at or after start, or -1 if the
// bitmap has no free bit from start onward.
func (bm *Bitmap) FirstFree(start int) int {
	if start < 0 {
		start = 0
	}
	total := bm.Len()
	if start >= total {
		return -1
	}

	byteIdx := start / 8
	bitStart := uint8(start % 8)

	b := bm.bits[byteIdx]
	if b != 0xff {
		for j := bitStart; j < 8; j++ {
			if b&(byte(1)<<j) == 0 {
				return byteIdx*8 + int(j)
			}
		}
	}

	for i := byteIdx + 1; i < len(bm.bits); i++ {
		b = bm.bits[i]
		if b == 0xff {
			continue
		}
		for j := uint8(0); j < 8; j++ {
			if b&(byte(1)<<j) == 0 {
				return i*8 + int(j)
			}
		}
	}

	return -1
}
