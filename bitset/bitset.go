package bitset

import "math/bits"

// BitSet is a fixed-size set of small non-negative integers.
type BitSet []uint64

// New returns a BitSet able to hold the values [0, n).
func New(n int) BitSet {
	return make(BitSet, (n+63)/64)
}

// Test reports whether i is in the set.
func (b BitSet) Test(i int) bool {
	return b[i/64]&(uint64(1)<<(uint(i)%64)) != 0
}

// Set adds i to the set.
func (b BitSet) Set(i int) {
	b[i/64] |= uint64(1) << (uint(i) % 64)
}

// Clear removes i from the set.
func (b BitSet) Clear(i int) {
	b[i/64] &^= uint64(1) << (uint(i) % 64)
}

// Reset removes every value.
func (b BitSet) Reset() {
	for i := range b {
		b[i] = 0
	}
}

// Count returns the number of values in the set.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy.
func (b BitSet) Clone() BitSet {
	c := make(BitSet, len(b))
	copy(c, b)
	return c
}
