package permission

import "math/bits"

// Mask64 is a permission bitmask. Bit positions come from a [Registry].
type Mask64 uint64

// Has reports whether bit is set.
func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<bit) != 0
}

// Set sets bit.
func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << bit
}

// Clear clears bit.
func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << bit
}

// Union returns m | o.
func (m Mask64) Union(o Mask64) Mask64 {
	return m | o
}

// Contains reports whether every bit of o is set in m.
func (m Mask64) Contains(o Mask64) bool {
	return m&o == o
}

// Count returns the number of set bits.
func (m Mask64) Count() int {
	return bits.OnesCount64(uint64(m))
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
