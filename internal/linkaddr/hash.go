package linkaddr

// Hasher maps an address to an unsigned integer. The grouped scheduler only
// ever uses it as hash(addr) mod group amount.
type Hasher func(Address) uint16

// LastOctetHash hashes an address to its least significant octet, which is
// how TSCH deployments with sequentially assigned node IDs spread neighbors
// across slots.
func LastOctetHash(a Address) uint16 {
	return uint16(a[Size-1])
}

// FoldHash combines every octet so that addresses differing only in their
// upper bytes still spread across groups.
func FoldHash(a Address) uint16 {
	var h uint16
	for i := 0; i < Size; i += 2 {
		h ^= uint16(a[i])<<8 | uint16(a[i+1])
	}
	return h
}
