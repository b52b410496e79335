package linkaddr

import (
	"fmt"
	"strings"
)

// Size is the number of octets in a link-layer address.
const Size = 8

// Address is a link-layer (EUI-64) address.
type Address [Size]byte

// Null is the all-zero address, meaning "no neighbor".
var Null = Address{}

// Broadcast is the address shared links are installed towards.
var Broadcast = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool {
	return a == Null
}

// Equal reports whether two addresses are identical.
func (a Address) Equal(other Address) bool {
	return a == other
}

// String serializes the address into its canonical colon-separated form.
func (a Address) String() string {
	var sb strings.Builder
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(fmt.Sprintf("%02x", b))
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler so addresses render in
// canonical form in JSON snapshots and structured logs.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
