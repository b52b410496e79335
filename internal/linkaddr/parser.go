package linkaddr

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse creates an Address from its canonical string representation.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Null, fmt.Errorf("link address cannot be empty")
	}

	octets := strings.Split(raw, ":")
	if len(octets) != Size && len(octets) != 2 {
		return Null, fmt.Errorf("link address %q must have 2 or %d octets, got %d", raw, Size, len(octets))
	}

	var addr Address
	offset := Size - len(octets)
	for i, o := range octets {
		if len(o) == 0 || len(o) > 2 {
			return Null, fmt.Errorf("invalid octet %q in link address %q", o, raw)
		}
		v, err := strconv.ParseUint(o, 16, 8)
		if err != nil {
			return Null, fmt.Errorf("invalid octet %q in link address %q: %w", o, raw, err)
		}
		addr[offset+i] = byte(v)
	}
	return addr, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and static tables.
func MustParse(raw string) Address {
	addr, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// ParseAll parses every entry of raw, failing on the first malformed one.
func ParseAll(raw []string) ([]Address, error) {
	out := make([]Address, 0, len(raw))
	for _, r := range raw {
		addr, err := Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
