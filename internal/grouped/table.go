package grouped

import "github.com/vk/groupsched/internal/linkaddr"

// NoGroup is returned for addresses that belong to no group (the null
// address). It never equals a real group index.
const NoGroup = -1

// Attribute is the per-group slot state.
type Attribute struct {
	// RequiredSlot is the number of consecutive slots the group owns.
	RequiredSlot int `json:"required_slot"`
	// AllocateSlotOffset is the round-robin cursor into the owned slots.
	AllocateSlotOffset int `json:"allocate_slot_offset"`
}

// DefaultAttribute is the state of a group nothing has been learned about.
var DefaultAttribute = Attribute{RequiredSlot: 1, AllocateSlotOffset: 0}

// Table holds one Attribute per group. Its setters are the only way to
// mutate it and keep 1 <= RequiredSlot <= size and
// 0 <= AllocateSlotOffset < RequiredSlot.
//
// Table is not safe for concurrent use; Handler guards it.
type Table struct {
	size   int
	hash   linkaddr.Hasher
	groups []Attribute
}

// NewTable allocates a table of amount groups of size slots each, all set to
// DefaultAttribute.
func NewTable(amount, size int, hash linkaddr.Hasher) *Table {
	if amount < 0 {
		amount = 0
	}
	if size < 1 {
		size = 1
	}
	if hash == nil {
		hash = linkaddr.LastOctetHash
	}
	t := &Table{size: size, hash: hash, groups: make([]Attribute, amount)}
	t.ResetAll()
	return t
}

// Len returns the number of groups.
func (t *Table) Len() int { return len(t.groups) }

// Size returns the number of slots per group.
func (t *Table) Size() int { return t.size }

// GroupOf maps an address to its group index, or NoGroup for the null
// address.
func (t *Table) GroupOf(a linkaddr.Address) int {
	if a.IsNull() || len(t.groups) == 0 {
		return NoGroup
	}
	return int(t.hash(a)) % len(t.groups)
}

func (t *Table) valid(g int) bool {
	return g >= 0 && g < len(t.groups)
}

// Base returns the first timeslot of group g.
func (t *Table) Base(g int) int {
	return g * t.size
}

// Attribute returns a copy of group g's state.
func (t *Table) Attribute(g int) Attribute {
	if !t.valid(g) {
		return DefaultAttribute
	}
	return t.groups[g]
}

// RequiredSlot returns the number of slots group g owns.
func (t *Table) RequiredSlot(g int) int {
	return t.Attribute(g).RequiredSlot
}

// AllocateOffset returns group g's round-robin cursor.
func (t *Table) AllocateOffset(g int) int {
	return t.Attribute(g).AllocateSlotOffset
}

// SetRequiredSlot sets group g's slot count, clamped to [1, size]. A cursor
// left outside the new block restarts at 0.
func (t *Table) SetRequiredSlot(g, n int) {
	if !t.valid(g) {
		return
	}
	if n < 1 {
		n = 1
	}
	if n > t.size {
		n = t.size
	}
	attr := &t.groups[g]
	attr.RequiredSlot = n
	if attr.AllocateSlotOffset >= n {
		attr.AllocateSlotOffset = 0
	}
}

// SetAllocateOffset sets group g's cursor, wrapped into [0, RequiredSlot).
func (t *Table) SetAllocateOffset(g, n int) {
	if !t.valid(g) {
		return
	}
	attr := &t.groups[g]
	n %= attr.RequiredSlot
	if n < 0 {
		n += attr.RequiredSlot
	}
	attr.AllocateSlotOffset = n
}

// Advance moves group g's cursor forward by step and returns the value it
// had before moving.
func (t *Table) Advance(g, step int) int {
	cur := t.AllocateOffset(g)
	t.SetAllocateOffset(g, cur+step)
	return cur
}

// Reset restores group g to DefaultAttribute.
func (t *Table) Reset(g int) {
	if t.valid(g) {
		t.groups[g] = DefaultAttribute
	}
}

// ResetAll restores every group to DefaultAttribute.
func (t *Table) ResetAll() {
	for i := range t.groups {
		t.groups[i] = DefaultAttribute
	}
}

// Snapshot returns a copy of every group's state.
func (t *Table) Snapshot() []Attribute {
	out := make([]Attribute, len(t.groups))
	copy(out, t.groups)
	return out
}
