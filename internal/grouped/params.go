package grouped

import (
	"math"
	"time"

	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
)

// Params are the tuning constants of the grouped scheduler.
type Params struct {
	// GroupAmount is the number of address groups.
	GroupAmount int
	// GroupSize is the number of timeslots reserved per group, which is
	// also the upper bound of RequiredSlot. It never exceeds
	// packet.MaxSlotRequest so every request fits on the wire.
	GroupSize int
	// AddThreshold: uplink usage above it asks the parent for one more slot.
	AddThreshold int
	// DeleteThreshold: uplink usage below it offers one slot back.
	DeleteThreshold int
	// DebounceCycles is how many consecutive shrink cycles must pass before
	// the node's own block actually shrinks.
	DebounceCycles int
	// NoAckBackoff is the cursor step applied when a parent-bound frame
	// was not acknowledged.
	NoAckBackoff int
	// Partitions is the number of slotframes the groups are multiplexed
	// over. 1 disables partitioning.
	Partitions int
	// MaintainInterval is the period of the passive pruning tick.
	MaintainInterval time.Duration
	// Hash buckets addresses into groups.
	Hash linkaddr.Hasher
}

// DefaultParams returns the defaults used when a configuration omits values.
func DefaultParams() Params {
	return Params{
		GroupAmount:      4,
		GroupSize:        8,
		AddThreshold:     3,
		DeleteThreshold:  1,
		DebounceCycles:   10,
		NoAckBackoff:     1,
		Partitions:       1,
		MaintainInterval: 30 * time.Second,
		Hash:             linkaddr.LastOctetHash,
	}
}

// Period is the length of the unicast slotframe: one block per group.
func (p Params) Period() uint16 {
	return uint16(p.GroupAmount * p.GroupSize)
}

// normalize replaces out-of-range values with defaults so the engine is
// total over any Params value.
func (p Params) normalize() Params {
	d := DefaultParams()
	if p.GroupAmount < 1 {
		p.GroupAmount = d.GroupAmount
	}
	if p.GroupSize < 1 {
		p.GroupSize = d.GroupSize
	}
	p.GroupSize = min(p.GroupSize, packet.MaxSlotRequest)
	if p.GroupAmount*p.GroupSize > math.MaxUint16 {
		p.GroupAmount = d.GroupAmount
	}
	if p.DebounceCycles < 1 {
		p.DebounceCycles = d.DebounceCycles
	}
	if p.NoAckBackoff < 1 {
		p.NoAckBackoff = d.NoAckBackoff
	}
	if p.Partitions < 1 {
		p.Partitions = d.Partitions
	}
	if p.MaintainInterval <= 0 {
		p.MaintainInterval = d.MaintainInterval
	}
	if p.Hash == nil {
		p.Hash = d.Hash
	}
	return p
}
