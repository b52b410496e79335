package schedule

import (
	"context"
	"strings"

	"github.com/vk/groupsched/internal/linkaddr"
)

// LinkOption is a capability flag on a link.
type LinkOption uint8

const (
	OptionTx LinkOption = 1 << iota
	OptionRx
	OptionShared
	OptionTimeKeeping
)

// Has reports whether every flag in want is set.
func (o LinkOption) Has(want LinkOption) bool {
	return o&want == want
}

func (o LinkOption) String() string {
	var parts []string
	if o.Has(OptionTx) {
		parts = append(parts, "tx")
	}
	if o.Has(OptionRx) {
		parts = append(parts, "rx")
	}
	if o.Has(OptionShared) {
		parts = append(parts, "shared")
	}
	if o.Has(OptionTimeKeeping) {
		parts = append(parts, "timekeeping")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// LinkType distinguishes data links from beacon links.
type LinkType uint8

const (
	LinkNormal LinkType = iota
	LinkAdvertising
)

// Slotframe is a repeating sequence of Period timeslots.
type Slotframe struct {
	Handle uint16
	Period uint16
}

// Link is a (slotframe, timeslot, channel offset, capability) binding.
type Link struct {
	Slotframe     uint16
	Timeslot      uint16
	ChannelOffset uint16
	Options       LinkOption
	Type          LinkType
	Destination   linkaddr.Address
}

// Any is the sentinel for "any slotframe" / "any timeslot".
const Any uint16 = 0xffff

// Selection is the slot chosen for an outbound frame.
type Selection struct {
	Slotframe uint16
	Timeslot  uint16
}

// AnySelection lets the link layer use whatever link comes first.
var AnySelection = Selection{Slotframe: Any, Timeslot: Any}

// Service is the TDMA schedule service.
type Service interface {
	// AddSlotframe creates the slotframe with the given handle, or returns
	// the existing one.
	AddSlotframe(ctx context.Context, handle, period uint16) (*Slotframe, error)

	// AddOrUpdateLink installs a link at (slotframe, timeslot), replacing
	// the options of any link already there.
	AddOrUpdateLink(ctx context.Context, slotframe uint16, options LinkOption, linkType LinkType,
		dest linkaddr.Address, timeslot, channelOffset uint16) (*Link, error)
}
