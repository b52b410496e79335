// Package packet describes the outbound frames the scheduler classifies. The
// framing itself is owned by the link layer; only the fields slot selection
// depends on are modelled here.
package packet

import "github.com/vk/groupsched/internal/linkaddr"

// Type is the IEEE 802.15.4 frame type.
type Type uint8

const (
	TypeBeacon Type = iota
	TypeData
	TypeAck
	TypeCommand
)

func (t Type) String() string {
	switch t {
	case TypeBeacon:
		return "beacon"
	case TypeData:
		return "data"
	case TypeAck:
		return "ack"
	case TypeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// ControlCode identifies routing control messages carried in data frames.
type ControlCode uint8

const (
	ControlNone ControlCode = iota
	ControlDIO
	ControlDAO
	ControlKeepAlive
)

// MaxSlotRequest is the largest slot count representable in the 4-bit
// piggybacked request field. Zero means "no request".
const MaxSlotRequest = 15

// Frame is an outbound frame, either freshly produced or sitting in the
// transmit queue.
type Frame struct {
	Type        Type
	Destination linkaddr.Address
	Control     ControlCode
	// SlotRequest is the piggybacked capacity request towards the parent.
	SlotRequest uint8
}

// NewData returns a data frame addressed to dest.
func NewData(dest linkaddr.Address) *Frame {
	return &Frame{Type: TypeData, Destination: dest}
}

// NewControl returns a routing control message addressed to dest, carrying
// the given piggybacked slot request.
func NewControl(dest linkaddr.Address, code ControlCode, slotRequest uint8) *Frame {
	if slotRequest > MaxSlotRequest {
		slotRequest = MaxSlotRequest
	}
	return &Frame{Type: TypeData, Destination: dest, Control: code, SlotRequest: slotRequest}
}

// TxStatus is the link-layer outcome of a transmission.
type TxStatus uint8

const (
	TxOK TxStatus = iota
	TxNoAck
	TxCollision
	TxErr
)
