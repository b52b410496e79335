package grouped

import (
	"fmt"

	"github.com/vk/groupsched/internal/packet"
)

// Phase is the state of a slot request on one edge of the tree.
type Phase uint8

const (
	// Idle: nothing pending.
	Idle Phase = iota
	// Requesting: a new slot count is waiting to be delivered or acted on.
	Requesting
	// Committing: the request was acknowledged and is being applied.
	Committing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Committing:
		return "committing"
	default:
		return "unknown"
	}
}

// SlotRequest is a request for a slot count on one edge: self to parent, or
// child to self. Count is only meaningful outside Idle, which keeps "no
// request" distinct from any slot count.
type SlotRequest struct {
	Phase Phase `json:"phase"`
	Count int   `json:"count,omitempty"`
}

func idleRequest() SlotRequest {
	return SlotRequest{Phase: Idle}
}

func requesting(n int) SlotRequest {
	return SlotRequest{Phase: Requesting, Count: n}
}

// Pending returns the requested count when a request is outstanding.
func (r SlotRequest) Pending() (int, bool) {
	if r.Phase != Requesting || r.Count < 1 {
		return 0, false
	}
	return r.Count, true
}

// Wire encodes the request into the 4-bit piggyback field; 0 means none.
func (r SlotRequest) Wire() uint8 {
	n, ok := r.Pending()
	if !ok {
		return 0
	}
	if n > packet.MaxSlotRequest {
		n = packet.MaxSlotRequest
	}
	return uint8(n)
}

func (r SlotRequest) String() string {
	if r.Phase == Idle {
		return r.Phase.String()
	}
	return fmt.Sprintf("%s(%d)", r.Phase, r.Count)
}
