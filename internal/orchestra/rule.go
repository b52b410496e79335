package orchestra

import (
	"context"

	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
	"github.com/vk/groupsched/internal/schedule"
)

// Rule is the minimal contract of a scheduling rule.
type Rule interface {
	Name() string
}

// Initializer sets up a rule's slotframe. The handle is the rule's position
// in the priority list.
type Initializer interface {
	Rule
	Init(ctx context.Context, handle uint16) error
}

// PacketSelector picks the slot for an outbound frame.
type PacketSelector interface {
	Rule
	SelectPacket(ctx context.Context, f *packet.Frame) (schedule.Selection, bool)
}

// NoAckHandler re-addresses a queued frame that was not acknowledged.
type NoAckHandler interface {
	Rule
	PacketNoAck(ctx context.Context, f *packet.Frame) (schedule.Selection, bool)
}

// TimeSourceObserver is told about parent switches.
type TimeSourceObserver interface {
	Rule
	NewTimeSource(ctx context.Context, oldParent, newParent linkaddr.Address)
}

// ChildObserver is told about routing children joining and leaving.
type ChildObserver interface {
	Rule
	ChildAdded(ctx context.Context, a linkaddr.Address)
	ChildRemoved(ctx context.Context, a linkaddr.Address)
}

// ParentSlotClassifier tells whether a link serves traffic to the parent.
type ParentSlotClassifier interface {
	Rule
	IsSlotForParent(ctx context.Context, l schedule.Link) bool
}

// ParentPacketClassifier tells whether a frame goes to the parent.
type ParentPacketClassifier interface {
	Rule
	IsPacketForParent(ctx context.Context, f *packet.Frame) bool
}

// ParentRequester provides the slot request to piggyback on frames to dest.
type ParentRequester interface {
	Rule
	RequestForParent(ctx context.Context, dest linkaddr.Address) (uint8, bool)
}

// SlotRequester runs the uplink side of the capacity-request protocol.
type SlotRequester interface {
	Rule
	RequestSlotRoutine(ctx context.Context, used int)
	SlotRequestAcked(ctx context.Context)
}

// ChildRequestSink receives slot requests from children.
type ChildRequestSink interface {
	Rule
	SetRequestedSlotsFromChild(ctx context.Context, n uint8)
}

// Allocator adapts the node's own schedule to the latest child request.
type Allocator interface {
	Rule
	AllocateRoutine(ctx context.Context)
}

// RxObserver is told about every reception on a link.
type RxObserver interface {
	Rule
	RxUseCount(ctx context.Context, l schedule.Link, received, valid bool)
}

// Maintainer runs on every maintenance tick.
type Maintainer interface {
	Rule
	MaintainRoutine(ctx context.Context)
}
