// Package orchestra dispatches TSCH scheduling events to an ordered list of
// scheduling rules.
//
// # Rules and Hooks
//
// A rule is anything with a Name. Beyond that, a rule implements only the
// hooks it cares about, each one a small interface in this package
// (PacketSelector, Allocator, Maintainer, ...). New inspects every rule once
// and files it under each hook it implements.
//
// # Dispatch Semantics
//
// Rules keep the priority order they were registered in. Two kinds of events
// exist:
//
//   - Selection events (SelectPacket, PacketNoAck, IsSlotForParent,
//     IsPacketForParent, RequestForParent) stop at the first rule that
//     claims the event.
//   - Notification events (Init, NewTimeSource, ChildAdded, ChildRemoved,
//     RequestSlotRoutine, SlotRequestAcked, SetRequestedSlotsFromChild,
//     AllocateRoutine, RxUseCount, MaintainRoutine) reach every rule that
//     implements the hook.
//
// # Link Layer Glue
//
// The Dispatcher also tracks the current parent and whether the parent has
// learned about this node (a DAO was acknowledged). PacketSent and
// ControlReceived translate link-layer outcomes into the capacity-request
// protocol: an acknowledged frame carrying a slot request commits it, and a
// slot request received from a child is handed to the allocation engine.
//
// # Thread-Safety
//
// The hook lists are fixed after New. The parent fields are guarded by a
// mutex; each rule is responsible for its own state.
package orchestra
