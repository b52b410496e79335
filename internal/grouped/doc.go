// Package grouped implements the grouped, traffic-adaptive slot allocation
// engine of a TSCH node.
//
// Neighbors are hashed into GroupAmount groups. Each group owns a contiguous
// block of GroupSize timeslots starting at group*GroupSize, of which the
// first RequiredSlot are in use. The block grows and shrinks at its tail:
//
//	group g:  | base | base+1 | ... | base+RequiredSlot-1 | (unused) ... |
//	                                  ^ tail slot
//
// Three loops adjust RequiredSlot:
//
//   - AllocateRoutine grows the node's own block immediately when a child asks
//     for more slots, and shrinks it only after DebounceCycles consecutive
//     cycles of smaller requests.
//   - RequestSlotRoutine and SlotRequestAcked run the same negotiation one
//     level up: the node proposes a new count for its parent's group and
//     commits it only once the parent acknowledged the carrying message.
//   - MaintainRoutine drops the tail slot when nothing was received on it
//     during the last maintenance interval.
//
// Outgoing unicast frames to the parent are spread round robin across the
// parent group's block; frames to anyone else go to the first slot of the
// destination's block.
//
// # Concurrency
//
// A Handler owns the group table and both request states; every Rule sharing
// that Handler serializes on the Handler's mutex, so packet selection and the
// periodic maintenance tick never interleave inside a read-modify-write.
package grouped
