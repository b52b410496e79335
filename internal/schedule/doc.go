// Package schedule defines the contract of the TDMA schedule service the
// grouped scheduler drives: slotframes, links and the capability flags on
// them. Storage and enforcement of the schedule belong to the link layer;
// see internal/inmemoryschedule for the host-side implementation.
//
// The service has no delete operation. Removing a slot from a node's block is
// expressed as downgrading the link's options, so the link table only ever
// grows to the slotframe period.
package schedule
