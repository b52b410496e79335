// Package inmemoryschedule provides a thread-safe, in-memory implementation
// of the schedule.Service interface.
//
// It is the link table a host-side node or simulator runs against: slotframes
// and links live in maps guarded by a single RWMutex, mirroring the
// write-rarely-read-often access of a TSCH schedule (links change on growth,
// shrink and pruning, while every slot lookup reads).
package inmemoryschedule
