package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/groupsched/internal/inmemoryschedule"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/schedule"
)

// LinkCall records one AddOrUpdateLink invocation.
type LinkCall struct {
	Timeslot uint16
	Options  schedule.LinkOption
}

// RecordingSchedule is an in-memory schedule that records every link update
// and can be told to reject specific timeslots.
type RecordingSchedule struct {
	*inmemoryschedule.Store

	mu    sync.Mutex
	calls []LinkCall
	fail  map[uint16]struct{}
}

// NewRecordingSchedule returns an empty recording schedule.
func NewRecordingSchedule() *RecordingSchedule {
	return &RecordingSchedule{
		Store: inmemoryschedule.New(),
		fail:  make(map[uint16]struct{}),
	}
}

// FailTimeslots makes every later update of the given timeslots fail.
func (r *RecordingSchedule) FailTimeslots(timeslots ...uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ts := range timeslots {
		r.fail[ts] = struct{}{}
	}
}

// AddOrUpdateLink records the call before delegating to the store.
func (r *RecordingSchedule) AddOrUpdateLink(ctx context.Context, slotframe uint16, options schedule.LinkOption, linkType schedule.LinkType,
	dest linkaddr.Address, timeslot, channelOffset uint16) (*schedule.Link, error) {
	r.mu.Lock()
	r.calls = append(r.calls, LinkCall{Timeslot: timeslot, Options: options})
	_, failing := r.fail[timeslot]
	r.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("injected failure at timeslot %d", timeslot)
	}
	return r.Store.AddOrUpdateLink(ctx, slotframe, options, linkType, dest, timeslot, channelOffset)
}

// Calls returns the recorded calls.
func (r *RecordingSchedule) Calls() []LinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LinkCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// ResetCalls forgets the recorded calls.
func (r *RecordingSchedule) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
