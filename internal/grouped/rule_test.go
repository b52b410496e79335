package grouped

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
	"github.com/vk/groupsched/internal/schedule"
	"github.com/vk/groupsched/internal/testutil"
)

const testHandle = 1

type ruleFixture struct {
	ctx   context.Context
	logs  *testutil.SafeBuffer
	h     *Handler
	rule  *Rule
	sched *testutil.RecordingSchedule
}

func newRuleFixture(t *testing.T, mutate ...func(*Params)) *ruleFixture {
	t.Helper()
	ctx, logs := testutil.LogContext(t)
	h := newTestHandler(t, mutate...)
	sched := testutil.NewRecordingSchedule()
	rule := NewRule(h, sched, 0)
	require.NoError(t, rule.Init(ctx, testHandle))
	sched.ResetCalls()
	return &ruleFixture{ctx: ctx, logs: logs, h: h, rule: rule, sched: sched}
}

// allocate runs one allocation cycle with the given child request.
func (f *ruleFixture) allocate(requested uint8) {
	f.h.SetRequestedSlotsFromChild(f.ctx, requested)
	f.rule.AllocateRoutine(f.ctx)
}

func (f *ruleFixture) options(t *testing.T, ts uint16) schedule.LinkOption {
	t.Helper()
	l, ok := f.sched.Link(testHandle, ts)
	require.True(t, ok, "no link at timeslot %d", ts)
	return l.Options
}

func TestRule_Init(t *testing.T) {
	f := newRuleFixture(t)

	sf, ok := f.sched.Slotframe(testHandle)
	require.True(t, ok)
	assert.Equal(t, uint16(32), sf.Period)
	assert.Equal(t, uint16(testHandle), f.rule.Handle())
	assert.Equal(t, "grouped-slotframe-0", f.rule.Name())

	links := f.sched.Links(testHandle)
	require.Len(t, links, 32)
	for _, l := range links {
		assert.True(t, l.Options.Has(schedule.OptionShared|schedule.OptionTx), "timeslot %d", l.Timeslot)
		assert.Equal(t, linkaddr.Broadcast, l.Destination)
	}
	assert.Equal(t, []uint16{8}, f.sched.RxTimeslots(testHandle), "Rx only at the node's own first slot")
}

func TestRule_InitFailsOnConflictingSlotframe(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)
	sched := testutil.NewRecordingSchedule()
	_, err := sched.AddSlotframe(ctx, testHandle, 7)
	require.NoError(t, err)

	err = NewRule(h, sched, 0).Init(ctx, testHandle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add slotframe")
}

func TestRule_GrowthIsImmediate(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 2)

	f.allocate(5)

	assert.Equal(t, 5, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, []testutil.LinkCall{
		{Timeslot: 10, Options: growOptions},
		{Timeslot: 11, Options: growOptions},
		{Timeslot: 12, Options: growOptions},
	}, f.sched.Calls())
	assert.Equal(t, SlotRequest{Phase: Idle}, f.h.ChildRequest(), "child request consumed")
	assert.Equal(t, 10, f.rule.Countdown())
}

func TestRule_ShrinkIsDebounced(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 5)

	for i := 1; i < 10; i++ {
		f.allocate(3)
		require.Equal(t, 5, f.h.RequiredSlot(selfGroup), "cycle %d must not shrink yet", i)
		require.Empty(t, f.sched.Calls())
	}

	f.allocate(3)
	assert.Equal(t, 3, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, []testutil.LinkCall{
		{Timeslot: 12, Options: shrinkOptions},
		{Timeslot: 11, Options: shrinkOptions},
	}, f.sched.Calls(), "tail links downgraded backward")
	assert.Equal(t, 10, f.rule.Countdown(), "debounce rearmed")
}

func TestRule_EqualRequestRearmsDebounce(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 5)

	for i := 0; i < 5; i++ {
		f.allocate(3)
	}
	require.Equal(t, 5, f.rule.Countdown())

	f.allocate(5)
	assert.Equal(t, 10, f.rule.Countdown())

	for i := 0; i < 9; i++ {
		f.allocate(3)
	}
	assert.Equal(t, 5, f.h.RequiredSlot(selfGroup), "a full debounce period is needed again")
}

func TestRule_GrowthRearmsDebounce(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 4)

	for i := 0; i < 4; i++ {
		f.allocate(2)
	}
	f.allocate(6)
	assert.Equal(t, 6, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, 10, f.rule.Countdown())
}

func TestRule_RequestClampedToGroupSize(t *testing.T) {
	f := newRuleFixture(t)

	f.allocate(15)

	assert.Equal(t, 8, f.h.RequiredSlot(selfGroup))
	assert.Len(t, f.sched.Calls(), 7)
	for _, c := range f.sched.Calls() {
		assert.Less(t, c.Timeslot, uint16(16), "growth must stay inside the own block")
	}
}

func TestRule_NoRequestDoesNothing(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 3)

	f.rule.AllocateRoutine(f.ctx)
	f.allocate(0)

	assert.Equal(t, 3, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, 10, f.rule.Countdown())
	assert.Empty(t, f.sched.Calls())
}

func TestRule_ScheduleFailureStillUpdatesTable(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 2)
	f.sched.FailTimeslots(11)

	f.allocate(5)

	assert.Equal(t, 5, f.h.RequiredSlot(selfGroup))
	assert.Len(t, f.sched.Calls(), 3, "remaining links still attempted")
	assert.True(t, f.options(t, 12).Has(schedule.OptionRx))
	assert.False(t, f.options(t, 11).Has(schedule.OptionRx), "rejected link keeps its previous options")
	testutil.AssertLogged(t, f.logs, "Schedule rejected link")
	testutil.AssertLogged(t, f.logs, "level=WARN")
}

func TestRule_SelectPacketRoundRobinToParent(t *testing.T) {
	f := newRuleFixture(t)
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(parentGroup, 3)

	tests := []struct {
		name  string
		start int
		want  []uint16
	}{
		{name: "from offset 0", start: 0, want: []uint16{16, 17, 18, 16, 17, 18, 16, 17, 18, 16}},
		{name: "from offset 1", start: 1, want: []uint16{17, 18, 16, 17, 18, 16, 17, 18, 16, 17}},
		{name: "from offset 2", start: 2, want: []uint16{18, 16, 17, 18, 16, 17, 18, 16, 17, 18}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.h.SetAllocateOffset(parentGroup, tc.start)

			var got []uint16
			for i := 0; i < 10; i++ {
				sel, ok := f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))
				require.True(t, ok)
				require.Equal(t, uint16(testHandle), sel.Slotframe)
				got = append(got, sel.Timeslot)
			}
			assert.Equal(t, tc.want, got)
			assert.Equal(t, (tc.start+10)%3, f.h.AllocateOffset(parentGroup))
		})
	}
}

func TestRule_SelectPacketToNonParentUsesBase(t *testing.T) {
	f := newRuleFixture(t)
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(childGroup, 4)
	f.h.SetAllocateOffset(childGroup, 2)

	for i := 0; i < 3; i++ {
		sel, ok := f.rule.SelectPacket(f.ctx, packet.NewData(childAddr))
		require.True(t, ok)
		assert.Equal(t, uint16(24), sel.Timeslot)
	}
	assert.Equal(t, 2, f.h.AllocateOffset(childGroup), "cursor untouched for non-parent traffic")
}

func TestRule_SelectPacketRejects(t *testing.T) {
	f := newRuleFixture(t)
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)

	tests := []struct {
		name  string
		frame *packet.Frame
	}{
		{"nil frame", nil},
		{"beacon", &packet.Frame{Type: packet.TypeBeacon, Destination: parentAddr}},
		{"ack", &packet.Frame{Type: packet.TypeAck, Destination: parentAddr}},
		{"null destination", packet.NewData(linkaddr.Null)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sel, ok := f.rule.SelectPacket(f.ctx, tc.frame)
			assert.False(t, ok)
			assert.Equal(t, schedule.AnySelection, sel)

			sel, ok = f.rule.PacketNoAck(f.ctx, tc.frame)
			assert.False(t, ok)
			assert.Equal(t, schedule.AnySelection, sel)
		})
	}
	assert.Equal(t, 0, f.h.AllocateOffset(parentGroup))
}

func TestRule_PacketNoAckBackoff(t *testing.T) {
	f := newRuleFixture(t, func(p *Params) { p.NoAckBackoff = 2 })
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(parentGroup, 3)

	var got []uint16
	for i := 0; i < 4; i++ {
		sel, ok := f.rule.PacketNoAck(f.ctx, packet.NewData(parentAddr))
		require.True(t, ok)
		got = append(got, sel.Timeslot)
	}
	assert.Equal(t, []uint16{16, 18, 17, 16}, got)
}

func TestRule_ParentSwitchRestartsRoundRobin(t *testing.T) {
	f := newRuleFixture(t)
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(parentGroup, 3)
	f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))
	f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))

	f.h.NewTimeSource(f.ctx, parentAddr, otherAddr)
	f.h.NewTimeSource(f.ctx, otherAddr, parentAddr)

	sel, ok := f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))
	require.True(t, ok)
	assert.Equal(t, uint16(16), sel.Timeslot)
	sel, _ = f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))
	assert.Equal(t, uint16(16), sel.Timeslot, "reset group owns a single slot again")
}

func TestRule_IsSlotForParent(t *testing.T) {
	f := newRuleFixture(t)
	link := func(sf, ts uint16) schedule.Link { return schedule.Link{Slotframe: sf, Timeslot: ts} }

	assert.False(t, f.rule.IsSlotForParent(f.ctx, link(testHandle, 16)), "no parent yet")

	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(parentGroup, 2)

	assert.True(t, f.rule.IsSlotForParent(f.ctx, link(testHandle, 16)))
	assert.True(t, f.rule.IsSlotForParent(f.ctx, link(testHandle, 17)))
	assert.False(t, f.rule.IsSlotForParent(f.ctx, link(testHandle, 18)))
	assert.False(t, f.rule.IsSlotForParent(f.ctx, link(testHandle, 15)))
	assert.False(t, f.rule.IsSlotForParent(f.ctx, link(testHandle+1, 16)))
}

func TestRule_RxUseCountOnlyOnTail(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 3)
	tail := f.rule.TailLink()
	require.Equal(t, uint16(10), tail.Timeslot)

	f.rule.RxUseCount(f.ctx, tail, true, true)
	f.rule.RxUseCount(f.ctx, tail, true, false)
	f.rule.RxUseCount(f.ctx, tail, false, true)
	f.rule.RxUseCount(f.ctx, schedule.Link{Slotframe: testHandle, Timeslot: 9}, true, true)
	f.rule.RxUseCount(f.ctx, schedule.Link{Slotframe: testHandle + 1, Timeslot: 10}, true, true)

	assert.Equal(t, 1, f.rule.RxCount())
}

func TestRule_MaintainPrunesOneSlotPerTick(t *testing.T) {
	f := newRuleFixture(t)
	f.h.SetRequiredSlot(selfGroup, 3)

	f.rule.MaintainRoutine(f.ctx)
	assert.Equal(t, 2, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, []testutil.LinkCall{{Timeslot: 10, Options: shrinkOptions}}, f.sched.Calls())

	// Traffic on the tail keeps it.
	f.rule.RxUseCount(f.ctx, f.rule.TailLink(), true, true)
	f.rule.MaintainRoutine(f.ctx)
	assert.Equal(t, 2, f.h.RequiredSlot(selfGroup))
	assert.Equal(t, 0, f.rule.RxCount(), "counter restarts every tick")

	f.rule.MaintainRoutine(f.ctx)
	assert.Equal(t, 1, f.h.RequiredSlot(selfGroup))

	f.rule.MaintainRoutine(f.ctx)
	assert.Equal(t, 1, f.h.RequiredSlot(selfGroup), "never below one slot")
	assert.Len(t, f.sched.Calls(), 2)
}

func TestRule_Partitions(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, func(p *Params) { p.Partitions = 2 })
	sched := testutil.NewRecordingSchedule()
	r0 := NewRule(h, sched, 0)
	r1 := NewRule(h, sched, 1)
	require.NoError(t, r0.Init(ctx, 1))
	require.NoError(t, r1.Init(ctx, 2))

	// self (0x01): 1/4 = 0 -> partition 0; peer (0x05): 5/4 = 1 -> partition 1.
	assert.Equal(t, []uint16{8}, sched.RxTimeslots(1))
	assert.Empty(t, sched.RxTimeslots(2))

	_, ok := r0.SelectPacket(ctx, packet.NewData(peerAddr))
	assert.False(t, ok)
	sel, ok := r1.SelectPacket(ctx, packet.NewData(peerAddr))
	require.True(t, ok)
	assert.Equal(t, schedule.Selection{Slotframe: 2, Timeslot: 8}, sel)

	h.SetRequestedSlotsFromChild(ctx, 3)
	r1.AllocateRoutine(ctx)
	assert.Equal(t, 1, h.RequiredSlot(selfGroup), "rule of another partition leaves the own block alone")
	assert.Equal(t, SlotRequest{Phase: Requesting, Count: 3}, h.ChildRequest())

	r0.AllocateRoutine(ctx)
	assert.Equal(t, 3, h.RequiredSlot(selfGroup))

	// parent (0x02): 2/4 = 0 -> partition 0 only.
	h.NewTimeSource(ctx, linkaddr.Null, parentAddr)
	assert.True(t, r0.IsSlotForParent(ctx, schedule.Link{Slotframe: 1, Timeslot: 16}))
	assert.False(t, r1.IsSlotForParent(ctx, schedule.Link{Slotframe: 2, Timeslot: 16}), "parent lives in another partition")
}

func TestRule_ConcurrentEvents(t *testing.T) {
	f := newRuleFixture(t)
	f.h.NewTimeSource(f.ctx, linkaddr.Null, parentAddr)
	f.h.SetRequiredSlot(parentGroup, 4)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f.rule.SelectPacket(f.ctx, packet.NewData(parentAddr))
				f.rule.PacketNoAck(f.ctx, packet.NewData(parentAddr))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f.allocate(uint8(j%9 + 1))
				f.rule.RxUseCount(f.ctx, f.rule.TailLink(), true, true)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				f.rule.MaintainRoutine(f.ctx)
				f.h.RequestSlotRoutine(f.ctx, j%6)
				f.h.SlotRequestAcked(f.ctx)
			}
		}()
	}
	wg.Wait()

	for g, attr := range f.h.Snapshot().Groups {
		assert.GreaterOrEqual(t, attr.RequiredSlot, 1, "group %d", g)
		assert.LessOrEqual(t, attr.RequiredSlot, 8, "group %d", g)
		assert.GreaterOrEqual(t, attr.AllocateSlotOffset, 0, "group %d", g)
		assert.Less(t, attr.AllocateSlotOffset, attr.RequiredSlot, "group %d", g)
	}
}

func TestNewRules_OnePerPartition(t *testing.T) {
	h := newTestHandler(t, func(p *Params) { p.Partitions = 3 })
	rules := NewRules(h, testutil.NewRecordingSchedule())

	require.Len(t, rules, 3)
	var names []string
	var serving int
	for _, r := range rules {
		names = append(names, r.Name())
		if r.ServesSelf() {
			serving++
		}
	}
	assert.Equal(t, []string{"grouped-slotframe-0", "grouped-slotframe-1", "grouped-slotframe-2"}, names)
	assert.Equal(t, 1, serving, "exactly one partition owns the node's block")
}
