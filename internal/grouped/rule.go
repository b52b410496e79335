package grouped

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
	"github.com/vk/groupsched/internal/schedule"
)

const (
	growOptions   = schedule.OptionShared | schedule.OptionTx | schedule.OptionRx
	shrinkOptions = schedule.OptionShared | schedule.OptionTx
)

// Rule is the grouped unicast slotframe rule. A node runs one Rule per
// slotframe partition, all sharing the same Handler.
type Rule struct {
	h         *Handler
	svc       schedule.Service
	partition int

	// Guarded by h.mu.
	handle        uint16
	channelOffset uint16
	countdown     int
	lastRxCount   int
}

// NewRule creates the rule serving the given slotframe partition.
func NewRule(h *Handler, svc schedule.Service, partition int) *Rule {
	return &Rule{
		h:         h,
		svc:       svc,
		partition: partition,
		countdown: h.params.DebounceCycles,
	}
}

// Name identifies the rule in the rule dispatcher.
func (r *Rule) Name() string {
	return fmt.Sprintf("grouped-slotframe-%d", r.partition)
}

// Handle returns the slotframe handle assigned at Init.
func (r *Rule) Handle() uint16 {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.handle
}

// Countdown returns the remaining shrink debounce cycles.
func (r *Rule) Countdown() int {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.countdown
}

// RxCount returns the receptions counted on the tail slot since the last
// maintenance tick.
func (r *Rule) RxCount() int {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.lastRxCount
}

// NewRules creates one rule per slotframe partition configured in h.
func NewRules(h *Handler, svc schedule.Service) []*Rule {
	rules := make([]*Rule, h.params.Partitions)
	for i := range rules {
		rules[i] = NewRule(h, svc, i)
	}
	return rules
}

// ServesSelf reports whether this rule's partition carries the node's own
// block, and therefore runs allocation and pruning.
func (r *Rule) ServesSelf() bool {
	return r.servesAddress(r.h.self)
}

// servesAddress reports whether a's traffic belongs to this rule's
// slotframe partition.
func (r *Rule) servesAddress(a linkaddr.Address) bool {
	p := r.h.params
	if p.Partitions <= 1 {
		return true
	}
	return (int(p.Hash(a))/p.GroupAmount)%p.Partitions == r.partition
}

func (r *Rule) logger(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx).With("rule", r.Name())
}

// Init creates the unicast slotframe and installs a shared Tx link at every
// timeslot, with Rx added at the node's own first group slot.
func (r *Rule) Init(ctx context.Context, handle uint16) error {
	logger := r.logger(ctx)

	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	r.handle = handle
	r.channelOffset = handle

	period := r.h.params.Period()
	if _, err := r.svc.AddSlotframe(ctx, handle, period); err != nil {
		return fmt.Errorf("failed to add slotframe %d: %w", handle, err)
	}

	rxTimeslot := -1
	if g := r.h.table.GroupOf(r.h.self); g != NoGroup && r.servesAddress(r.h.self) {
		rxTimeslot = r.h.table.Base(g) + r.h.table.AllocateOffset(g)
	}
	for ts := 0; ts < int(period); ts++ {
		opts := schedule.OptionShared | schedule.OptionTx
		if ts == rxTimeslot {
			opts |= schedule.OptionRx
		}
		if _, err := r.svc.AddOrUpdateLink(ctx, handle, opts, schedule.LinkNormal, linkaddr.Broadcast, uint16(ts), r.channelOffset); err != nil {
			return fmt.Errorf("failed to add link at timeslot %d: %w", ts, err)
		}
	}
	logger.Debug("Grouped slotframe initialized.", "handle", handle, "period", period, "rx_timeslot", rxTimeslot)
	return nil
}

// SelectPacket picks the slot for an outbound frame.
func (r *Rule) SelectPacket(ctx context.Context, f *packet.Frame) (schedule.Selection, bool) {
	return r.selectSlot(ctx, f, 1)
}

// PacketNoAck re-addresses a queued frame that was not acknowledged, moving
// the parent cursor by the configured backoff.
func (r *Rule) PacketNoAck(ctx context.Context, f *packet.Frame) (schedule.Selection, bool) {
	return r.selectSlot(ctx, f, r.h.params.NoAckBackoff)
}

func (r *Rule) selectSlot(ctx context.Context, f *packet.Frame, step int) (schedule.Selection, bool) {
	if f == nil || f.Type != packet.TypeData || f.Destination.IsNull() || !r.servesAddress(f.Destination) {
		return schedule.AnySelection, false
	}

	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	t := r.h.table
	g := t.GroupOf(f.Destination)
	ts := t.Base(g)
	if r.h.isTimeSource(f.Destination) {
		ts += t.Advance(g, step)
	}
	return schedule.Selection{Slotframe: r.handle, Timeslot: uint16(ts)}, true
}

// AllocateRoutine runs one allocation cycle of the node's own block against
// the latest child request. Growth is applied at once; shrinking waits for
// DebounceCycles consecutive cycles asking for less. The child request is
// consumed either way.
func (r *Rule) AllocateRoutine(ctx context.Context) {
	logger := r.logger(ctx)

	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if !r.servesAddress(r.h.self) {
		return
	}
	defer func() { r.h.downlink = idleRequest() }()

	g := r.h.table.GroupOf(r.h.self)
	requested, ok := r.h.downlink.Pending()
	if g == NoGroup || !ok {
		return
	}
	requested = min(requested, r.h.params.GroupSize)
	current := r.h.table.RequiredSlot(g)

	switch {
	case requested > current:
		r.countdown = r.h.params.DebounceCycles
		r.growSelf(ctx, g, requested)
	case requested == current:
		r.countdown = r.h.params.DebounceCycles
	default:
		r.countdown--
		if r.countdown <= 0 {
			r.countdown = r.h.params.DebounceCycles
			r.shrinkSelf(ctx, g, requested)
		}
	}
	logger.Debug("Allocation cycle.", "requested", requested, "required_slot", r.h.table.RequiredSlot(g), "countdown", r.countdown)
}

// growSelf turns the slots right after the tail of group g into shared
// Tx/Rx links. Caller holds h.mu.
func (r *Rule) growSelf(ctx context.Context, g, requested int) {
	logger := r.logger(ctx)
	t := r.h.table
	current := t.RequiredSlot(g)
	ts := t.Base(g) + current - 1

	for i := 0; i < requested-current; i++ {
		ts++
		if _, err := r.svc.AddOrUpdateLink(ctx, r.handle, growOptions, schedule.LinkNormal, linkaddr.Broadcast, uint16(ts), r.channelOffset); err != nil {
			logger.Warn("Schedule rejected link, table keeps the intended state.", "timeslot", ts, "error", err)
			continue
		}
		logger.Debug("Link added.", "timeslot", ts)
	}
	t.SetRequiredSlot(g, requested)
}

// shrinkSelf downgrades the tail slots of group g to shared Tx-only, working
// backward until requested slots remain. Caller holds h.mu.
func (r *Rule) shrinkSelf(ctx context.Context, g, requested int) {
	logger := r.logger(ctx)
	t := r.h.table
	current := t.RequiredSlot(g)
	ts := t.Base(g) + current - 1

	for i := 0; i < current-requested; i++ {
		if _, err := r.svc.AddOrUpdateLink(ctx, r.handle, shrinkOptions, schedule.LinkNormal, linkaddr.Broadcast, uint16(ts), r.channelOffset); err != nil {
			logger.Warn("Schedule rejected link, table keeps the intended state.", "timeslot", ts, "error", err)
		} else {
			logger.Debug("Link removed.", "timeslot", ts)
		}
		ts--
	}
	t.SetRequiredSlot(g, requested)
}

// IsSlotForParent reports whether l lies inside the parent's owned block.
func (r *Rule) IsSlotForParent(ctx context.Context, l schedule.Link) bool {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	if l.Slotframe != r.handle || r.h.parent.IsNull() || !r.servesAddress(r.h.parent) {
		return false
	}
	g := r.h.table.GroupOf(r.h.parent)
	if g == NoGroup {
		return false
	}
	start := r.h.table.Base(g)
	ts := int(l.Timeslot)
	return ts >= start && ts < start+r.h.table.RequiredSlot(g)
}

// TailLink returns the node's own last owned slot in this slotframe.
func (r *Rule) TailLink() schedule.Link {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return schedule.Link{Slotframe: r.handle, Timeslot: uint16(r.tailTimeslot()), ChannelOffset: r.channelOffset}
}

// tailTimeslot returns the own tail slot, or -1 without a group. Caller
// holds h.mu.
func (r *Rule) tailTimeslot() int {
	g := r.h.table.GroupOf(r.h.self)
	if g == NoGroup {
		return -1
	}
	return r.h.table.Base(g) + r.h.table.RequiredSlot(g) - 1
}

// RxUseCount counts a reception on the node's tail slot when the frame was
// both received and valid.
func (r *Rule) RxUseCount(ctx context.Context, l schedule.Link, received, valid bool) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	tail := r.tailTimeslot()
	if tail < 0 || l.Slotframe != r.handle || int(l.Timeslot) != tail {
		return
	}
	if received && valid {
		r.lastRxCount++
	}
}

// MaintainRoutine drops the tail slot when it saw no reception since the
// last tick, never going below one slot. The reception counter restarts
// every tick.
func (r *Rule) MaintainRoutine(ctx context.Context) {
	logger := r.logger(ctx)

	r.h.mu.Lock()
	defer r.h.mu.Unlock()

	defer func() { r.lastRxCount = 0 }()
	if !r.servesAddress(r.h.self) {
		return
	}
	g := r.h.table.GroupOf(r.h.self)
	if g == NoGroup {
		return
	}
	if required := r.h.table.RequiredSlot(g); required > 1 && r.lastRxCount == 0 {
		logger.Debug("Pruning unused tail slot.", "required_slot", required)
		r.shrinkSelf(ctx, g, required-1)
	}
}
