package orchestra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
	"github.com/vk/groupsched/internal/schedule"
)

// Dispatcher fans scheduling events out to rules in priority order.
type Dispatcher struct {
	rules []Rule

	selectors        []PacketSelector
	noAckHandlers    []NoAckHandler
	timeSources      []TimeSourceObserver
	childObservers   []ChildObserver
	slotClassifiers  []ParentSlotClassifier
	frameClassifiers []ParentPacketClassifier
	parentRequesters []ParentRequester
	slotRequesters   []SlotRequester
	childSinks       []ChildRequestSink
	allocators       []Allocator
	rxObservers      []RxObserver
	maintainers      []Maintainer

	mu            sync.Mutex
	parent        linkaddr.Address
	parentKnowsUs bool
}

// New builds a dispatcher over rules, highest priority first. It panics on a
// nil rule or a duplicate rule name, since both are wiring mistakes.
func New(rules ...Rule) *Dispatcher {
	d := &Dispatcher{}
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r == nil {
			panic(fmt.Sprintf("orchestra: rule at position %d is nil", i))
		}
		if _, dup := seen[r.Name()]; dup {
			panic(fmt.Sprintf("orchestra: rule '%s' registered twice", r.Name()))
		}
		seen[r.Name()] = struct{}{}
		d.add(r)
	}
	return d
}

func (d *Dispatcher) add(r Rule) {
	d.rules = append(d.rules, r)
	if v, ok := r.(PacketSelector); ok {
		d.selectors = append(d.selectors, v)
	}
	if v, ok := r.(NoAckHandler); ok {
		d.noAckHandlers = append(d.noAckHandlers, v)
	}
	if v, ok := r.(TimeSourceObserver); ok {
		d.timeSources = append(d.timeSources, v)
	}
	if v, ok := r.(ChildObserver); ok {
		d.childObservers = append(d.childObservers, v)
	}
	if v, ok := r.(ParentSlotClassifier); ok {
		d.slotClassifiers = append(d.slotClassifiers, v)
	}
	if v, ok := r.(ParentPacketClassifier); ok {
		d.frameClassifiers = append(d.frameClassifiers, v)
	}
	if v, ok := r.(ParentRequester); ok {
		d.parentRequesters = append(d.parentRequesters, v)
	}
	if v, ok := r.(SlotRequester); ok {
		d.slotRequesters = append(d.slotRequesters, v)
	}
	if v, ok := r.(ChildRequestSink); ok {
		d.childSinks = append(d.childSinks, v)
	}
	if v, ok := r.(Allocator); ok {
		d.allocators = append(d.allocators, v)
	}
	if v, ok := r.(RxObserver); ok {
		d.rxObservers = append(d.rxObservers, v)
	}
	if v, ok := r.(Maintainer); ok {
		d.maintainers = append(d.maintainers, v)
	}
}

// Rules returns the rule names in priority order.
func (d *Dispatcher) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.Name()
	}
	return names
}

// Init initializes every rule, handing each its priority index as slotframe
// handle. It stops at the first failure.
func (d *Dispatcher) Init(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for i, r := range d.rules {
		initializer, ok := r.(Initializer)
		if !ok {
			continue
		}
		if err := initializer.Init(ctx, uint16(i)); err != nil {
			return fmt.Errorf("failed to initialize rule '%s': %w", r.Name(), err)
		}
		logger.Debug("Rule initialized.", "rule", r.Name(), "handle", i)
	}
	return nil
}

// SelectPacket returns the slot of the first rule that claims f, or
// schedule.AnySelection.
func (d *Dispatcher) SelectPacket(ctx context.Context, f *packet.Frame) schedule.Selection {
	for _, r := range d.selectors {
		if sel, ok := r.SelectPacket(ctx, f); ok {
			return sel
		}
	}
	return schedule.AnySelection
}

// PacketNoAck is SelectPacket for a frame that was not acknowledged.
func (d *Dispatcher) PacketNoAck(ctx context.Context, f *packet.Frame) schedule.Selection {
	for _, r := range d.noAckHandlers {
		if sel, ok := r.PacketNoAck(ctx, f); ok {
			return sel
		}
	}
	return schedule.AnySelection
}

// NewTimeSource records the parent switch and notifies every rule.
func (d *Dispatcher) NewTimeSource(ctx context.Context, oldParent, newParent linkaddr.Address) {
	d.mu.Lock()
	if oldParent != newParent {
		d.parent = newParent
		d.parentKnowsUs = false
	}
	d.mu.Unlock()

	for _, r := range d.timeSources {
		r.NewTimeSource(ctx, oldParent, newParent)
	}
}

// ChildAdded notifies every rule.
func (d *Dispatcher) ChildAdded(ctx context.Context, a linkaddr.Address) {
	for _, r := range d.childObservers {
		r.ChildAdded(ctx, a)
	}
}

// ChildRemoved notifies every rule.
func (d *Dispatcher) ChildRemoved(ctx context.Context, a linkaddr.Address) {
	for _, r := range d.childObservers {
		r.ChildRemoved(ctx, a)
	}
}

// IsSlotForParent reports whether any rule claims l for parent traffic.
func (d *Dispatcher) IsSlotForParent(ctx context.Context, l schedule.Link) bool {
	for _, r := range d.slotClassifiers {
		if r.IsSlotForParent(ctx, l) {
			return true
		}
	}
	return false
}

// IsPacketForParent reports whether any rule claims f as parent traffic.
func (d *Dispatcher) IsPacketForParent(ctx context.Context, f *packet.Frame) bool {
	for _, r := range d.frameClassifiers {
		if r.IsPacketForParent(ctx, f) {
			return true
		}
	}
	return false
}

// RequestForParent returns the first rule's slot request for dest.
func (d *Dispatcher) RequestForParent(ctx context.Context, dest linkaddr.Address) (uint8, bool) {
	for _, r := range d.parentRequesters {
		if n, ok := r.RequestForParent(ctx, dest); ok {
			return n, true
		}
	}
	return 0, false
}

// RequestSlotRoutine notifies every rule of the uplink usage since the last
// call.
func (d *Dispatcher) RequestSlotRoutine(ctx context.Context, used int) {
	for _, r := range d.slotRequesters {
		r.RequestSlotRoutine(ctx, used)
	}
}

// SlotRequestAcked notifies every rule that the parent acknowledged the
// pending slot request.
func (d *Dispatcher) SlotRequestAcked(ctx context.Context) {
	for _, r := range d.slotRequesters {
		r.SlotRequestAcked(ctx)
	}
}

// SetRequestedSlotsFromChild hands a child's request to every rule.
func (d *Dispatcher) SetRequestedSlotsFromChild(ctx context.Context, n uint8) {
	for _, r := range d.childSinks {
		r.SetRequestedSlotsFromChild(ctx, n)
	}
}

// AllocateRoutine runs one allocation cycle on every rule.
func (d *Dispatcher) AllocateRoutine(ctx context.Context) {
	for _, r := range d.allocators {
		r.AllocateRoutine(ctx)
	}
}

// RxUseCount reports a reception on l to every rule.
func (d *Dispatcher) RxUseCount(ctx context.Context, l schedule.Link, received, valid bool) {
	for _, r := range d.rxObservers {
		r.RxUseCount(ctx, l, received, valid)
	}
}

// MaintainRoutine runs one maintenance tick on every rule.
func (d *Dispatcher) MaintainRoutine(ctx context.Context) {
	for _, r := range d.maintainers {
		r.MaintainRoutine(ctx)
	}
}

// Parent returns the current parent as last reported by NewTimeSource.
func (d *Dispatcher) Parent() linkaddr.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent
}

// ParentKnowsUs reports whether a DAO reached the current parent.
func (d *Dispatcher) ParentKnowsUs() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parentKnowsUs
}

// AttachSlotRequest stamps the pending slot request on a frame to the
// parent. Frames to anyone else are left alone.
func (d *Dispatcher) AttachSlotRequest(ctx context.Context, f *packet.Frame) {
	if f == nil {
		return
	}
	if n, ok := d.RequestForParent(ctx, f.Destination); ok {
		f.SlotRequest = min(n, packet.MaxSlotRequest)
	}
}

// PacketSent processes the link-layer outcome of a transmission. A DAO
// acknowledged by the parent marks the parent as knowing us, and an
// acknowledged frame carrying a slot request commits that request.
func (d *Dispatcher) PacketSent(ctx context.Context, f *packet.Frame, status packet.TxStatus) {
	if f == nil || status != packet.TxOK {
		return
	}

	d.mu.Lock()
	toParent := !f.Destination.IsNull() && f.Destination == d.parent
	if toParent && f.Control == packet.ControlDAO && !d.parentKnowsUs {
		d.parentKnowsUs = true
		ctxlog.FromContext(ctx).Debug("Parent acknowledged DAO.", "parent", d.parent)
	}
	d.mu.Unlock()

	if toParent && f.SlotRequest != 0 {
		d.SlotRequestAcked(ctx)
	}
}

// ControlReceived hands the slot request carried by a child's frame to the
// allocation engine.
func (d *Dispatcher) ControlReceived(ctx context.Context, f *packet.Frame) {
	if f == nil || f.SlotRequest == 0 {
		return
	}
	d.SetRequestedSlotsFromChild(ctx, f.SlotRequest)
}

// RunMaintenance calls MaintainRoutine every interval until ctx is done.
func (d *Dispatcher) RunMaintenance(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %s", interval)
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Maintenance loop started.", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Maintenance loop stopped.")
			return nil
		case <-ticker.C:
			d.MaintainRoutine(ctx)
		}
	}
}
