package grouped

import (
	"context"
	"sync"

	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/packet"
)

// Handler owns the state shared by every grouped slotframe rule of a node:
// the group table, the current parent and the slot requests travelling up
// (self to parent) and down (child to self) the routing tree.
type Handler struct {
	mu sync.Mutex

	params   Params
	self     linkaddr.Address
	table    *Table
	parent   linkaddr.Address
	uplink   SlotRequest
	downlink SlotRequest
	children map[linkaddr.Address]struct{}
}

// NewHandler creates the handler for the node at self. The group table
// starts with every group at DefaultAttribute and no parent.
func NewHandler(self linkaddr.Address, params Params) *Handler {
	params = params.normalize()
	return &Handler{
		params:   params,
		self:     self,
		table:    NewTable(params.GroupAmount, params.GroupSize, params.Hash),
		parent:   linkaddr.Null,
		uplink:   idleRequest(),
		downlink: idleRequest(),
		children: make(map[linkaddr.Address]struct{}),
	}
}

// Name identifies the handler in the rule dispatcher.
func (h *Handler) Name() string { return "grouped-handler" }

// Self returns the node's own address.
func (h *Handler) Self() linkaddr.Address { return h.self }

// Params returns the normalized parameters.
func (h *Handler) Params() Params { return h.params }

// Parent returns the current time source, or linkaddr.Null.
func (h *Handler) Parent() linkaddr.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.parent
}

// NewTimeSource records a parent switch. The old parent's group forgets its
// slot history and any pending request towards the old parent is dropped.
func (h *Handler) NewTimeSource(ctx context.Context, oldParent, newParent linkaddr.Address) {
	if oldParent == newParent {
		return
	}
	logger := ctxlog.FromContext(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if g := h.table.GroupOf(oldParent); g != NoGroup {
		h.table.Reset(g)
	}
	h.parent = newParent
	h.uplink = idleRequest()
	logger.Debug("Time source changed.", "old", oldParent, "new", newParent, "parent_group", h.table.GroupOf(newParent))
}

// IsTimeSource reports whether a is the current parent. The null address
// never is.
func (h *Handler) IsTimeSource(a linkaddr.Address) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isTimeSource(a)
}

func (h *Handler) isTimeSource(a linkaddr.Address) bool {
	return !a.IsNull() && a == h.parent
}

// IsPacketForParent reports whether f is addressed to the current parent.
func (h *Handler) IsPacketForParent(ctx context.Context, f *packet.Frame) bool {
	if f == nil {
		return false
	}
	return h.IsTimeSource(f.Destination)
}

// ChildAdded records a routing child.
func (h *Handler) ChildAdded(ctx context.Context, a linkaddr.Address) {
	if a.IsNull() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.children[a] = struct{}{}
}

// ChildRemoved forgets a routing child.
func (h *Handler) ChildRemoved(ctx context.Context, a linkaddr.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.children, a)
}

// RequestSlotRoutine decides, from the number of uplink slots used since the
// last call, whether to ask the parent for one slot more or one slot less.
// Usage between the thresholds leaves the request state untouched.
func (h *Handler) RequestSlotRoutine(ctx context.Context, used int) {
	logger := ctxlog.FromContext(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.table.GroupOf(h.parent)
	if g == NoGroup {
		logger.Debug("No parent, skipping slot request.", "used", used)
		return
	}
	current := h.table.RequiredSlot(g)

	switch {
	case used > h.params.AddThreshold:
		h.uplink = requesting(min(current+1, h.params.GroupSize))
	case used < h.params.DeleteThreshold:
		h.uplink = requesting(max(current-1, 1))
	}
	logger.Debug("Slot request routine.", "used", used, "current", current, "request", h.uplink)
}

// SlotRequestAcked commits the pending request into the parent's group once
// the parent acknowledged the message carrying it. Without a pending request
// it does nothing.
func (h *Handler) SlotRequestAcked(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.uplink.Pending()
	if !ok {
		return
	}
	h.uplink = SlotRequest{Phase: Committing, Count: n}

	g := h.table.GroupOf(h.parent)
	if g != NoGroup && h.table.RequiredSlot(g) != n {
		h.table.SetRequiredSlot(g, n)
		logger.Debug("Parent slot request committed.", "parent_group", g, "required_slot", h.table.RequiredSlot(g))
	}
	h.uplink = idleRequest()
}

// RequestForParent returns the value to piggyback on a control message to
// dest. It only claims the message when dest is the current parent.
func (h *Handler) RequestForParent(ctx context.Context, dest linkaddr.Address) (uint8, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isTimeSource(dest) {
		return 0, false
	}
	return h.uplink.Wire(), true
}

// SetRequestedSlotsFromChild stores the slot count a child asked for. Zero
// clears any request. The value is consumed by the next AllocateRoutine.
func (h *Handler) SetRequestedSlotsFromChild(ctx context.Context, n uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n == 0 {
		h.downlink = idleRequest()
		return
	}
	h.downlink = requesting(int(n))
}

// UplinkRequest returns the request state towards the parent.
func (h *Handler) UplinkRequest() SlotRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uplink
}

// ChildRequest returns the request state received from children.
func (h *Handler) ChildRequest() SlotRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.downlink
}

// GroupOf maps a to its group index.
func (h *Handler) GroupOf(a linkaddr.Address) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.GroupOf(a)
}

// RequiredSlot returns group g's slot count.
func (h *Handler) RequiredSlot(g int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.RequiredSlot(g)
}

// AllocateOffset returns group g's round-robin cursor.
func (h *Handler) AllocateOffset(g int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.AllocateOffset(g)
}

// SetRequiredSlot sets group g's slot count, clamped to [1, GroupSize].
func (h *Handler) SetRequiredSlot(g, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table.SetRequiredSlot(g, n)
}

// SetAllocateOffset sets group g's cursor, wrapped into the owned block.
func (h *Handler) SetAllocateOffset(g, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table.SetAllocateOffset(g, n)
}

// Snapshot is a point-in-time copy of the handler state.
type Snapshot struct {
	Self      linkaddr.Address `json:"self"`
	Parent    linkaddr.Address `json:"parent"`
	OwnGroup  int              `json:"own_group"`
	Groups    []Attribute      `json:"groups"`
	Uplink    SlotRequest      `json:"uplink"`
	Downlink  SlotRequest      `json:"downlink"`
	Children  int              `json:"children"`
	GroupSize int              `json:"group_size"`
}

// Snapshot copies the current state.
func (h *Handler) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Self:      h.self,
		Parent:    h.parent,
		OwnGroup:  h.table.GroupOf(h.self),
		Groups:    h.table.Snapshot(),
		Uplink:    h.uplink,
		Downlink:  h.downlink,
		Children:  len(h.children),
		GroupSize: h.table.Size(),
	}
}
