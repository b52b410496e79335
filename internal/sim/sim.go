package sim

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/grouped"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/orchestra"
	"github.com/vk/groupsched/internal/packet"
	"github.com/vk/groupsched/internal/schedule"
	"github.com/vk/groupsched/internal/telemetry"
)

// PhaseReport summarizes one phase.
type PhaseReport struct {
	Name   string `json:"name"`
	Cycles int    `json:"cycles"`
	// UplinkFrames counts frames handed to the link layer for the parent.
	UplinkFrames int `json:"uplink_frames"`
	// Retransmissions counts frames re-scheduled after a missing ack.
	Retransmissions int `json:"retransmissions"`
	// ParentSlotTx counts transmissions that landed in the parent's block.
	ParentSlotTx int `json:"parent_slot_tx"`
	// RequestsSent and RequestsAcked count DAOs carrying a slot request.
	RequestsSent  int `json:"requests_sent"`
	RequestsAcked int `json:"requests_acked"`
	// ParentTimeslots lists the distinct timeslots used towards the parent.
	ParentTimeslots []uint16 `json:"parent_timeslots,omitempty"`

	OwnSlots    int                 `json:"own_slots"`
	ParentSlots int                 `json:"parent_slots"`
	Uplink      grouped.SlotRequest `json:"uplink"`
}

// Report is the outcome of a whole simulation.
type Report struct {
	RunID  string        `json:"run_id"`
	Phases []PhaseReport `json:"phases"`
}

// Simulator drives one node.
type Simulator struct {
	d     *orchestra.Dispatcher
	h     *grouped.Handler
	rules []*grouped.Rule
	em    *telemetry.Emitter
}

// New creates a simulator over an initialized dispatcher built from h and
// rules.
func New(d *orchestra.Dispatcher, h *grouped.Handler, rules []*grouped.Rule, em *telemetry.Emitter) *Simulator {
	if em == nil {
		em = telemetry.NewEmitter(nil, h.Self())
	}
	return &Simulator{d: d, h: h, rules: rules, em: em}
}

// Run sets up the parent and children and replays every phase in order.
func (s *Simulator) Run(ctx context.Context, cfg *config.Simulation) (*Report, error) {
	logger := ctxlog.FromContext(ctx).With("run_id", s.em.RunID().String())
	report := &Report{RunID: s.em.RunID().String()}
	if cfg == nil {
		return report, nil
	}

	if cfg.Parent != "" {
		parent, err := linkaddr.Parse(cfg.Parent)
		if err != nil {
			return nil, fmt.Errorf("invalid simulation parent: %w", err)
		}
		s.d.NewTimeSource(ctx, s.d.Parent(), parent)
	}
	children, err := linkaddr.ParseAll(cfg.Children)
	if err != nil {
		return nil, fmt.Errorf("invalid simulation child: %w", err)
	}
	for _, c := range children {
		s.d.ChildAdded(ctx, c)
	}

	for _, p := range cfg.Phases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger.Info("Phase started.", "phase", p.Name, "cycles", p.Cycles)
		pr := s.runPhase(ctx, p)
		report.Phases = append(report.Phases, pr)
		logger.Info("Phase finished.",
			"phase", p.Name,
			"own_slots", pr.OwnSlots,
			"parent_slots", pr.ParentSlots,
			"requests_acked", pr.RequestsAcked,
		)
		s.em.Emit(ctx, telemetry.KindPhase, map[string]any{
			"phase":    pr.Name,
			"report":   pr,
			"snapshot": s.h.Snapshot(),
		})
	}
	return report, nil
}

func (s *Simulator) runPhase(ctx context.Context, p *config.Phase) PhaseReport {
	pr := PhaseReport{Name: p.Name, Cycles: p.Cycles}
	used := make(map[uint16]struct{})
	self := s.h.Self()

	for cycle := 1; cycle <= p.Cycles; cycle++ {
		if p.ChildRequest > 0 {
			s.d.ControlReceived(ctx, packet.NewControl(self, packet.ControlDAO, uint8(p.ChildRequest)))
		}
		s.d.AllocateRoutine(ctx)

		s.d.RequestSlotRoutine(ctx, s.sendUplink(ctx, p, &pr, used))
		s.sendDAO(ctx, p, &pr)

		if p.MaintainEvery > 0 && cycle%p.MaintainEvery == 0 {
			if tail, ok := s.tail(); ok {
				for i := 0; i < p.RxPerInterval; i++ {
					s.d.RxUseCount(ctx, tail, true, true)
				}
			}
			s.d.MaintainRoutine(ctx)
		}
	}

	if len(used) > 0 {
		for ts := range used {
			pr.ParentTimeslots = append(pr.ParentTimeslots, ts)
		}
		sort.Slice(pr.ParentTimeslots, func(i, j int) bool { return pr.ParentTimeslots[i] < pr.ParentTimeslots[j] })
	}
	snap := s.h.Snapshot()
	if snap.OwnGroup != grouped.NoGroup {
		pr.OwnSlots = snap.Groups[snap.OwnGroup].RequiredSlot
	}
	if g := s.h.GroupOf(snap.Parent); g != grouped.NoGroup {
		pr.ParentSlots = snap.Groups[g].RequiredSlot
	}
	pr.Uplink = snap.Uplink
	return pr
}

// sendUplink transmits the phase's uplink frames and returns how many
// transmissions used the parent's block.
func (s *Simulator) sendUplink(ctx context.Context, p *config.Phase, pr *PhaseReport, used map[uint16]struct{}) int {
	parent := s.d.Parent()
	if parent.IsNull() {
		return 0
	}
	onParent := 0
	transmit := func(sel schedule.Selection) {
		l := schedule.Link{Slotframe: sel.Slotframe, Timeslot: sel.Timeslot}
		if s.d.IsSlotForParent(ctx, l) {
			onParent++
			used[sel.Timeslot] = struct{}{}
		}
	}

	for i := 1; i <= p.UplinkPackets; i++ {
		f := packet.NewData(parent)
		pr.UplinkFrames++
		transmit(s.d.SelectPacket(ctx, f))
		if p.NoAckEvery > 0 && i%p.NoAckEvery == 0 {
			pr.Retransmissions++
			transmit(s.d.PacketNoAck(ctx, f))
		}
	}
	pr.ParentSlotTx += onParent
	return onParent
}

// sendDAO sends the periodic DAO to the parent with the pending slot request
// attached.
func (s *Simulator) sendDAO(ctx context.Context, p *config.Phase, pr *PhaseReport) {
	parent := s.d.Parent()
	if parent.IsNull() {
		return
	}
	f := packet.NewControl(parent, packet.ControlDAO, 0)
	s.d.AttachSlotRequest(ctx, f)

	status := packet.TxOK
	if f.SlotRequest != 0 {
		pr.RequestsSent++
		if p.DropAcks {
			status = packet.TxNoAck
		} else {
			pr.RequestsAcked++
		}
	}
	s.d.PacketSent(ctx, f, status)
}

// tail returns the own tail link of the rule carrying the node's block.
func (s *Simulator) tail() (schedule.Link, bool) {
	for _, r := range s.rules {
		if r.ServesSelf() {
			return r.TailLink(), true
		}
	}
	return schedule.Link{}, false
}
