package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/grouped"
	"github.com/vk/groupsched/internal/inmemoryschedule"
	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/orchestra"
	"github.com/vk/groupsched/internal/telemetry"
	"github.com/vk/groupsched/internal/testutil"
)

func newSimulator(t *testing.T, rec *telemetry.Recorder) (context.Context, *Simulator, *grouped.Handler) {
	t.Helper()
	ctx, _ := testutil.LogContext(t)

	self := linkaddr.MustParse("00:01")
	h := grouped.NewHandler(self, grouped.DefaultParams())
	rules := grouped.NewRules(h, inmemoryschedule.New())
	var all []orchestra.Rule
	for _, r := range rules {
		all = append(all, r)
	}
	d := orchestra.New(append(all, h)...)
	require.NoError(t, d.Init(ctx))

	var pub telemetry.Publisher
	if rec != nil {
		pub = rec
	}
	return ctx, New(d, h, rules, telemetry.NewEmitter(pub, self)), h
}

func TestSimulator_Run(t *testing.T) {
	rec := &telemetry.Recorder{}
	ctx, s, _ := newSimulator(t, rec)

	cfg := &config.Simulation{
		Parent:   "00:02",
		Children: []string{"00:07"},
		Phases: []*config.Phase{
			{Name: "grow", Cycles: 3, UplinkPackets: 5, ChildRequest: 4},
			{Name: "quiet", Cycles: 10, ChildRequest: 2},
			{Name: "prune", Cycles: 3, MaintainEvery: 1, DropAcks: true},
			{Name: "keep", Cycles: 3, ChildRequest: 3, MaintainEvery: 1, RxPerInterval: 1},
			{Name: "lossy", Cycles: 1, UplinkPackets: 4, NoAckEvery: 2},
		},
	}

	report, err := s.Run(ctx, cfg)
	require.NoError(t, err)

	idle := grouped.SlotRequest{Phase: grouped.Idle}
	want := []PhaseReport{
		{
			Name: "grow", Cycles: 3,
			UplinkFrames: 15, ParentSlotTx: 15,
			RequestsSent: 3, RequestsAcked: 3,
			ParentTimeslots: []uint16{16, 17, 18},
			OwnSlots:        4, ParentSlots: 4, Uplink: idle,
		},
		{
			Name: "quiet", Cycles: 10,
			RequestsSent: 10, RequestsAcked: 10,
			OwnSlots: 2, ParentSlots: 1, Uplink: idle,
		},
		{
			Name: "prune", Cycles: 3,
			RequestsSent: 3,
			OwnSlots:     1, ParentSlots: 1,
			Uplink: grouped.SlotRequest{Phase: grouped.Requesting, Count: 1},
		},
		{
			Name: "keep", Cycles: 3,
			RequestsSent: 3, RequestsAcked: 3,
			OwnSlots: 3, ParentSlots: 1, Uplink: idle,
		},
		{
			Name: "lossy", Cycles: 1,
			UplinkFrames: 4, Retransmissions: 2, ParentSlotTx: 6,
			RequestsSent: 1, RequestsAcked: 1,
			ParentTimeslots: []uint16{16},
			OwnSlots:        3, ParentSlots: 2, Uplink: idle,
		},
	}
	if diff := cmp.Diff(want, report.Phases); diff != "" {
		t.Errorf("phase reports mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, s.em.RunID().String(), report.RunID)
	var phases int
	for _, e := range rec.Events() {
		assert.Equal(t, report.RunID, e.RunID)
		if e.Kind == telemetry.KindPhase {
			phases++
		}
	}
	assert.Equal(t, 5, phases)
}

func TestSimulator_NoParent(t *testing.T) {
	ctx, s, h := newSimulator(t, nil)

	report, err := s.Run(ctx, &config.Simulation{
		Phases: []*config.Phase{{Name: "alone", Cycles: 2, UplinkPackets: 3, ChildRequest: 5}},
	})
	require.NoError(t, err)
	require.Len(t, report.Phases, 1)

	pr := report.Phases[0]
	assert.Equal(t, 0, pr.UplinkFrames, "nothing to send without a parent")
	assert.Equal(t, 0, pr.RequestsSent)
	assert.Equal(t, 5, pr.OwnSlots, "children still get capacity")
	assert.Equal(t, 0, pr.ParentSlots)
	assert.True(t, h.Parent().IsNull())
}

func TestSimulator_NilConfig(t *testing.T) {
	ctx, s, _ := newSimulator(t, nil)
	report, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Phases)
}

func TestSimulator_InvalidAddresses(t *testing.T) {
	ctx, s, _ := newSimulator(t, nil)

	_, err := s.Run(ctx, &config.Simulation{Parent: "zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid simulation parent")

	_, err = s.Run(ctx, &config.Simulation{Children: []string{"00:01", "nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid simulation child")
}

func TestSimulator_StopsOnCancelledContext(t *testing.T) {
	_, s, _ := newSimulator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Run(ctx, &config.Simulation{Phases: []*config.Phase{{Name: "never", Cycles: 1}}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Phases)
}
