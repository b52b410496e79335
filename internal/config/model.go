package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// MaxGroupSize is the largest group size a 4-bit slot request can express.
const MaxGroupSize = 15

// Hash names accepted in the scheduler block.
const (
	HashLastOctet = "last_octet"
	HashFold      = "fold"
)

// Model is the unified, format-agnostic representation of a node's
// configuration.
type Model struct {
	Scheduler  Scheduler
	Node       Node
	Simulation *Simulation
	Telemetry  *Telemetry
}

// Scheduler holds the tuning constants of the grouped slot scheduler.
type Scheduler struct {
	GroupAmount      int
	GroupSize        int
	AddThreshold     int
	DeleteThreshold  int
	DebounceCycles   int
	NoAckBackoff     int
	Multichannel     int
	MaintainInterval time.Duration
	Hash             string
}

// DefaultScheduler returns the values used for omitted scheduler attributes.
func DefaultScheduler() Scheduler {
	return Scheduler{
		GroupAmount:      4,
		GroupSize:        8,
		AddThreshold:     3,
		DeleteThreshold:  1,
		DebounceCycles:   10,
		NoAckBackoff:     1,
		Multichannel:     1,
		MaintainInterval: 30 * time.Second,
		Hash:             HashLastOctet,
	}
}

// Node identifies the node being scheduled.
type Node struct {
	Name    string
	Address string
}

// Simulation describes the traffic replayed against the node.
type Simulation struct {
	Parent   string
	Children []string
	Phases   []*Phase
}

// Phase is one stretch of simulated traffic. Every cycle is one slotframe
// repetition.
type Phase struct {
	Name string
	// Cycles is the number of slotframe repetitions the phase lasts.
	Cycles int
	// UplinkPackets is how many frames the node sends its parent per cycle.
	UplinkPackets int
	// ChildRequest is the slot count children ask for every cycle; 0 means
	// no request.
	ChildRequest int
	// RxPerInterval is how many valid receptions hit the tail slot between
	// maintenance ticks.
	RxPerInterval int
	// NoAckEvery makes every n-th uplink frame go unacknowledged; 0 never.
	NoAckEvery int
	// MaintainEvery runs a maintenance tick every n cycles; 0 never.
	MaintainEvery int
	// DropAcks loses the acknowledgement of every frame carrying a slot
	// request.
	DropAcks bool
}

// Telemetry configures the socket.io event publisher.
type Telemetry struct {
	SocketIOURL string
	Namespace   string
}

// Validate checks the model for values the scheduler cannot run with.
func (m *Model) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	s := m.Scheduler
	if s.GroupAmount < 1 {
		add("group_amount must be at least 1, got %d", s.GroupAmount)
	}
	if s.GroupSize < 1 || s.GroupSize > MaxGroupSize {
		add("group_size must be between 1 and %d, got %d", MaxGroupSize, s.GroupSize)
	}
	if s.GroupAmount*s.GroupSize > 0xffff {
		add("slotframe period group_amount*group_size exceeds %d", 0xffff)
	}
	if s.DebounceCycles < 1 {
		add("debounce_cycles must be at least 1, got %d", s.DebounceCycles)
	}
	if s.NoAckBackoff < 1 {
		add("noack_backoff must be at least 1, got %d", s.NoAckBackoff)
	}
	if s.Multichannel < 1 {
		add("multichannel must be at least 1, got %d", s.Multichannel)
	}
	if s.DeleteThreshold < 0 || s.DeleteThreshold > s.AddThreshold {
		add("delete_threshold must be between 0 and add_threshold (%d), got %d", s.AddThreshold, s.DeleteThreshold)
	}
	if s.MaintainInterval <= 0 {
		add("maintain_interval must be positive, got %s", s.MaintainInterval)
	}
	if s.Hash != HashLastOctet && s.Hash != HashFold {
		add("hash must be %q or %q, got %q", HashLastOctet, HashFold, s.Hash)
	}

	if m.Node.Address == "" {
		add("node address is required")
	}

	if sim := m.Simulation; sim != nil {
		seen := make(map[string]struct{}, len(sim.Phases))
		for _, p := range sim.Phases {
			if _, dup := seen[p.Name]; dup {
				add("phase %q defined twice", p.Name)
			}
			seen[p.Name] = struct{}{}
			if p.Cycles < 1 {
				add("phase %q: cycles must be at least 1, got %d", p.Name, p.Cycles)
			}
			if p.ChildRequest < 0 || p.ChildRequest > MaxGroupSize {
				add("phase %q: child_request must be between 0 and %d, got %d", p.Name, MaxGroupSize, p.ChildRequest)
			}
			if p.UplinkPackets < 0 || p.RxPerInterval < 0 || p.NoAckEvery < 0 || p.MaintainEvery < 0 {
				add("phase %q: counts must not be negative", p.Name)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
