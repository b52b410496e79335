package inmemoryschedule

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/schedule"
)

type linkKey struct {
	slotframe uint16
	timeslot  uint16
}

// Store implements schedule.Service using maps and a mutex for thread-safe
// concurrent access.
type Store struct {
	mu         sync.RWMutex
	slotframes map[uint16]*schedule.Slotframe
	links      map[linkKey]*schedule.Link
	updates    int
}

// New creates a new, empty in-memory schedule.
func New() *Store {
	return &Store{
		slotframes: make(map[uint16]*schedule.Slotframe),
		links:      make(map[linkKey]*schedule.Link),
	}
}

var _ schedule.Service = (*Store)(nil)

// AddSlotframe creates a slotframe. Adding the same handle twice is
// idempotent as long as the period matches.
func (s *Store) AddSlotframe(ctx context.Context, handle, period uint16) (*schedule.Slotframe, error) {
	if period == 0 {
		return nil, fmt.Errorf("slotframe %d: period must be positive", handle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sf, exists := s.slotframes[handle]; exists {
		if sf.Period != period {
			return nil, fmt.Errorf("slotframe %d already exists with period %d", handle, sf.Period)
		}
		return sf, nil
	}
	sf := &schedule.Slotframe{Handle: handle, Period: period}
	s.slotframes[handle] = sf
	return sf, nil
}

// AddOrUpdateLink installs or overwrites the link at (slotframe, timeslot).
func (s *Store) AddOrUpdateLink(ctx context.Context, slotframe uint16, options schedule.LinkOption, linkType schedule.LinkType,
	dest linkaddr.Address, timeslot, channelOffset uint16) (*schedule.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, exists := s.slotframes[slotframe]
	if !exists {
		return nil, fmt.Errorf("slotframe %d not found in schedule", slotframe)
	}
	if timeslot >= sf.Period {
		return nil, fmt.Errorf("timeslot %d outside slotframe %d (period %d)", timeslot, slotframe, sf.Period)
	}

	link := &schedule.Link{
		Slotframe:     slotframe,
		Timeslot:      timeslot,
		ChannelOffset: channelOffset,
		Options:       options,
		Type:          linkType,
		Destination:   dest,
	}
	s.links[linkKey{slotframe, timeslot}] = link
	s.updates++

	cp := *link
	return &cp, nil
}

// Slotframe retrieves a slotframe by handle.
func (s *Store) Slotframe(handle uint16) (schedule.Slotframe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sf, ok := s.slotframes[handle]
	if !ok {
		return schedule.Slotframe{}, false
	}
	return *sf, true
}

// Link retrieves the link at (slotframe, timeslot).
func (s *Store) Link(slotframe, timeslot uint16) (schedule.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[linkKey{slotframe, timeslot}]
	if !ok {
		return schedule.Link{}, false
	}
	return *l, true
}

// Links returns every link of a slotframe ordered by timeslot.
func (s *Store) Links(slotframe uint16) []schedule.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := make([]schedule.Link, 0)
	for k, l := range s.links {
		if k.slotframe == slotframe {
			links = append(links, *l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Timeslot < links[j].Timeslot })
	return links
}

// RxTimeslots returns the timeslots of a slotframe whose links can receive.
func (s *Store) RxTimeslots(slotframe uint16) []uint16 {
	var out []uint16
	for _, l := range s.Links(slotframe) {
		if l.Options.Has(schedule.OptionRx) {
			out = append(out, l.Timeslot)
		}
	}
	return out
}

// Updates returns the number of successful AddOrUpdateLink calls so far.
func (s *Store) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
