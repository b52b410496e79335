package telemetry

import (
	"context"

	"github.com/vk/groupsched/internal/linkaddr"
	"github.com/vk/groupsched/internal/schedule"
)

// ObservedSchedule decorates a schedule.Service and emits an event for every
// slotframe and link change, successful or not.
type ObservedSchedule struct {
	next schedule.Service
	em   *Emitter
}

var _ schedule.Service = (*ObservedSchedule)(nil)

// Observe wraps next.
func Observe(next schedule.Service, em *Emitter) *ObservedSchedule {
	return &ObservedSchedule{next: next, em: em}
}

// AddSlotframe delegates and reports the new slotframe.
func (o *ObservedSchedule) AddSlotframe(ctx context.Context, handle, period uint16) (*schedule.Slotframe, error) {
	sf, err := o.next.AddSlotframe(ctx, handle, period)
	if err == nil {
		o.em.Emit(ctx, KindSlotframe, map[string]any{"handle": handle, "period": period})
	}
	return sf, err
}

// AddOrUpdateLink delegates and reports the link or the failure.
func (o *ObservedSchedule) AddOrUpdateLink(ctx context.Context, slotframe uint16, options schedule.LinkOption, linkType schedule.LinkType,
	dest linkaddr.Address, timeslot, channelOffset uint16) (*schedule.Link, error) {
	l, err := o.next.AddOrUpdateLink(ctx, slotframe, options, linkType, dest, timeslot, channelOffset)
	data := map[string]any{
		"slotframe":      slotframe,
		"timeslot":       timeslot,
		"channel_offset": channelOffset,
		"options":        options.String(),
	}
	if err != nil {
		data["error"] = err.Error()
		o.em.Emit(ctx, KindLinkError, data)
		return nil, err
	}
	o.em.Emit(ctx, KindLink, data)
	return l, nil
}
