// Package slots decides which supervision groups a student can act on and
// how many slots each one offers.
package slots

import (
	"time"

	"github.com/kingrea/kudos/internal/kudos"
)

// BookedMinutes sums the durations of a group's existing bookings.
func BookedMinutes(g kudos.SupervisionGroup) int {
	total := 0
	for _, b := range g.Bookings {
		total += b.Duration
	}
	return total
}

// HasTripos reports whether any member of the group belongs to the tripos.
func HasTripos(g kudos.SupervisionGroup, tripos string) bool {
	for _, member := range g.Group {
		if member.Tripos == tripos {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the group still needs action: either minutes
// remain to book, or the allocation is used up but a booking has not yet
// happened and still needs its document.
func HasCapacity(g kudos.SupervisionGroup, now time.Time) bool {
	booked := BookedMinutes(g)
	switch {
	case booked < g.MinutesAllocated:
		return true
	case booked == g.MinutesAllocated:
		for _, b := range g.Bookings {
			if kudos.ParseTime(b.StartTime).After(now) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Filter keeps the groups relevant to the tripos that have capacity left,
// preserving order.
func Filter(groups []kudos.SupervisionGroup, tripos string, now time.Time) []kudos.SupervisionGroup {
	kept := make([]kudos.SupervisionGroup, 0, len(groups))
	for _, g := range groups {
		if HasTripos(g, tripos) && HasCapacity(g, now) {
			kept = append(kept, g)
		}
	}
	return kept
}
