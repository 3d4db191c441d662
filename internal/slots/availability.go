package slots

import (
	"sort"

	"github.com/kingrea/kudos/internal/kudos"
)

// SlotMinutes is the length of a conventional supervision session.
const SlotMinutes = 60

// SyntheticSlots is the number of whole sessions that fit in the group's
// unbooked minutes. Leftover minutes are dropped.
func SyntheticSlots(g kudos.SupervisionGroup) int {
	remaining := g.MinutesAllocated - BookedMinutes(g)
	if remaining <= 0 {
		return 0
	}
	return remaining / SlotMinutes
}

// AvailableSlots counts every real booking plus the synthetic slots.
func AvailableSlots(g kudos.SupervisionGroup) int {
	return len(g.Bookings) + SyntheticSlots(g)
}

// Courses returns the distinct courses across the groups in sorted order.
func Courses(groups []kudos.SupervisionGroup) []kudos.Course {
	seen := map[kudos.Course]struct{}{}
	var courses []kudos.Course
	for _, g := range groups {
		for _, member := range g.Group {
			c := kudos.Course{Name: member.Course, Subject: member.Subject, Tripos: member.Tripos}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			courses = append(courses, c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Less(courses[j]) })
	return courses
}

// GroupsForCourse returns the groups with a member on the course.
func GroupsForCourse(groups []kudos.SupervisionGroup, course string) []kudos.SupervisionGroup {
	var matched []kudos.SupervisionGroup
	for _, g := range groups {
		if g.HasCourse(course) {
			matched = append(matched, g)
		}
	}
	return matched
}
