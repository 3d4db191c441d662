package slots

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/tui"
)

// ErrNoSlots is returned when the chosen group has nothing left to offer.
var ErrNoSlots = errors.New("slots: no bookable slots in group")

// Selection is the outcome of the course/slot menus. Review is set when the
// user asked to view marked work instead of picking a slot.
type Selection struct {
	Slot   kudos.Slot
	Review bool
}

// Selector walks the user from a course to a single slot.
type Selector struct {
	prompt tui.Prompter
	out    io.Writer
	log    *zap.Logger
}

// NewSelector wires a selector to a prompter and an output stream.
func NewSelector(prompt tui.Prompter, out io.Writer, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{prompt: prompt, out: out, log: log}
}

// Select shows the course menu, then the slot menu for the first group of
// the chosen course. Groups must already be filtered for eligibility.
func (s *Selector) Select(groups []kudos.SupervisionGroup) (Selection, error) {
	courses := Courses(groups)
	reviewOption := len(courses) + 1

	fmt.Fprintln(s.out)
	tui.Title(s.out, "Available courses:")
	for i, c := range courses {
		tui.Item(s.out, "%d. %s", i+1, c)
	}
	tui.Item(s.out, "%d. View marked work", reviewOption)

	choice, err := s.prompt.Number("Select course number:", 1, reviewOption)
	if err != nil {
		return Selection{}, err
	}
	if choice == reviewOption {
		return Selection{Review: true}, nil
	}
	course := courses[choice-1]
	matched := GroupsForCourse(groups, course.Name)
	s.describe(matched)

	// Only the first group sharing the course is offered for booking.
	group := matched[0]
	if len(matched) > 1 {
		s.log.Info("several groups share course; offering the first",
			zap.String("course", course.Name),
			zap.Int("groups", len(matched)),
			zap.Int("group_number", group.GroupNumber))
	}
	available := AvailableSlots(group)
	if available == 0 {
		return Selection{}, fmt.Errorf("%w: group %d", ErrNoSlots, group.GroupNumber)
	}
	n, err := s.prompt.Number(fmt.Sprintf("Select slot number (1-%d):", available), 1, available)
	if err != nil {
		return Selection{}, err
	}
	slot := kudos.Slot{Group: group, Index: n - 1}
	s.log.Debug("slot selected",
		zap.String("course", course.Name),
		zap.Int("group_number", group.GroupNumber),
		zap.Int("slot", slot.Number()),
		zap.Bool("synthetic", slot.Synthetic()))
	return Selection{Slot: slot}, nil
}

func (s *Selector) describe(groups []kudos.SupervisionGroup) {
	fmt.Fprintln(s.out)
	tui.Title(s.out, "Available supervisions:")
	for _, g := range groups {
		fmt.Fprintln(s.out)
		tui.Item(s.out, "Supervision Group %d with %s:", g.GroupNumber, g.Supervisor.Name)
		for i, b := range g.Bookings {
			tui.Item(s.out, "  Slot %d: %s at %s", i+1, b.StartTime, b.Venue)
		}
		if extra := SyntheticSlots(g); extra > 0 {
			tui.Muted(s.out, "  %d additional unbooked slot(s) available", extra)
		}
	}
}
