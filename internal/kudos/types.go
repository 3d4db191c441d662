// Package kudos holds the data model shared by every part of the CLI: the
// supervision groups returned by the KuDoS service, their bookings, and the
// recently marked submissions.
package kudos

import (
	"fmt"
	"strings"
)

// User identifies a person known to KuDoS.
type User struct {
	CRSID     string `json:"CRSID"`
	Title     string `json:"title"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName renders "Title First Last", skipping empty parts.
func (u User) FullName() string {
	return joinName(u.Title, u.FirstName, u.LastName)
}

// Supervisor leads a supervision group.
type Supervisor struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CRSID     string `json:"CRSID"`
}

// FullName renders "Title First Last", skipping empty parts.
func (s Supervisor) FullName() string {
	return joinName(s.Title, s.FirstName, s.LastName)
}

// Supervisee is one student's membership of a group for a particular course.
type Supervisee struct {
	Tripos  string `json:"tripos"`
	Course  string `json:"course"`
	Subject string `json:"subject"`
	User    User   `json:"user"`
}

// Booking is a session already scheduled on the remote service.
type Booking struct {
	Duration  int    `json:"duration"`
	StartTime string `json:"startTime"`
	Venue     string `json:"venue"`
}

// SupervisionGroup is one entry of /supervisions/getSVAssignments.
type SupervisionGroup struct {
	GroupNumber      int          `json:"groupNumber"`
	Supervisor       Supervisor   `json:"supervisor"`
	Group            []Supervisee `json:"group"`
	Bookings         []Booking    `json:"bookings"`
	MinutesAllocated int          `json:"minutesAllocated"`
	Supervisees      []Supervisee `json:"supervisees"`
}

// CourseName is the course of the first supervisee, which names the
// working directory. Empty when the group has no members.
func (g SupervisionGroup) CourseName() string {
	if len(g.Group) == 0 {
		return ""
	}
	return g.Group[0].Course
}

// HasCourse reports whether any member studies the given course.
func (g SupervisionGroup) HasCourse(course string) bool {
	for _, member := range g.Group {
		if member.Course == course {
			return true
		}
	}
	return false
}

// FindStudent looks the CRSID up in the supervisees list.
func (g SupervisionGroup) FindStudent(crsid string) (User, bool) {
	for _, s := range g.Supervisees {
		if s.User.CRSID == crsid {
			return s.User, true
		}
	}
	return User{}, false
}

// Course is the display identity of a course: used to group the menu, not
// to identify a booking.
type Course struct {
	Name    string
	Subject string
	Tripos  string
}

func (c Course) String() string {
	return fmt.Sprintf("%s (%s - %s)", c.Name, c.Subject, c.Tripos)
}

// Less orders courses by name, then subject, then tripos.
func (c Course) Less(other Course) bool {
	if c.Name != other.Name {
		return c.Name < other.Name
	}
	if c.Subject != other.Subject {
		return c.Subject < other.Subject
	}
	return c.Tripos < other.Tripos
}

// Slot identifies one bookable session of a group. Index is zero-based and
// stable for the lifetime of a run.
type Slot struct {
	Group SupervisionGroup
	Index int
}

// Number is the 1-based slot number used by the service and directory names.
func (s Slot) Number() int {
	return s.Index + 1
}

// Synthetic reports whether the slot has no real booking behind it yet.
func (s Slot) Synthetic() bool {
	return s.Index >= len(s.Group.Bookings)
}

// Booking returns the real booking backing the slot, if any.
func (s Slot) Booking() (Booking, bool) {
	if s.Index < 0 || s.Synthetic() {
		return Booking{}, false
	}
	return s.Group.Bookings[s.Index], true
}

// Submission is an entry of /supervisions/upload-marked. UUID is kept as the
// server sent it; it is only ever echoed back in a URL.
type Submission struct {
	UUID            string `json:"uuid"`
	Start           string `json:"start"`
	CRSID           string `json:"CRSID"`
	SupervisorCRSID string `json:"supervisorCRSID"`
	GroupNumber     int    `json:"groupNumber"`
	SVNumber        int    `json:"svNumber"`
	Failed          bool   `json:"failed"`
}

// Status renders the marking outcome for tables.
func (s Submission) Status() string {
	if s.Failed {
		return "Failed"
	}
	return "Success"
}

// UserDefaults is the subset of /users/defaults the CLI needs.
type UserDefaults struct {
	Tripos string `json:"tripos"`
}

func joinName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
