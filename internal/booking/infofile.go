package booking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kingrea/kudos/internal/client"
	"github.com/kingrea/kudos/internal/kudos"
)

// File names inside a working directory.
const (
	InfoFile = "infofile.tex"
	WorkFile = "work.tex"
)

var uploadKeyPattern = regexp.MustCompile(`\\newcommand\{\\svuploadkey\}\{(https?://[^\s}]+)\}`)

// Info is the content of an info document: LaTeX macros consumed by the
// working document.
type Info struct {
	Course         string
	Number         int
	Venue          string
	Date           string
	Time           string
	UploadKey      string
	SupervisorName string
	Side           string
	Handed         string
	StudentName    string
	StudentEmail   string
}

// SyntheticInfo describes a slot that is not booked remotely yet. Its upload
// key points at the info document the service will serve once it is.
func SyntheticInfo(baseURL string, slot kudos.Slot, student kudos.User) Info {
	g := slot.Group
	return Info{
		Course:         g.CourseName(),
		Number:         slot.Number(),
		UploadKey:      client.InfoFileURL(baseURL, g.Supervisor.CRSID, g.GroupNumber, slot.Number()),
		SupervisorName: g.Supervisor.FullName(),
		Side:           "oneside",
		Handed:         "right",
		StudentName:    student.FullName(),
		StudentEmail:   student.CRSID,
	}
}

// Render produces the info document.
func (i Info) Render() []byte {
	var b strings.Builder
	macro := func(name, value string) {
		fmt.Fprintf(&b, "\\newcommand{\\%s}{%s}\n", name, value)
	}
	macro("svcourse", i.Course)
	macro("svnumber", fmt.Sprint(i.Number))
	macro("svvenue", i.Venue)
	macro("svdate", i.Date)
	macro("svtime", i.Time)
	macro("svuploadkey", i.UploadKey)
	b.WriteString("\n")
	macro("svrname", i.SupervisorName)
	macro("jkfside", i.Side)
	macro("jkfhanded", i.Handed)
	b.WriteString("\n")
	macro("studentname", i.StudentName)
	macro("studentemail", i.StudentEmail)
	return []byte(b.String())
}

// UploadKey extracts the \svuploadkey URL from an info document.
func UploadKey(content []byte) (string, bool) {
	match := uploadKeyPattern.FindSubmatch(content)
	if match == nil {
		return "", false
	}
	return string(match[1]), true
}
