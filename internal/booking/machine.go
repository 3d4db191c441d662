package booking

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/tui"
)

// Outcome says what Enter did with a slot.
type Outcome int

const (
	// OutcomeCreated means the directory was set up in this call.
	OutcomeCreated Outcome = iota
	// OutcomeSubmitted means an existing directory was compiled and uploaded.
	OutcomeSubmitted
	// OutcomeSkipped means the directory existed and the user declined to submit.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Machine drives one slot through its directory lifecycle.
type Machine struct {
	workspace *Workspace
	pipeline  *Pipeline
	prompt    tui.Prompter
	crsid     string
	out       io.Writer
	log       *zap.Logger
}

// NewMachine binds the lifecycle to the signed-in student's CRSID.
func NewMachine(ws *Workspace, pipeline *Pipeline, prompt tui.Prompter, crsid string, out io.Writer, log *zap.Logger) *Machine {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		workspace: ws,
		pipeline:  pipeline,
		prompt:    prompt,
		crsid:     crsid,
		out:       out,
		log:       log,
	}
}

// Enter sets up an absent slot, or offers to submit a present one. A
// present directory is never re-created or re-derived.
func (m *Machine) Enter(ctx context.Context, slot kudos.Slot) (Outcome, error) {
	student, ok := slot.Group.FindStudent(m.crsid)
	if !ok {
		return OutcomeSkipped, fmt.Errorf("%w: %s", ErrStudentNotInGroup, m.crsid)
	}
	state, err := m.workspace.Check(slot)
	if err != nil {
		return OutcomeSkipped, err
	}
	dir := m.workspace.Dir(slot)
	m.log.Debug("slot state",
		zap.String("dir", dir),
		zap.Stringer("state", state),
		zap.Bool("synthetic", slot.Synthetic()))

	if state == StatePresent {
		submit, err := m.prompt.Confirm("Path exists, compile and upload to KuDoS?")
		if err != nil {
			return OutcomeSkipped, err
		}
		if !submit {
			return OutcomeSkipped, nil
		}
		if err := m.pipeline.Run(ctx, dir); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeSubmitted, nil
	}

	if _, err := m.workspace.Initialize(ctx, slot, student); err != nil {
		return OutcomeSkipped, err
	}
	if slot.Synthetic() {
		tui.Success(m.out, "Created synthetic info file in %s", dir)
	} else {
		tui.Success(m.out, "Fetched remote info file to %s", dir)
	}
	return OutcomeCreated, nil
}
