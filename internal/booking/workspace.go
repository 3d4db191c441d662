// Package booking manages the local working directory of a slot. The
// directory's existence is the only state kept between runs: absent means
// the slot has not been set up, present means it is ready to submit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/logbook"
)

// State is the lifecycle position of a slot's working directory.
type State int

const (
	StateAbsent State = iota
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrTemplateMissing   = errors.New("booking: template file not found")
	ErrStudentNotInGroup = errors.New("booking: student not found in supervision group")
	ErrNotDirectory      = errors.New("booking: path exists but is not a directory")
)

// InfoFetcher retrieves the remote info document of a booked slot.
type InfoFetcher interface {
	InfoFile(ctx context.Context, supervisorCRSID string, groupNumber, slotNumber int) ([]byte, error)
}

// Workspace lays slot directories out under a root.
type Workspace struct {
	root     string
	template string
	baseURL  string
	remote   InfoFetcher
	log      *zap.Logger
	journal  *logbook.Logbook
}

// WorkspaceOption customizes a Workspace.
type WorkspaceOption func(*Workspace)

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if log != nil {
			w.log = log
		}
	}
}

// WithJournal records lifecycle events in the logbook.
func WithJournal(lb *logbook.Logbook) WorkspaceOption {
	return func(w *Workspace) {
		w.journal = lb
	}
}

// NewWorkspace builds a workspace. baseURL is the REST root embedded in
// synthesized upload keys.
func NewWorkspace(root, template, baseURL string, remote InfoFetcher, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		root:     root,
		template: template,
		baseURL:  baseURL,
		remote:   remote,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// DirName is "{course}_{slot number}". Path separators in the course name
// are replaced so the result is always a single path element.
func DirName(slot kudos.Slot) string {
	course := strings.NewReplacer("/", "-", `\`, "-").Replace(slot.Group.CourseName())
	return fmt.Sprintf("%s_%d", course, slot.Number())
}

// Dir is the absolute-or-relative path of the slot's working directory.
func (w *Workspace) Dir(slot kudos.Slot) string {
	return filepath.Join(w.root, DirName(slot))
}

// Check reports whether the slot's directory exists.
func (w *Workspace) Check(slot kudos.Slot) (State, error) {
	info, err := os.Stat(w.Dir(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StateAbsent, nil
		}
		return StateAbsent, fmt.Errorf("booking: stat %s: %w", w.Dir(slot), err)
	}
	if !info.IsDir() {
		return StateAbsent, fmt.Errorf("%w: %s", ErrNotDirectory, w.Dir(slot))
	}
	return StatePresent, nil
}

// Initialize moves an absent slot to present: it creates the directory,
// copies the template in, and writes the info document. Synthetic slots get
// a locally generated document; real slots fetch theirs from the service.
// A failed fetch leaves the directory with only the working document.
func (w *Workspace) Initialize(ctx context.Context, slot kudos.Slot, student kudos.User) (string, error) {
	dir := w.Dir(slot)
	name := DirName(slot)
	if _, err := os.Stat(w.template); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateMissing, w.template)
		}
		return "", fmt.Errorf("booking: stat template: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("booking: create %s: %w", dir, err)
	}
	w.journal.Info(name, "created working directory")
	if err := copyFile(w.template, filepath.Join(dir, WorkFile)); err != nil {
		return dir, fmt.Errorf("booking: copy template: %w", err)
	}

	if slot.Synthetic() {
		info := SyntheticInfo(w.baseURL, slot, student)
		if err := os.WriteFile(filepath.Join(dir, InfoFile), info.Render(), 0o644); err != nil {
			return dir, fmt.Errorf("booking: write info file: %w", err)
		}
		w.journal.Info(name, "synthesized info file (upload key %s)", info.UploadKey)
		w.log.Info("synthesized info file",
			zap.String("dir", dir),
			zap.Int("slot", slot.Number()))
		return dir, nil
	}

	g := slot.Group
	body, err := w.remote.InfoFile(ctx, g.Supervisor.CRSID, g.GroupNumber, slot.Number())
	if err != nil {
		w.journal.Warn(name, "info file fetch failed: %v", err)
		return dir, fmt.Errorf("booking: fetch info file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InfoFile), body, 0o644); err != nil {
		return dir, fmt.Errorf("booking: write info file: %w", err)
	}
	w.journal.Info(name, "fetched remote info file")
	w.log.Info("fetched remote info file",
		zap.String("dir", dir),
		zap.Int("slot", slot.Number()))
	return dir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
