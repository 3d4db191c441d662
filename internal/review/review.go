// Package review lists recently marked submissions and opens the chosen one
// in the browser. It never touches local files.
package review

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/logbook"
	"github.com/kingrea/kudos/internal/tui"
)

// DefaultWindow is how far back submissions are shown.
const DefaultWindow = 4 * 7 * 24 * time.Hour

// Source lists marked submissions and builds their review URLs.
type Source interface {
	MarkedUploads(ctx context.Context) ([]kudos.Submission, error)
	MarkedURL(id string) string
}

// Opener hands a URL to the system's default handler.
type Opener interface {
	Open(url string) error
}

// Recent keeps submissions that started within window before now, sorted
// oldest first. Ties keep their original order.
func Recent(subs []kudos.Submission, now time.Time, window time.Duration) []kudos.Submission {
	cutoff := now.Add(-window)
	kept := make([]kudos.Submission, 0, len(subs))
	for _, s := range subs {
		if kudos.ParseTime(s.Start).After(cutoff) {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kudos.ParseTime(kept[i].Start).Before(kudos.ParseTime(kept[j].Start))
	})
	return kept
}

// Table renders submissions with their 0-based selection index.
func Table(subs []kudos.Submission) string {
	rows := make([][]string, 0, len(subs))
	for i, s := range subs {
		rows = append(rows, []string{
			strconv.Itoa(i),
			s.Start,
			s.CRSID,
			s.SupervisorCRSID,
			strconv.Itoa(s.GroupNumber),
			strconv.Itoa(s.SVNumber),
			s.Status(),
		})
	}
	return tui.RenderTable([]string{"Index", "Date", "CRSID", "Supervisor", "Group", "SV#", "Status"}, rows)
}

// Reviewer runs the list-select-open flow.
type Reviewer struct {
	source  Source
	opener  Opener
	prompt  tui.Prompter
	out     io.Writer
	window  time.Duration
	now     func() time.Time
	log     *zap.Logger
	journal *logbook.Logbook
}

// Option customizes a Reviewer.
type Option func(*Reviewer)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Reviewer) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(window time.Duration) Option {
	return func(r *Reviewer) {
		if window > 0 {
			r.window = window
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reviewer) {
		if log != nil {
			r.log = log
		}
	}
}

// WithJournal records opened submissions in the logbook.
func WithJournal(lb *logbook.Logbook) Option {
	return func(r *Reviewer) {
		r.journal = lb
	}
}

// New builds a Reviewer.
func New(source Source, opener Opener, prompt tui.Prompter, out io.Writer, opts ...Option) *Reviewer {
	r := &Reviewer{
		source: source,
		opener: opener,
		prompt: prompt,
		out:    out,
		window: DefaultWindow,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run fetches, lists and opens one submission. It returns the submission
// opened, or nil when there was nothing to show.
func (r *Reviewer) Run(ctx context.Context) (*kudos.Submission, error) {
	all, err := r.source.MarkedUploads(ctx)
	if err != nil {
		return nil, fmt.Errorf("review: fetch marked uploads: %w", err)
	}
	recent := Recent(all, r.now().UTC(), r.window)
	r.log.Debug("marked uploads", zap.Int("total", len(all)), zap.Int("recent", len(recent)))
	if len(recent) == 0 {
		tui.Muted(r.out, "No submissions in the last %s.", humanWindow(r.window))
		return nil, nil
	}

	fmt.Fprintln(r.out)
	tui.Title(r.out, "Supervisions (newest at bottom):")
	fmt.Fprintln(r.out, Table(recent))

	idx, err := r.prompt.Number("Enter the index number of the supervision you want to view:", 0, len(recent)-1)
	if err != nil {
		return nil, err
	}
	selected := recent[idx]
	url := r.source.MarkedURL(selected.UUID)
	if err := r.opener.Open(url); err != nil {
		r.journal.Error("review", "open %s: %v", selected.UUID, err)
		return nil, fmt.Errorf("review: %w", err)
	}
	r.journal.Info("review", "opened submission %s (group %d, SV %d)", selected.UUID, selected.GroupNumber, selected.SVNumber)
	tui.Item(r.out, "Opened %s", url)
	return &selected, nil
}

func humanWindow(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days > 0 && days%7 == 0 {
		return fmt.Sprintf("%d weeks", days/7)
	}
	if days > 0 {
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
