// Package app wires configuration, credentials and the booking packages into
// the commands the kudos binary exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/auth"
	"github.com/kingrea/kudos/internal/booking"
	"github.com/kingrea/kudos/internal/browser"
	"github.com/kingrea/kudos/internal/client"
	"github.com/kingrea/kudos/internal/compiler"
	"github.com/kingrea/kudos/internal/config"
	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/logbook"
	"github.com/kingrea/kudos/internal/logging"
	"github.com/kingrea/kudos/internal/review"
	"github.com/kingrea/kudos/internal/slots"
	"github.com/kingrea/kudos/internal/tui"
)

// ErrNotAuthenticated is returned by commands that need a credential when
// Authenticate has not succeeded.
var ErrNotAuthenticated = errors.New("app: not authenticated")

// App holds everything a command needs. The credential is resolved once by
// Authenticate and lives here for the rest of the process.
type App struct {
	cfg        *config.Config
	logger     *logging.Logger
	log        *zap.Logger
	journal    *logbook.Logbook
	prompt     tui.Prompter
	opener     auth.BrowserOpener
	store      *auth.FileStore
	httpClient *http.Client
	compiler   booking.Compiler
	out        io.Writer
	now        func() time.Time

	cred   auth.Credential
	client *client.Client
}

// Option customizes an App.
type Option func(*App)

// WithPrompter replaces the terminal prompter.
func WithPrompter(p tui.Prompter) Option {
	return func(a *App) {
		if p != nil {
			a.prompt = p
		}
	}
}

// WithBrowser replaces the system URL opener.
func WithBrowser(o auth.BrowserOpener) Option {
	return func(a *App) {
		if o != nil {
			a.opener = o
		}
	}
}

// WithOutput sets where user-facing text goes.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// WithHTTPClient replaces the client built from http.timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithCompiler replaces the configured LaTeX engine.
func WithCompiler(c booking.Compiler) Option {
	return func(a *App) {
		if c != nil {
			a.compiler = c
		}
	}
}

// WithClock overrides time.Now for eligibility and review windows.
func WithClock(clock func() time.Time) Option {
	return func(a *App) {
		if clock != nil {
			a.now = clock
		}
	}
}

// New prepares the .kudos directory, loads settings and opens both logs.
// settingsPath may be empty to use .kudos/config.yaml.
func New(projectDir, settingsPath string, opts ...Option) (*App, error) {
	if err := config.InitKudosDir(projectDir); err != nil {
		return nil, fmt.Errorf("app: init %s: %w", config.KudosDir, err)
	}
	cfg, err := config.NewConfig(projectDir, settingsPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogFilePath(), cfg.Settings.Log.Level, cfg.Settings.Log.Format)
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(cfg.JourneyLogPath())
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		log:     logger.Zap(),
		journal: journal,
		store:   auth.NewFileStore(cfg.CredentialPath()),
		out:     os.Stdout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.prompt == nil {
		a.prompt = tui.NewTerminal()
	}
	a.prompt = tui.Guard(a.prompt)
	if a.opener == nil {
		a.opener = browser.New()
	}
	if a.httpClient == nil {
		a.httpClient = client.DefaultHTTPClient(cfg.Settings.HTTP.Timeout)
	}
	if a.compiler == nil {
		a.compiler = compiler.New(cfg.Settings.Compiler.Command, cfg.Settings.Compiler.Args, a.log)
	}
	a.log.Debug("settings loaded",
		zap.String("file", cfg.SettingsFile),
		zap.String("base_url", cfg.Settings.BaseURL),
		zap.String("work_root", cfg.WorkRoot()))
	return a, nil
}

// Close flushes the diagnostics log.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.logger.Close()
}

// Config exposes the loaded settings.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Credential returns the resolved credential.
func (a *App) Credential() auth.Credential {
	return a.cred
}

// Authenticate loads the stored credential, falling back to the environment
// and then to an interactive browser login. A newly acquired credential is
// saved for the next run.
func (a *App) Authenticate(ctx context.Context) error {
	cred, err := a.store.Resolve(ctx, a.loginSources())
	if err != nil {
		return fmt.Errorf("app: authenticate: %w", err)
	}
	a.setCredential(cred)
	a.log.Info("authenticated", zap.String("crsid", cred.CRSID), zap.String("store", a.store.Path()))
	return nil
}

// Login always runs the interactive login and overwrites the stored
// credential.
func (a *App) Login(ctx context.Context) error {
	cred, err := a.store.Refresh(ctx, a.interactiveSource())
	if err != nil {
		return fmt.Errorf("app: login: %w", err)
	}
	a.setCredential(cred)
	a.journal.Info("login", "saved credential for %s", cred.CRSID)
	tui.Success(a.out, "Saved credential for %s to %s", cred.CRSID, a.store.Path())
	return nil
}

func (a *App) loginSources() auth.Source {
	return auth.Chain{auth.EnvSource{}, a.interactiveSource()}
}

func (a *App) interactiveSource() auth.Source {
	return auth.InteractiveSource{
		AuthURL: a.cfg.Settings.AuthURL,
		Browser: a.opener,
		Prompt:  a.prompt,
		Out:     a.out,
	}
}

func (a *App) setCredential(cred auth.Credential) {
	a.cred = cred
	a.client = client.New(a.cfg.Settings.BaseURL, cred, a.httpClient, a.log)
}

// Book runs the interactive loop: fetch, filter, select, then set up or
// submit the chosen slot. Failures inside a round are reported and the
// course menu is shown again. The loop ends when the user quits a prompt or
// when no prompt can be shown.
func (a *App) Book(ctx context.Context) error {
	if a.client == nil {
		return ErrNotAuthenticated
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		groups, tripos, err := a.fetchGroups(ctx)
		if err != nil {
			if fatal := a.roundFailed(err); fatal != nil {
				return fatal
			}
			if ctx.Err() != nil {
				return nil
			}
			retry, perr := a.prompt.Confirm("Retry?")
			if errors.Is(perr, tui.ErrPrompt) {
				return perr
			}
			if perr != nil || !retry {
				return nil
			}
			continue
		}

		err = a.bookRound(ctx, groups, tripos)
		if errors.Is(err, tui.ErrAborted) {
			tui.Muted(a.out, "Bye.")
			return nil
		}
		if errors.Is(err, tui.ErrPrompt) {
			a.log.Error("prompt failed", zap.Error(err))
			return err
		}
		if err != nil {
			if fatal := a.roundFailed(err); fatal != nil {
				return fatal
			}
		}
	}
}

func (a *App) fetchGroups(ctx context.Context) ([]kudos.SupervisionGroup, string, error) {
	defaults, err := a.client.Defaults(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetch defaults: %w", err)
	}
	groups, err := a.client.Assignments(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetch assignments: %w", err)
	}
	a.log.Debug("assignments fetched",
		zap.String("tripos", defaults.Tripos),
		zap.Int("groups", len(groups)))
	return groups, defaults.Tripos, nil
}

func (a *App) bookRound(ctx context.Context, groups []kudos.SupervisionGroup, tripos string) error {
	eligible := slots.Filter(groups, tripos, a.now().UTC())
	a.log.Info("eligible groups",
		zap.Int("total", len(groups)),
		zap.Int("eligible", len(eligible)),
		zap.String("tripos", tripos))
	if len(eligible) == 0 {
		tui.Muted(a.out, "No supervisions with open slots for %s.", tripos)
	}

	sel, err := slots.NewSelector(a.prompt, a.out, a.log).Select(eligible)
	if err != nil {
		return err
	}
	if sel.Review {
		_, err := a.reviewer().Run(ctx)
		return err
	}

	outcome, err := a.machine().Enter(ctx, sel.Slot)
	if err != nil {
		return err
	}
	a.log.Info("slot handled",
		zap.String("dir", booking.DirName(sel.Slot)),
		zap.Stringer("outcome", outcome))
	return nil
}

// roundFailed reports err and returns non-nil only for errors the loop
// cannot recover from.
func (a *App) roundFailed(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, client.ErrUnauthorized):
		a.log.Error("credential rejected", zap.Error(err))
		return fmt.Errorf("%w (run `kudos login` to refresh %s)", err, a.store.Path())
	}
	a.log.Warn("round failed", zap.Error(err))
	tui.Error(a.out, "%v", err)
	return nil
}

// Review lists recent marked work and opens one submission.
func (a *App) Review(ctx context.Context) error {
	if a.client == nil {
		return ErrNotAuthenticated
	}
	_, err := a.reviewer().Run(ctx)
	if errors.Is(err, tui.ErrAborted) {
		return nil
	}
	return err
}

// Submit resolves, compiles and uploads an existing working directory.
func (a *App) Submit(ctx context.Context, dir string) error {
	if a.client == nil {
		return ErrNotAuthenticated
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("app: submit: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("app: submit: %w: %s", booking.ErrNotDirectory, dir)
	}
	return a.pipeline().Run(ctx, dir)
}

// History prints the last n logbook entries.
func (a *App) History(n int) {
	entries := a.journal.Tail(n)
	if len(entries) == 0 {
		tui.Muted(a.out, "No history yet in %s.", a.journal.Path())
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Time.Local().Format("2006-01-02 15:04"),
			string(e.Level),
			e.Subject,
			e.Message,
		})
	}
	fmt.Fprintln(a.out, tui.RenderTable([]string{"Time", "Level", "Directory", "Event"}, rows))
}

// PrintConfig writes the merged settings as YAML.
func (a *App) PrintConfig() error {
	data, err := a.cfg.EffectiveYAML()
	if err != nil {
		return err
	}
	if a.cfg.SettingsFile != "" {
		tui.Muted(a.out, "# from %s", a.cfg.SettingsFile)
	}
	_, err = a.out.Write(data)
	return err
}

func (a *App) reviewer() *review.Reviewer {
	return review.New(a.client, a.opener, a.prompt, a.out,
		review.WithClock(a.now),
		review.WithWindow(a.cfg.Settings.Review.Window),
		review.WithLogger(a.log),
		review.WithJournal(a.journal))
}

func (a *App) pipeline() *booking.Pipeline {
	return booking.NewPipeline(a.client, a.compiler, booking.FileUploader{Poster: a.client}, a.out, a.log, a.journal)
}

func (a *App) machine() *booking.Machine {
	ws := booking.NewWorkspace(a.cfg.WorkRoot(), a.cfg.TemplatePath(), a.client.BaseURL(), a.client,
		booking.WithLogger(a.log),
		booking.WithJournal(a.journal))
	return booking.NewMachine(ws, a.pipeline(), a.prompt, a.cred.CRSID, a.out, a.log)
}
