package booking

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/kudos/internal/auth"
	"github.com/kingrea/kudos/internal/client"
	"github.com/kingrea/kudos/internal/kudos"
	"github.com/kingrea/kudos/internal/logbook"
	"github.com/kingrea/kudos/internal/slots"
)

const templateBody = "\\input{infofile}\n\\begin{document}work\\end{document}\n"

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template", "perSV_mywork.tex")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(templateBody), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testGroup(bookings ...kudos.Booking) kudos.SupervisionGroup {
	return kudos.SupervisionGroup{
		GroupNumber: 12,
		Supervisor: kudos.Supervisor{
			Name: "Dr Ada Lovelace", Title: "Dr", FirstName: "Ada", LastName: "Lovelace", CRSID: "al42",
		},
		Group:            []kudos.Supervisee{{Tripos: "CST", Course: "Algorithms", Subject: "CS"}},
		Bookings:         bookings,
		MinutesAllocated: 120,
		Supervisees: []kudos.Supervisee{
			{User: kudos.User{CRSID: "ab123", Title: "Mr", FirstName: "Alan", LastName: "Brown"}},
		},
	}
}

type fakeFetcher struct {
	calls int
	body  []byte
	err   error
}

func (f *fakeFetcher) InfoFile(ctx context.Context, supervisorCRSID string, groupNumber, slotNumber int) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func (f *fakeFetcher) BaseURL() string { return "https://kudos.example/rest" }

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

type fakeCompiler struct {
	calls int
	err   error
}

func (c *fakeCompiler) Compile(ctx context.Context, dir, document string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	out := filepath.Join(dir, strings.TrimSuffix(document, ".tex")+".pdf")
	return out, os.WriteFile(out, []byte("%PDF-1.7"), 0o644)
}

type fakeUploader struct {
	uploaded []string
	err      error
}

func (u *fakeUploader) Upload(ctx context.Context, artifactPath string) error {
	u.uploaded = append(u.uploaded, artifactPath)
	return u.err
}

type confirmPrompter struct {
	answer bool
	asked  int
}

func (p *confirmPrompter) Number(string, int, int) (int, error) { return 0, nil }
func (p *confirmPrompter) Text(string, bool) (string, error)    { return "", nil }
func (p *confirmPrompter) Confirm(string) (bool, error) {
	p.asked++
	return p.answer, nil
}

func TestSyntheticInfoRender(t *testing.T) {
	slot := kudos.Slot{Group: testGroup(), Index: 1}
	info := SyntheticInfo("https://kudos.example/rest", slot, kudos.User{CRSID: "ab123", Title: "Mr", FirstName: "Alan", LastName: "Brown"})
	out := string(info.Render())
	for _, want := range []string{
		`\newcommand{\svcourse}{Algorithms}`,
		`\newcommand{\svnumber}{2}`,
		`\newcommand{\svvenue}{}`,
		`\newcommand{\svuploadkey}{https://kudos.example/rest/supervisions/infofile/al42/12/2}`,
		`\newcommand{\svrname}{Dr Ada Lovelace}`,
		`\newcommand{\jkfside}{oneside}`,
		`\newcommand{\studentname}{Mr Alan Brown}`,
		`\newcommand{\studentemail}{ab123}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("info file missing %q:\n%s", want, out)
		}
	}
	key, ok := UploadKey(info.Render())
	if !ok || key != "https://kudos.example/rest/supervisions/infofile/al42/12/2" {
		t.Fatalf("UploadKey = %q, %v", key, ok)
	}
}

func TestUploadKeyAbsent(t *testing.T) {
	if _, ok := UploadKey([]byte(`\newcommand{\svuploadkey}{}`)); ok {
		t.Fatalf("empty key must not match")
	}
}

func TestCheckStates(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root, writeTemplate(t), "https://kudos.example/rest", &fakeFetcher{})
	slot := kudos.Slot{Group: testGroup(), Index: 0}
	if state, err := ws.Check(slot); err != nil || state != StateAbsent {
		t.Fatalf("expected absent, got %s %v", state, err)
	}
	if err := os.Mkdir(filepath.Join(root, "Algorithms_1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if state, err := ws.Check(slot); err != nil || state != StatePresent {
		t.Fatalf("expected present, got %s %v", state, err)
	}
	if err := os.WriteFile(filepath.Join(root, "Algorithms_2"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Check(kudos.Slot{Group: testGroup(), Index: 1}); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
}

func TestDirNameSanitizesCourse(t *testing.T) {
	g := testGroup()
	g.Group[0].Course = "Logic/Proof"
	if got := DirName(kudos.Slot{Group: g, Index: 2}); got != "Logic-Proof_3" {
		t.Fatalf("unexpected dir name %s", got)
	}
}

func TestEnterSyntheticSlotMakesNoNetworkCall(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{}
	journal, err := logbook.New(filepath.Join(root, ".kudos", "logs", "journey.log"))
	if err != nil {
		t.Fatal(err)
	}
	ws := NewWorkspace(root, writeTemplate(t), "https://kudos.example/rest", fetcher, WithJournal(journal))
	m := NewMachine(ws, nil, &confirmPrompter{}, "ab123", &bytes.Buffer{}, nil)

	outcome, err := m.Enter(context.Background(), kudos.Slot{Group: testGroup(), Index: 0})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome)
	}
	if fetcher.calls != 0 {
		t.Fatalf("synthetic slot must not hit the network")
	}
	work, err := os.ReadFile(filepath.Join(root, "Algorithms_1", WorkFile))
	if err != nil || string(work) != templateBody {
		t.Fatalf("template not copied: %q %v", work, err)
	}
	if _, err := os.Stat(filepath.Join(root, "Algorithms_1", InfoFile)); err != nil {
		t.Fatalf("info file missing: %v", err)
	}
	entries := journal.Tail(10)
	if len(entries) != 2 || entries[0].Subject != "Algorithms_1" {
		t.Fatalf("unexpected journal %+v", entries)
	}
}

func TestEnterRealSlotFetchesInfo(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{body: []byte(`\newcommand{\svvenue}{FW11}`)}
	ws := NewWorkspace(root, writeTemplate(t), "https://kudos.example/rest", fetcher)
	m := NewMachine(ws, nil, &confirmPrompter{}, "ab123", &bytes.Buffer{}, nil)

	slot := kudos.Slot{Group: testGroup(kudos.Booking{Duration: 60, StartTime: "2026-10-20T10:00:00", Venue: "FW11"}), Index: 0}
	if _, err := m.Enter(context.Background(), slot); err != nil {
		t.Fatalf("enter: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "Algorithms_1", InfoFile))
	if err != nil || string(got) != `\newcommand{\svvenue}{FW11}` {
		t.Fatalf("info file not written verbatim: %q %v", got, err)
	}
}

func TestEnterRealSlotFetchFailureLeavesPartialDirectory(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	ws := NewWorkspace(root, writeTemplate(t), "https://kudos.example/rest", fetcher)
	m := NewMachine(ws, nil, &confirmPrompter{}, "ab123", &bytes.Buffer{}, nil)

	slot := kudos.Slot{Group: testGroup(kudos.Booking{Duration: 60}), Index: 0}
	if _, err := m.Enter(context.Background(), slot); err == nil {
		t.Fatalf("expected fetch error")
	}
	dir := filepath.Join(root, "Algorithms_1")
	if _, err := os.Stat(filepath.Join(dir, WorkFile)); err != nil {
		t.Fatalf("template should remain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, InfoFile)); !os.IsNotExist(err) {
		t.Fatalf("info file should be absent, got %v", err)
	}
}

func TestEnterMissingTemplate(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root, filepath.Join(root, "nope.tex"), "https://kudos.example/rest", &fakeFetcher{})
	m := NewMachine(ws, nil, &confirmPrompter{}, "ab123", &bytes.Buffer{}, nil)
	_, err := m.Enter(context.Background(), kudos.Slot{Group: testGroup(), Index: 0})
	if !errors.Is(err, ErrTemplateMissing) {
		t.Fatalf("expected ErrTemplateMissing, got %v", err)
	}
}

func TestEnterUnknownStudent(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), writeTemplate(t), "https://kudos.example/rest", &fakeFetcher{})
	m := NewMachine(ws, nil, &confirmPrompter{}, "zz999", &bytes.Buffer{}, nil)
	_, err := m.Enter(context.Background(), kudos.Slot{Group: testGroup(), Index: 0})
	if !errors.Is(err, ErrStudentNotInGroup) {
		t.Fatalf("expected ErrStudentNotInGroup, got %v", err)
	}
}

func TestReenterNeverRecreates(t *testing.T) {
	root := t.TempDir()
	template := writeTemplate(t)
	fetcher := &fakeFetcher{}
	ws := NewWorkspace(root, template, "https://kudos.example/rest", fetcher)
	prompt := &confirmPrompter{answer: false}
	compiler := &fakeCompiler{}
	pipeline := NewPipeline(fetcher, compiler, &fakeUploader{}, nil, nil, nil)
	m := NewMachine(ws, pipeline, prompt, "ab123", &bytes.Buffer{}, nil)
	slot := kudos.Slot{Group: testGroup(), Index: 0}

	if _, err := m.Enter(context.Background(), slot); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	workPath := filepath.Join(root, "Algorithms_1", WorkFile)
	if err := os.WriteFile(workPath, []byte("student edits"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(template, []byte("new template"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcome, err := m.Enter(context.Background(), slot)
	if err != nil {
		t.Fatalf("second enter: %v", err)
	}
	if outcome != OutcomeSkipped || prompt.asked != 1 {
		t.Fatalf("expected a single declined prompt, got %s asked=%d", outcome, prompt.asked)
	}
	got, _ := os.ReadFile(workPath)
	if string(got) != "student edits" {
		t.Fatalf("working document was overwritten: %q", got)
	}
	if compiler.calls != 0 || fetcher.calls != 0 {
		t.Fatalf("declined re-entry must not compile or fetch")
	}
}

func prepareDir(t *testing.T, info string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Algorithms_2")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, WorkFile), []byte(templateBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if info != "" {
		if err := os.WriteFile(filepath.Join(dir, InfoFile), []byte(info), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPipelineStepsGateEachOther(t *testing.T) {
	keyed := `\newcommand{\svuploadkey}{https://kudos.example/rest/supervisions/infofile/al42/12/2}`
	cases := []struct {
		name         string
		info         string
		resolveErr   error
		compileErr   error
		uploadErr    error
		wantErr      error
		wantCompiles int
		wantUploads  int
	}{
		{name: "no key", info: `\newcommand{\svvenue}{}`, wantCompiles: 1, wantUploads: 1},
		{name: "resolved key", info: keyed, wantCompiles: 1, wantUploads: 1},
		{name: "missing info", info: "", wantErr: ErrInfoMissing},
		{name: "slot not booked", info: keyed, resolveErr: &client.StatusError{Method: "GET", Status: 404}, wantErr: ErrNotBooked},
		{name: "compile fails", info: keyed, compileErr: errors.New("tectonic exited 1"), wantCompiles: 1},
		{name: "upload fails", info: keyed, uploadErr: errors.New("HTTP 500"), wantCompiles: 1, wantUploads: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := prepareDir(t, tc.info)
			resolver := &fakeFetcher{body: []byte("resolved"), err: tc.resolveErr}
			compiler := &fakeCompiler{err: tc.compileErr}
			uploader := &fakeUploader{err: tc.uploadErr}
			err := NewPipeline(resolver, compiler, uploader, nil, nil, nil).Run(context.Background(), dir)

			failing := tc.wantErr != nil || tc.compileErr != nil || tc.uploadErr != nil
			if failing && err == nil {
				t.Fatalf("expected failure")
			}
			if !failing && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if compiler.calls != tc.wantCompiles {
				t.Fatalf("compiles = %d, want %d", compiler.calls, tc.wantCompiles)
			}
			if len(uploader.uploaded) != tc.wantUploads {
				t.Fatalf("uploads = %d, want %d", len(uploader.uploaded), tc.wantUploads)
			}
			if tc.info == keyed && tc.resolveErr == nil {
				got, _ := os.ReadFile(filepath.Join(dir, InfoFile))
				if string(got) != "resolved" {
					t.Fatalf("info file not replaced: %q", got)
				}
			}
			if tc.resolveErr != nil {
				got, _ := os.ReadFile(filepath.Join(dir, InfoFile))
				if string(got) != keyed {
					t.Fatalf("info file must be untouched after a failed resolve")
				}
			}
		})
	}
}

func TestPipelineRefusesForeignUploadKeys(t *testing.T) {
	keys := []string{
		"https://evil.example/steal",
		"http://kudos.example/rest/supervisions/infofile/al42/12/2",
		"https://kudos.example:8443/rest/supervisions/infofile/al42/12/2",
		"https://kudos.example.evil.example/rest/supervisions/infofile/al42/12/2",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			info := `\newcommand{\svuploadkey}{` + key + `}`
			dir := prepareDir(t, info)
			resolver := &fakeFetcher{body: []byte("resolved")}
			compiler := &fakeCompiler{}
			err := NewPipeline(resolver, compiler, &fakeUploader{}, nil, nil, nil).Run(context.Background(), dir)
			if !errors.Is(err, ErrForeignUploadKey) {
				t.Fatalf("expected ErrForeignUploadKey, got %v", err)
			}
			if resolver.calls != 0 {
				t.Fatalf("foreign key must not be fetched")
			}
			if compiler.calls != 0 {
				t.Fatalf("compiler must not run after a refused key")
			}
			got, _ := os.ReadFile(filepath.Join(dir, InfoFile))
			if string(got) != info {
				t.Fatalf("info file must be untouched, got %q", got)
			}
		})
	}
}

func TestPipelineMissingWorkFile(t *testing.T) {
	dir := prepareDir(t, `\newcommand{\svvenue}{}`)
	if err := os.Remove(filepath.Join(dir, WorkFile)); err != nil {
		t.Fatal(err)
	}
	compiler := &fakeCompiler{}
	err := NewPipeline(&fakeFetcher{}, compiler, &fakeUploader{}, nil, nil, nil).Run(context.Background(), dir)
	if !errors.Is(err, ErrWorkFileMissing) {
		t.Fatalf("expected ErrWorkFileMissing, got %v", err)
	}
	if compiler.calls != 0 {
		t.Fatalf("compiler must not run without a working document")
	}
}

type posterFunc func(ctx context.Context, pdf []byte) error

func (f posterFunc) Upload(ctx context.Context, pdf []byte) error { return f(ctx, pdf) }

func TestFileUploader(t *testing.T) {
	var got []byte
	u := FileUploader{Poster: posterFunc(func(ctx context.Context, pdf []byte) error {
		got = pdf
		return nil
	})}
	if err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "work.pdf")); !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "work.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := u.Upload(context.Background(), path); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(got) != "%PDF" {
		t.Fatalf("poster received %q", got)
	}
}

// A group with 120 minutes and one future hour booked offers a real and a
// synthetic slot; choosing the second synthesizes an info file whose key
// names the supervisor, group and slot 2. Entering it again resolves that
// key against the service, compiles and uploads.
func TestEndToEndSyntheticSlotThenSubmit(t *testing.T) {
	var uploaded []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/supervisions/infofile/al42/12/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `\newcommand{\svnumber}{2}\newcommand{\svvenue}{FW11}`)
	})
	mux.HandleFunc("/supervisions/upload", func(w http.ResponseWriter, r *http.Request) {
		uploaded, _ = io.ReadAll(r.Body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	g := testGroup(kudos.Booking{Duration: 60, StartTime: now.Add(72 * time.Hour).Format(time.RFC3339), Venue: "FW11"})
	eligible := slots.Filter([]kudos.SupervisionGroup{g}, "CST", now)
	if len(eligible) != 1 {
		t.Fatalf("group should be eligible")
	}
	if n := slots.AvailableSlots(eligible[0]); n != 2 {
		t.Fatalf("AvailableSlots = %d, want 2", n)
	}
	slot := kudos.Slot{Group: eligible[0], Index: 1}
	if !slot.Synthetic() {
		t.Fatalf("slot 2 should be synthetic")
	}

	api := client.New(srv.URL, auth.Credential{CRSID: "ab123", Auth: "tok"}, srv.Client(), nil)
	root := t.TempDir()
	ws := NewWorkspace(root, writeTemplate(t), api.BaseURL(), api)
	pipeline := NewPipeline(api, &fakeCompiler{}, FileUploader{Poster: api}, nil, nil, nil)
	m := NewMachine(ws, pipeline, &confirmPrompter{answer: true}, "ab123", &bytes.Buffer{}, nil)

	if outcome, err := m.Enter(context.Background(), slot); err != nil || outcome != OutcomeCreated {
		t.Fatalf("first enter: %s %v", outcome, err)
	}
	info, err := os.ReadFile(filepath.Join(root, "Algorithms_2", InfoFile))
	if err != nil {
		t.Fatal(err)
	}
	key, ok := UploadKey(info)
	if !ok || key != srv.URL+"/supervisions/infofile/al42/12/2" {
		t.Fatalf("unexpected upload key %q", key)
	}
	if !strings.Contains(string(info), `\newcommand{\svnumber}{2}`) {
		t.Fatalf("info file should reference slot 2:\n%s", info)
	}

	if outcome, err := m.Enter(context.Background(), slot); err != nil || outcome != OutcomeSubmitted {
		t.Fatalf("second enter: %s %v", outcome, err)
	}
	resolved, _ := os.ReadFile(filepath.Join(root, "Algorithms_2", InfoFile))
	if !strings.Contains(string(resolved), "FW11") {
		t.Fatalf("info file should be replaced by the booked version: %q", resolved)
	}
	if string(uploaded) != "%PDF-1.7" {
		t.Fatalf("server received %q", uploaded)
	}
}
