package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/client"
	"github.com/kingrea/kudos/internal/logbook"
	"github.com/kingrea/kudos/internal/tui"
)

var (
	ErrInfoMissing     = errors.New("booking: info file not found")
	ErrWorkFileMissing = errors.New("booking: working document not found")
	ErrArtifactMissing = errors.New("booking: compiled PDF not found")
	ErrNotBooked       = errors.New("booking: supervision is not booked")
	// ErrForeignUploadKey is returned for upload keys outside the KuDoS
	// service; the session cookie is never sent to them.
	ErrForeignUploadKey = errors.New("booking: upload key is not on the KuDoS service")
)

// KeyResolver downloads the document an upload key points at. Keys must live
// under the same scheme and host as BaseURL.
type KeyResolver interface {
	BaseURL() string
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Compiler turns the working document into a PDF and returns its path.
type Compiler interface {
	Compile(ctx context.Context, dir, document string) (string, error)
}

// Uploader submits a compiled artifact.
type Uploader interface {
	Upload(ctx context.Context, artifactPath string) error
}

// PDFPoster is the transport half of an Uploader.
type PDFPoster interface {
	Upload(ctx context.Context, pdf []byte) error
}

// FileUploader reads an artifact from disk and posts it.
type FileUploader struct {
	Poster PDFPoster
}

// Upload implements Uploader.
func (u FileUploader) Upload(ctx context.Context, artifactPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, artifactPath)
		}
		return fmt.Errorf("booking: read artifact: %w", err)
	}
	return u.Poster.Upload(ctx, data)
}

// Pipeline resolves, compiles and uploads a working directory. Each step
// gates the next; nothing produced by an earlier step is rolled back.
type Pipeline struct {
	resolver KeyResolver
	compiler Compiler
	uploader Uploader
	out      io.Writer
	log      *zap.Logger
	journal  *logbook.Logbook
}

// NewPipeline wires the three collaborators. out receives progress lines.
func NewPipeline(resolver KeyResolver, compiler Compiler, uploader Uploader, out io.Writer, log *zap.Logger, journal *logbook.Logbook) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		resolver: resolver,
		compiler: compiler,
		uploader: uploader,
		out:      out,
		log:      log,
		journal:  journal,
	}
}

// Run executes resolve, compile and upload for dir.
func (p *Pipeline) Run(ctx context.Context, dir string) error {
	name := filepath.Base(dir)
	if err := p.ResolveUploadKey(ctx, dir); err != nil {
		p.journal.Error(name, "resolve upload key: %v", err)
		return err
	}
	artifact, err := p.compile(ctx, dir)
	if err != nil {
		p.journal.Error(name, "compile: %v", err)
		return err
	}
	tui.Success(p.out, "LaTeX compilation successful.")
	p.journal.Info(name, "compiled %s", filepath.Base(artifact))
	if err := p.uploader.Upload(ctx, artifact); err != nil {
		p.journal.Error(name, "upload: %v", err)
		return fmt.Errorf("booking: upload: %w", err)
	}
	tui.Success(p.out, "PDF uploaded successfully.")
	p.journal.Info(name, "uploaded %s", filepath.Base(artifact))
	return nil
}

// ResolveUploadKey replaces the info document with the one its upload key
// points at. Documents without a key are left as they are.
func (p *Pipeline) ResolveUploadKey(ctx context.Context, dir string) error {
	path := filepath.Join(dir, InfoFile)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w in %s", ErrInfoMissing, dir)
		}
		return fmt.Errorf("booking: read info file: %w", err)
	}
	key, ok := UploadKey(content)
	if !ok {
		return nil
	}
	if !sameOrigin(key, p.resolver.BaseURL()) {
		p.log.Warn("refusing upload key", zap.String("dir", dir), zap.String("key", key))
		return fmt.Errorf("%w: %s", ErrForeignUploadKey, key)
	}
	body, err := p.resolver.Fetch(ctx, key)
	if err != nil {
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("%w: %w", ErrNotBooked, err)
		}
		return fmt.Errorf("booking: download upload key: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("booking: replace info file: %w", err)
	}
	tui.Item(p.out, "Replaced %s with the downloaded content.", InfoFile)
	p.log.Info("resolved upload key", zap.String("dir", dir), zap.String("key", key))
	return nil
}

func sameOrigin(rawURL, base string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, b.Scheme) && strings.EqualFold(u.Host, b.Host)
}

func (p *Pipeline) compile(ctx context.Context, dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, WorkFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrWorkFileMissing, dir)
		}
		return "", fmt.Errorf("booking: stat working document: %w", err)
	}
	artifact, err := p.compiler.Compile(ctx, dir, WorkFile)
	if err != nil {
		return "", fmt.Errorf("booking: compile: %w", err)
	}
	return artifact, nil
}
