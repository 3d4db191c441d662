// Package compiler runs the external LaTeX engine over a working document.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultCommand is the engine used when none is configured.
const DefaultCommand = "tectonic"

// ErrCompileFailed wraps a non-zero exit from the engine.
var ErrCompileFailed = errors.New("compiler: compilation failed")

// Command invokes Name with Args followed by the document, inside the
// document's directory.
type Command struct {
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	log    *zap.Logger
}

// New returns a Command for name. Output streams default to the process's.
func New(name string, args []string, log *zap.Logger) *Command {
	if strings.TrimSpace(name) == "" {
		name = DefaultCommand
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Command{
		Name:   name,
		Args:   append([]string(nil), args...),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    log,
	}
}

// OutputPath is the PDF the engine produces for document.
func OutputPath(dir, document string) string {
	base := strings.TrimSuffix(document, filepath.Ext(document))
	return filepath.Join(dir, base+".pdf")
}

// Compile runs the engine and returns the path of the produced PDF.
func (c *Command) Compile(ctx context.Context, dir, document string) (string, error) {
	args := append(append([]string(nil), c.Args...), document)
	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Dir = dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	c.log.Info("compiling document",
		zap.String("command", c.Name),
		zap.Strings("args", args),
		zap.String("dir", dir))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("compiler: cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s exited with code %d", ErrCompileFailed, c.Name, exitErr.ExitCode())
		}
		return "", fmt.Errorf("compiler: run %s: %w", c.Name, err)
	}
	return OutputPath(dir, document), nil
}
