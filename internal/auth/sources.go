package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kingrea/kudos/internal/tui"
)

// EnvSource reads KUDOS_CRSID and KUDOS_AUTH for headless use.
type EnvSource struct{}

// Acquire implements Source.
func (EnvSource) Acquire(context.Context) (Credential, error) {
	cred := Credential{
		CRSID: strings.TrimSpace(os.Getenv("KUDOS_CRSID")),
		Auth:  strings.TrimSpace(os.Getenv("KUDOS_AUTH")),
	}
	if cred.CRSID == "" || cred.Auth == "" {
		return Credential{}, ErrNoCredential
	}
	return cred, nil
}

// Chain tries each source in turn, skipping those with no credential.
type Chain []Source

// Acquire implements Source.
func (c Chain) Acquire(ctx context.Context) (Credential, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		cred, err := src.Acquire(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			return Credential{}, err
		}
	}
	return Credential{}, ErrNoCredential
}

// BrowserOpener opens a URL in the user's browser.
type BrowserOpener interface {
	Open(url string) error
}

// InteractiveSource sends the user through Raven in their browser, then asks
// them to paste the CRSID and session cookie shown after login.
type InteractiveSource struct {
	AuthURL string
	Browser BrowserOpener
	Prompt  tui.Prompter
	Out     io.Writer
}

// Acquire implements Source.
func (s InteractiveSource) Acquire(ctx context.Context) (Credential, error) {
	if s.Prompt == nil {
		return Credential{}, fmt.Errorf("auth: interactive login needs a prompter")
	}
	out := s.Out
	if out == nil {
		out = io.Discard
	}
	tui.Title(out, "Log in to KuDoS")
	if s.AuthURL != "" {
		tui.Item(out, "Opening %s", s.AuthURL)
		if s.Browser != nil {
			if err := s.Browser.Open(s.AuthURL); err != nil {
				tui.Muted(out, "Could not open a browser (%v); visit the URL above manually.", err)
			}
		}
	}
	tui.Muted(out, "After logging in, copy the %s cookie from your browser's developer tools.", CookieName)
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	crsid, err := s.Prompt.Text("CRSID:", false)
	if err != nil {
		return Credential{}, err
	}
	token, err := s.Prompt.Text(CookieName+" cookie:", true)
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{CRSID: strings.TrimPrefix(crsid, "Username: "), Auth: token}
	if err := cred.Validate(); err != nil {
		return Credential{}, err
	}
	return cred, nil
}
