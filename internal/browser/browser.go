// Package browser hands URLs to the operating system's default handler.
package browser

import (
	"errors"
	"fmt"
	"net/url"

	pkgbrowser "github.com/pkg/browser"
)

// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
var ErrUnsupportedURL = errors.New("browser: only http and https URLs can be opened")

// OpenFunc launches the handler for a URL.
type OpenFunc func(url string) error

// System opens URLs with the platform's default browser.
type System struct {
	open OpenFunc
}

// New returns an opener backed by github.com/pkg/browser.
func New() *System {
	return &System{open: pkgbrowser.OpenURL}
}

// NewWithOpener is used by tests to capture the URL instead of opening it.
func NewWithOpener(open OpenFunc) *System {
	return &System{open: open}
}

// Open launches the default handler for rawURL.
func (s *System) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	if err := s.open(u.String()); err != nil {
		return fmt.Errorf("browser: open %s: %w", rawURL, err)
	}
	return nil
}
