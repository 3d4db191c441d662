// Package client talks to the KuDoS REST API on behalf of one authenticated
// student.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/kudos/internal/auth"
	"github.com/kingrea/kudos/internal/kudos"
)

// DefaultBaseURL is the production REST root.
const DefaultBaseURL = "https://kudos.chu.cam.ac.uk/kudos/rest"

// maxErrorBody caps how much of a failed response is kept for reporting.
const maxErrorBody = 4 << 10

// ErrUnauthorized matches 401 and 403 responses.
var ErrUnauthorized = errors.New("client: session rejected; log in again")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("client: %s %s: HTTP %d", e.Method, e.URL, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Is lets errors.Is(err, ErrUnauthorized) match auth failures.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// Client is bound to a single credential for its lifetime.
type Client struct {
	baseURL    string
	cred       auth.Credential
	httpClient *http.Client
	log        *zap.Logger
}

// New builds a client. A nil httpClient gets a 30 second timeout.
func New(baseURL string, cred auth.Credential, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cred:       cred,
		httpClient: httpClient,
		log:        log,
	}
}

// DefaultHTTPClient returns an http.Client with the given timeout.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// BaseURL returns the REST root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Defaults fetches the student's profile defaults.
func (c *Client) Defaults(ctx context.Context) (kudos.UserDefaults, error) {
	var out kudos.UserDefaults
	if err := c.getJSON(ctx, c.baseURL+"/users/defaults", &out); err != nil {
		return kudos.UserDefaults{}, err
	}
	return out, nil
}

// Assignments fetches every supervision group the student belongs to.
func (c *Client) Assignments(ctx context.Context) ([]kudos.SupervisionGroup, error) {
	var out []kudos.SupervisionGroup
	if err := c.getJSON(ctx, c.baseURL+"/supervisions/getSVAssignments", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InfoFileURL is the endpoint serving a slot's info document. The same URL
// is embedded as the upload key in synthesized info files.
func InfoFileURL(baseURL, supervisorCRSID string, groupNumber, slotNumber int) string {
	return fmt.Sprintf("%s/supervisions/infofile/%s/%d/%d",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(supervisorCRSID),
		groupNumber,
		slotNumber)
}

// InfoFile fetches the info document for a booked slot.
func (c *Client) InfoFile(ctx context.Context, supervisorCRSID string, groupNumber, slotNumber int) ([]byte, error) {
	return c.Fetch(ctx, InfoFileURL(c.baseURL, supervisorCRSID, groupNumber, slotNumber))
}

// Fetch performs an authenticated GET of an absolute URL and returns the body.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	return c.do(req)
}

// Upload posts a compiled PDF to the submission endpoint.
func (c *Client) Upload(ctx context.Context, pdf []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/supervisions/upload", bytes.NewReader(pdf))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	_, err = c.do(req)
	return err
}

// MarkedUploads lists the student's recently uploaded or marked work.
func (c *Client) MarkedUploads(ctx context.Context) ([]kudos.Submission, error) {
	var out []kudos.Submission
	if err := c.getJSON(ctx, c.baseURL+"/supervisions/upload-marked", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkedURL is the page showing one marked submission.
func (c *Client) MarkedURL(id string) string {
	return c.baseURL + "/supervisions/upload-marked/" + url.PathEscape(id)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("client: decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: c.cred.Auth})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("request_id", requestID),
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return nil, fmt.Errorf("client: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w", req.URL, err)
	}
	c.log.Debug("request finished",
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{
			Method: req.Method,
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}
	return body, nil
}
