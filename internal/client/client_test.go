package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kingrea/kudos/internal/auth"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, auth.Credential{CRSID: "ab123", Auth: "secret"}, srv.Client(), nil)
	return c, srv
}

func TestRequestsCarryCookieAndRequestID(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieName)
		if err != nil || cookie.Value != "secret" {
			http.Error(w, "no cookie", http.StatusUnauthorized)
			return
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			http.Error(w, "bad request id", http.StatusBadRequest)
			return
		}
		if r.URL.Path != "/users/defaults" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"tripos":"CST","other":1}`)
	})
	defaults, err := c.Defaults(context.Background())
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if defaults.Tripos != "CST" {
		t.Fatalf("unexpected tripos %q", defaults.Tripos)
	}
}

func TestAssignmentsDecodesGroups(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{
			"groupNumber": 3,
			"supervisor": {"name": "Dr Who", "title": "Dr", "firstName": "The", "lastName": "Doctor", "CRSID": "tw1"},
			"group": [{"tripos": "CST", "course": "Algorithms", "subject": "CS"}],
			"bookings": [{"duration": 60, "startTime": "2026-10-20T10:00:00", "venue": "FW11"}],
			"minutesAllocated": 180,
			"supervisees": [{"user": {"CRSID": "ab123", "firstName": "Ada"}}]
		}]`)
	})
	groups, err := c.Assignments(context.Background())
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	g := groups[0]
	if g.GroupNumber != 3 || g.Supervisor.CRSID != "tw1" || g.MinutesAllocated != 180 {
		t.Fatalf("unexpected group %+v", g)
	}
	if g.Bookings[0].Venue != "FW11" || g.Supervisees[0].User.CRSID != "ab123" {
		t.Fatalf("nested fields not decoded: %+v", g)
	}
}

func TestInfoFileURLAndFetch(t *testing.T) {
	c, srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supervisions/infofile/tw1/3/2" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `\newcommand{\svnumber}{2}`)
	})
	if got := InfoFileURL(srv.URL+"/", "tw1", 3, 2); got != srv.URL+"/supervisions/infofile/tw1/3/2" {
		t.Fatalf("unexpected url %s", got)
	}
	body, err := c.InfoFile(context.Background(), "tw1", 3, 2)
	if err != nil {
		t.Fatalf("info file: %v", err)
	}
	if !strings.Contains(string(body), `\svnumber`) {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestStatusErrors(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/supervisions/upload":
			http.Error(w, "not booked", http.StatusConflict)
		default:
			http.Error(w, "login", http.StatusForbidden)
		}
	})
	err := c.Upload(context.Background(), []byte("%PDF"))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusConflict || !strings.Contains(statusErr.Body, "not booked") {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("409 must not match ErrUnauthorized")
	}

	_, err = c.Assignments(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("403 should match ErrUnauthorized, got %v", err)
	}
}

func TestUploadSendsBody(t *testing.T) {
	var received string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		data, _ := io.ReadAll(r.Body)
		received = string(data)
	})
	if err := c.Upload(context.Background(), []byte("%PDF-1.7")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if received != "%PDF-1.7" {
		t.Fatalf("server received %q", received)
	}
}

func TestMarkedUploads(t *testing.T) {
	id := "6f1c1f55-2c55-4c1a-9f39-4b9f4b0d2f11"
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"uuid":"`+id+`","start":"2026-10-10T09:00:00Z","CRSID":"ab123","supervisorCRSID":"tw1","groupNumber":3,"svNumber":2,"failed":true}]`)
	})
	subs, err := c.MarkedUploads(context.Background())
	if err != nil {
		t.Fatalf("marked uploads: %v", err)
	}
	if len(subs) != 1 || subs[0].UUID != id || !subs[0].Failed || subs[0].SVNumber != 2 {
		t.Fatalf("unexpected submissions %+v", subs)
	}
	if got := c.MarkedURL(id); !strings.HasSuffix(got, "/supervisions/upload-marked/"+id) {
		t.Fatalf("unexpected marked url %s", got)
	}
}

func TestMarkedUploadsToleratesOddIDs(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"uuid":"not-a-uuid","start":"2026-10-10T09:00:00Z","groupNumber":1,"svNumber":1},
			{"uuid":"../../users/defaults?x=1","start":"2026-10-11T09:00:00Z","groupNumber":2,"svNumber":1},
			{"uuid":"6f1c1f55-2c55-4c1a-9f39-4b9f4b0d2f11","start":"2026-10-12T09:00:00Z","groupNumber":3,"svNumber":1}
		]`)
	})
	subs, err := c.MarkedUploads(context.Background())
	if err != nil {
		t.Fatalf("one odd id should not fail the listing: %v", err)
	}
	if len(subs) != 3 || subs[0].UUID != "not-a-uuid" {
		t.Fatalf("unexpected submissions %+v", subs)
	}

	tests := []struct {
		id   string
		want string
	}{
		{id: "not-a-uuid", want: "/supervisions/upload-marked/not-a-uuid"},
		{id: "../../users/defaults?x=1", want: "/supervisions/upload-marked/..%2F..%2Fusers%2Fdefaults%3Fx=1"},
		{id: "a b", want: "/supervisions/upload-marked/a%20b"},
	}
	for _, tt := range tests {
		if got := c.MarkedURL(tt.id); !strings.HasSuffix(got, tt.want) {
			t.Fatalf("MarkedURL(%q) = %s, want suffix %s", tt.id, got, tt.want)
		}
	}
}
