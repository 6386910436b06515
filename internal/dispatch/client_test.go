package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fieldtrack/internal/domain/job"
	"fieldtrack/internal/logger"
)

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 2*time.Second, logger.NewWithWriter("test", io.Discard))
}

func TestLogin(t *testing.T) {
	t.Run("installs the returned token", func(t *testing.T) {
		var sawAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/technician/login":
				var creds map[string]string
				_ = json.NewDecoder(r.Body).Decode(&creds)
				if creds["email"] != "tech@example.com" {
					t.Errorf("email = %q", creds["email"])
				}
				_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok-123"})
			case r.URL.Path == "/technician/tech-9":
				sawAuth = r.Header.Get("Authorization")
				_ = json.NewEncoder(w).Encode(map[string]any{"technician": Profile{ID: "tech-9"}})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		c := newTestClient(srv.URL)
		token, err := c.Login(context.Background(), "tech@example.com", "secret")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if token != "tok-123" {
			t.Errorf("token = %q", token)
		}

		if _, err := c.GetProfile(context.Background(), "tech-9"); err != nil {
			t.Fatalf("profile: %v", err)
		}
		if sawAuth != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want the login token", sawAuth)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Login(context.Background(), "tech@example.com", "wrong")
		if !errors.Is(err, ErrServiceRejected) {
			t.Fatalf("expected ErrServiceRejected, got %v", err)
		}
		if !strings.Contains(err.Error(), "invalid credentials") {
			t.Errorf("rejection message lost: %v", err)
		}
	})
}

func TestJobTransitions(t *testing.T) {
	t.Run("start returns the server-confirmed record", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/jobs/job-1/start" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["techId"] != "tech-9" {
				t.Errorf("techId = %q", body["techId"])
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"job": jobRecord{
				ID: "job-1", Title: "Fix router", Status: "IN_PROGRESS",
			}})
		}))
		defer srv.Close()

		updated, err := newTestClient(srv.URL).StartJob(context.Background(), "job-1", "tech-9")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if updated.Status != job.StatusInProgress {
			t.Errorf("status = %s, want %s", updated.Status, job.StatusInProgress)
		}
	})

	t.Run("rejection carries the server message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "job is not in ACCEPTED state"})
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).StartJob(context.Background(), "job-1", "tech-9")
		if !errors.Is(err, ErrServiceRejected) {
			t.Fatalf("expected ErrServiceRejected, got %v", err)
		}
		if !strings.Contains(err.Error(), "job is not in ACCEPTED state") {
			t.Errorf("rejection message lost: %v", err)
		}
	})

	t.Run("unknown status in the response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"job": jobRecord{ID: "job-1", Status: "EXPLODED"}})
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CompleteJob(context.Background(), "job-1", "tech-9")
		if !errors.Is(err, job.ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})
}

func TestMyJobs(t *testing.T) {
	t.Run("skips malformed records", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/technician/tech-9/jobs" {
				t.Errorf("path = %s", r.URL.Path)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"jobs": []jobRecord{
				{ID: "job-1", Status: "ASSIGNED"},
				{ID: "job-2", Status: "???"},
				{ID: "job-3", Status: "completed"}, // lowercase is normalized
			}})
		}))
		defer srv.Close()

		jobs, err := newTestClient(srv.URL).MyJobs(context.Background(), "tech-9")
		if err != nil {
			t.Fatalf("myjobs: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("job count = %d, want 2 (malformed record skipped)", len(jobs))
		}
		if jobs[1].Status != job.StatusCompleted {
			t.Errorf("status = %s, want %s", jobs[1].Status, job.StatusCompleted)
		}
	})
}

func TestToggleTracking(t *testing.T) {
	var got map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/technician/tech-9/toggle-tracking" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).ToggleTracking(context.Background(), "tech-9", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !got["isTracking"] {
		t.Errorf("body = %v, want isTracking true", got)
	}
}

func TestParseIdentity(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}

	t.Run("extracts subject and expiry", func(t *testing.T) {
		exp := time.Now().Add(time.Hour)
		id, err := ParseIdentity(sign(jwt.MapClaims{"sub": "tech-9", "exp": exp.Unix()}))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if id.TechID != "tech-9" {
			t.Errorf("techID = %q", id.TechID)
		}
		if id.ExpiresAt.Unix() != exp.Unix() {
			t.Errorf("expiresAt = %v, want %v", id.ExpiresAt, exp)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := ParseIdentity(sign(jwt.MapClaims{"sub": "tech-9", "exp": time.Now().Add(-time.Hour).Unix()}))
		if !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := ParseIdentity(sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}))
		if !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := ParseIdentity("not-a-jwt")
		if !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})
}
