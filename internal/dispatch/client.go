package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldtrack/internal/domain/job"
	"fieldtrack/internal/logger"
)

// ErrServiceRejected wraps a descriptive rejection from the dispatch
// service, e.g. a job already claimed by another technician.
var ErrServiceRejected = errors.New("dispatch service rejected the request")

// Client is the technician-side REST client for the dispatch service's job
// management endpoints. The service is the single source of truth for job
// status; this client never invents one.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger

	mu    sync.Mutex
	token string
}

// NewClient constructs a Client for the given base URL (e.g.
// "https://dispatch.example.com/api").
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// SetToken installs the bearer token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken drops the bearer token (logout).
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// jobRecord is the wire shape of a job in dispatch responses.
type jobRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r jobRecord) toDomain() (job.Job, error) {
	status, err := job.ParseStatus(r.Status)
	if err != nil {
		return job.Job{}, fmt.Errorf("job %s: %w", r.ID, err)
	}
	return job.Job{
		ID:        r.ID,
		Title:     r.Title,
		Address:   r.Address,
		Status:    status,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Login authenticates the technician and installs the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Error   string `json:"error"`
	}
	err := c.do(ctx, http.MethodPost, "/technician/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	if !out.Success || out.Token == "" {
		return "", fmt.Errorf("%w: invalid login response", ErrServiceRejected)
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// AcceptJob asks the service to mark the job accepted and returns the
// confirmed record.
func (c *Client) AcceptJob(ctx context.Context, jobID string) (job.Job, error) {
	return c.jobCall(ctx, fmt.Sprintf("/jobs/%s/accept", jobID), nil)
}

// StartJob asks the service to mark the job in progress.
func (c *Client) StartJob(ctx context.Context, jobID, techID string) (job.Job, error) {
	return c.jobCall(ctx, fmt.Sprintf("/jobs/%s/start", jobID), map[string]string{"techId": techID})
}

// CompleteJob asks the service to mark the job completed.
func (c *Client) CompleteJob(ctx context.Context, jobID, techID string) (job.Job, error) {
	return c.jobCall(ctx, fmt.Sprintf("/jobs/%s/complete", jobID), map[string]string{"techId": techID})
}

// MyJobs fetches the technician's assigned jobs.
func (c *Client) MyJobs(ctx context.Context, techID string) ([]job.Job, error) {
	var out struct {
		Jobs  []jobRecord `json:"jobs"`
		Error string      `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/technician/"+techID+"/jobs", nil, &out); err != nil {
		return nil, err
	}

	jobs := make([]job.Job, 0, len(out.Jobs))
	for _, rec := range out.Jobs {
		j, err := rec.toDomain()
		if err != nil {
			c.logger.Error(ctx, "dispatch_bad_job_record", "Skipping malformed job record", err, map[string]any{
				"job_id": rec.ID,
			})
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Profile is the technician record the service holds.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsTracking bool   `json:"isTracking"`
}

// GetProfile fetches the technician's profile.
func (c *Client) GetProfile(ctx context.Context, techID string) (Profile, error) {
	var out struct {
		Technician Profile `json:"technician"`
		Error      string  `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/technician/"+techID, nil, &out); err != nil {
		return Profile{}, err
	}
	return out.Technician, nil
}

// ToggleTracking mirrors the standalone tracking flag to the service.
func (c *Client) ToggleTracking(ctx context.Context, techID string, enabled bool) error {
	var out struct {
		Error string `json:"error"`
	}
	return c.do(ctx, http.MethodPut, "/technician/"+techID+"/toggle-tracking", map[string]bool{
		"isTracking": enabled,
	}, &out)
}

// --- internals ---

// jobCall PUTs a job transition and decodes the confirmed record.
func (c *Client) jobCall(ctx context.Context, path string, body any) (job.Job, error) {
	var out struct {
		Job   jobRecord `json:"job"`
		Error string    `json:"error"`
	}
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return job.Job{}, err
	}
	return out.Job.toDomain()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// the service reports rejections as {"error": "..."}
		var rejection struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&rejection)
		msg := strings.TrimSpace(rejection.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s (status %d)", ErrServiceRejected, msg, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dispatch response decode failed: %w", err)
	}
	return nil
}
