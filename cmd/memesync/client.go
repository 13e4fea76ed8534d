package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/models"
)

// apiClient is a thin wrapper over the MemeSync HTTP API. Short-lived
// requests share one client with a timeout; streaming calls (SSE, video
// download) build their own without one.
type apiClient struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

func newAPIClient(server, apiKey string) (*apiClient, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse server address %q: %w", server, err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""
	return &apiClient{
		base:   base,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) CreateJob(ctx context.Context, req models.CreateJobRequest) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &job)
	return job, err
}

func (c *apiClient) GetJob(ctx context.Context, id uuid.UUID) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+id.String(), nil, &job)
	return job, err
}

func (c *apiClient) ListJobs(ctx context.Context) (models.ListJobsResponse, error) {
	var resp models.ListJobsResponse
	err := c.do(ctx, http.MethodGet, "/v1/jobs", nil, &resp)
	return resp, err
}

func (c *apiClient) ReviewJob(ctx context.Context, id uuid.UUID, keywords []models.KeywordAssignment) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodPost, "/v1/jobs/"+id.String()+"/review", models.ReviewRequest{Keywords: keywords}, &job)
	return job, err
}

func (c *apiClient) Cleanup(ctx context.Context) (models.CleanupResponse, error) {
	var resp models.CleanupResponse
	err := c.do(ctx, http.MethodDelete, "/v1/jobs", nil, &resp)
	return resp, err
}

// StreamJob follows the job's server-sent event feed, invoking fn for every
// snapshot. The stream ends when the server closes it (terminal status) or
// when fn returns false.
func (c *apiClient) StreamJob(ctx context.Context, id uuid.UUID, fn func(models.Job) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+id.String()+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout: the stream stays open until the job reaches a terminal
	// status, which can take minutes.
	streaming := &http.Client{}
	resp, err := streaming.Do(req)
	if err != nil {
		return c.wrapConnError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &job); err != nil {
			return fmt.Errorf("decode job snapshot: %w", err)
		}
		if !fn(job) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read job stream: %w", err)
	}
	return nil
}

// Download streams the finished video into w and returns the byte count.
func (c *apiClient) Download(ctx context.Context, id uuid.UUID, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+id.String()+"/download", nil)
	if err != nil {
		return 0, err
	}
	streaming := &http.Client{}
	resp, err := streaming.Do(req)
	if err != nil {
		return 0, c.wrapConnError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, decodeAPIError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrapConnError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) wrapConnError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("connect to %s: %v; is the MemeSync API running?", c.base.Host, opErr.Err)
	}
	return err
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
