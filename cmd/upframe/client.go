package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"upframe/internal/api"
	"upframe/internal/progress"
)

// apiClient talks to the daemon's HTTP gateway.
type apiClient struct {
	baseURL string
	http    *http.Client
	// stream requests must not time out while a job is in flight
	streamHTTP *http.Client
}

func newAPIClient(address string) *apiClient {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL:    strings.TrimSuffix(base, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		streamHTTP: &http.Client{},
	}
}

func (c *apiClient) url(path string) string {
	return c.baseURL + path
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}

func (c *apiClient) submitUpload(ctx context.Context, path string) (api.JobView, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.JobView{}, fmt.Errorf("open source file: %w", err)
	}
	defer file.Close()

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			writer.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			writer.CloseWithError(err)
			return
		}
		writer.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/jobs"), reader)
	if err != nil {
		return api.JobView{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return api.JobView{}, fmt.Errorf("submit upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return api.JobView{}, decodeError(resp)
	}
	var out api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.JobView{}, err
	}
	return out.Job, nil
}

func (c *apiClient) submitSourceRef(ctx context.Context, ref string) (api.JobView, error) {
	payload, err := json.Marshal(api.SubmitRequest{SourceRef: ref})
	if err != nil {
		return api.JobView{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/jobs"), bytes.NewReader(payload))
	if err != nil {
		return api.JobView{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return api.JobView{}, fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return api.JobView{}, decodeError(resp)
	}
	var out api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.JobView{}, err
	}
	return out.Job, nil
}

func (c *apiClient) job(ctx context.Context, id string) (api.JobView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/jobs/"+id), nil)
	if err != nil {
		return api.JobView{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.JobView{}, fmt.Errorf("fetch job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return api.JobView{}, decodeError(resp)
	}
	var out api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.JobView{}, err
	}
	return out.Job, nil
}

func (c *apiClient) jobs(ctx context.Context, statuses []string) ([]api.JobView, error) {
	target := c.url("/api/jobs")
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, "status="+status)
		}
		target += "?" + strings.Join(values, "&")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out api.JobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *apiClient) cancel(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/jobs/"+id+"/cancel"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return decodeError(resp)
	}
	return nil
}

func (c *apiClient) health(ctx context.Context) (api.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/health"), nil)
	if err != nil {
		return api.HealthResponse{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.HealthResponse{}, fmt.Errorf("fetch health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return api.HealthResponse{}, decodeError(resp)
	}
	var out api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.HealthResponse{}, err
	}
	return out, nil
}

// saveArtifact downloads the job artifact to destPath.
func (c *apiClient) saveArtifact(ctx context.Context, id, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/jobs/"+id+"/artifact"), nil)
	if err != nil {
		return err
	}
	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("write output file: %w", err)
	}
	return out.Close()
}

// streamEvents consumes the job's server-sent event stream, invoking fn
// for each event until the stream closes or fn returns an error.
func (c *apiClient) streamEvents(ctx context.Context, id string, fn func(progress.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/jobs/"+id+"/events"), nil)
	if err != nil {
		return err
	}
	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("stream events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}
