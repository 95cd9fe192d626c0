package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"upframe/internal/api"
	"upframe/internal/config"
	"upframe/internal/progress"
	"upframe/internal/queue"
	"upframe/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	store  *queue.Store
	hub    *progress.Hub
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(0)

	srv, err := api.NewServer(api.Options{
		Config: cfg,
		Store:  store,
		Hub:    hub,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{cfg: cfg, store: store, hub: hub, server: ts}
}

func decodeJob(t *testing.T, body io.Reader) api.JobView {
	t.Helper()
	var resp api.JobResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode job response: %v", err)
	}
	return resp.Job
}

func TestSubmitSourceRef(t *testing.T) {
	fx := newFixture(t)
	source := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, source, 128)

	payload, _ := json.Marshal(api.SubmitRequest{SourceRef: source})
	resp, err := http.Post(fx.server.URL+"/api/jobs", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	job := decodeJob(t, resp.Body)
	if job.Status != string(queue.StatusPending) {
		t.Errorf("job status = %q, want pending", job.Status)
	}
	if job.SourceRef != "clip.mp4" {
		t.Errorf("source ref = %q, want clip.mp4", job.SourceRef)
	}

	stored, err := fx.store.GetByID(context.Background(), job.ID)
	if err != nil || stored == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.SourcePath != source {
		t.Errorf("source path = %q, want %q", stored.SourcePath, source)
	}
}

func TestSubmitMissingSourceRejected(t *testing.T) {
	fx := newFixture(t)
	payload, _ := json.Marshal(api.SubmitRequest{SourceRef: "/nonexistent/clip.mp4"})
	resp, err := http.Post(fx.server.URL+"/api/jobs", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitUpload(t *testing.T) {
	fx := newFixture(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "holiday.mp4")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("not really a video")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	resp, err := http.Post(fx.server.URL+"/api/jobs", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	job := decodeJob(t, resp.Body)
	if job.SourceRef != "holiday.mp4" {
		t.Errorf("source ref = %q, want holiday.mp4", job.SourceRef)
	}

	stored, err := fx.store.GetByID(context.Background(), job.ID)
	if err != nil || stored == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if !strings.HasPrefix(stored.SourcePath, filepath.Join(fx.cfg.Paths.StagingDir, "uploads")) {
		t.Errorf("upload stored at %q, want under staging uploads", stored.SourcePath)
	}
	if _, err := os.Stat(stored.SourcePath); err != nil {
		t.Errorf("stored upload missing: %v", err)
	}
}

func TestSubmitUploadRejectsExtension(t *testing.T) {
	fx := newFixture(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "malware.exe")
	part.Write([]byte("nope"))
	writer.Close()

	resp, err := http.Post(fx.server.URL+"/api/jobs", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	fx := newFixture(t)
	resp, err := http.Get(fx.server.URL + "/api/jobs/no-such-job")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	pending := testsupport.NewJob(t, fx.store, "a.mp4", "/tmp/a.mp4")
	failed := testsupport.NewJob(t, fx.store, "b.mp4", "/tmp/b.mp4")
	failed.SetFailed("Internal", "boom")
	if err := fx.store.Update(ctx, failed); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resp, err := http.Get(fx.server.URL + "/api/jobs?status=pending")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer resp.Body.Close()
	var list api.JobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != pending.ID {
		t.Fatalf("unexpected listing: %#v", list.Jobs)
	}

	resp2, err := http.Get(fx.server.URL + "/api/jobs?status=bogus")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp2.StatusCode)
	}
}

func TestCancelFlagsPendingJob(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")

	resp, err := http.Post(fx.server.URL+"/api/jobs/"+job.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	flagged, err := fx.store.CancelRequested(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("CancelRequested failed: %v", err)
	}
	if !flagged {
		t.Error("cancel flag not persisted")
	}
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")
	job.SetCompleted("/tmp/out.mp4")
	if err := fx.store.Update(context.Background(), job); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resp, err := http.Post(fx.server.URL+"/api/jobs/"+job.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestArtifactLifecycle(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")

	resp, err := http.Get(fx.server.URL + "/api/jobs/" + job.ID + "/artifact")
	if err != nil {
		t.Fatalf("artifact get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 before completion", resp.StatusCode)
	}

	artifact := filepath.Join(t.TempDir(), "out.mp4")
	testsupport.WriteFile(t, artifact, 64)
	job.SetCompleted(artifact)
	if err := fx.store.Update(context.Background(), job); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resp, err = http.Get(fx.server.URL + "/api/jobs/" + job.ID + "/artifact")
	if err != nil {
		t.Fatalf("artifact get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(data) != 64 {
		t.Errorf("artifact size = %d, want 64", len(data))
	}
}

func TestArtifactMissingFile(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")
	job.SetCompleted(filepath.Join(t.TempDir(), "gone.mp4"))
	if err := fx.store.Update(context.Background(), job); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resp, err := http.Get(fx.server.URL + "/api/jobs/" + job.ID + "/artifact")
	if err != nil {
		t.Fatalf("artifact get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsTerminalSnapshot(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")
	job.FramesTotal = 6
	job.FramesEnhanced = 2
	job.FramesCopied = 3
	job.FramesDropped = 1
	job.SetFailed("EnhancementFailed", "inference service rejected frame")
	if err := fx.store.Update(context.Background(), job); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	resp, err := http.Get(fx.server.URL + "/api/jobs/" + job.ID + "/events")
	if err != nil {
		t.Fatalf("events get failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := readSSE(t, resp.Body, 1)
	if !events[0].Terminal || events[0].Code != "EnhancementFailed" {
		t.Fatalf("unexpected snapshot: %#v", events[0])
	}
	meta := events[0].Meta
	if meta["frames_total"] != "6" || meta["frames_enhanced"] != "2" ||
		meta["frames_copied"] != "3" || meta["frames_dropped"] != "1" {
		t.Fatalf("snapshot meta = %v, want 6/2/3/1 frame counts", meta)
	}
}

func TestEventsStreamsUntilTerminal(t *testing.T) {
	fx := newFixture(t)
	job := testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")

	go func() {
		// Give the subscriber a moment to attach before publishing.
		time.Sleep(200 * time.Millisecond)
		fx.hub.Emit(progress.Event{
			JobID:   job.ID,
			Status:  queue.StatusRunning,
			Stage:   queue.StageExtract,
			Message: "Extracting frames",
			Percent: 15,
		})
		fx.hub.Emit(progress.Event{
			JobID:    job.ID,
			Status:   queue.StatusCompleted,
			Message:  "Pipeline completed successfully",
			Percent:  100,
			Terminal: true,
		})
	}()

	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fx.server.URL + "/api/jobs/" + job.ID + "/events")
	if err != nil {
		t.Fatalf("events get failed: %v", err)
	}
	defer resp.Body.Close()

	events := readSSE(t, resp.Body, 2)
	if events[0].Percent != 15 || events[0].Terminal {
		t.Fatalf("unexpected first event: %#v", events[0])
	}
	if !events[1].Terminal || events[1].Percent != 100 {
		t.Fatalf("unexpected terminal event: %#v", events[1])
	}
}

// readSSE decodes "data:" lines from an event stream until count events
// have been read or the stream ends.
func readSSE(t *testing.T, body io.Reader, count int) []progress.Event {
	t.Helper()
	var events []progress.Event
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, evt)
		if len(events) == count {
			return events
		}
	}
	t.Fatalf("stream ended after %d events, want %d", len(events), count)
	return nil
}

func TestHealthReportsQueue(t *testing.T) {
	fx := newFixture(t)
	testsupport.NewJob(t, fx.store, "clip.mp4", "/tmp/clip.mp4")

	resp, err := http.Get(fx.server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Queue.Pending != 1 {
		t.Errorf("pending = %d, want 1", health.Queue.Pending)
	}
}
