package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"upframe/internal/deps"
	"upframe/internal/logging"
	"upframe/internal/queue"
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleJobStatus(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleEvents(w, r, id)
	case "artifact":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleArtifact(w, r, id)
	case "cancel":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleCancel(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "job not found")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var (
		sourceRef  string
		sourcePath string
		err        error
	)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		sourceRef, sourcePath, err = s.acceptUpload(w, r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req SubmitRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid submission body")
			return
		}
		ref := strings.TrimSpace(req.SourceRef)
		if ref == "" {
			s.writeError(w, http.StatusBadRequest, "source_ref is required")
			return
		}
		if _, statErr := os.Stat(ref); statErr != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("source %q is not readable", ref))
			return
		}
		sourceRef = filepath.Base(ref)
		sourcePath = ref
	}

	job, err := s.store.NewJob(r.Context(), sourceRef, sourcePath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.notifier.NotifyJobSubmitted(r.Context(), job.ID, job.SourceRef); err != nil {
		s.logger.Warn("submission notification failed", logging.Error(err))
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source_ref", job.SourceRef))
	s.writeJSON(w, http.StatusAccepted, JobResponse{Job: FromJob(job)})
}

// acceptUpload stores the multipart "file" field under the staging
// directory and returns the original filename and stored path.
func (s *Server) acceptUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	limit := int64(s.cfg.API.MaxUploadMiB) << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", errors.New("multipart field \"file\" is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return "", "", fmt.Errorf("unsupported file extension %q", ext)
	}

	uploadDir := filepath.Join(s.cfg.Paths.StagingDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload directory: %w", err)
	}
	storedPath := filepath.Join(uploadDir, uuid.NewString()+ext)
	out, err := os.Create(storedPath)
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(storedPath)
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(storedPath)
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return header.Filename, storedPath, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: views})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: FromJob(job)})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != queue.StatusCompleted {
		s.writeError(w, http.StatusConflict, "job is not completed")
		return
	}
	if job.ArtifactPath == "" {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(job.ArtifactPath)))
	http.ServeFile(w, r, job.ArtifactPath)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.IsTerminal() {
		s.writeError(w, http.StatusConflict, "job already finished")
		return
	}
	flagged, err := s.store.RequestCancel(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !flagged {
		s.writeError(w, http.StatusConflict, "job already finished")
		return
	}
	s.logger.Info("cancellation requested", logging.String(logging.FieldJobID, id))
	s.writeJSON(w, http.StatusAccepted, CancelResponse{JobID: id, CancelRequested: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := HealthResponse{Status: "ok", Queue: summary}
	if s.workflow != nil {
		resp.WorkflowRunning = s.workflow.Running()
		if lastErr := s.workflow.LastError(); lastErr != nil {
			resp.LastError = lastErr.Error()
		}
		if !resp.WorkflowRunning {
			resp.Status = "degraded"
		}
	}
	if len(s.requirements) > 0 {
		resp.Dependencies = deps.CheckBinaries(s.requirements)
		for _, dep := range resp.Dependencies {
			if !dep.Available && !dep.Optional {
				resp.Status = "degraded"
				break
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
