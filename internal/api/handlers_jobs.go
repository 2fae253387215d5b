package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/altgest/internal/document"
	"github.com/dgallion1/altgest/internal/markup"
	"github.com/dgallion1/altgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const defaultFilename = "document.html"

type jobRequest struct {
	Filename string           `json:"filename"`
	Text     string           `json:"text"`
	Start    *int             `json:"start"`
	End      *int             `json:"end"`
	Options  pipeline.Options `json:"options"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	filename := defaultFilename
	if req.Filename != "" {
		filename = sanitizeFilename(req.Filename)
	}
	if !document.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}
	if len(req.Text) > s.cfg.MaxInputBytes {
		jsonError(w, fmt.Sprintf("text exceeds max size (%d bytes)", s.cfg.MaxInputBytes), http.StatusRequestEntityTooLarge)
		return
	}
	window, err := rangeRequest{Text: req.Text, Start: req.Start, End: req.End}.window()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Options.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(filename, req.Text, window, req.Options)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(job))
}

func (s *Server) handleUploadJob(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxInputBytes)+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	text, status, err := s.readUpload(file, filename)
	if err != nil {
		jsonError(w, err.Error(), status)
		return
	}

	window := markup.Range{Start: 0, End: len(text)}
	if v := r.FormValue("start"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			window.Start = n
		}
	}
	if v := r.FormValue("end"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			window.End = n
		}
	}

	var opts pipeline.Options
	if v := r.FormValue("threshold"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.GroupThreshold = &n
		}
	}
	if v := r.FormValue("context_cache"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.ContextCache = &b
		}
	}
	if err := opts.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(filename, text, window, opts)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(job))
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxInputBytes)*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)

		f, err := fh.Open()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    "failed to open file",
			})
			continue
		}
		text, _, err := s.readUpload(f, filename)
		f.Close()
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(filename, text, markup.Range{Start: 0, End: len(text)}, pipeline.Options{})
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		entry := accepted(job)
		entry["filename"] = filename
		results = append(results, entry)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

// readUpload reads one uploaded markup file. The returned status applies
// when err is non-nil.
func (s *Server) readUpload(f multipart.File, filename string) (string, int, error) {
	if !document.IsSupported(filename) {
		return "", http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(s.cfg.MaxInputBytes)+1))
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("failed to read file")
	}
	if len(data) > s.cfg.MaxInputBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxInputBytes)
	}
	if !utf8.Valid(data) {
		return "", http.StatusBadRequest, fmt.Errorf("file is not valid UTF-8")
	}
	return string(data), 0, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	snaps := s.orchestrator.ListJobs()
	jobs := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		jobs = append(jobs, map[string]any{
			"job_id":     snap.ID,
			"filename":   snap.Filename,
			"status":     snap.Status,
			"phase":      snap.Phase,
			"created_at": snap.CreatedAt,
			"progress":   snap.Progress,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        jobs,
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := s.orchestrator.CancelJob(jobID)
	switch {
	case errors.Is(err, pipeline.ErrJobNotFound):
		jsonError(w, "job not found", http.StatusNotFound)
		return
	case errors.Is(err, pipeline.ErrJobFinished):
		jsonError(w, "job already finished", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": "cancelling",
	})
}

func accepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s", snap.ID),
	}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
