package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/altgest/internal/document"
	"github.com/dgallion1/altgest/internal/markup"
	"github.com/dgallion1/altgest/internal/tagcontext"
)

// JobStatus represents the state of an alt-text job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusScanning   JobStatus = "scanning"
	StatusGrouping   JobStatus = "grouping"
	StatusGenerating JobStatus = "generating"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Options override server defaults for one job. Nil fields keep the default.
type Options struct {
	GroupThreshold *int  `json:"group_threshold,omitempty"`
	ContextCache   *bool `json:"context_cache,omitempty"`
}

// Validate rejects a threshold outside [0, tagcontext.MaxBudget]. The
// threshold doubles as the group context budget.
func (o Options) Validate() error {
	if t := o.GroupThreshold; t != nil && (*t < 0 || *t > tagcontext.MaxBudget) {
		return fmt.Errorf("group_threshold must be between 0 and %d", tagcontext.MaxBudget)
	}
	return nil
}

// Suggestion is the outcome for one located tag.
type Suggestion struct {
	Range   markup.Range      `json:"range"`
	Kind    markup.TagKind    `json:"kind"`
	Raw     string            `json:"raw"`
	Start   document.Position `json:"start"`
	End     document.Position `json:"end"`
	Group   int               `json:"group"`
	Context string            `json:"context"`
	AltText string            `json:"alt_text,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Job tracks the state of a single document batch.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`
	Options  Options  `json:"options"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	text        string
	window      markup.Range
	cancel      context.CancelFunc
	suggestions []Suggestion
	errors      []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalTags     int      `json:"total_tags"`
	Groups        int      `json:"groups"`
	TagsProcessed int      `json:"tags_processed"`
	Generated     int      `json:"generated"`
	TimedOut      bool     `json:"timed_out"`
	Errors        []string `json:"errors"`
}

// NewJob creates a queued job over text[window.Start:window.End]. The window
// is clamped to the text.
func NewJob(filename, text string, window markup.Range, opts Options) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Filename:    filename,
		Status:      StatusQueued,
		Phase:       "queued",
		Options:     opts,
		ContentHash: ContentHashHex([]byte(text)),
		CreatedAt:   now,
		UpdatedAt:   now,
		text:        text,
		window:      window.Clamp(len(text)),
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns all tracked jobs, newest first.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs that have finished.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotals records how many tags were found and how many groups they form.
func (j *Job) SetTotals(tags, groups int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalTags = tags
	j.Progress.Groups = groups
	j.UpdatedAt = time.Now()
}

// SetTimedOut marks the scan result as partial.
func (j *Job) SetTimedOut() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TimedOut = true
	j.UpdatedAt = time.Now()
}

// AddSuggestion records the outcome for one tag.
func (j *Job) AddSuggestion(s Suggestion) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.suggestions = append(j.suggestions, s)
	j.Progress.TagsProcessed++
	if s.AltText != "" {
		j.Progress.Generated++
	}
	j.UpdatedAt = time.Now()
}

// Text returns the document text and the window to scan.
func (j *Job) Text() (string, markup.Range) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.text, j.window
}

// begin derives the job's processing context. It returns false if the job
// was cancelled while still queued.
func (j *Job) begin(parent context.Context) (context.Context, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	return ctx, true
}

// finish releases the processing context and the document text.
func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	j.text = ""
}

// Cancel stops a queued or running job. Returns false if the job already
// reached a terminal state.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	if j.cancel != nil {
		j.cancel()
		return true
	}
	j.Status = StatusCancelled
	j.Phase = "cancelled before start"
	j.UpdatedAt = time.Now()
	return true
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string       `json:"job_id"`
	Filename    string       `json:"filename"`
	Status      JobStatus    `json:"status"`
	Phase       string       `json:"phase"`
	ContentHash string       `json:"content_hash"`
	CreatedAt   time.Time    `json:"created_at"`
	Progress    Progress     `json:"progress"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Snapshot returns a JSON-safe copy of the job state. Suggestions are in
// document order.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)

	suggestions := make([]Suggestion, len(j.suggestions))
	copy(suggestions, j.suggestions)
	sort.Slice(suggestions, func(a, b int) bool {
		return suggestions[a].Range.Start < suggestions[b].Range.Start
	})

	progress := j.Progress
	progress.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Status:      j.Status,
		Phase:       j.Phase,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		Progress:    progress,
		Suggestions: suggestions,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
