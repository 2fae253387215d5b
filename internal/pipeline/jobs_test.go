package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/altgest/internal/markup"
	"github.com/dgallion1/altgest/internal/tagcontext"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("page.html", "<img>", markup.Range{Start: -5, End: 99}, Options{})

	if _, err := uuid.Parse(job.ID); err != nil {
		t.Errorf("expected UUID job ID, got %q: %v", job.ID, err)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	text, window := job.Text()
	if text != "<img>" {
		t.Errorf("expected text to be kept, got %q", text)
	}
	if window != (markup.Range{Start: 0, End: 5}) {
		t.Errorf("expected window clamped to [0,5), got %s", window)
	}
	if job.ContentHash != ContentHashHex([]byte("<img>")) {
		t.Error("expected content hash of the text")
	}
	if other := NewJob("page.html", "", markup.Range{}, Options{}); other.ID == job.ID {
		t.Error("expected distinct job IDs")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusScanning, "locating tags"},
		{StatusGrouping, "grouping tags"},
		{StatusGenerating, "generating alt text"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		StatusQueued:     false,
		StatusScanning:   false,
		StatusGrouping:   false,
		StatusGenerating: false,
		StatusCompleted:  true,
		StatusPartial:    true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("expected %q terminal=%v", status, want)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("image [0,10) failed")
	job.AddError("image [20,30) failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "image [0,10) failed" {
		t.Errorf("expected first error %q, got %q", "image [0,10) failed", snap.Progress.Errors[0])
	}
}

func TestJob_AddSuggestion(t *testing.T) {
	job := &Job{ID: "sugg-test", UpdatedAt: time.Now()}
	job.AddSuggestion(Suggestion{Range: markup.Range{Start: 50, End: 60}, AltText: "A dog"})
	job.AddSuggestion(Suggestion{Range: markup.Range{Start: 0, End: 10}, Error: "boom"})
	job.AddSuggestion(Suggestion{Range: markup.Range{Start: 20, End: 30}, AltText: "A cat"})

	snap := job.Snapshot()
	if snap.Progress.TagsProcessed != 3 {
		t.Errorf("expected 3 tags processed, got %d", snap.Progress.TagsProcessed)
	}
	if snap.Progress.Generated != 2 {
		t.Errorf("expected 2 generated, got %d", snap.Progress.Generated)
	}
	for i, want := range []int{0, 20, 50} {
		if snap.Suggestions[i].Range.Start != want {
			t.Errorf("suggestion[%d]: expected start %d, got %d", i, want, snap.Suggestions[i].Range.Start)
		}
	}
}

func TestJob_SetTotals(t *testing.T) {
	job := &Job{ID: "total-test", UpdatedAt: time.Now()}
	job.SetTotals(42, 7)
	job.SetTimedOut()

	snap := job.Snapshot()
	if snap.Progress.TotalTags != 42 || snap.Progress.Groups != 7 {
		t.Errorf("expected 42 tags in 7 groups, got %d in %d", snap.Progress.TotalTags, snap.Progress.Groups)
	}
	if !snap.Progress.TimedOut {
		t.Error("expected timed_out to be set")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil slices.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if snap.Suggestions == nil {
		t.Error("expected non-nil suggestions slice in snapshot")
	}
}

func TestJob_CancelQueued(t *testing.T) {
	job := NewJob("a.html", "", markup.Range{}, Options{})
	if !job.Cancel() {
		t.Fatal("expected queued job to be cancellable")
	}
	if job.Snapshot().Status != StatusCancelled {
		t.Errorf("expected status %q, got %q", StatusCancelled, job.Snapshot().Status)
	}
	if _, ok := job.begin(context.Background()); ok {
		t.Error("expected a cancelled job not to start")
	}
	if job.Cancel() {
		t.Error("expected second cancel to report finished")
	}
}

func TestJob_CancelRunning(t *testing.T) {
	job := NewJob("a.html", "", markup.Range{}, Options{})
	ctx, ok := job.begin(context.Background())
	if !ok {
		t.Fatal("expected job to start")
	}
	if !job.Cancel() {
		t.Fatal("expected running job to be cancellable")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected job context to be cancelled")
	}
	job.finish()
	if text, _ := job.Text(); text != "" {
		t.Error("expected text released after finish")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "running", Status: StatusGenerating, UpdatedAt: time.Now()}
	store.Put(expired)
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected unfinished job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs left, got %d", store.Len())
	}
}

func TestOptionsValidate(t *testing.T) {
	n := func(v int) *int { return &v }
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"empty", Options{}, false},
		{"zero", Options{GroupThreshold: n(0)}, false},
		{"at max", Options{GroupThreshold: n(tagcontext.MaxBudget)}, false},
		{"above max", Options{GroupThreshold: n(tagcontext.MaxBudget + 1)}, true},
		{"huge", Options{GroupThreshold: n(math.MaxInt)}, true},
		{"negative", Options{GroupThreshold: n(-1)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}
