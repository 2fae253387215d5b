package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/altgest/internal/config"
	"github.com/dgallion1/altgest/internal/document"
	"github.com/dgallion1/altgest/internal/extract"
	"github.com/dgallion1/altgest/internal/grouper"
	"github.com/dgallion1/altgest/internal/locator"
	"github.com/dgallion1/altgest/internal/markup"
	"github.com/dgallion1/altgest/internal/tagcontext"
)

// Generator produces alt text for a prompt. extract.ClaudeClient satisfies it.
type Generator interface {
	GenerateAltText(ctx context.Context, prompt string) (string, error)
}

// Worker processes a single document job.
type Worker struct {
	gen       Generator
	scanner   *locator.Scanner
	extractor tagcontext.Extractor
	log       *slog.Logger

	groupThreshold        int
	contextCache          bool
	maxConcurrentGenerate int

	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration
}

func NewWorker(gen Generator, log *slog.Logger, cfg config.Config) *Worker {
	return &Worker{
		gen: gen,
		scanner: locator.NewScanner(locator.Options{
			MaxInputBytes: cfg.MaxInputBytes,
			Timeout:       cfg.ScanTimeout,
		}),
		extractor:             tagcontext.Extractor{Budget: cfg.ContextBudget},
		log:                   log,
		groupThreshold:        cfg.GroupThreshold,
		contextCache:          cfg.ContextCacheEnabled,
		maxConcurrentGenerate: max(cfg.MaxConcurrentGenerate, 1),
		backoff:               Backoff,
	}
}

// Process runs locate, group and generate for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	jobCtx, ok := job.begin(ctx)
	if !ok {
		log.Info("job cancelled before start")
		return
	}
	defer job.finish()

	text, window := job.Text()
	doc := document.New(job.Filename, text)

	// Phase 1: Locate tags.
	job.SetStatus(StatusScanning, "locating tags")
	res, err := w.scanner.LocateAllInRange(jobCtx, doc.Text(), window.Start, window.End)
	if err != nil {
		w.fail(job, log, "scanning", err)
		return
	}
	if res.TimedOut {
		log.Warn("scan timed out, continuing with partial matches", "matches", len(res.Matches))
		job.SetTimedOut()
		job.AddError("scan timed out; only part of the document was searched")
	}
	matches := res.Matches
	if document.IsMarkdown(doc.Language) {
		matches = document.DropInCode(matches, document.CodeRanges(doc.Text()))
	}
	log.Info("located tags", "matches", len(matches), "timed_out", res.TimedOut)

	if len(matches) == 0 {
		job.SetTotals(0, 0)
		w.finishStatus(jobCtx, job, log, false)
		return
	}

	// Phase 2: Group nearby tags and compute shared context.
	job.SetStatus(StatusGrouping, "grouping tags")
	threshold := w.groupThreshold
	if job.Options.GroupThreshold != nil && *job.Options.GroupThreshold >= 0 {
		threshold = *job.Options.GroupThreshold
	}
	threshold = min(threshold, tagcontext.MaxBudget)
	enabled := w.contextCache
	if job.Options.ContextCache != nil {
		enabled = *job.Options.ContextCache
	}
	cache, err := grouper.BuildContextCache(jobCtx, doc.Text(), matches, threshold, enabled, w.extractor.Extract)
	if err != nil {
		w.fail(job, log, "grouping", err)
		return
	}
	job.SetTotals(len(matches), len(cache.Groups()))
	log.Info("grouped tags", "groups", len(cache.Groups()), "cache_enabled", enabled)

	// Phase 3: Generate alt text with bounded concurrency.
	job.SetStatus(StatusGenerating, "generating alt text")
	results := make(chan Suggestion, len(matches))
	sem := make(chan struct{}, w.maxConcurrentGenerate)

	for _, m := range matches {
		sem <- struct{}{}
		go func(m markup.TagMatch) {
			defer func() { <-sem }()
			results <- w.suggest(jobCtx, doc, cache, m, log)
		}(m)
	}

	hadErrors := false
	for range matches {
		s := <-results
		if s.Error != "" {
			log.Error("generation failed", "range", s.Range.String(), "error", s.Error)
			job.AddError(fmt.Sprintf("%s %s: %s", s.Kind, s.Range, s.Error))
			hadErrors = true
		}
		job.AddSuggestion(s)
	}

	w.finishStatus(jobCtx, job, log, hadErrors)
}

// suggest resolves context for one tag and asks the generator for alt text.
// Errors are recorded on the returned suggestion.
func (w *Worker) suggest(ctx context.Context, doc document.Document, cache *grouper.Cache, m markup.TagMatch, log *slog.Logger) Suggestion {
	s := Suggestion{
		Range: m.Range,
		Kind:  m.Kind,
		Raw:   m.Raw,
		Start: doc.PositionAt(m.Range.Start),
		End:   doc.PositionAt(m.Range.End),
		Group: -1,
	}

	surrounding, ok := grouper.Lookup(cache, m.Range)
	if !ok {
		surrounding = w.extractor.Extract(doc.Text(), m.Range, 0)
	}
	if g, ok := grouper.GroupOf(cache, m.Range); ok {
		s.Group = g.ID
	}
	s.Context = surrounding

	reply, err := w.generate(ctx, extract.BuildAltTextPrompt(m, surrounding), log)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	alt, ok := extract.ValidateAltText(reply)
	if !ok {
		s.Error = "generated alt text failed validation"
		return s
	}
	s.AltText = alt
	return s
}

func (w *Worker) generate(ctx context.Context, prompt string, log *slog.Logger) (string, error) {
	var reply string
	var lastErr error
	for attempt := range MaxRetries {
		if err := ctx.Err(); err != nil {
			return "", markup.Cancelled(err)
		}
		reply, lastErr = w.gen.GenerateAltText(ctx, prompt)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		delay := retryDelay(lastErr, attempt, w.backoff)
		log.Warn("retryable generation error", "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", markup.Cancelled(ctx.Err())
		}
	}
	return reply, lastErr
}

func (w *Worker) fail(job *Job, log *slog.Logger, phase string, err error) {
	if errors.Is(err, markup.ErrCancelled) {
		log.Info("job cancelled", "phase", phase)
		job.SetStatus(StatusCancelled, phase)
		return
	}
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(fmt.Sprintf("%s: %s", phase, err))
	job.SetStatus(StatusFailed, phase)
}

func (w *Worker) finishStatus(ctx context.Context, job *Job, log *slog.Logger, hadErrors bool) {
	snap := job.Snapshot()
	switch {
	case ctx.Err() != nil:
		job.SetStatus(StatusCancelled, "cancelled")
	case hadErrors && snap.Progress.Generated == 0:
		job.SetStatus(StatusFailed, "generating")
	case hadErrors || snap.Progress.TimedOut:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
	log.Info("job finished", "status", job.Snapshot().Status, "generated", snap.Progress.Generated, "tags", snap.Progress.TotalTags)
}
