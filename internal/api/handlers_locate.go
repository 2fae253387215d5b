package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/altgest/internal/document"
	"github.com/dgallion1/altgest/internal/grouper"
	"github.com/dgallion1/altgest/internal/locator"
	"github.com/dgallion1/altgest/internal/markup"
	"github.com/dgallion1/altgest/internal/tagcontext"
)

type cursorRequest struct {
	Text   string `json:"text"`
	Offset *int   `json:"offset"`
	// Position is used when Offset is absent.
	Position *document.Position `json:"position"`
}

type rangeRequest struct {
	Filename  string `json:"filename"`
	Text      string `json:"text"`
	Start     *int   `json:"start"`
	End       *int   `json:"end"`
	Budget    int    `json:"budget"`
	Threshold *int   `json:"threshold"`
}

// window resolves the requested range. Missing bounds cover the whole text.
func (req rangeRequest) window() (markup.Range, error) {
	r := markup.Range{Start: 0, End: len(req.Text)}
	if req.Start != nil {
		r.Start = *req.Start
	}
	if req.End != nil {
		r.End = *req.End
	}
	if r.Start < 0 || r.End > len(req.Text) || r.Start > r.End {
		return r, fmt.Errorf("range %s is outside text of %d bytes", r, len(req.Text))
	}
	return r, nil
}

// limits rejects a budget or threshold above tagcontext.MaxBudget.
func (req rangeRequest) limits() error {
	if req.Budget > tagcontext.MaxBudget {
		return fmt.Errorf("budget must be at most %d", tagcontext.MaxBudget)
	}
	if req.Threshold != nil && *req.Threshold > tagcontext.MaxBudget {
		return fmt.Errorf("threshold must be at most %d", tagcontext.MaxBudget)
	}
	return nil
}

type batchEntry struct {
	Range   markup.Range   `json:"range"`
	Kind    markup.TagKind `json:"kind"`
	Raw     string         `json:"raw"`
	Group   int            `json:"group"`
	Context string         `json:"context"`
}

func (s *Server) handleLocateCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var offset int
	switch {
	case req.Offset != nil:
		offset = *req.Offset
	case req.Position != nil:
		offset = document.New("", req.Text).OffsetAt(*req.Position)
	default:
		jsonError(w, "offset or position is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":   locator.LocateAtCursor(req.Text, offset),
		"offset": offset,
	})
}

func (s *Server) handleLocateRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	window, err := req.window()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.scanner.LocateAllInRange(r.Context(), req.Text, window.Start, window.End)
	if err != nil {
		s.scanError(w, err)
		return
	}
	if res.Matches == nil {
		res.Matches = []markup.TagMatch{}
	}

	if document.IsMarkdown(document.LanguageForFile(req.Filename)) {
		res.Matches = document.DropInCode(res.Matches, document.CodeRanges(req.Text))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Start == nil || req.End == nil {
		jsonError(w, "start and end are required", http.StatusBadRequest)
		return
	}
	if err := req.limits(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := req.window()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Text) > s.cfg.MaxInputBytes {
		s.scanError(w, &markup.InputTooLargeError{Size: len(req.Text), Limit: s.cfg.MaxInputBytes})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"context": s.extractor.Extract(req.Text, target, req.Budget),
	})
}

func (s *Server) handleContextBatch(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := req.limits(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	window, err := req.window()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	threshold := s.cfg.GroupThreshold
	if req.Threshold != nil && *req.Threshold >= 0 {
		threshold = *req.Threshold
	}

	res, err := s.scanner.LocateAllInRange(r.Context(), req.Text, window.Start, window.End)
	if err != nil {
		s.scanError(w, err)
		return
	}
	cache, err := grouper.BuildContextCache(r.Context(), req.Text, res.Matches, threshold, true, s.extractor.Extract)
	if err != nil {
		s.scanError(w, err)
		return
	}

	entries := make([]batchEntry, 0, len(res.Matches))
	for _, m := range res.Matches {
		e := batchEntry{Range: m.Range, Kind: m.Kind, Raw: m.Raw, Group: -1}
		if g, ok := grouper.GroupOf(cache, m.Range); ok {
			e.Group = g.ID
			e.Context = g.Context
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches":   entries,
		"groups":    len(cache.Groups()),
		"timed_out": res.TimedOut,
	})
}

// decodeBody reads a JSON request body. The body is capped well above
// MaxInputBytes so JSON escaping of a text at the limit still fits; the text
// itself is checked against the limit by the scanner.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxInputBytes)*2+64*1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) scanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, markup.ErrInputTooLarge):
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, markup.ErrCancelled):
		s.log.Info("request cancelled", "error", err)
		jsonError(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		s.log.Error("scan failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
