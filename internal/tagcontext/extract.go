// Package tagcontext derives a bounded description of the markup around a
// tag: nearby text-bearing siblings and up to three enclosing ancestors.
// The result is plain text meant to be handed to a description generator
// as-is. The scan never parses a document tree; it works on offsets within
// a window of budget bytes on each side of the target.
package tagcontext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/altgest/internal/markup"
)

const (
	// DefaultBudget is used when Extract is called with a non-positive budget.
	DefaultBudget = 1500
	// MaxBudget caps the window on each side of the target. Extraction cost
	// grows with the square of the window, so larger requests are cut down.
	MaxBudget = 10000

	MaxSiblingsPerSide = 3
	MaxAncestorDepth   = 3

	// SufficientContextLen stops the ancestor ascent once one level has
	// produced this many bytes of stripped text.
	SufficientContextLen = 300

	Header    = "Surrounding context:"
	NoContext = "No surrounding context found."
)

// Side says whether a fragment precedes or follows the target.
type Side string

const (
	Before Side = "before"
	After  Side = "after"
)

// SiblingCandidate is a fully closed neighbouring tag that does not overlap
// the target.
type SiblingCandidate struct {
	Position Side
	TagName  string
	Text     string
}

// ParentCandidate is a tag whose open/close pair contains the scan range.
type ParentCandidate struct {
	Start   int
	End     int
	TagName string
}

// Fragment is one non-empty piece of context with its provenance.
// Level is 0 for siblings and the ascent number for ancestors.
type Fragment struct {
	TagName string
	Side    Side
	Level   int
	Text    string
}

func (f Fragment) label() string {
	if f.Level == 0 {
		return fmt.Sprintf("[<%s> sibling %s]", f.TagName, f.Side)
	}
	return fmt.Sprintf("[<%s> ancestor %d %s]", f.TagName, f.Level, f.Side)
}

// Extract returns the context string for the tag at target. The output is a
// pure function of its arguments.
func Extract(text string, target markup.Range, budget int) string {
	return Assemble(Collect(text, target, budget))
}

// Extractor carries a configured default budget. Its Extract method has the
// grouper.ContextFunc shape.
type Extractor struct {
	Budget int
}

// Extract uses the call's budget when positive and the configured one otherwise.
func (e Extractor) Extract(text string, target markup.Range, budget int) string {
	if budget <= 0 {
		budget = e.Budget
	}
	return Extract(text, target, budget)
}

// ClampBudget maps a requested budget onto (0, MaxBudget]. Non-positive
// values mean DefaultBudget.
func ClampBudget(budget int) int {
	if budget <= 0 {
		return DefaultBudget
	}
	return min(budget, MaxBudget)
}

// Collect gathers sibling fragments followed by ancestor fragments in
// ascent order.
func Collect(text string, target markup.Range, budget int) []Fragment {
	budget = ClampBudget(budget)
	target = target.Clamp(len(text))

	var frags []Fragment
	for _, s := range Siblings(text, target, budget) {
		frags = append(frags, Fragment{TagName: s.TagName, Side: s.Position, Text: s.Text})
	}
	return append(frags, ancestors(text, target, budget)...)
}

// Assemble renders fragments under the header, or NoContext when there are none.
func Assemble(frags []Fragment) string {
	if len(frags) == 0 {
		return NoContext
	}
	var sb strings.Builder
	sb.WriteString(Header)
	for _, f := range frags {
		sb.WriteByte('\n')
		sb.WriteString(f.label())
		sb.WriteByte(' ')
		sb.WriteString(f.Text)
	}
	return sb.String()
}

// Siblings returns up to MaxSiblingsPerSide text-bearing tags on each side of
// target within budget bytes, nearest first. A candidate nested inside one
// already chosen on the same side is skipped. Candidates whose text strips
// to nothing are dropped after selection.
func Siblings(text string, target markup.Range, budget int) []SiblingCandidate {
	var out []SiblingCandidate
	budget = ClampBudget(budget)
	target = target.Clamp(len(text))

	lo := max(0, target.Start-budget)
	before := openTags(text, lo, target.Start, isTextBearing)
	before = closeWithin(text, before, target.Start)
	sort.SliceStable(before, func(i, j int) bool { return before[i].end > before[j].end })
	out = appendSiblings(out, text, nearest(before), Before)

	hi := min(len(text), target.End+budget)
	after := openTags(text, target.End, hi, isTextBearing)
	after = closeWithin(text, after, hi)
	out = appendSiblings(out, text, nearest(after), After)

	return out
}

// closeWithin pairs each element with its close tag, dropping those that
// don't close before limit.
func closeWithin(text string, elems []element, limit int) []element {
	out := elems[:0]
	for _, el := range elems {
		end, ok := pairClose(text, el.name, el.openEnd, limit)
		if !ok {
			continue
		}
		el.end = end
		out = append(out, el)
	}
	return out
}

func nearest(elems []element) []element {
	var chosen []element
	for _, el := range elems {
		if len(chosen) == MaxSiblingsPerSide {
			break
		}
		nested := false
		for _, c := range chosen {
			if c.start <= el.start && el.end <= c.end {
				nested = true
				break
			}
		}
		if !nested {
			chosen = append(chosen, el)
		}
	}
	return chosen
}

func appendSiblings(out []SiblingCandidate, text string, elems []element, side Side) []SiblingCandidate {
	for _, el := range elems {
		s := markup.StripMarkup(text[el.start:el.end])
		if s == "" {
			continue
		}
		out = append(out, SiblingCandidate{Position: side, TagName: el.name, Text: s})
	}
	return out
}

// ancestors climbs at most MaxAncestorDepth enclosing tags, collecting the
// text between each ancestor's edges and the current scan range.
func ancestors(text string, target markup.Range, budget int) []Fragment {
	var frags []Fragment
	scan := target
	for level := 1; level <= MaxAncestorDepth; level++ {
		parent, ok := NearestParent(text, scan, budget)
		if !ok {
			break
		}
		before := markup.StripMarkup(text[parent.Start:scan.Start])
		after := markup.StripMarkup(text[scan.End:parent.End])
		if before != "" {
			frags = append(frags, Fragment{TagName: parent.TagName, Side: Before, Level: level, Text: before})
		}
		if after != "" {
			frags = append(frags, Fragment{TagName: parent.TagName, Side: After, Level: level, Text: after})
		}
		if len(before)+len(after) >= SufficientContextLen {
			break
		}
		scan = markup.Range{Start: parent.Start, End: parent.End}
	}
	return frags
}

// NearestParent returns the tightest tag enclosing scan: among open tags
// starting within budget bytes before scan whose balanced close lands at or
// after scan's end (and within budget bytes of it), the one whose start is
// closest to scan's start.
func NearestParent(text string, scan markup.Range, budget int) (ParentCandidate, bool) {
	budget = ClampBudget(budget)
	scan = scan.Clamp(len(text))
	lo := max(0, scan.Start-budget)
	hi := min(len(text), scan.End+budget)

	var best ParentCandidate
	found := false
	for _, el := range openTags(text, lo, scan.Start, canEnclose) {
		end, ok := pairClose(text, el.name, el.openEnd, hi)
		if !ok || end < scan.End {
			continue
		}
		if !found || scan.Start-el.start < scan.Start-best.Start {
			best = ParentCandidate{Start: el.start, End: end, TagName: el.name}
			found = true
		}
	}
	return best, found
}
