package document

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/altgest/internal/markup"
)

// CodeRanges returns the byte ranges of code blocks and code spans in a
// Markdown source. Tags inside them are samples, not content.
func CodeRanges(src string) []markup.Range {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var out []markup.Range
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				out = append(out, markup.Range{
					Start: lines.At(0).Start,
					End:   lines.At(lines.Len() - 1).Stop,
				})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if r, ok := spanRange(node); ok {
				out = append(out, r)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func spanRange(n *ast.CodeSpan) (markup.Range, bool) {
	r := markup.Range{Start: -1}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok {
			continue
		}
		if r.Start < 0 {
			r.Start = t.Segment.Start
		}
		r.End = t.Segment.Stop
	}
	return r, r.Start >= 0
}

// InAny reports whether r overlaps any of ranges.
func InAny(ranges []markup.Range, r markup.Range) bool {
	for _, c := range ranges {
		if c.Overlaps(r) {
			return true
		}
	}
	return false
}

// DropInCode returns the matches that do not overlap any code range.
func DropInCode(matches []markup.TagMatch, code []markup.Range) []markup.TagMatch {
	kept := make([]markup.TagMatch, 0, len(matches))
	for _, m := range matches {
		if !InAny(code, m.Range) {
			kept = append(kept, m)
		}
	}
	return kept
}
