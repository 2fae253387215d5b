package tagcontext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html/atom"
)

// openTagRe matches an opening or self-closing tag and captures its name.
// Attribute runs are capped so a stray '<' can't drag the match across the text.
var openTagRe = regexp.MustCompile(`<([A-Za-z][\w:.-]*)(?:\s[^<>]{0,500})?/?>`)

// element is a tag paired with its close: [start, end) covers both.
type element struct {
	name    string
	start   int
	openEnd int
	end     int
}

func lookup(name string) atom.Atom {
	return atom.Lookup([]byte(strings.ToLower(name)))
}

// isTextBearing reports whether a fully closed tag of this name is worth
// quoting as a sibling.
func isTextBearing(name string) bool {
	switch lookup(name) {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Span, atom.Li, atom.Figcaption, atom.Caption, atom.Label,
		atom.Blockquote, atom.Td, atom.Th, atom.Dt, atom.Dd, atom.A,
		atom.Strong, atom.Em, atom.B, atom.I, atom.Small, atom.Cite, atom.Q,
		atom.Summary, atom.Legend, atom.Button, atom.Title:
		return true
	}
	return false
}

// canEnclose reports whether a tag of this name can have children and so
// be an ancestor.
func canEnclose(name string) bool {
	if strings.EqualFold(name, "image") {
		return false
	}
	switch lookup(name) {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr,
		atom.Img, atom.Input, atom.Link, atom.Meta, atom.Param, atom.Source,
		atom.Track, atom.Wbr, atom.Script, atom.Style:
		return false
	}
	return true
}

// openTags lists the opening tags found in text[lo:hi], skipping
// self-closing ones.
func openTags(text string, lo, hi int, keep func(string) bool) []element {
	var out []element
	for _, loc := range openTagRe.FindAllStringSubmatchIndex(text[lo:hi], -1) {
		start, openEnd := lo+loc[0], lo+loc[1]
		if text[openEnd-2] == '/' {
			continue
		}
		name := text[lo+loc[2] : lo+loc[3]]
		if !keep(name) {
			continue
		}
		out = append(out, element{name: name, start: start, openEnd: openEnd})
	}
	return out
}

// pairClose finds the close tag matching an open tag of the given name that
// ends at from. Nested tags of the same name are counted so the pair is the
// balanced one. The close must end at or before limit.
func pairClose(text, name string, from, limit int) (int, bool) {
	openLit := "<" + name
	closeLit := "</" + name
	depth := 1
	pos := from
	for pos < limit {
		i := strings.IndexByte(text[pos:limit], '<')
		if i < 0 {
			return 0, false
		}
		at := pos + i
		rest := text[at:limit]

		isClose := hasTagPrefix(rest, closeLit)
		if !isClose && !hasTagPrefix(rest, openLit) {
			pos = at + 1
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			return 0, false
		}
		tagEnd := at + gt + 1
		switch {
		case isClose:
			depth--
			if depth == 0 {
				return tagEnd, true
			}
		case text[tagEnd-2] != '/':
			depth++
		}
		pos = tagEnd
	}
	return 0, false
}

// hasTagPrefix reports whether s starts with lit followed by a character
// that ends a tag name.
func hasTagPrefix(s, lit string) bool {
	if !strings.HasPrefix(s, lit) {
		return false
	}
	if len(s) == len(lit) {
		return true
	}
	switch s[len(lit)] {
	case '>', '/', ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
