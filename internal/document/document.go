package document

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/altgest/internal/markup"
)

// Position is a zero-based line and character, with characters counted in
// UTF-16 code units the way editors report cursor columns.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Document is the read-only view of the caller's text the core needs.
type Document interface {
	Text() string
	PositionAt(offset int) Position
	OffsetAt(p Position) int
	TextIn(r markup.Range) string
}

// TextDocument is an in-memory Document with a line index.
type TextDocument struct {
	Name       string
	Language   string
	text       string
	lineStarts []int
}

func New(name, text string) *TextDocument {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &TextDocument{
		Name:       name,
		Language:   LanguageForFile(name),
		text:       text,
		lineStarts: starts,
	}
}

func (d *TextDocument) Text() string {
	return d.text
}

func (d *TextDocument) TextIn(r markup.Range) string {
	r = r.Clamp(len(d.text))
	return d.text[r.Start:r.End]
}

// PositionAt converts a byte offset to a Position. Offsets are clamped to
// the text.
func (d *TextDocument) PositionAt(offset int) Position {
	offset = min(max(offset, 0), len(d.text))
	line := sort.Search(len(d.lineStarts), func(i int) bool { return d.lineStarts[i] > offset }) - 1
	return Position{
		Line:      line,
		Character: utf16Len(d.text[d.lineStarts[line]:offset]),
	}
}

// OffsetAt converts a Position to a byte offset. Lines past the end clamp to
// the end of the text; characters past the end of a line clamp to the line
// end, before its line break.
func (d *TextDocument) OffsetAt(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(d.lineStarts) {
		return len(d.text)
	}
	start := d.lineStarts[p.Line]
	end := len(d.text)
	if p.Line+1 < len(d.lineStarts) {
		end = d.lineStarts[p.Line+1] - 1
		if end > start && d.text[end-1] == '\r' {
			end--
		}
	}

	units := 0
	for i := start; i < end; {
		if units >= p.Character {
			return i
		}
		r, size := utf8.DecodeRuneInString(d.text[i:end])
		units += runeUnits(r)
		i += size
	}
	return end
}

// LineCount returns the number of lines, counting a trailing empty line.
func (d *TextDocument) LineCount() int {
	return len(d.lineStarts)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

var languages = map[string]string{
	".html":   "html",
	".htm":    "html",
	".xhtml":  "html",
	".jsx":    "jsx",
	".tsx":    "tsx",
	".js":     "jsx",
	".vue":    "vue",
	".svelte": "svelte",
	".astro":  "astro",
	".md":     "markdown",
	".mdx":    "mdx",
	".php":    "php",
	".erb":    "erb",
}

// LanguageForFile maps a filename to the markup dialect it holds, or ""
// when the extension is not one we scan.
func LanguageForFile(name string) string {
	return languages[strings.ToLower(filepath.Ext(name))]
}

// IsSupported reports whether files with this name can be scanned.
func IsSupported(name string) bool {
	return LanguageForFile(name) != ""
}

// IsMarkdown reports whether a language holds Markdown prose around its markup.
func IsMarkdown(lang string) bool {
	return lang == "markdown" || lang == "mdx"
}
