// Package locator finds image and media-container tags in markup text
// without building a DOM. All scanning is regex and offset arithmetic with
// hard caps on attribute length, container span and wall-clock time, so
// hostile or pathologically repetitive input cannot stall a caller.
package locator

import (
	"regexp"

	"github.com/dgallion1/altgest/internal/markup"
)

const (
	// MaxImageAttrLen caps the attribute run of an image tag.
	MaxImageAttrLen = 1000
	// MaxContainerAttrLen caps the attribute run of container and inner-reference tags.
	MaxContainerAttrLen = 500
	// MaxContainerSpan is how far a container's close tag may sit from its open tag,
	// and how far back an inner reference looks for its container.
	MaxContainerSpan = 10000

	containerOpen  = "<video"
	containerClose = "</video>"
)

var (
	imageTagRe      = regexp.MustCompile(`<(?:img|Image)\b[^>]{0,1000}>`)
	containerOpenRe = regexp.MustCompile(`<video\b[^>]{0,500}>`)
	innerRefRe      = regexp.MustCompile(`<source\b[^>]{0,500}>`)

	imageNameRe     = regexp.MustCompile(`^\s*(?:img|Image)(?:[\s/]|$)`)
	containerNameRe = regexp.MustCompile(`^\s*(?:video|source|/\s*video)(?:[\s/]|$)`)
)

// maxCursorScan bounds the bracket search around a cursor. A tag longer than
// this could never have matched the image pattern anyway.
const maxCursorScan = MaxImageAttrLen + len("<Image>")

// LocateAtCursor reports the kind of tag the cursor at offset sits inside.
// It returns KindNone when the cursor is outside any tag: a '>' before the
// nearest '<' going backward, a '<' before the nearest '>' going forward, or
// no bracket within the scan bound.
func LocateAtCursor(text string, offset int) markup.TagKind {
	if offset < 0 || offset > len(text) {
		return markup.KindNone
	}

	open := -1
	for i := offset - 1; i >= 0 && offset-i <= maxCursorScan; i-- {
		if text[i] == '>' {
			return markup.KindNone
		}
		if text[i] == '<' {
			open = i
			break
		}
	}
	if open < 0 {
		return markup.KindNone
	}

	closeAt := -1
	for i := offset; i < len(text) && i-open <= maxCursorScan; i++ {
		if text[i] == '<' {
			return markup.KindNone
		}
		if text[i] == '>' {
			closeAt = i
			break
		}
	}
	if closeAt < 0 {
		return markup.KindNone
	}

	return classify(text[open+1 : closeAt])
}

// classify maps the text between a tag's brackets to a TagKind.
func classify(inner string) markup.TagKind {
	switch {
	case imageNameRe.MatchString(inner):
		return markup.KindImage
	case containerNameRe.MatchString(inner):
		return markup.KindContainer
	default:
		return markup.KindNone
	}
}
