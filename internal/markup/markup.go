package markup

import "fmt"

// TagKind classifies a located tag.
type TagKind int

const (
	KindNone TagKind = iota
	KindImage
	KindContainer
)

func (k TagKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindContainer:
		return "container"
	default:
		return "none"
	}
}

// MarshalText lets TagKind appear as a string in JSON payloads.
func (k TagKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TagKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "image":
		*k = KindImage
	case "container":
		*k = KindContainer
	case "none", "":
		*k = KindNone
	default:
		return fmt.Errorf("unknown tag kind %q", b)
	}
	return nil
}

// Range is a half-open [Start, End) span of byte offsets into a text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Clamp restricts the range to [0, n) and orders its bounds.
func (r Range) Clamp(n int) Range {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > n {
		r.End = n
	}
	if r.Start > r.End {
		r.Start = r.End
	}
	return r
}

// TagMatch is one tag found by a detection pass.
type TagMatch struct {
	Kind  TagKind `json:"kind"`
	Range Range   `json:"range"`
	Raw   string  `json:"raw"`
}
