package locator

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/altgest/internal/markup"
)

const (
	DefaultMaxInputBytes = 2 << 20
	DefaultScanTimeout   = 2 * time.Second
)

// Options configures a Scanner. Zero values take the defaults.
type Options struct {
	MaxInputBytes int
	Timeout       time.Duration

	// Now is the clock used for the scan budget. Defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome of LocateAllInRange. TimedOut means Matches holds
// only what was found before the scan budget ran out.
type Result struct {
	Matches  []markup.TagMatch `json:"matches"`
	TimedOut bool              `json:"timed_out"`
}

// Scanner enumerates tags within a range of text. It holds configuration
// only and is safe for concurrent use.
type Scanner struct {
	opts Options
}

func NewScanner(opts Options) *Scanner {
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = DefaultMaxInputBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultScanTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{opts: opts}
}

// LocateAllInRange returns every image and container tag starting within
// [start, end). Text larger than the configured limit is refused with an
// *markup.InputTooLargeError before any scanning. The context is checked
// before each candidate tag; once it is done the scan stops and returns
// markup.ErrCancelled with no matches.
func (s *Scanner) LocateAllInRange(ctx context.Context, text string, start, end int) (Result, error) {
	if len(text) > s.opts.MaxInputBytes {
		return Result{}, &markup.InputTooLargeError{Size: len(text), Limit: s.opts.MaxInputBytes}
	}

	p := &pass{
		ctx:     ctx,
		text:    text,
		window:  markup.Range{Start: start, End: end}.Clamp(len(text)),
		now:     s.opts.Now,
		timeout: s.opts.Timeout,
		seen:    make(map[markup.Range]struct{}),
	}
	p.began = p.now()

	if err := p.run(); err != nil {
		return Result{}, err
	}
	return Result{Matches: settle(p.matches), TimedOut: p.timedOut}, nil
}

// pass is the state of a single LocateAllInRange call.
type pass struct {
	ctx     context.Context
	text    string
	window  markup.Range
	now     func() time.Time
	began   time.Time
	timeout time.Duration

	matches    []markup.TagMatch
	containers []markup.Range
	seen       map[markup.Range]struct{}
	timedOut   bool
}

func (p *pass) run() error {
	steps := []func() (bool, error){p.scanImages, p.scanContainers, p.scanInnerRefs}
	for _, step := range steps {
		more, err := step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// proceed is called before each candidate. It reports false once the
// scan budget is spent.
func (p *pass) proceed() (bool, error) {
	if err := p.ctx.Err(); err != nil {
		return false, markup.Cancelled(err)
	}
	if p.now().Sub(p.began) > p.timeout {
		p.timedOut = true
		return false, nil
	}
	return true, nil
}

// each calls fn for every match of re that starts inside the window.
// lookahead lets a tag that starts inside the window finish past its end.
func (p *pass) each(re *regexp.Regexp, lookahead int, fn func(markup.Range)) (bool, error) {
	limit := min(len(p.text), p.window.End+lookahead)
	pos := p.window.Start
	for pos < p.window.End {
		ok, err := p.proceed()
		if err != nil || !ok {
			return false, err
		}
		loc := re.FindStringIndex(p.text[pos:limit])
		if loc == nil || pos+loc[0] >= p.window.End {
			return true, nil
		}
		r := markup.Range{Start: pos + loc[0], End: pos + loc[1]}
		fn(r)
		pos = r.End
	}
	return true, nil
}

func (p *pass) scanImages() (bool, error) {
	return p.each(imageTagRe, MaxImageAttrLen+len("<Image>"), func(r markup.Range) {
		p.add(markup.KindImage, r)
	})
}

func (p *pass) scanContainers() (bool, error) {
	return p.each(containerOpenRe, MaxContainerAttrLen+len("<video>"), func(open markup.Range) {
		span, ok := p.closeContainer(open)
		if !ok {
			return
		}
		p.containers = append(p.containers, span)
		p.add(markup.KindContainer, span)
	})
}

// scanInnerRefs resolves each inner reference tag to its enclosing
// container. References already covered by a container from the previous
// step are skipped; both slices are in ascending start order.
func (p *pass) scanInnerRefs() (bool, error) {
	next := 0
	return p.each(innerRefRe, MaxContainerAttrLen+len("<source>"), func(inner markup.Range) {
		for next < len(p.containers) && p.containers[next].End <= inner.Start {
			next++
		}
		if next < len(p.containers) && p.containers[next].Contains(inner) {
			return
		}
		span, ok := p.enclosing(inner)
		if !ok {
			return
		}
		p.add(markup.KindContainer, span)
	})
}

// closeContainer pairs an open tag with the first close literal within
// MaxContainerSpan. A self-closing open tag with no close stands alone.
func (p *pass) closeContainer(open markup.Range) (markup.Range, bool) {
	limit := min(len(p.text), open.End+MaxContainerSpan)
	if i := strings.Index(p.text[open.End:limit], containerClose); i >= 0 {
		return markup.Range{Start: open.Start, End: open.End + i + len(containerClose)}, true
	}
	if strings.HasSuffix(p.text[open.Start:open.End], "/>") {
		return open, true
	}
	return markup.Range{}, false
}

// enclosing finds the nearest container open tag before inner and returns
// its span if that span covers inner.
func (p *pass) enclosing(inner markup.Range) (markup.Range, bool) {
	from := max(0, inner.Start-MaxContainerSpan)
	back := p.text[from:inner.Start]
	if !strings.Contains(back, containerOpen) {
		return markup.Range{}, false
	}
	locs := containerOpenRe.FindAllStringIndex(back, -1)
	if len(locs) == 0 {
		return markup.Range{}, false
	}
	last := locs[len(locs)-1]
	open := markup.Range{Start: from + last[0], End: from + last[1]}
	span, ok := p.closeContainer(open)
	if !ok || !span.Contains(inner) {
		return markup.Range{}, false
	}
	return span, true
}

func (p *pass) add(kind markup.TagKind, r markup.Range) {
	if _, dup := p.seen[r]; dup {
		return
	}
	p.seen[r] = struct{}{}
	p.matches = append(p.matches, markup.TagMatch{
		Kind:  kind,
		Range: r,
		Raw:   p.text[r.Start:r.End],
	})
}

// settle orders matches by start offset and drops any match that starts
// inside an earlier kept match, so results never overlap.
func settle(matches []markup.TagMatch) []markup.TagMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Range, matches[j].Range
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})
	out := matches[:0]
	lastEnd := -1
	for _, m := range matches {
		if m.Range.Start < lastEnd {
			continue
		}
		out = append(out, m)
		lastEnd = m.Range.End
	}
	return out
}
