// Package grouper clusters nearby tags so the surrounding context of a whole
// cluster is computed once and shared by every member.
package grouper

import (
	"context"
	"sort"

	"github.com/dgallion1/altgest/internal/markup"
)

// DefaultThreshold is the largest gap, in bytes, that still links two tags.
const DefaultThreshold = 500

// ContextFunc produces the context string for one target range.
// tagcontext.Extract satisfies it.
type ContextFunc func(text string, target markup.Range, budget int) string

// Group is a run of tags linked by consecutive gaps of at most the threshold.
// Members are in start order; End is the furthest end offset seen so far.
type Group struct {
	ID      int
	Members []markup.TagMatch
	Start   int
	End     int

	Context string
}

// Build sorts matches by start offset and chain-merges them: a match joins
// the current group when its start is within threshold bytes of the group's
// running end. Membership is transitive, so the first and last members of a
// group may be much further apart than threshold.
func Build(matches []markup.TagMatch, threshold int) []*Group {
	if len(matches) == 0 {
		return nil
	}
	if threshold < 0 {
		threshold = 0
	}

	sorted := make([]markup.TagMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Range.Start < sorted[j].Range.Start })

	var groups []*Group
	var cur *Group
	for _, m := range sorted {
		if cur != nil && m.Range.Start-cur.End <= threshold {
			cur.Members = append(cur.Members, m)
			cur.End = max(cur.End, m.Range.End)
			continue
		}
		cur = &Group{
			ID:      len(groups),
			Members: []markup.TagMatch{m},
			Start:   m.Range.Start,
			End:     m.Range.End,
		}
		groups = append(groups, cur)
	}
	return groups
}

// Cache holds the context computed for one batch of tags. It is built per
// batch by its caller and dropped with it; nothing is shared across batches.
type Cache struct {
	groups  []*Group
	byRange map[markup.Range]*Group
}

// Groups returns the cached groups in start order.
func (c *Cache) Groups() []*Group {
	if c == nil {
		return nil
	}
	return c.groups
}

// Populate computes each group's context once, using the first member as
// the representative target. ctx is checked before each group; on
// cancellation the partially filled groups are discarded by the caller.
func Populate(ctx context.Context, text string, groups []*Group, budget int, extract ContextFunc) (*Cache, error) {
	c := &Cache{
		groups:  groups,
		byRange: make(map[markup.Range]*Group),
	}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, markup.Cancelled(err)
		}
		g.Context = extract(text, g.Members[0].Range, budget)
		for _, m := range g.Members {
			c.byRange[m.Range] = g
		}
	}
	return c, nil
}

// BuildContextCache groups matches with threshold and populates the cache,
// using threshold as the extraction budget as well. It returns a nil cache
// when disabled or when there is nothing to group.
func BuildContextCache(ctx context.Context, text string, matches []markup.TagMatch, threshold int, enabled bool, extract ContextFunc) (*Cache, error) {
	if !enabled || len(matches) == 0 {
		return nil, nil
	}
	return Populate(ctx, text, Build(matches, threshold), threshold, extract)
}

// Lookup returns the cached context for the tag at r. ok is false when the
// cache is nil or r was not part of the batch.
func Lookup(c *Cache, r markup.Range) (string, bool) {
	if c == nil {
		return "", false
	}
	g, ok := c.byRange[r]
	if !ok {
		return "", false
	}
	return g.Context, true
}

// GroupOf returns the group holding the tag at r.
func GroupOf(c *Cache, r markup.Range) (*Group, bool) {
	if c == nil {
		return nil, false
	}
	g, ok := c.byRange[r]
	return g, ok
}
