package tagcontext

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/altgest/internal/markup"
)

// rangeOf returns the range of the first occurrence of sub in text.
func rangeOf(t *testing.T, text, sub string) markup.Range {
	t.Helper()
	i := strings.Index(text, sub)
	require.GreaterOrEqual(t, i, 0, "%q not found", sub)
	return markup.Range{Start: i, End: i + len(sub)}
}

func TestExtract_DivWithTextAndParagraph(t *testing.T) {
	text := `<div>A<img src="x.png"><p>B</p></div>`
	target := rangeOf(t, text, `<img src="x.png">`)

	frags := Collect(text, target, 1500)
	require.Len(t, frags, 3)

	assert.Equal(t, Fragment{TagName: "p", Side: After, Text: "B"}, frags[0])
	assert.Equal(t, Fragment{TagName: "div", Side: Before, Level: 1, Text: "A"}, frags[1])
	assert.Equal(t, "div", frags[2].TagName)
	assert.Equal(t, After, frags[2].Side)
	assert.Contains(t, frags[2].Text, "B")

	want := Header + "\n" +
		"[<p> sibling after] B\n" +
		"[<div> ancestor 1 before] A\n" +
		"[<div> ancestor 1 after] B"
	assert.Equal(t, want, Extract(text, target, 1500))
}

func TestExtract_NoContext(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"bare tag", `<img src="x.png">`},
		{"empty wrapper", `<div><img src="x.png"></div>`},
		{"script only", `<div><script>var a = 1;</script><img src="x.png"></div>`},
		{"empty paragraphs", `<p> </p><img src="x.png"><p><br></p>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := rangeOf(t, tc.text, `<img src="x.png">`)
			assert.Empty(t, Collect(tc.text, target, 1500))
			assert.Equal(t, NoContext, Extract(tc.text, target, 1500))
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := `<section><h2>Gallery</h2><figure><img src="a.png"><figcaption>Sunset</figcaption></figure><p>More</p></section>`
	target := rangeOf(t, text, `<img src="a.png">`)

	first := Extract(text, target, 400)
	for range 5 {
		assert.Equal(t, first, Extract(text, target, 400))
	}
	assert.True(t, strings.HasPrefix(first, Header))
}

func TestSiblings_NearestThreePerSide(t *testing.T) {
	text := `<p>b1</p><p>b2</p><p>b3</p><p>b4</p><img src="x.png"><p>a1</p><p>a2</p><p>a3</p><p>a4</p>`
	target := rangeOf(t, text, `<img src="x.png">`)

	sibs := Siblings(text, target, 1500)
	require.Len(t, sibs, 6)

	var got []string
	for _, s := range sibs {
		got = append(got, string(s.Position)+":"+s.Text)
	}
	assert.Equal(t, []string{
		"before:b4", "before:b3", "before:b2",
		"after:a1", "after:a2", "after:a3",
	}, got)
}

func TestSiblings_NestedCandidateSkipped(t *testing.T) {
	text := `<p>Intro <span>inner</span> text</p><img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)

	sibs := Siblings(text, target, 1500)
	require.Len(t, sibs, 1)
	assert.Equal(t, "p", sibs[0].TagName)
	assert.Equal(t, "Intro inner text", sibs[0].Text)
}

func TestSiblings_RespectsBudget(t *testing.T) {
	text := `<p>far away</p>` + strings.Repeat(" ", 200) + `<img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)

	assert.Empty(t, Siblings(text, target, 50))
	assert.Len(t, Siblings(text, target, 500), 1)
}

func TestSiblings_UnclosedAndOverlappingExcluded(t *testing.T) {
	// The <p> wraps the target so it is an ancestor, not a sibling;
	// the trailing <span> never closes.
	text := `<p>Lead <img src="x.png"> tail</p><span>open`
	target := rangeOf(t, text, `<img src="x.png">`)
	assert.Empty(t, Siblings(text, target, 1500))
}

func TestSiblings_NonTextBearingIgnored(t *testing.T) {
	text := `<div>block</div><img src="x.png"><ul><li>item</li></ul>`
	target := rangeOf(t, text, `<img src="x.png">`)

	sibs := Siblings(text, target, 1500)
	require.Len(t, sibs, 1)
	assert.Equal(t, SiblingCandidate{Position: After, TagName: "li", Text: "item"}, sibs[0])
}

func TestNearestParent_TightestWins(t *testing.T) {
	text := `<section><div class="card"><img src="x.png"></div></section>`
	target := rangeOf(t, text, `<img src="x.png">`)

	parent, ok := NearestParent(text, target, 1500)
	require.True(t, ok)
	assert.Equal(t, "div", parent.TagName)
	assert.Equal(t, strings.Index(text, "<div"), parent.Start)
	assert.Equal(t, strings.Index(text, "</section>"), parent.End)
}

func TestNearestParent_BalancedSameNameNesting(t *testing.T) {
	text := `<div>outer <div>inner</div> <img src="x.png"> end</div>`
	target := rangeOf(t, text, `<img src="x.png">`)

	parent, ok := NearestParent(text, target, 1500)
	require.True(t, ok)
	assert.Equal(t, 0, parent.Start)
	assert.Equal(t, len(text), parent.End)
}

func TestNearestParent_ClosedSiblingIsNotParent(t *testing.T) {
	text := `<div>x</div><img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)
	_, ok := NearestParent(text, target, 1500)
	assert.False(t, ok)
}

func TestNearestParent_VoidAndSelfClosingSkipped(t *testing.T) {
	text := `<br><Card /><img src="a.png"><img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)
	_, ok := NearestParent(text, target, 1500)
	assert.False(t, ok)
}

func TestAncestors_CappedAtThreeLevels(t *testing.T) {
	text := `<main>m1<article>a1<section>s1<div>d1<img src="x.png">d2</div>s2</section>a2</article>m2</main>`
	target := rangeOf(t, text, `<img src="x.png">`)

	frags := Collect(text, target, 1500)
	var names []string
	for _, f := range frags {
		names = append(names, f.TagName+":"+string(f.Side))
		assert.LessOrEqual(t, f.Level, MaxAncestorDepth)
	}
	assert.Equal(t, []string{
		"div:before", "div:after",
		"section:before", "section:after",
		"article:before", "article:after",
	}, names)
}

func TestAncestors_StopWhenSufficient(t *testing.T) {
	long := strings.Repeat("word ", 80)
	text := `<section>outer<div>` + long + `<img src="x.png"></div>after</section>`
	target := rangeOf(t, text, `<img src="x.png">`)

	frags := Collect(text, target, 1500)
	for _, f := range frags {
		assert.Equal(t, "div", f.TagName, "ascent should stop after the first level")
	}
	require.NotEmpty(t, frags)
}

func TestAncestors_EmptyLevelKeepsClimbing(t *testing.T) {
	text := `<figure>Caption text<div><img src="x.png"></div></figure>`
	target := rangeOf(t, text, `<img src="x.png">`)

	frags := Collect(text, target, 1500)
	require.Len(t, frags, 1)
	assert.Equal(t, Fragment{TagName: "figure", Side: Before, Level: 2, Text: "Caption text"}, frags[0])
}

func TestExtract_NonPositiveBudgetUsesDefault(t *testing.T) {
	text := `<div>A<img src="x.png"></div>`
	target := rangeOf(t, text, `<img src="x.png">`)
	assert.Equal(t, Extract(text, target, DefaultBudget), Extract(text, target, 0))
}

func TestExtract_MalformedInputDoesNotPanic(t *testing.T) {
	inputs := []string{
		`<div><p><img src="x.png">`,
		`</div></p><img src="x.png"><<<>>>`,
		`<img src="x.png">` + strings.Repeat("<div>", 2000),
		strings.Repeat("<p>", 2000) + `<img src="x.png">` + strings.Repeat("</p>", 10),
	}
	for _, in := range inputs {
		target := rangeOf(t, in, `<img src="x.png">`)
		assert.NotPanics(t, func() { Extract(in, target, 1500) })
	}
}

func TestExtractor_FallsBackToConfiguredBudget(t *testing.T) {
	text := `<p>far away</p>` + strings.Repeat(" ", 200) + `<img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)

	narrow := Extractor{Budget: 50}
	assert.Equal(t, NoContext, narrow.Extract(text, target, 0))
	assert.Contains(t, narrow.Extract(text, target, 500), "far away")
}

func TestClampBudget(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, DefaultBudget},
		{0, DefaultBudget},
		{200, 200},
		{MaxBudget, MaxBudget},
		{MaxBudget + 1, MaxBudget},
		{math.MaxInt, MaxBudget},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClampBudget(tc.in), "ClampBudget(%d)", tc.in)
	}
}

func TestExtract_HugeBudgetDoesNotPanic(t *testing.T) {
	text := `<div>A<img src="x.png"><p>B</p></div>`
	target := rangeOf(t, text, `<img src="x.png">`)

	var got string
	require.NotPanics(t, func() { got = Extract(text, target, math.MaxInt) })
	assert.Equal(t, Extract(text, target, MaxBudget), got)
	assert.Contains(t, got, "[<p> sibling after] B")

	assert.NotPanics(t, func() { Siblings(text, target, math.MaxInt) })
	assert.NotPanics(t, func() { NearestParent(text, target, math.MaxInt) })
}

func TestExtract_BudgetCappedAtMax(t *testing.T) {
	text := `<p>far away</p>` + strings.Repeat(" ", MaxBudget+100) + `<img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)

	assert.Equal(t, NoContext, Extract(text, target, 1<<30))
}

func TestExtract_DeepNestingWithOversizedBudgetIsBounded(t *testing.T) {
	text := strings.Repeat("<div>", 40000) + `<img src="x.png">`
	target := rangeOf(t, text, `<img src="x.png">`)

	start := time.Now()
	got := Extract(text, target, 1<<30)
	assert.Equal(t, NoContext, got)
	assert.Less(t, time.Since(start), 5*time.Second)
}
