package reflow

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-translator/internal/document"
	"layout-translator/internal/fonts"
	"layout-translator/internal/segment"
	"layout-translator/internal/shaping"
	"layout-translator/internal/types"
	"layout-translator/internal/wordbreak"
)

// monoFont is a fallback font with a 1em advance for every character except
// combining marks.
type monoFont struct{}

func (monoFont) ID() string          { return fonts.FallbackID }
func (monoFont) Decodes(r rune) bool { return true }
func (monoFont) TwoByte() bool       { return true }
func (monoFont) Path() string        { return "" }
func (monoFont) GlyphID(r rune) int  { return int(r) }

func (monoFont) Advance(r rune) float64 {
	if unicode.Is(unicode.Mn, r) {
		return 0
	}
	return 1
}

func (monoFont) Encode(text string) string {
	var b strings.Builder
	for _, r := range text {
		fmt.Fprintf(&b, "%04x", r)
	}
	return b.String()
}

func newEngine(t *testing.T, lang string, mutate func(*Options)) *Engine {
	t.Helper()
	lh, scale := ForLanguage(lang, Overrides{})
	opts := Options{Fallback: monoFont{}, LineHeight: lh, FontScale: scale}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func box(x0, x1, y0, y1, size float64) segment.Paragraph {
	return segment.Paragraph{X: x0, Y: y0, X0: x0, X1: x1, Y0: y0, Y1: y1, Size: size, Break: true}
}

func textOps(ops []Op) []*TextOp {
	var out []*TextOp
	for _, op := range ops {
		if t, ok := op.(*TextOp); ok {
			out = append(out, t)
		}
	}
	return out
}

func TestForLanguage(t *testing.T) {
	tests := []struct {
		lang      string
		ov        Overrides
		wantLH    float64
		wantScale float64
	}{
		{"zh-CN", Overrides{}, 1.4, 1.0},
		{"zh-TW", Overrides{}, 1.4, 1.0},
		{"en", Overrides{}, 1.2, 1.0},
		{"th", Overrides{}, 1.5, 0.7},
		{"ru", Overrides{}, 0.8, 1.0},
		{"de", Overrides{}, DefaultLineHeight, DefaultFontScale},
		{"", Overrides{}, DefaultLineHeight, DefaultFontScale},
		{"th", Overrides{LineHeight: 1.3, FontScale: 0.9}, 1.3, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			lh, scale := ForLanguage(tt.lang, tt.ov)
			assert.InDelta(t, tt.wantLH, lh, 1e-9)
			assert.InDelta(t, tt.wantScale, scale, 1e-9)
		})
	}
}

func TestNewRequiresFallback(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))

	e, err := New(Options{Fallback: monoFont{}})
	require.NoError(t, err)
	assert.Equal(t, fonts.LatinID, e.Options().Latin.ID())
	assert.InDelta(t, DefaultLineHeight, e.Options().LineHeight, 1e-9)
}

func TestParagraphSingleLatinLine(t *testing.T) {
	e := newEngine(t, "en", nil)
	ops := e.Paragraph(box(100, 400, 500, 512, 12), "Hello World", nil)

	require.Len(t, ops, 1)
	op := ops[0].(*TextOp)
	assert.Equal(t, fonts.LatinID, op.Font)
	assert.InDelta(t, 100, op.X, 1e-9)
	assert.InDelta(t, 500, op.Y, 1e-9)
	assert.InDelta(t, 5.027*12, op.Width, 1e-9)
	assert.Equal(t, "48656c6c6f20576f726c64", op.Codes)
	assert.Equal(t, "/tiro 12.000000 Tf 1 0 0 1 100.000000 500.000000 Tm [<48656c6c6f20576f726c64>] TJ ", op.String())
}

func TestParagraphReinsertsFormula(t *testing.T) {
	e := newEngine(t, "th", nil)
	run := segment.FormulaRun{
		Glyphs: []document.Glyph{
			{Font: document.FontRef{ID: "F3"}, Size: 10, Text: "x", CID: 'x', X0: 300, X1: 306, Y0: 200},
			{Font: document.FontRef{ID: "F3"}, Size: 7, Text: "2", CID: '2', X0: 306, X1: 310, Y0: 203},
		},
		Width:         12,
		VerticalFixup: 0.5,
	}
	p := box(100, 400, 500, 520, 12)
	ops := textOps(e.Paragraph(p, "คำนวณ {v0} ต่อไป", []segment.FormulaRun{run}))

	scaled := 12 * 0.7
	space := 0.25 * scaled
	require.Len(t, ops, 6)

	assert.Equal(t, fonts.FallbackID, ops[0].Font)
	assert.InDelta(t, 100, ops[0].X, 1e-9)
	assert.InDelta(t, scaled, ops[0].Size, 1e-9)
	assert.Equal(t, "0e040e330e190e270e13", ops[0].Codes)

	assert.Equal(t, fonts.LatinID, ops[1].Font)
	assert.InDelta(t, 100+5*scaled, ops[1].X, 1e-9)

	fx := 100 + 5*scaled + space
	assert.Equal(t, "F3", ops[2].Font)
	assert.InDelta(t, 10, ops[2].Size, 1e-9)
	assert.InDelta(t, fx, ops[2].X, 1e-9)
	assert.InDelta(t, 500.5, ops[2].Y, 1e-9)
	assert.Equal(t, "78", ops[2].Codes)
	assert.InDelta(t, 7, ops[3].Size, 1e-9)
	assert.InDelta(t, fx+6, ops[3].X, 1e-9)
	assert.InDelta(t, 503.5, ops[3].Y, 1e-9)

	assert.Equal(t, fonts.LatinID, ops[4].Font)
	assert.InDelta(t, fx+12, ops[4].X, 1e-9)

	assert.Equal(t, fonts.FallbackID, ops[5].Font)
	assert.InDelta(t, fx+12+space, ops[5].X, 1e-9)
	assert.InDelta(t, 4*scaled, ops[5].Width, 1e-9, "the tone mark has no advance")
	for _, op := range ops {
		assert.Zero(t, op.Line)
	}
}

func TestParagraphFormulaWithoutPrecedingText(t *testing.T) {
	e := newEngine(t, "en", nil)
	run := segment.FormulaRun{
		Glyphs:        []document.Glyph{{Font: document.FontRef{Name: "ABCDEF+CMMI10"}, Size: 10, CID: 0x3b1, X0: 50, X1: 56, Y0: 0}},
		Lines:         []document.Line{{P0: document.Point{X: 50, Y: 4}, P1: document.Point{X: 56, Y: 4}, Width: 0.4}},
		Width:         6,
		VerticalFixup: 2,
	}
	ops := e.Paragraph(box(0, 100, 100, 112, 10), "{v0}", []segment.FormulaRun{run})

	require.Len(t, ops, 2)
	glyph := ops[0].(*TextOp)
	assert.Equal(t, "CMMI10", glyph.Font)
	assert.InDelta(t, 100, glyph.Y, 1e-9, "no fixup before any text")

	line := ops[1].(*LineOp)
	assert.InDelta(t, 0, line.X, 1e-9)
	assert.InDelta(t, 104, line.Y, 1e-9)
	assert.InDelta(t, 6, line.DX, 1e-9)
	assert.Equal(t, "ET q 1 0 0 1 0.000000 104.000000 cm [] 0 d 0 J 0.400000 w 0 0 m 6.000000 0.000000 l S Q BT ", line.String())
}

func TestParagraphFormulaKeepsSourceSize(t *testing.T) {
	e := newEngine(t, "th", nil)
	require.InDelta(t, 0.7, e.Options().FontScale, 1e-9)

	run := segment.FormulaRun{
		Glyphs: []document.Glyph{{Font: document.FontRef{ID: "F3"}, Size: 10, Text: "x", CID: 'x', X0: 50, X1: 56}},
		Width:  6,
	}
	ops := textOps(e.Paragraph(box(0, 400, 100, 120, 12), "ก{v0}ก", []segment.FormulaRun{run}))
	require.Len(t, ops, 3)

	scaled := 12 * 0.7
	assert.InDelta(t, scaled, ops[0].Size, 1e-9)
	assert.Equal(t, "F3", ops[1].Font)
	assert.InDelta(t, 10, ops[1].Size, 1e-9, "formula glyphs are not scaled")
	assert.InDelta(t, scaled, ops[1].X, 1e-9)
	assert.InDelta(t, scaled+6, ops[2].X, 1e-9, "text resumes after the unscaled formula width")
	assert.InDelta(t, scaled, ops[2].Size, 1e-9)
}

func TestParagraphModifierTrim(t *testing.T) {
	e := newEngine(t, "en", nil)
	run := segment.FormulaRun{
		Glyphs: []document.Glyph{
			{Font: document.FontRef{ID: "F1"}, Size: 10, Text: "x", CID: 'x', X0: 0, X1: 5},
			{Font: document.FontRef{ID: "F1"}, Size: 10, Text: "ʹ", CID: 0x2b9, X0: 5, X1: 7},
		},
		Width: 7,
	}
	ops := textOps(e.Paragraph(box(0, 200, 0, 12, 10), "a{v0}b", []segment.FormulaRun{run}))

	require.Len(t, ops, 4)
	assert.Equal(t, "62", ops[3].Codes)
	assert.InDelta(t, 4.44+7-2, ops[3].X, 1e-9)
}

func TestParagraphSkipsDanglingPlaceholder(t *testing.T) {
	e := newEngine(t, "en", nil)
	ops := textOps(e.Paragraph(box(0, 200, 0, 12, 10), "a{v5}b{ V 9 }c", nil))

	require.Len(t, ops, 1)
	assert.Equal(t, "616263", ops[0].Codes)
}

func TestParagraphLineHeightFitting(t *testing.T) {
	e := newEngine(t, "en", nil)
	// five W (9.44pt each) fit a 50pt box, the sixth wraps
	p := box(0, 50, 100, 122.5, 10)
	ops := textOps(e.Paragraph(p, strings.Repeat("W", 10), nil))

	require.Len(t, ops, 2)
	assert.Equal(t, "5757575757", ops[0].Codes)
	assert.Equal(t, "5757575757", ops[1].Codes)
	assert.Equal(t, 0, ops[0].Line)
	assert.Equal(t, 1, ops[1].Line)
	assert.InDelta(t, 0, ops[1].X, 1e-9)
	assert.InDelta(t, 100, ops[0].Y, 1e-9)
	assert.InDelta(t, 100-10*1.1, ops[1].Y, 1e-9)
}

func TestFitLineHeight(t *testing.T) {
	tests := []struct {
		name   string
		lh     float64
		lines  int
		height float64
		want   float64
	}{
		{"fits", 1.2, 1, 20, 1.2},
		{"one step", 1.2, 2, 23.5, 1.15},
		{"two steps", 1.2, 2, 22.5, 1.1},
		{"floor", 1.2, 5, 20, 1.0},
		{"below floor kept", 0.8, 3, 10, 0.8},
		{"from 1.4", 1.4, 3, 10, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fitLineHeight(tt.lh, tt.lines, 10, tt.height), 1e-9)
		})
	}
}

func TestParagraphWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		wrap  bool
		usage float64
		want  []string
	}{
		{"word boundary", true, 0.3, []string{"57575720", "575757"}},
		{"raw when disabled", false, 0.3, []string{"575757205757", "57"}},
		{"raw when line too short", true, 0.9, []string{"575757205757", "57"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, "en", func(o *Options) {
				o.Words = wordbreak.LineBreaker{}
				o.WordWrap = tt.wrap
				o.MinLineUsage = tt.usage
			})
			ops := textOps(e.Paragraph(box(0, 50, 100, 130, 10), "WWW WWW", nil))
			var got []string
			for i, op := range ops {
				got = append(got, op.Codes)
				assert.Equal(t, i, op.Line)
				assert.InDelta(t, 0, op.X, 1e-9)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParagraphStaysInBox(t *testing.T) {
	run := segment.FormulaRun{
		Glyphs: []document.Glyph{
			{Font: document.FontRef{ID: "F2"}, Size: 10, Text: "y", CID: 'y', X0: 0, X1: 5},
			{Font: document.FontRef{ID: "F2"}, Size: 10, Text: "z", CID: 'z', X0: 5, X1: 9},
		},
		Width: 9,
	}
	text := strings.Repeat("ภาษาไทย mixed {v0} text, ", 8)

	for _, lang := range []string{"en", "th"} {
		for _, wrap := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/%v", lang, wrap), func(t *testing.T) {
				e := newEngine(t, lang, func(o *Options) {
					o.Words = wordbreak.LineBreaker{}
					o.WordWrap = wrap
					o.MinLineUsage = 0.25
				})
				p := box(20, 140, 0, 200, 10)
				tol := boundaryTolerance * p.Size * e.Options().FontScale

				ops := textOps(e.Paragraph(p, text, []segment.FormulaRun{run}))
				require.NotEmpty(t, ops)
				lines := 0
				for _, op := range ops {
					assert.GreaterOrEqual(t, op.X, p.X0-1e-9)
					assert.LessOrEqual(t, op.X+op.Width, p.X1+tol+1e-9, "op %q on line %d", op.Codes, op.Line)
					lines = max(lines, op.Line+1)
				}
				assert.Greater(t, lines, 1)
			})
		}
	}
}

func TestPage(t *testing.T) {
	e := newEngine(t, "en", nil)
	paras := []segment.Paragraph{box(10, 200, 700, 712, 10), box(10, 200, 600, 612, 10)}
	lines := []document.Line{
		{P0: document.Point{X: 10, Y: 20}, P1: document.Point{X: 40, Y: 20}, Width: 1},
		{P0: document.Point{X: 0, Y: 0}, P1: document.Point{X: 600, Y: 0}, Width: 8},
	}
	out := e.Page(paras, []string{"A", "B"}, nil, lines)

	want := "BT " +
		"/tiro 10.000000 Tf 1 0 0 1 10.000000 700.000000 Tm [<41>] TJ " +
		"/tiro 10.000000 Tf 1 0 0 1 10.000000 600.000000 Tm [<42>] TJ " +
		"ET q 1 0 0 1 10.000000 20.000000 cm [] 0 d 0 J 1.000000 w 0 0 m 30.000000 0.000000 l S Q BT " +
		"ET "
	assert.Equal(t, want, out)
}

func TestEncodeGlyph(t *testing.T) {
	tests := []struct {
		g    document.Glyph
		want string
	}{
		{document.Glyph{CID: 0x41}, "41"},
		{document.Glyph{CID: 0x3b1, Font: document.FontRef{TwoByte: true}}, "03b1"},
		{document.Glyph{CID: '€'}, "80"},
		{document.Glyph{CID: 0x3b1}, "b1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeGlyph(tt.g))
	}
}

// thaiFont is shared with the shaping tests.
const thaiFont = "../shaping/testdata/FreeSerif.ttf"

func TestParagraphShapesThai(t *testing.T) {
	face, err := fonts.LoadFace(fonts.FallbackID, thaiFont)
	require.NoError(t, err)
	require.True(t, face.Decodes('ก'))

	e := newEngine(t, "th", func(o *Options) {
		o.Fallback = face
		o.Shaper = shaping.New(true)
	})
	ops := textOps(e.Paragraph(box(0, 400, 0, 20, 12), "สวัสดี ok", nil))

	// ส | วั | ส | ดี, then the Latin tail
	require.Len(t, ops, 5)
	thai, tail := ops[:4], ops[4]
	for _, op := range thai {
		assert.Equal(t, fonts.FallbackID, op.Font)
		assert.Zero(t, len(op.Codes)%4)
		assert.InDelta(t, 12*0.7, op.Size, 1e-9)
	}
	assert.Equal(t, fmt.Sprintf("%04x", face.GlyphID('ส')), thai[0].Codes)
	assert.Len(t, thai[1].Codes, 8, "base and mark share one op")

	// clusters tile the line and the following text starts where they end
	for i := 1; i < len(thai); i++ {
		assert.InDelta(t, thai[i-1].X+thai[i-1].Width, thai[i].X, 0.5, "cluster %d", i)
	}
	end := thai[3].X + thai[3].Width
	assert.Equal(t, fonts.LatinID, tail.Font)
	assert.InDelta(t, end, tail.X, 0.5)
}
