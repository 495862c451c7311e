// Package reflow re-typesets translated paragraphs into PDF text operators,
// reinserting preserved formula runs at their placeholders.
package reflow

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"layout-translator/internal/document"
	"layout-translator/internal/fonts"
	"layout-translator/internal/logger"
	"layout-translator/internal/segment"
	"layout-translator/internal/shaping"
	"layout-translator/internal/types"
	"layout-translator/internal/wordbreak"
)

// Op is one emitted drawing operation.
type Op interface {
	String() string
	line() int
	setY(y float64)
	offsetY() float64
}

// TextOp draws a hex-encoded string with a font at an absolute position.
type TextOp struct {
	Font  string
	Size  float64
	X     float64
	Y     float64
	Codes string
	// Width is the layout advance of the drawn text in points.
	Width float64
	// Line is the paragraph line the op sits on.
	Line int

	dy float64
}

func (o *TextOp) String() string {
	return fmt.Sprintf("/%s %f Tf 1 0 0 1 %f %f Tm [<%s>] TJ ", o.Font, o.Size, o.X, o.Y, o.Codes)
}

func (o *TextOp) line() int        { return o.Line }
func (o *TextOp) setY(y float64)   { o.Y = y }
func (o *TextOp) offsetY() float64 { return o.dy }

// LineOp strokes a segment from (X, Y) to (X+DX, Y+DY).
type LineOp struct {
	X     float64
	Y     float64
	DX    float64
	DY    float64
	Width float64
	Line  int

	dy float64
}

func (o *LineOp) String() string {
	return fmt.Sprintf("ET q 1 0 0 1 %f %f cm [] 0 d 0 J %f w 0 0 m %f %f l S Q BT ", o.X, o.Y, o.Width, o.DX, o.DY)
}

func (o *LineOp) line() int        { return o.Line }
func (o *LineOp) setY(y float64)   { o.Y = y }
func (o *LineOp) offsetY() float64 { return o.dy }

// Page renders all paragraphs of a page into one framed operator stream.
// Global lines come last; strokes of width 5 or more are background rules
// and are dropped.
func (e *Engine) Page(paragraphs []segment.Paragraph, texts []string, runs []segment.FormulaRun, globalLines []document.Line) string {
	var b strings.Builder
	b.WriteString("BT ")
	for i, p := range paragraphs {
		if i >= len(texts) {
			break
		}
		for _, op := range e.Paragraph(p, texts[i], runs) {
			b.WriteString(op.String())
		}
	}
	for _, l := range globalLines {
		if l.Width >= maxLineWidth {
			continue
		}
		op := LineOp{X: l.P0.X, Y: l.P0.Y, DX: l.P1.X - l.P0.X, DY: l.P1.Y - l.P0.Y, Width: l.Width}
		b.WriteString(op.String())
	}
	b.WriteString("ET ")
	return b.String()
}

// Paragraph lays out the translated text of p and returns its ops with
// final positions.
func (e *Engine) Paragraph(p segment.Paragraph, text string, runs []segment.FormulaRun) []Op {
	l := &layouter{
		e:      e,
		p:      p,
		runs:   runs,
		scaled: p.Size * e.opts.FontScale,
		x:      p.X,
	}
	if e.opts.WordWrap && p.Break {
		l.bounds = wordbreak.Boundaries(e.opts.Words, text)
	}
	l.run(text)

	lh := fitLineHeight(e.opts.LineHeight, l.lidx+1, p.Size, p.Height())
	for _, op := range l.ops {
		op.setY(p.Y + op.offsetY() - float64(op.line())*p.Size*lh)
	}
	return l.ops
}

// fitLineHeight lowers lh in fixed steps until lines rows fit height or the
// floor is reached. A default already below the floor is kept.
func fitLineHeight(lh float64, lines int, size, height float64) float64 {
	for float64(lines)*size*lh > height && lh > MinFittedLineHeight {
		lh = math.Max(MinFittedLineHeight, math.Round((lh-lineHeightStep)*100)/100)
	}
	return lh
}

type layouter struct {
	e      *Engine
	p      segment.Paragraph
	runs   []segment.FormulaRun
	scaled float64
	bounds []int

	x    float64
	lidx int
	ops  []Op

	// pending same-font text
	fcur     fonts.Font
	tx       float64
	buf      []rune
	adv      []float64
	bufStart int // rune offset in the paragraph text of buf[0]
}

func (l *layouter) run(text string) {
	x0, x1 := l.p.X0, l.p.X1
	tol := boundaryTolerance * l.scaled

	pos := 0 // rune offset
	for i := 0; i < len(text); {
		if idx, n, ok := segment.ParsePlaceholder(text[i:]); ok {
			pos += utf8.RuneCountInString(text[i : i+n])
			i += n
			if idx < 0 || idx >= len(l.runs) || len(l.runs[idx].Glyphs) == 0 {
				logger.Debug("skipping dangling placeholder",
					logger.String("code", string(types.ErrDanglingPlaceholder)),
					logger.Int("index", idx))
				continue
			}
			l.formula(&l.runs[idx], x0, x1, tol)
			continue
		}

		ch, n := utf8.DecodeRuneInString(text[i:])
		i += n
		font := l.fontFor(ch)
		adv := font.Advance(ch) * l.scaled

		if l.p.Break && l.x+adv > x1+tol && len(l.bounds) > 0 {
			l.snapBack(pos, x0, x1)
		}
		overflow := adv > 0 && l.x+adv > x1+tol
		wrap := l.p.Break && l.x+adv > x1+tol
		if overflow || wrap || !sameFont(font, l.fcur) {
			l.flush()
		}
		if wrap {
			l.x = x0
			l.lidx++
		}

		if len(l.buf) == 0 {
			l.tx = l.x
			l.bufStart = pos
			if l.x == x0 && ch == ' ' {
				adv = 0
				l.bufStart = pos + 1
			} else {
				l.push(ch, adv)
			}
		} else {
			l.push(ch, adv)
		}
		l.fcur = font
		l.x += adv
		pos++
	}
	l.flush()
}

func (l *layouter) push(ch rune, adv float64) {
	l.buf = append(l.buf, ch)
	l.adv = append(l.adv, adv)
}

// formula places a preserved run at the current position. Its glyphs keep
// their original fonts and sizes.
func (l *layouter) formula(run *segment.FormulaRun, x0, x1, tol float64) {
	l.flush()
	if l.p.Break && l.x+run.Width > x1+tol {
		l.x = x0
		l.lidx++
	}

	fix := 0.0
	if l.fcur != nil {
		fix = run.VerticalFixup
	}
	origin := run.Glyphs[0]
	for _, g := range run.Glyphs {
		l.ops = append(l.ops, &TextOp{
			Font:  g.Font.Resource(),
			Size:  g.Size,
			X:     l.x + g.X0 - origin.X0,
			Codes: encodeGlyph(g),
			Width: g.Width(),
			Line:  l.lidx,
			dy:    fix + g.Y0 - origin.Y0,
		})
	}
	for _, ln := range run.Lines {
		if ln.Width >= maxLineWidth {
			continue
		}
		l.ops = append(l.ops, &LineOp{
			X:     ln.P0.X + l.x - origin.X0,
			DX:    ln.P1.X - ln.P0.X,
			DY:    ln.P1.Y - ln.P0.Y,
			Width: ln.Width,
			Line:  l.lidx,
			dy:    ln.P0.Y + fix - origin.Y0,
		})
	}
	l.x += run.Width - modifierWidth(run)
}

// snapBack moves the tail of the pending buffer after its last word boundary
// to a new line, provided the part left behind covers enough of the box.
func (l *layouter) snapBack(pos int, x0, x1 float64) {
	if len(l.buf) == 0 {
		return
	}
	b := wordbreak.Last(l.bounds, l.bufStart-1, pos)
	if b < l.bufStart || b >= pos {
		return
	}
	k := b - l.bufStart
	if k > len(l.buf) {
		return
	}
	kept := l.tx - x0
	for _, a := range l.adv[:k] {
		kept += a
	}
	if kept <= 0 || kept < l.e.opts.MinLineUsage*(x1-x0) {
		return
	}

	carried := append([]rune(nil), l.buf[k:]...)
	carriedAdv := append([]float64(nil), l.adv[k:]...)
	l.buf, l.adv = l.buf[:k], l.adv[:k]
	l.flush()

	l.lidx++
	l.tx = x0
	l.x = x0
	l.buf, l.adv = carried, carriedAdv
	l.bufStart = b
	for _, a := range carriedAdv {
		l.x += a
	}
}

// flush emits the pending buffer with the current font.
func (l *layouter) flush() {
	if len(l.buf) == 0 {
		return
	}
	text := string(l.buf)
	width := 0.0
	for _, a := range l.adv {
		width += a
	}
	l.emit(text, width)
	l.buf, l.adv = l.buf[:0], l.adv[:0]
}

func (l *layouter) emit(text string, width float64) {
	font := l.fcur
	opts := l.e.opts
	if gf, ok := font.(fonts.GlyphFont); ok && font.ID() == opts.Fallback.ID() && opts.Shaper.NeedsShaping(text) {
		shaped, needed := opts.Shaper.Shape(text, font.Path(), l.scaled)
		if needed && shaped.Success {
			l.emitClusters(gf, text, shaped)
			return
		}
		logger.Debug("shaping unavailable, drawing characters unshaped", logger.String("text", text))
	}
	l.ops = append(l.ops, &TextOp{
		Font:  font.ID(),
		Size:  l.scaled,
		X:     l.tx,
		Codes: font.Encode(text),
		Width: width,
		Line:  l.lidx,
	})
}

// emitClusters draws each shaped cluster at the pen position advanced by the
// base advances of the clusters before it.
func (l *layouter) emitClusters(font fonts.GlyphFont, text string, shaped shaping.Text) {
	cx := l.tx
	for _, c := range shaping.GroupClusters(text, shaped.Glyphs) {
		l.ops = append(l.ops, &TextOp{
			Font:  font.ID(),
			Size:  l.scaled,
			X:     cx + c.XOffset,
			Codes: fonts.EncodeGlyphs(c.GlyphIDs),
			Width: c.BaseAdvance,
			Line:  l.lidx,
			dy:    c.YOffset,
		})
		cx += c.BaseAdvance
	}
}

func (l *layouter) fontFor(r rune) fonts.Font {
	if l.e.opts.Latin.Decodes(r) {
		return l.e.opts.Latin
	}
	return l.e.opts.Fallback
}

func sameFont(a, b fonts.Font) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

// modifierWidth is the width of modifier glyphs (Lm, Mn, Sk) at the edges of
// a run; the following text is pulled back over them.
func modifierWidth(run *segment.FormulaRun) float64 {
	n := len(run.Glyphs)
	if n == 0 {
		return 0
	}
	mod := 0.0
	if isModifier(run.Glyphs[n-1].Text) {
		mod += run.Glyphs[n-1].Width()
	}
	if n > 1 && isModifier(run.Glyphs[0].Text) {
		mod += run.Glyphs[0].Width()
	}
	return mod
}

func isModifier(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.In(r, unicode.Lm, unicode.Mn, unicode.Sk)
}

var winAnsi = fonts.NewLatin()

// encodeGlyph returns the code a formula glyph was drawn with: two bytes for
// composite fonts, one byte otherwise.
func encodeGlyph(g document.Glyph) string {
	if g.Font.TwoByte {
		return fmt.Sprintf("%04x", g.CID&0xffff)
	}
	if g.CID >= 0 && g.CID <= 0xff {
		return fmt.Sprintf("%02x", g.CID)
	}
	if r := rune(g.CID); winAnsi.Decodes(r) {
		return winAnsi.Encode(string(r))
	}
	return fmt.Sprintf("%02x", g.CID&0xff)
}
