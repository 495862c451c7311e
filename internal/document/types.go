// Package document defines the positioned primitives a page is made of and
// extracts them from PDF files.
package document

import "strings"

// Point is a position in page space (points, y grows upwards).
type Point struct {
	X float64
	Y float64
}

// Matrix is a text rendering matrix [a b c d e f].
type Matrix [6]float64

// Identity is the unit text matrix.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Vertical reports whether the matrix renders glyphs without horizontal scale,
// which happens for rotated or vertical text.
func (m Matrix) Vertical() bool {
	return m[0] == 0 && m[3] == 0
}

// FontRef identifies the font a glyph was drawn with.
type FontRef struct {
	ID      string // resource name in the page, e.g. "F1"
	Name    string // base font name, possibly with a subset prefix
	TwoByte bool   // composite (CID) font addressed by 2-byte codes
}

// Primitive is one positioned drawing element of a page.
// The set of implementations is closed: Glyph, Line and FigureBoundary.
type Primitive interface {
	primitive()
}

// Glyph is a single positioned character.
type Glyph struct {
	Matrix  Matrix
	Font    FontRef
	Size    float64
	Text    string
	CID     int
	X0      float64
	Y0      float64
	X1      float64
	Y1      float64
	Advance float64
}

// Line is a straight stroke between two points.
type Line struct {
	P0    Point
	P1    Point
	Width float64
}

// FigureBoundary marks the start or end of an embedded figure.
type FigureBoundary struct {
	Begin bool
	Name  string
}

func (Glyph) primitive()          {}
func (Line) primitive()           {}
func (FigureBoundary) primitive() {}

// Width is the horizontal extent of the glyph box.
func (g Glyph) Width() float64 { return g.X1 - g.X0 }

// BaseFontName strips a subset prefix such as "ABCDEF+" from the font name.
func (f FontRef) BaseFontName() string {
	if i := strings.LastIndex(f.Name, "+"); i >= 0 {
		return f.Name[i+1:]
	}
	return f.Name
}

// Resource is the name the font is selected by in a content stream: the page
// resource ID when known, else the base font name with delimiters removed.
func (f FontRef) Resource() string {
	if f.ID != "" {
		return f.ID
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '(', ')', '<', '>', '[', ']', '{', '}', '%':
			return -1
		}
		return r
	}, f.BaseFontName())
}

// Page is the primitive stream of one page in traversal order.
type Page struct {
	Number     int // 1-based
	Width      float64
	Height     float64
	Primitives []Primitive
}

// Glyphs returns the glyph primitives of the page in order.
func (p *Page) Glyphs() []Glyph {
	var out []Glyph
	for _, prim := range p.Primitives {
		if g, ok := prim.(Glyph); ok {
			out = append(out, g)
		}
	}
	return out
}
