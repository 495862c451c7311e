// Package fonts provides the metrics and encoders used when re-typesetting
// translated text: a built-in WinAnsi Latin font and a TrueType fallback.
package fonts

// Font is a font the reflow engine can typeset with.
type Font interface {
	// ID is the resource name written in the content stream.
	ID() string
	// Decodes reports whether r survives an encode/decode round trip.
	Decodes(r rune) bool
	// Advance is the horizontal advance of r in em.
	Advance(r rune) float64
	// Encode renders text as hex codes for a TJ operand.
	Encode(text string) string
	// TwoByte reports whether codes are two bytes wide.
	TwoByte() bool
	// Path is the font file, empty for built-in fonts.
	Path() string
}

// GlyphFont is a font addressed by glyph id.
type GlyphFont interface {
	Font
	// GlyphID returns the glyph of r, 0 when the font lacks it.
	GlyphID(r rune) int
}
