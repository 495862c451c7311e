package reflow

import (
	"golang.org/x/text/language"

	"layout-translator/internal/fonts"
	"layout-translator/internal/shaping"
	"layout-translator/internal/types"
	"layout-translator/internal/wordbreak"
)

const (
	// DefaultLineHeight applies to languages without their own entry.
	DefaultLineHeight = 1.1
	// DefaultFontScale leaves translated text at the source size.
	DefaultFontScale = 1.0
	// MinFittedLineHeight is the floor of line-height fitting.
	MinFittedLineHeight = 1.0
	// lineHeightStep is subtracted per fitting round.
	lineHeightStep = 0.05
	// boundaryTolerance is the share of the font size a line may overrun its box.
	boundaryTolerance = 0.1
	// maxLineWidth is the stroke width above which a line is a background rule.
	maxLineWidth = 5
)

// lineHeights 各语言默认行距
var lineHeights = map[string]float64{
	"zh": 1.4,
	"ja": 1.1,
	"ko": 1.2,
	"en": 1.2,
	"ar": 1.0,
	"ru": 0.8,
	"uk": 0.8,
	"ta": 0.8,
	"th": 1.5,
}

// fontScales 各语言字号缩放
var fontScales = map[string]float64{
	"th": 0.7,
}

// Overrides replaces the language defaults when non-zero.
type Overrides struct {
	LineHeight float64
	FontScale  float64
}

// ForLanguage returns the line height and font scale for a target language.
func ForLanguage(lang string, ov Overrides) (lineHeight, fontScale float64) {
	lineHeight, fontScale = DefaultLineHeight, DefaultFontScale
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if v, ok := lineHeights[base.String()]; ok {
			lineHeight = v
		}
		if v, ok := fontScales[base.String()]; ok {
			fontScale = v
		}
	}
	if ov.LineHeight > 0 {
		lineHeight = ov.LineHeight
	}
	if ov.FontScale > 0 {
		fontScale = ov.FontScale
	}
	return lineHeight, fontScale
}

// Options configure an Engine.
type Options struct {
	// Latin is tried first for every character; nil selects the built-in font.
	Latin fonts.Font
	// Fallback takes every character Latin cannot encode.
	Fallback fonts.GlyphFont
	// Shaper positions complex scripts; nil disables shaping.
	Shaper *shaping.Shaper
	// Words supplies word boundaries for word-aware wrapping.
	Words wordbreak.Provider

	LineHeight float64
	FontScale  float64
	// WordWrap snaps line breaks back to word boundaries.
	WordWrap bool
	// MinLineUsage is the share of the box width a line must keep when
	// snapping back to a word boundary.
	MinLineUsage float64
}

// Engine re-typesets translated paragraphs. It holds no per-page state and
// may be shared by goroutines.
type Engine struct {
	opts Options
}

// New validates opts and fills defaults.
func New(opts Options) (*Engine, error) {
	if opts.Fallback == nil {
		return nil, types.NewAppError(types.ErrConfig, "reflow needs a fallback font", nil)
	}
	if opts.Latin == nil {
		opts.Latin = fonts.NewLatin()
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = DefaultLineHeight
	}
	if opts.FontScale <= 0 {
		opts.FontScale = DefaultFontScale
	}
	if opts.MinLineUsage < 0 || opts.MinLineUsage > 1 {
		opts.MinLineUsage = 0
	}
	return &Engine{opts: opts}, nil
}

// Options returns the resolved options.
func (e *Engine) Options() Options { return e.opts }
