// Package wordbreak segments text into words for word-aware line wrapping.
package wordbreak

import (
	"strings"
	"unicode/utf8"

	"github.com/go-text/typesetting/segmenter"
	"github.com/rivo/uniseg"

	"layout-translator/internal/types"
)

// Engine names.
const (
	EngineUAX14 = "uax14" // line break opportunities
	EngineUAX29 = "uax29" // word boundaries
	EngineNone  = "none"
)

// Provider splits text into words whose concatenation is the text.
type Provider interface {
	Segment(text string) []string
}

// New returns the provider for engine. EngineNone yields a nil provider.
func New(engine string) (Provider, error) {
	switch strings.ToLower(engine) {
	case EngineUAX14, "":
		return LineBreaker{}, nil
	case EngineUAX29:
		return WordSegmenter{}, nil
	case EngineNone:
		return nil, nil
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "unknown tokenizer engine", engine, nil)
	}
}

// LineBreaker splits at Unicode line break opportunities. Spaces stay with
// the word before them.
type LineBreaker struct{}

func (LineBreaker) Segment(text string) []string {
	if text == "" {
		return nil
	}
	var seg segmenter.Segmenter
	seg.Init([]rune(text))
	var out []string
	iter := seg.LineIterator()
	for iter.Next() {
		out = append(out, string(iter.Line().Text))
	}
	return out
}

// WordSegmenter splits at Unicode word boundaries.
type WordSegmenter struct{}

func (WordSegmenter) Segment(text string) []string {
	var out []string
	state := -1
	for text != "" {
		var word string
		word, text, state = uniseg.FirstWordInString(text, state)
		out = append(out, word)
	}
	return out
}

// Boundaries returns the rune offsets at which words of text end, in
// increasing order. The last offset is the rune length of text. A nil
// provider yields no boundaries.
func Boundaries(p Provider, text string) []int {
	if p == nil {
		return nil
	}
	var out []int
	pos := 0
	for _, w := range p.Segment(text) {
		pos += utf8.RuneCountInString(w)
		out = append(out, pos)
	}
	return out
}

// Last returns the greatest boundary b with lo < b <= hi, or -1.
func Last(bounds []int, lo, hi int) int {
	best := -1
	for _, b := range bounds {
		if b > hi {
			break
		}
		if b > lo {
			best = b
		}
	}
	return best
}
