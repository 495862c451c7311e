package fonts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	gofont "github.com/go-text/typesetting/font"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

// FallbackID is the default resource name of the fallback font.
const FallbackID = "noto"

// Face is a TrueType/OpenType font addressed by glyph id, used for every
// character the Latin font cannot encode.
type Face struct {
	id   string
	path string

	mu   sync.Mutex // guards face caches
	face *gofont.Face
	upem float64
}

// LoadFace parses the font file at path.
func LoadFace(id, path string) (*Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to read font", path, err)
	}
	f, err := NewFace(id, data)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

// NewFace parses font data held in memory.
func NewFace(id string, data []byte) (*Face, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "failed to parse font", err)
	}
	upem := float64(face.Upem())
	if upem == 0 {
		upem = 1000
	}
	return &Face{id: id, face: face, upem: upem}, nil
}

func (f *Face) ID() string    { return f.id }
func (f *Face) TwoByte() bool { return true }
func (f *Face) Path() string  { return f.path }

// GlyphID returns the nominal glyph of r, or 0 (.notdef) when missing.
func (f *Face) GlyphID(r rune) int {
	gid, ok := f.face.NominalGlyph(r)
	if !ok {
		logger.Debug("glyph not in fallback font",
			logger.String("code", string(types.ErrUnmappedGlyph)),
			logger.String("char", string(r)),
			logger.String("font", f.id))
		return 0
	}
	return int(gid)
}

// Decodes reports whether the font maps r to a glyph.
func (f *Face) Decodes(r rune) bool {
	_, ok := f.face.NominalGlyph(r)
	return ok
}

// Advance returns the advance of r in em; missing glyphs use .notdef.
func (f *Face) Advance(r rune) float64 {
	gid, _ := f.face.NominalGlyph(r)
	f.mu.Lock()
	adv := f.face.HorizontalAdvance(gid)
	f.mu.Unlock()
	return float64(adv) / f.upem
}

// Encode writes the four-digit hex glyph id of every character.
func (f *Face) Encode(text string) string {
	var b strings.Builder
	for _, r := range text {
		fmt.Fprintf(&b, "%04x", f.GlyphID(r))
	}
	return b.String()
}

// EncodeGlyphs writes glyph ids as four-digit hex.
func EncodeGlyphs(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%04x", id)
	}
	return b.String()
}
