// Package shaping wraps the HarfBuzz port of go-text for complex scripts.
//
// A Shaper is built once with its enabled flag and passed to the reflow
// engine. Faces are cached by file path and shaping handles by path and size;
// both caches are safe for concurrent population.
package shaping

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/language"
	hb "github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/runenames"

	"layout-translator/internal/logger"
	"layout-translator/internal/segment"
	"layout-translator/internal/types"
)

// ScriptFormula tags a run holding one formula placeholder.
const ScriptFormula = "Formula"

var leadingPlaceholder = regexp.MustCompile(`^` + segment.FormulaPattern.String())

// complexScripts maps the scripts that need contextual shaping to their
// OpenType script.
var complexScripts = map[string]language.Script{
	"Thai":       language.Thai,
	"Laoo":       language.Lao,
	"Khmer":      language.Khmer,
	"Myanmar":    language.Myanmar,
	"Arabic":     language.Arabic,
	"Hebrew":     language.Hebrew,
	"Syriac":     language.Syriac,
	"Devanagari": language.Devanagari,
	"Bengali":    language.Bengali,
	"Gurmukhi":   language.Gurmukhi,
	"Gujarati":   language.Gujarati,
	"Oriya":      language.Oriya,
	"Tamil":      language.Tamil,
	"Telugu":     language.Telugu,
	"Kannada":    language.Kannada,
	"Malayalam":  language.Malayalam,
	"Sinhala":    language.Sinhala,
	"Tibetan":    language.Tibetan,
	"Mongolian":  language.Mongolian,
}

var thaiFeatures = []hb.FontFeature{
	{Tag: ot.MustNewTag("liga"), Value: 1},
	{Tag: ot.MustNewTag("kern"), Value: 1},
	{Tag: ot.MustNewTag("mark"), Value: 1},
	{Tag: ot.MustNewTag("mkmk"), Value: 1},
	{Tag: ot.MustNewTag("ccmp"), Value: 1},
}

// Glyph is one shaped glyph. Cluster is the rune offset in the shaped text
// of the first character of its cluster; units are points.
type Glyph struct {
	ID        int
	Cluster   int
	RuneCount int
	XAdvance  float64
	YAdvance  float64
	XOffset   float64
	YOffset   float64
}

// Text is the result of shaping a string.
type Text struct {
	Glyphs       []Glyph
	TotalAdvance float64
	Success      bool
}

// Run is a maximal same-script substring. Start and End are rune offsets.
type Run struct {
	Text   string
	Start  int
	End    int
	Script string
}

// Formula reports whether the run is a placeholder.
func (r Run) Formula() bool { return r.Script == ScriptFormula }

type faceEntry struct {
	mu   sync.Mutex // go-text faces keep internal caches
	face *gofont.Face
}

type handleKey struct {
	path string
	size float64
}

type handle struct {
	face   *faceEntry
	size   fixed.Int26_6
	shaper hb.HarfbuzzShaper
}

// Shaper shapes complex-script text.
type Shaper struct {
	enabled bool

	mu      sync.Mutex
	faces   map[string]*faceEntry
	handles map[handleKey]*handle
}

// New returns a shaper; enabled is fixed for its lifetime.
func New(enabled bool) *Shaper {
	s := &Shaper{
		enabled: enabled,
		faces:   make(map[string]*faceEntry),
		handles: make(map[handleKey]*handle),
	}
	if enabled {
		logger.Info("text shaping enabled")
	} else {
		logger.Info("text shaping disabled")
	}
	return s
}

// Enabled reports whether shaping is on.
func (s *Shaper) Enabled() bool { return s != nil && s.enabled }

// ScriptOf names the script of r from the first word of its Unicode name,
// falling back to the Thai block range when the name is unknown.
func ScriptOf(r rune) string {
	name := runenames.Name(r)
	first, _, _ := strings.Cut(name, " ")
	if first == "" || strings.HasPrefix(first, "<") {
		if r >= 0x0E00 && r <= 0x0E7F {
			return "Thai"
		}
		if first == "" {
			return "Latin"
		}
		return strings.Trim(first, "<>")
	}
	if first == "LAO" {
		return "Laoo"
	}
	return first[:1] + strings.ToLower(first[1:])
}

// IsComplex reports whether script needs contextual shaping.
func IsComplex(script string) bool {
	_, ok := complexScripts[script]
	return ok
}

// NeedsShaping reports whether text holds any complex-script character.
func (s *Shaper) NeedsShaping(text string) bool {
	if !s.Enabled() || text == "" {
		return false
	}
	for _, r := range text {
		if IsComplex(ScriptOf(r)) {
			return true
		}
	}
	return false
}

// SplitRuns partitions text into same-script runs. Each placeholder is its
// own Formula run. Concatenating the run texts gives back text.
func SplitRuns(text string) []Run {
	var runs []Run
	cur := ""
	start, pos := 0, 0 // rune offsets
	startByte := 0

	closeRun := func(endByte int) {
		if cur != "" {
			runs = append(runs, Run{Text: text[startByte:endByte], Start: start, End: pos, Script: cur})
		}
		cur = ""
	}

	for i := 0; i < len(text); {
		if loc := leadingPlaceholder.FindStringIndex(text[i:]); loc != nil {
			closeRun(i)
			n := utf8.RuneCountInString(text[i : i+loc[1]])
			runs = append(runs, Run{Text: text[i : i+loc[1]], Start: pos, End: pos + n, Script: ScriptFormula})
			i += loc[1]
			pos += n
			start, startByte = pos, i
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		script := ScriptOf(r)
		if script != cur {
			closeRun(i)
			cur = script
			start, startByte = pos, i
		}
		i += size
		pos++
	}
	closeRun(len(text))
	return runs
}

// Shape shapes text with the font at fontPath. ok is false when the text
// needs no shaping; otherwise Success on the result tells whether every run
// was shaped.
func (s *Shaper) Shape(text, fontPath string, size float64) (Text, bool) {
	if !s.NeedsShaping(text) {
		return Text{}, false
	}

	h, err := s.handle(fontPath, size)
	if err != nil {
		logger.Warn("failed to load font for shaping", logger.String("path", fontPath), logger.Err(err))
		return Text{}, true
	}

	runes := []rune(text)
	out := Text{Success: true}
	for _, run := range SplitRuns(text) {
		if run.Formula() {
			continue
		}
		glyphs, err := h.shapeRun(runes, run)
		if err != nil {
			logger.Warn("text shaping failed for run",
				logger.String("run", run.Text),
				logger.Err(types.NewAppError(types.ErrShapingFailed, "shaping failed", err)))
			return Text{}, true
		}
		for _, g := range glyphs {
			out.TotalAdvance += g.XAdvance
		}
		out.Glyphs = append(out.Glyphs, glyphs...)
	}
	return out, true
}

func (s *Shaper) handle(path string, size float64) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := handleKey{path: path, size: size}
	if h, ok := s.handles[key]; ok {
		return h, nil
	}

	fe, ok := s.faces[path]
	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		face, err := gofont.ParseTTF(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		fe = &faceEntry{face: face}
		s.faces[path] = fe
	}

	h := &handle{face: fe, size: fixed.Int26_6(math.Round(size * 64))}
	s.handles[key] = h
	return h, nil
}

func (h *handle) shapeRun(runes []rune, run Run) (glyphs []Glyph, err error) {
	h.face.mu.Lock()
	defer h.face.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			glyphs, err = nil, fmt.Errorf("shaper panic: %v", r)
		}
	}()

	script := complexScripts[run.Script]
	if script == 0 {
		script = language.LookupScript(runes[run.Start])
	}
	input := hb.Input{
		Text:      runes,
		RunStart:  run.Start,
		RunEnd:    run.End,
		Direction: direction(script),
		Face:      h.face.face,
		Size:      h.size,
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	if run.Script == "Thai" {
		input.FontFeatures = thaiFeatures
		input.Language = language.NewLanguage("th")
	}

	output := h.shaper.Shape(input)
	if len(output.Glyphs) == 0 {
		return nil, fmt.Errorf("no glyphs for %q", run.Text)
	}

	glyphs = make([]Glyph, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		glyphs = append(glyphs, Glyph{
			ID:        int(g.GlyphID),
			Cluster:   g.ClusterIndex,
			RuneCount: g.RuneCount,
			XAdvance:  float64(g.XAdvance) / 64,
			YAdvance:  float64(g.YAdvance) / 64,
			XOffset:   float64(g.XOffset) / 64,
			YOffset:   float64(g.YOffset) / 64,
		})
	}
	return glyphs, nil
}

func direction(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// Cluster is a group of glyphs rendering one grapheme.
type Cluster struct {
	ID          int
	Chars       string
	CharIndices []int
	GlyphIDs    []int
	XOffset     float64
	YOffset     float64
	BaseAdvance float64
}

// GroupClusters groups shaped glyphs of text by cluster, in cluster order.
// Every glyph is attributed to the first character of its cluster, so
// BaseAdvance sums all glyph advances of a cluster that starts with a base
// character and is zero for a cluster of lone marks. The offsets are those
// of the first glyph.
func GroupClusters(text string, glyphs []Glyph) []Cluster {
	runes := []rune(text)
	byID := make(map[int]*Cluster)
	var order []int

	for _, g := range glyphs {
		c, ok := byID[g.Cluster]
		if !ok {
			c = &Cluster{ID: g.Cluster, XOffset: g.XOffset, YOffset: g.YOffset}
			byID[g.Cluster] = c
			order = append(order, g.Cluster)
			n := g.RuneCount
			if n <= 0 {
				n = 1
			}
			for i := g.Cluster; i < g.Cluster+n && i < len(runes); i++ {
				c.Chars += string(runes[i])
				c.CharIndices = append(c.CharIndices, i)
			}
		}
		c.GlyphIDs = append(c.GlyphIDs, g.ID)

		if g.Cluster < len(runes) && !isMark(runes[g.Cluster]) {
			c.BaseAdvance += g.XAdvance
		}
	}

	sort.Ints(order)
	out := make([]Cluster, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func isMark(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Mc, unicode.Me)
}
