package fonts

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// LatinID is the resource name of the built-in Latin font.
const LatinID = "tiro"

// defaultWidth is used for WinAnsi characters without a listed width.
const defaultWidth = 500

// timesWidths are Times-Roman advances in 1/1000 em for printable ASCII.
var timesWidths = [95]int{
	250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278, // space to /
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444, // 0 to ?
	921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722, // @ to O
	556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500, // P to _
	333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500, // ` to o
	500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541, // p to ~
}

// extraWidths covers the non-ASCII WinAnsi characters that do not decompose
// to an ASCII base letter.
var extraWidths = map[rune]int{
	'\u00a0': 250, // no-break space

	'€': 500,
	'‚': 333,
	'„': 444,
	'…': 1000,
	'†': 500,
	'‡': 500,
	'‰': 1000,
	'‹': 333,
	'›': 333,
	'Œ': 889,
	'œ': 722,
	'‘': 333,
	'’': 333,
	'“': 444,
	'”': 444,
	'•': 350,
	'–': 500,
	'—': 1000,
	'™': 980,
	'¡': 333,
	'¢': 500,
	'£': 500,
	'¥': 500,
	'§': 500,
	'©': 760,
	'«': 500,
	'»': 500,
	'®': 760,
	'°': 400,
	'±': 564,
	'µ': 500,
	'¶': 453,
	'·': 250,
	'¿': 444,
	'Æ': 889,
	'æ': 667,
	'×': 564,
	'÷': 564,
	'ß': 500,
	'Ø': 722,
	'ø': 500,
	'Ð': 722,
	'ð': 500,
	'Þ': 556,
	'þ': 500,
}

// Latin is the base-14 Times-Roman font with WinAnsi encoding.
type Latin struct{}

// NewLatin returns the built-in Latin font.
func NewLatin() Latin { return Latin{} }

func (Latin) ID() string    { return LatinID }
func (Latin) TwoByte() bool { return false }
func (Latin) Path() string  { return "" }

// Decodes reports whether r has a WinAnsi code that maps back to r.
func (Latin) Decodes(r rune) bool {
	b, ok := charmap.Windows1252.EncodeRune(r)
	return ok && charmap.Windows1252.DecodeByte(b) == r
}

// Advance returns the Times-Roman width of r in em.
func (l Latin) Advance(r rune) float64 {
	return float64(latinWidth(r)) / 1000
}

func latinWidth(r rune) int {
	if r >= 0x20 && r <= 0x7e {
		return timesWidths[r-0x20]
	}
	if w, ok := extraWidths[r]; ok {
		return w
	}
	// accented letters take the width of their base letter
	if d := []rune(norm.NFD.String(string(r))); len(d) > 1 && d[0] >= 0x20 && d[0] <= 0x7e {
		return timesWidths[d[0]-0x20]
	}
	return defaultWidth
}

// Encode writes one byte per character; characters outside WinAnsi become '?'.
func (Latin) Encode(text string) string {
	var b strings.Builder
	for _, r := range text {
		code, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			code = '?'
		}
		fmt.Fprintf(&b, "%02x", code)
	}
	return b.String()
}
