package document

import (
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// fontCodes maps decoded text back to the character code of one page font.
// Codes are scanned in ascending order on demand and every decoded value is
// remembered, so a lookup never decodes the same code twice.
type fontCodes struct {
	id      string
	twoByte bool
	enc     pdf.TextEncoding
	codes   map[string]int
	next    int
}

func newFontCodes(id string, twoByte bool, enc pdf.TextEncoding) *fontCodes {
	return &fontCodes{id: id, twoByte: twoByte, enc: enc, codes: make(map[string]int)}
}

func (f *fontCodes) limit() int {
	if f.twoByte {
		return 0x10000
	}
	return 0x100
}

// code returns the first character code decoding to s.
func (f *fontCodes) code(s string) (int, bool) {
	if c, ok := f.codes[s]; ok {
		return c, true
	}
	if f.enc == nil {
		return 0, false
	}
	for f.next < f.limit() {
		c := f.next
		f.next++

		raw := string([]byte{byte(c)})
		if f.twoByte {
			raw = string([]byte{byte(c >> 8), byte(c)})
		}
		d := f.enc.Decode(raw)
		if d == "" || d == string(utf8.RuneError) {
			continue
		}
		if _, dup := f.codes[d]; !dup {
			f.codes[d] = c
		}
		if d == s {
			return c, true
		}
	}
	return 0, false
}

// pageFonts indexes the fonts of a page by base font name, without the subset
// prefix, which is how the content interpreter reports them.
type pageFonts map[string]*fontCodes

func loadPageFonts(p pdf.Page) pageFonts {
	fonts := make(pageFonts)
	for _, key := range p.Fonts() {
		f := p.Font(key)
		base := stripSubset(f.BaseFont())
		if _, dup := fonts[base]; dup {
			continue
		}
		twoByte := f.V.Key("Subtype").Name() == "Type0"
		fonts[base] = newFontCodes(key, twoByte, f.Encoder())
	}
	return fonts
}

func stripSubset(name string) string {
	if i := strings.Index(name, "+"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// mediaBox returns the page media box, inherited from the page tree when the
// page itself has none.
func mediaBox(p pdf.Page) pdf.Value {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if box := v.Key("MediaBox"); !box.IsNull() {
			return box
		}
	}
	return pdf.Value{}
}
