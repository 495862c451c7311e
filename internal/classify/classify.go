// Package classify decides whether a glyph belongs to a formula.
package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"layout-translator/internal/types"
)

// DefaultFontPattern matches math and symbol font families.
const DefaultFontPattern = `(CM[^R]|MS.M|XY|MT|BL|RM|EU|LA|RS|LINE|LCIRCLE|TeX-|rsfs|txsy|wasy|stmary|.*Mono|.*Code|.*Ital|.*Sym|.*Math)`

var defaultFontRE = regexp.MustCompile("^" + DefaultFontPattern)

// formulaCategories are the Unicode categories treated as formula characters.
var formulaCategories = []*unicode.RangeTable{
	unicode.Lm, unicode.Mn, unicode.Sk, unicode.Sm,
	unicode.Zl, unicode.Zp, unicode.Zs,
}

// Classifier tells formula glyphs from prose glyphs. It is immutable and safe
// for concurrent use.
type Classifier struct {
	fontRE *regexp.Regexp
	charRE *regexp.Regexp
}

// New builds a classifier. Empty patterns select the built-in rules.
// Patterns are anchored at the start of the input.
func New(fontPattern, charPattern string) (*Classifier, error) {
	c := &Classifier{fontRE: defaultFontRE}
	if fontPattern != "" {
		re, err := regexp.Compile("^(?:" + fontPattern + ")")
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "invalid formula font pattern", fontPattern, err)
		}
		c.fontRE = re
	}
	if charPattern != "" {
		re, err := regexp.Compile("^(?:" + charPattern + ")")
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "invalid formula char pattern", charPattern, err)
		}
		c.charRE = re
	}
	return c, nil
}

// Default returns a classifier with the built-in rules.
func Default() *Classifier {
	return &Classifier{fontRE: defaultFontRE}
}

// IsFormula reports whether char drawn with fontName is part of a formula.
func (c *Classifier) IsFormula(fontName, char string) bool {
	if strings.HasPrefix(char, "(cid:") {
		return true
	}

	if i := strings.LastIndex(fontName, "+"); i >= 0 {
		fontName = fontName[i+1:]
	}
	if c.fontRE.MatchString(fontName) {
		return true
	}

	if c.charRE != nil {
		return c.charRE.MatchString(char)
	}
	return isFormulaChar(char)
}

func isFormulaChar(char string) bool {
	r, size := utf8.DecodeRuneInString(char)
	if size == 0 || r == ' ' {
		return false
	}
	if unicode.In(r, formulaCategories...) {
		return true
	}
	// Greek and Coptic
	return r >= 0x0370 && r < 0x0400
}
