package segment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// placeholderRE is the tolerant form found in translated text: "{v3}", "{ V 1 2 }".
	placeholderRE = regexp.MustCompile(`^(?i)\{\s*v([\d\s]+)\}`)
	// exactRE is the canonical form produced by the segmenter.
	exactRE = regexp.MustCompile(`^\{v\d+\}$`)
	// FormulaPattern finds canonical placeholders anywhere in a string.
	FormulaPattern = regexp.MustCompile(`\{v\d+\}`)
)

// Placeholder renders the marker for formula run i.
func Placeholder(i int) string {
	return fmt.Sprintf("{v%d}", i)
}

// IsPlaceholder reports whether s is exactly one canonical placeholder.
func IsPlaceholder(s string) bool {
	return exactRE.MatchString(s)
}

// ParsePlaceholder matches a placeholder at the start of s. It returns the byte
// length of the match and the run index; index is -1 when the marker carries no
// digits. ok is false when s does not start with a placeholder.
func ParsePlaceholder(s string) (index, length int, ok bool) {
	m := placeholderRE.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	digits := strings.Join(strings.Fields(m[1]), "")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1, len(m[0]), true
	}
	return n, len(m[0]), true
}
