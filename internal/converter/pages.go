package converter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"layout-translator/internal/types"
)

// ParsePages parses a page selection such as "1,3-5" against a document of
// total pages. An empty selection or "all" selects every page. The result is
// sorted and free of duplicates.
func ParsePages(sel string, total int) ([]int, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" || strings.EqualFold(sel, "all") {
		return lo.RangeFrom(1, total), nil
	}

	var pages []int
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if from < 1 || to > total || from > to {
			return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "page out of range",
				part+" of "+strconv.Itoa(total), nil)
		}
		for p := from; p <= to; p++ {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "no pages selected", sel, nil)
	}

	pages = lo.Uniq(pages)
	sort.Ints(pages)
	return pages, nil
}

func parseRange(part string) (int, int, error) {
	first, last, isRange := strings.Cut(part, "-")
	from, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid page selection", part, err)
	}
	if !isRange {
		return from, from, nil
	}
	to, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return 0, 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid page selection", part, err)
	}
	return from, to, nil
}
