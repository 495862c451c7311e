// Package converter runs the page pipeline: primitives are segmented into
// paragraphs and formula runs, paragraphs are translated, and the result is
// re-typeset into one content stream per page.
package converter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"layout-translator/internal/classify"
	"layout-translator/internal/document"
	"layout-translator/internal/layout"
	"layout-translator/internal/logger"
	"layout-translator/internal/reflow"
	"layout-translator/internal/segment"
	"layout-translator/internal/translate"
	"layout-translator/internal/types"
)

// DefaultPageWorkers is the number of pages processed in parallel.
const DefaultPageWorkers = 2

// PageResult is the outcome of one page. Err holds a non-fatal page error;
// Stream is empty in that case.
type PageResult struct {
	Number     int
	Stream     string
	Paragraphs int
	Formulas   int
	Err        error
}

// PageSource yields the primitive streams of a document.
type PageSource interface {
	NumPages() int
	Page(num int) (document.Page, error)
}

// ProgressCallback reports finished pages.
type ProgressCallback func(completed, total int)

// Converter 页面翻译流水线
type Converter struct {
	Regions     layout.Source
	Classifier  segment.FormulaClassifier
	Dispatcher  *translate.Dispatcher
	Engine      *reflow.Engine
	PageWorkers int
	Progress    ProgressCallback
}

// New returns a converter with a uniform layout and the built-in formula rules.
func New(d *translate.Dispatcher, e *reflow.Engine) *Converter {
	return &Converter{
		Regions:     layout.UniformSource{},
		Classifier:  classify.Default(),
		Dispatcher:  d,
		Engine:      e,
		PageWorkers: DefaultPageWorkers,
	}
}

// Page translates a single page.
func (c *Converter) Page(ctx context.Context, page document.Page) (PageResult, error) {
	start := time.Now()
	res := PageResult{Number: page.Number}

	regions, err := c.Regions.Regions(ctx, page)
	if err != nil {
		return res, types.NewAppErrorWithDetails(types.ErrLayoutModel, "layout detection failed",
			fmt.Sprintf("page %d", page.Number), err)
	}

	seg := segment.Segment(segment.NewEnv(regions, page.Width, c.Classifier), page.Primitives)
	res.Paragraphs, res.Formulas = len(seg.Paragraphs), len(seg.Runs)

	texts, err := c.Dispatcher.TranslateAll(ctx, seg.Texts)
	if err != nil {
		return res, err
	}

	res.Stream = c.Engine.Page(seg.Paragraphs, texts, seg.Runs, seg.GlobalLines)
	logger.Debug("page converted",
		logger.Int("page", page.Number),
		logger.Int("paragraphs", res.Paragraphs),
		logger.Int("formulas", res.Formulas),
		logger.Int("streamBytes", len(res.Stream)),
		logger.Any("elapsed", time.Since(start).String()))
	return res, nil
}

// Pages translates pages with bounded parallelism. Results are index-aligned
// with pages. Non-fatal page errors are recorded on the result; the first
// fatal error cancels the remaining pages and is returned.
func (c *Converter) Pages(ctx context.Context, pages []document.Page) ([]PageResult, error) {
	results := make([]PageResult, len(pages))
	if len(pages) == 0 {
		return results, nil
	}

	workers := c.PageWorkers
	if workers <= 0 {
		workers = DefaultPageWorkers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error
	completed := 0

	for i, page := range pages {
		wg.Add(1)
		go func(idx int, page document.Page) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = PageResult{Number: page.Number, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			res, err := c.Page(ctx, page)
			if err != nil {
				if types.IsFatal(err) {
					mu.Lock()
					if fatal == nil {
						fatal = err
						cancel()
					}
					mu.Unlock()
				} else {
					logger.Warn("page skipped", logger.Int("page", page.Number), logger.Err(err))
				}
				res.Err = err
			}
			results[idx] = res

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			if c.Progress != nil {
				c.Progress(done, len(pages))
			}
		}(i, page)
	}
	wg.Wait()

	if fatal != nil {
		return results, fatal
	}
	return results, nil
}

// Document extracts the requested pages from src and translates them.
// Pages that cannot be extracted are reported with their error.
func (c *Converter) Document(ctx context.Context, src PageSource, numbers []int) ([]PageResult, error) {
	type loaded struct {
		page document.Page
		err  error
	}
	// extraction is sequential; readers are not safe for concurrent use
	all := lo.Map(numbers, func(n int, _ int) loaded {
		page, err := src.Page(n)
		if err != nil {
			logger.Warn("page extraction failed", logger.Int("page", n), logger.Err(err))
		}
		page.Number = n
		return loaded{page: page, err: err}
	})

	ok := lo.Filter(all, func(l loaded, _ int) bool { return l.err == nil })
	translated, err := c.Pages(ctx, lo.Map(ok, func(l loaded, _ int) document.Page { return l.page }))

	byNumber := lo.SliceToMap(translated, func(r PageResult) (int, PageResult) { return r.Number, r })
	results := lo.Map(all, func(l loaded, _ int) PageResult {
		if l.err != nil {
			return PageResult{Number: l.page.Number, Err: l.err}
		}
		return byNumber[l.page.Number]
	})
	return results, err
}
