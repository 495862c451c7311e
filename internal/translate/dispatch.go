package translate

import (
	"context"
	"strings"
	"sync"
	"time"

	"layout-translator/internal/logger"
	"layout-translator/internal/segment"
	"layout-translator/internal/types"
)

const (
	// DefaultConcurrency is the default number of in-flight backend calls.
	DefaultConcurrency = 4
	// DefaultRetryInterval is the fixed wait between attempts.
	DefaultRetryInterval = time.Second
)

// ShouldTranslate reports whether text goes to the backend. Blank texts and
// texts made of a single formula placeholder pass through unchanged.
func ShouldTranslate(text string) bool {
	return strings.TrimSpace(text) != "" && !segment.IsPlaceholder(text)
}

// Retry is a fixed-interval retry policy. MaxAttempts of 0 retries until the
// context is cancelled.
type Retry struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultRetry waits one second between unbounded attempts.
func DefaultRetry() Retry {
	return Retry{Interval: DefaultRetryInterval}
}

// Do calls fn until it succeeds, attempts run out or ctx is done. Every
// failure is logged. The last error is returned.
func (r Retry) Do(ctx context.Context, index int, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; r.MaxAttempts <= 0 || attempt <= r.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return "", lastErr
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		logger.Warn("translation attempt failed",
			logger.Int("index", index),
			logger.Int("attempt", attempt),
			logger.Err(err))

		if r.MaxAttempts > 0 && attempt >= r.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(r.Interval):
		}
	}
	return "", lastErr
}

// ProgressCallback reports completed out of total texts.
type ProgressCallback func(completed, total int)

// Dispatcher translates paragraph texts with a bounded worker pool.
type Dispatcher struct {
	Backend     Backend
	Concurrency int
	Retry       Retry
	Cache       *Cache
	// Scope keys cache entries; defaults to the backend name.
	Scope       string
	IgnoreCache bool
	Progress    ProgressCallback
}

// NewDispatcher returns a dispatcher with default concurrency and retry.
func NewDispatcher(b Backend) *Dispatcher {
	return &Dispatcher{
		Backend:     b,
		Concurrency: DefaultConcurrency,
		Retry:       DefaultRetry(),
	}
}

// TranslateAll translates texts and returns results index-aligned with the
// input. Texts rejected by ShouldTranslate are returned as-is. Each index is
// handed to exactly one worker. The first failure that survives retry cancels
// the remaining work and is returned as a TRANSLATION_FAILED error.
func (d *Dispatcher) TranslateAll(ctx context.Context, texts []string) ([]string, error) {
	results := make([]string, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	scope := d.Scope
	if scope == "" {
		scope = d.Backend.Name()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	completed := 0

	done := func() {
		if d.Progress == nil {
			return
		}
		mu.Lock()
		completed++
		n := completed
		mu.Unlock()
		d.Progress(n, len(texts))
	}

	for i, text := range texts {
		if !ShouldTranslate(text) {
			results[i] = text
			done()
			continue
		}
		if d.Cache != nil && !d.IgnoreCache {
			if cached, ok := d.Cache.Get(scope, text); ok {
				results[i] = cached
				done()
				continue
			}
		}

		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			out, err := d.Retry.Do(ctx, idx, func(ctx context.Context) (string, error) {
				return d.Backend.Translate(ctx, text)
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = types.NewAppErrorWithDetails(types.ErrTranslation, "translation failed", d.Backend.Name(), err)
					logger.Error("translation failed, cancelling batch", err, logger.Int("index", idx))
					cancel()
				}
				mu.Unlock()
				return
			}

			results[idx] = out
			if d.Cache != nil {
				d.Cache.Set(scope, text, out)
			}
			done()
		}(i, text)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewAppError(types.ErrTranslation, "translation cancelled", err)
	}
	return results, nil
}
