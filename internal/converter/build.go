package converter

import (
	"context"
	"errors"

	"golang.org/x/image/font/gofont/goregular"

	"layout-translator/internal/classify"
	"layout-translator/internal/config"
	"layout-translator/internal/fonts"
	"layout-translator/internal/layout"
	"layout-translator/internal/logger"
	"layout-translator/internal/models"
	"layout-translator/internal/reflow"
	"layout-translator/internal/shaping"
	"layout-translator/internal/translate"
	"layout-translator/internal/wordbreak"
)

// BuildOptions are the inputs of FromConfig that do not live in the config file.
type BuildOptions struct {
	// PageImagesDir holds rendered page images for the layout detector.
	PageImagesDir string
	// ModelCacheDir receives extracted compressed models.
	ModelCacheDir string
}

// FromConfig wires a converter from configuration. The returned close
// function persists the translation cache and releases the layout model.
func FromConfig(ctx context.Context, cm *config.ConfigManager, opts BuildOptions) (*Converter, func() error, error) {
	cfg := cm.GetConfig()
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	backend, err := translate.NewBackend(ctx, translate.BackendConfig{
		Service: cfg.Service,
		APIKey:  cm.GetAPIKey(),
		BaseURL: cm.GetBaseURL(),
		LangIn:  cfg.LangIn,
		LangOut: cfg.LangOut,
	})
	if err != nil {
		return nil, nil, err
	}

	dispatcher := translate.NewDispatcher(backend)
	if cfg.Concurrency > 0 {
		dispatcher.Concurrency = cfg.Concurrency
	}
	dispatcher.Scope = translate.Scope(backend.Name(), cfg.LangIn, cfg.LangOut)
	dispatcher.IgnoreCache = cfg.IgnoreCache
	if cfg.CacheFile != "" {
		cache := translate.NewCache(cfg.CacheFile)
		if err := cache.Load(); err != nil {
			logger.Warn("translation cache unreadable, starting empty", logger.Err(err))
		}
		dispatcher.Cache = cache
		closers = append(closers, cache.Save)
	}

	engine, err := newEngine(cm, cfg.LangOut)
	if err != nil {
		return nil, nil, err
	}

	conv := New(dispatcher, engine)
	conv.Classifier = newClassifier(cm)
	if cfg.PageWorkers > 0 {
		conv.PageWorkers = cfg.PageWorkers
	}

	if cfg.LayoutModelPath != "" {
		modelPath, err := models.Resolve(cfg.LayoutModelPath, opts.ModelCacheDir)
		if err != nil {
			return nil, nil, err
		}
		det, err := layout.NewDetector(layout.DetectorConfig{
			ModelPath:         modelPath,
			SharedLibraryPath: cfg.OnnxLibraryPath,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, det.Close)
		conv.Regions = &layout.ImageSource{Detector: det, Dir: opts.PageImagesDir}
	}

	logger.Info("converter ready",
		logger.String("backend", backend.Name()),
		logger.String("langIn", cfg.LangIn),
		logger.String("langOut", cfg.LangOut),
		logger.Int("concurrency", dispatcher.Concurrency),
		logger.Int("pageWorkers", conv.PageWorkers),
		logger.Bool("layoutModel", cfg.LayoutModelPath != ""))
	return conv, closeAll, nil
}

func newClassifier(cm *config.ConfigManager) *classify.Classifier {
	c, err := classify.New(
		cm.GetString(config.KeyFormulaFontPattern, ""),
		cm.GetString(config.KeyFormulaCharPattern, ""),
	)
	if err != nil {
		logger.Warn("invalid formula pattern, using built-in rules", logger.Err(err))
		return classify.Default()
	}
	return c
}

// newEngine resolves fonts, shaping and wrapping settings for the target language.
func newEngine(cm *config.ConfigManager, lang string) (*reflow.Engine, error) {
	fallback, err := loadFallback(cm.GetString(config.KeyNotoFontPath, ""))
	if err != nil {
		return nil, err
	}

	var latin fonts.Font
	if p := cm.GetString(config.KeyLatinFontPath, ""); p != "" {
		face, err := fonts.LoadFace(fonts.LatinID, p)
		if err != nil {
			logger.Warn("latin font unavailable, using built-in metrics", logger.String("path", p), logger.Err(err))
		} else {
			latin = face
		}
	}

	var ov reflow.Overrides
	if v, ok := cm.LineHeightOverride(lang); ok {
		ov.LineHeight = v
	}
	if v, ok := cm.FontScaleOverride(lang); ok {
		ov.FontScale = v
	}
	lh, scale := reflow.ForLanguage(lang, ov)

	opts := reflow.Options{
		Latin:      latin,
		Fallback:   fallback,
		Shaper:     shaping.New(cm.ShapingEnabled()),
		LineHeight: lh,
		FontScale:  scale,
	}
	if cm.WordWrapEnabled(lang) {
		words, err := wordbreak.New(cm.TokenizerEngine(lang))
		if err != nil {
			logger.Warn("unknown tokenizer engine, using line breaking rules", logger.Err(err))
			words = wordbreak.LineBreaker{}
		}
		opts.Words = words
		opts.WordWrap = words != nil
		opts.MinLineUsage = cm.MinLineUsage(lang)
	}
	return reflow.New(opts)
}

// loadFallback loads the font for characters outside the Latin font. Without
// a configured path the Go Regular face is used, which lacks most scripts.
func loadFallback(path string) (*fonts.Face, error) {
	if path != "" {
		return fonts.LoadFace(fonts.FallbackID, path)
	}
	logger.Warn("NOTO_FONT_PATH not set, non-Latin text may render as .notdef")
	return fonts.NewFace(fonts.FallbackID, goregular.TTF)
}
