package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"layout-translator/internal/config"
	"layout-translator/internal/converter"
	"layout-translator/internal/document"
	apperrors "layout-translator/internal/errors"
	"layout-translator/internal/logger"
	"layout-translator/internal/results"
	"layout-translator/internal/types"
)

// Command line flags
var (
	pdfFlag         = flag.StringP("pdf", "i", "", "PDF file to translate")
	outputDir       = flag.StringP("output", "o", "", "Results directory (default: ~/layout-translator-results)")
	configFlag      = flag.StringP("config", "c", "", "Configuration file (JSON or YAML)")
	serviceFlag     = flag.StringP("service", "s", "", "Translation service, \"name\" or \"name:model\" (openai, openai-compatible, deepl, echo)")
	langInFlag      = flag.String("lang-in", "", "Source language")
	langOutFlag     = flag.String("lang-out", "", "Target language")
	pagesFlag       = flag.StringP("pages", "p", "", "Pages to translate, e.g. \"1,3-5\" (default: all)")
	cacheFlag       = flag.String("cache", "", "Translation cache file")
	ignoreCacheFlag = flag.Bool("ignore-cache", false, "Do not read cached translations")
	layoutModelFlag = flag.String("layout-model", "", "DocLayout-YOLO ONNX model (.onnx or .onnx.gz)")
	pageImagesFlag  = flag.String("page-images", "", "Directory of rendered page images (page-001.png, ...) for layout detection")
	workersFlag     = flag.Int("workers", 0, "Pages processed in parallel")
	concurrencyFlag = flag.Int("concurrency", 0, "Paragraphs translated in parallel")
	logLevelFlag    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFileFlag     = flag.String("log-file", "", "Log file (default: console only)")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("Layout Translator - 保留版面的 PDF 页面翻译")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  layout-translator [选项] <file.pdf>")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  layout-translator paper.pdf --lang-out zh")
	fmt.Println("  layout-translator -i paper.pdf -s openai:gpt-4o --lang-out th -p 1-3")
	fmt.Println("  layout-translator paper.pdf -s echo --layout-model doclayout_yolo.onnx.gz --page-images ./pages")
}

// pdfPages reads pages with the ledongthuc reader and corrects their
// dimensions with the pdfcpu geometry.
type pdfPages struct {
	*document.Extractor
	sizes []document.PageSize
}

func (p pdfPages) Page(num int) (document.Page, error) {
	page, err := p.Extractor.Page(num)
	if err != nil {
		return page, err
	}
	document.ApplyGeometry(&page, p.sizes)
	return page, nil
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	input := *pdfFlag
	if input == "" && flag.NArg() > 0 {
		input = flag.Arg(0)
	}
	if input == "" {
		fmt.Fprintln(os.Stderr, "错误: 未指定 PDF 文件")
		fmt.Println()
		printHelp()
		os.Exit(1)
	}

	if err := run(input); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(input string) error {
	cm, err := config.NewConfigManager(*configFlag)
	if err != nil {
		return err
	}
	if err := cm.Load(); err != nil {
		return err
	}
	applyFlags(cm)
	cfg := cm.GetConfig()

	logCfg := logger.DefaultConfig()
	logCfg.LogFilePath = *logFileFlag
	logCfg.EnableConsole = true
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	extractor, err := document.Open(input)
	if err != nil {
		return err
	}
	defer extractor.Close()

	sizes, err := document.PageGeometry(input)
	if err != nil {
		logger.Warn("page geometry unavailable, using media boxes", logger.Err(err))
	}
	src := pdfPages{Extractor: extractor, sizes: sizes}

	pages, err := converter.ParsePages(*pagesFlag, src.NumPages())
	if err != nil {
		return err
	}

	conv, closeConv, err := converter.FromConfig(ctx, cm, converter.BuildOptions{PageImagesDir: *pageImagesFlag})
	if err != nil {
		return err
	}
	defer func() {
		if err := closeConv(); err != nil {
			logger.Warn("cleanup failed", logger.Err(err))
		}
	}()
	conv.Progress = func(completed, total int) {
		fmt.Printf("  进度: %d/%d 页\n", completed, total)
	}

	store, err := results.NewResultManager(*outputDir)
	if err != nil {
		return err
	}
	failures, err := apperrors.NewErrorManager(filepath.Join(store.GetBaseDir(), "errors"))
	if err != nil {
		return err
	}
	doc, err := store.Begin(input, cfg.Service, cfg.LangIn, cfg.LangOut)
	if err != nil {
		return err
	}

	fmt.Println("=== PDF 翻译 ===")
	fmt.Printf("输入文件: %s\n", input)
	fmt.Printf("翻译服务: %s (%s -> %s)\n", cfg.Service, cfg.LangIn, cfg.LangOut)
	fmt.Printf("页数: %d\n", len(pages))

	start := time.Now()
	pageResults, runErr := conv.Document(ctx, src, pages)
	if runErr == nil {
		runErr = savePages(store, failures, doc, input, pageResults)
	}
	if err := store.Finish(doc, runErr); err != nil {
		logger.Error("failed to save document metadata", err)
	}
	if runErr != nil {
		return runErr
	}

	failed := doc.FailedPages()
	fmt.Println()
	fmt.Println("=== 翻译完成 ===")
	fmt.Printf("输出目录: %s\n", store.GetDocumentDir(doc.ID))
	fmt.Printf("成功页数: %d\n", len(pageResults)-countFailed(pageResults))
	fmt.Printf("失败页数: %d\n", countFailed(pageResults))
	if len(failed) > 0 {
		retry := filepath.Join(store.GetDocumentDir(doc.ID), "retry-pages.txt")
		if err := failures.ExportPageSelection(doc.ID, retry); err != nil {
			logger.Warn("failed to export retry pages", logger.Err(err))
		} else {
			fmt.Printf("重试页码: %s\n", retry)
		}
	}
	fmt.Printf("耗时: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// savePages stores every page result and keeps the failure log in sync.
func savePages(store *results.ResultManager, failures *apperrors.ErrorManager, doc *results.DocumentInfo, input string, pageResults []converter.PageResult) error {
	for _, r := range pageResults {
		info := results.PageInfo{Number: r.Number, Paragraphs: r.Paragraphs, Formulas: r.Formulas}
		if r.Err != nil {
			info.Error = r.Err.Error()
			info.ErrorCode = string(types.CodeOf(r.Err))
			fmt.Fprintf(os.Stderr, "  第 %d 页失败 (%s): %v\n", r.Number, apperrors.GetStageDisplayName(apperrors.StageOf(r.Err)), r.Err)
			if err := failures.RecordPageError(doc.ID, input, r.Number, r.Err); err != nil {
				logger.Warn("failed to record page error", logger.Int("page", r.Number), logger.Err(err))
			}
		}
		if err := store.SavePage(doc, info, r.Stream); err != nil {
			return fmt.Errorf("failed to save page %d: %w", r.Number, err)
		}
		if r.Err == nil {
			if err := failures.RemovePage(doc.ID, r.Number); err != nil {
				logger.Warn("failed to clear page error", logger.Int("page", r.Number), logger.Err(err))
			}
		}
	}
	return nil
}

func countFailed(pageResults []converter.PageResult) int {
	n := 0
	for _, r := range pageResults {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// applyFlags overrides configuration values with the flags given on the command line.
func applyFlags(cm *config.ConfigManager) {
	cm.UpdateConfig(func(cfg *config.Config) {
		if *serviceFlag != "" {
			cfg.Service = *serviceFlag
		}
		if *langInFlag != "" {
			cfg.LangIn = *langInFlag
		}
		if *langOutFlag != "" {
			cfg.LangOut = *langOutFlag
		}
		if *cacheFlag != "" {
			cfg.CacheFile = *cacheFlag
		}
		if flag.CommandLine.Changed("ignore-cache") {
			cfg.IgnoreCache = *ignoreCacheFlag
		}
		if *layoutModelFlag != "" {
			cfg.LayoutModelPath = *layoutModelFlag
		}
		if *workersFlag > 0 {
			cfg.PageWorkers = *workersFlag
		}
		if *concurrencyFlag > 0 {
			cfg.Concurrency = *concurrencyFlag
		}
		if *logLevelFlag != "" {
			cfg.LogLevel = *logLevelFlag
		}
	})
}
