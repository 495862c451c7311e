// Package errors tracks pages that failed to translate so they can be retried.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"layout-translator/internal/types"
)

// ErrorStage 错误阶段枚举
type ErrorStage string

const (
	StageExtract     ErrorStage = "extract"     // 提取页面元素
	StageLayout      ErrorStage = "layout"      // 版面检测
	StageTranslation ErrorStage = "translation" // 翻译
	StageOutput      ErrorStage = "output"      // 写出结果
	StageUnknown     ErrorStage = "unknown"
)

// StageOf maps an application error to the pipeline stage it comes from.
func StageOf(err error) ErrorStage {
	switch types.CodeOf(err) {
	case types.ErrPDFInvalid, types.ErrFileNotFound, types.ErrInvalidInput:
		return StageExtract
	case types.ErrLayoutModel:
		return StageLayout
	case types.ErrTranslation, types.ErrAPICall, types.ErrAPIRateLimit, types.ErrUnsupportedBackend:
		return StageTranslation
	default:
		return StageUnknown
	}
}

// PageID is the record key of a page of a document.
func PageID(documentID string, page int) string {
	return fmt.Sprintf("%s#%d", documentID, page)
}

// ErrorRecord 错误记录
type ErrorRecord struct {
	ID         string     `json:"id"`          // 文档 ID 与页码
	Document   string     `json:"document"`    // 文档 ID
	Page       int        `json:"page"`        // 页码
	Input      string     `json:"input"`       // 原始输入路径
	Stage      ErrorStage `json:"stage"`       // 出错阶段
	Code       string     `json:"code"`        // 错误码
	ErrorMsg   string     `json:"error_msg"`   // 错误信息
	Timestamp  time.Time  `json:"timestamp"`   // 错误发生时间
	RetryCount int        `json:"retry_count"` // 重试次数
	LastRetry  time.Time  `json:"last_retry"`  // 最后重试时间
}

// ErrorManager 错误管理器
type ErrorManager struct {
	baseDir string
	mu      sync.RWMutex
	errors  map[string]*ErrorRecord // key: ID
}

// NewErrorManager 创建新的错误管理器
func NewErrorManager(baseDir string) (*ErrorManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".layout-translator", "errors")
	}

	// 确保目录存在
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create errors directory: %w", err)
	}

	em := &ErrorManager{
		baseDir: baseDir,
		errors:  make(map[string]*ErrorRecord),
	}

	// 加载现有错误记录
	if err := em.load(); err != nil {
		return nil, err
	}

	return em, nil
}

// RecordPageError 记录页面错误。已有记录的页面视为一次重试。
func (em *ErrorManager) RecordPageError(documentID, input string, page int, pageErr error) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	id := PageID(documentID, page)
	record := &ErrorRecord{
		ID:        id,
		Document:  documentID,
		Page:      page,
		Input:     input,
		Stage:     StageOf(pageErr),
		Code:      string(types.CodeOf(pageErr)),
		ErrorMsg:  pageErr.Error(),
		Timestamp: time.Now(),
	}

	if existing, ok := em.errors[id]; ok {
		record.RetryCount = existing.RetryCount + 1
		record.LastRetry = record.Timestamp
	}

	em.errors[id] = record
	return em.save()
}

// RemovePage 移除错误记录（翻译成功后）
func (em *ErrorManager) RemovePage(documentID string, page int) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	id := PageID(documentID, page)
	if _, ok := em.errors[id]; !ok {
		return nil
	}
	delete(em.errors, id)
	return em.save()
}

// ListErrors 列出所有错误记录，按文档与页码排序
func (em *ErrorManager) ListErrors() []*ErrorRecord {
	em.mu.RLock()
	defer em.mu.RUnlock()

	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		// 创建副本以避免并发修改
		recordCopy := *record
		records = append(records, &recordCopy)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Document != records[j].Document {
			return records[i].Document < records[j].Document
		}
		return records[i].Page < records[j].Page
	})
	return records
}

// FailedPages 返回文档中仍失败的页码
func (em *ErrorManager) FailedPages(documentID string) []int {
	var pages []int
	for _, r := range em.ListErrors() {
		if r.Document == documentID {
			pages = append(pages, r.Page)
		}
	}
	return pages
}

// GetError 获取特定错误记录
func (em *ErrorManager) GetError(id string) (*ErrorRecord, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	record, ok := em.errors[id]
	if !ok {
		return nil, false
	}

	// 返回副本
	recordCopy := *record
	return &recordCopy, true
}

// ClearAll 清除所有错误记录
func (em *ErrorManager) ClearAll() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.errors = make(map[string]*ErrorRecord)
	return em.save()
}

// load 从文件加载错误记录
func (em *ErrorManager) load() error {
	filePath := filepath.Join(em.baseDir, "errors.json")

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在是正常的
			return nil
		}
		return fmt.Errorf("failed to read errors file: %w", err)
	}

	var records []*ErrorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal errors: %w", err)
	}

	for _, record := range records {
		em.errors[record.ID] = record
	}

	return nil
}

// save 保存错误记录到文件
func (em *ErrorManager) save() error {
	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	filePath := filepath.Join(em.baseDir, "errors.json")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}

	return nil
}

// ExportPageSelection 导出文档失败页码，格式可直接用于 --pages
func (em *ErrorManager) ExportPageSelection(documentID, outputPath string) error {
	pages := em.FailedPages(documentID)
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprint(p)
	}

	if err := os.WriteFile(outputPath, []byte(strings.Join(parts, ",")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write page selection: %w", err)
	}
	return nil
}

// GetStageDisplayName 获取阶段的显示名称
func GetStageDisplayName(stage ErrorStage) string {
	switch stage {
	case StageExtract:
		return "页面提取"
	case StageLayout:
		return "版面检测"
	case StageTranslation:
		return "翻译"
	case StageOutput:
		return "写出结果"
	default:
		return string(stage)
	}
}
