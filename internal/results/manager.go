// Package results stores translated page content streams together with a
// metadata file describing the run, one directory per source document.
package results

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// TranslationStatus represents the status of a document translation
type TranslationStatus string

const (
	// StatusTranslating indicates pages are being produced
	StatusTranslating TranslationStatus = "translating"
	// StatusComplete indicates every requested page was written
	StatusComplete TranslationStatus = "complete"
	// StatusPartial indicates some pages failed
	StatusPartial TranslationStatus = "partial"
	// StatusError indicates the run aborted
	StatusError TranslationStatus = "error"
)

const metadataFile = "metadata.json"

// PageInfo describes one translated page.
type PageInfo struct {
	Number     int    `json:"number"`
	StreamFile string `json:"stream_file,omitempty"`
	Paragraphs int    `json:"paragraphs"`
	Formulas   int    `json:"formulas"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// DocumentInfo represents metadata about a translated document
type DocumentInfo struct {
	ID             string            `json:"id"`
	SourcePath     string            `json:"source_path"`
	SourceFileName string            `json:"source_file_name"`
	SourceMD5      string            `json:"source_md5"`
	Service        string            `json:"service"`
	LangIn         string            `json:"lang_in"`
	LangOut        string            `json:"lang_out"`
	Status         TranslationStatus `json:"status"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at,omitempty"`
	Pages          []PageInfo        `json:"pages"`
}

// FailedPages returns the numbers of pages recorded with an error.
func (d *DocumentInfo) FailedPages() []int {
	var out []int
	for _, p := range d.Pages {
		if p.Error != "" {
			out = append(out, p.Number)
		}
	}
	return out
}

// ResultManager manages translation results stored under a base directory
type ResultManager struct {
	baseDir string
	mu      sync.Mutex
}

// NewResultManager creates a result manager. An empty baseDir selects
// ~/layout-translator-results.
func NewResultManager(baseDir string) (*ResultManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, "layout-translator-results")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	return &ResultManager{baseDir: baseDir}, nil
}

// GetBaseDir returns the base directory
func (m *ResultManager) GetBaseDir() string {
	return m.baseDir
}

// DocumentID derives the directory key from a source MD5 hash.
func DocumentID(md5Hash string) string {
	if len(md5Hash) > 16 {
		md5Hash = md5Hash[:16]
	}
	return "md5_" + md5Hash
}

// GetDocumentDir returns the directory of a document
func (m *ResultManager) GetDocumentDir(id string) string {
	return filepath.Join(m.baseDir, id)
}

// Begin hashes the source file and records a new run for it. Pages from an
// earlier run of the same document are kept so that retried pages replace
// only their own entries.
func (m *ResultManager) Begin(sourcePath, service, langIn, langOut string) (*DocumentInfo, error) {
	md5Hash, err := CalculateFileMD5(sourcePath)
	if err != nil {
		return nil, err
	}
	id := DocumentID(md5Hash)

	info, err := m.LoadDocumentInfo(id)
	if err != nil {
		info = &DocumentInfo{ID: id}
	}
	info.SourcePath = sourcePath
	info.SourceFileName = filepath.Base(sourcePath)
	info.SourceMD5 = md5Hash
	info.Service = service
	info.LangIn = langIn
	info.LangOut = langOut
	info.Status = StatusTranslating
	info.ErrorMessage = ""
	info.StartedAt = time.Now()
	info.FinishedAt = time.Time{}

	if err := m.SaveDocumentInfo(info); err != nil {
		return nil, err
	}
	return info, nil
}

// SavePage writes a page content stream and replaces the page entry.
func (m *ResultManager) SavePage(info *DocumentInfo, page PageInfo, stream string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if page.Error == "" {
		page.StreamFile = fmt.Sprintf("page-%03d.stream", page.Number)
		dir := m.GetDocumentDir(info.ID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create document directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, page.StreamFile), []byte(stream), 0644); err != nil {
			return fmt.Errorf("failed to write page stream: %w", err)
		}
	}

	replaced := false
	for i := range info.Pages {
		if info.Pages[i].Number == page.Number {
			info.Pages[i] = page
			replaced = true
			break
		}
	}
	if !replaced {
		info.Pages = append(info.Pages, page)
	}
	sort.Slice(info.Pages, func(i, j int) bool { return info.Pages[i].Number < info.Pages[j].Number })
	return nil
}

// Finish sets the final status and persists the metadata. A non-nil runErr
// marks the run as failed.
func (m *ResultManager) Finish(info *DocumentInfo, runErr error) error {
	info.FinishedAt = time.Now()
	switch {
	case runErr != nil:
		info.Status = StatusError
		info.ErrorMessage = runErr.Error()
	case len(info.FailedPages()) > 0:
		info.Status = StatusPartial
	default:
		info.Status = StatusComplete
	}
	return m.SaveDocumentInfo(info)
}

// SaveDocumentInfo saves document metadata to disk
func (m *ResultManager) SaveDocumentInfo(info *DocumentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.GetDocumentDir(info.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document info: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// LoadDocumentInfo loads document metadata from disk
func (m *ResultManager) LoadDocumentInfo(id string) (*DocumentInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.GetDocumentDir(id), metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info DocumentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// ListDocuments lists all stored documents, most recent first
func (m *ResultManager) ListDocuments() ([]*DocumentInfo, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var docs []*DocumentInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := m.LoadDocumentInfo(entry.Name())
		if err != nil {
			// Skip directories without valid metadata
			continue
		}
		docs = append(docs, info)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].StartedAt.After(docs[j].StartedAt)
	})
	return docs, nil
}

// DeleteDocument removes a document and its pages
func (m *ResultManager) DeleteDocument(id string) error {
	return os.RemoveAll(m.GetDocumentDir(id))
}

// CalculateFileMD5 calculates the MD5 hash of a file
func CalculateFileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate MD5: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
