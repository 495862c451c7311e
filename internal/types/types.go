// Package types defines the error taxonomy and shared enums for the layout translator.
package types

import "errors"

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	// ErrUnmappedGlyph 字体中没有该字符，回退到 Latin 字体（不致命）
	ErrUnmappedGlyph ErrorCode = "UNMAPPED_GLYPH"
	// ErrShapingFailed 复杂文字整形失败，回退到逐字符发射
	ErrShapingFailed ErrorCode = "SHAPING_FAILED"
	// ErrDanglingPlaceholder 译文中的公式占位符没有对应的公式
	ErrDanglingPlaceholder ErrorCode = "DANGLING_PLACEHOLDER"
	// ErrTranslation 翻译后端失败（唯一致命的错误类别）
	ErrTranslation ErrorCode = "TRANSLATION_FAILED"
	// ErrUnsupportedBackend 未知的翻译服务名称
	ErrUnsupportedBackend ErrorCode = "UNSUPPORTED_BACKEND"
	ErrConfig             ErrorCode = "CONFIG_ERROR"
	ErrPDFInvalid         ErrorCode = "PDF_INVALID"
	ErrLayoutModel        ErrorCode = "LAYOUT_MODEL_ERROR"
	ErrAPICall            ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit       ErrorCode = "API_RATE_LIMIT"
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsFatal reports whether an error aborts a document.
// Only translation failures and construction errors are fatal; everything else degrades.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrTranslation, ErrUnsupportedBackend, ErrPDFInvalid:
		return true
	case "":
		return err != nil
	default:
		return false
	}
}
