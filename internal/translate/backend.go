// Package translate dispatches paragraph texts to a translation backend.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

// DefaultTimeout is the HTTP client timeout of the HTTP backends.
const DefaultTimeout = 180 * time.Second

// DefaultModel is used when the service string names no model.
const DefaultModel = "gpt-4o-mini"

// BackendKind 翻译后端类型
type BackendKind string

const (
	// KindOpenAI uses the eino chat model.
	KindOpenAI BackendKind = "openai"
	// KindOpenAICompatible posts to any chat-completions endpoint.
	KindOpenAICompatible BackendKind = "openai-compatible"
	// KindDeepL uses the DeepL REST API.
	KindDeepL BackendKind = "deepl"
	// KindEcho returns its input unchanged.
	KindEcho BackendKind = "echo"
)

// Kinds lists every supported backend.
var Kinds = []BackendKind{KindOpenAI, KindOpenAICompatible, KindDeepL, KindEcho}

// Backend translates one paragraph of text.
type Backend interface {
	Translate(ctx context.Context, text string) (string, error)
	Name() string
}

// BackendConfig holds what any backend may need.
type BackendConfig struct {
	Service string // "name" or "name:model"
	APIKey  string
	BaseURL string
	LangIn  string
	LangOut string
	Timeout time.Duration
}

// ParseService splits "name:model" and validates the name.
func ParseService(service string) (BackendKind, string, error) {
	name, model, _ := strings.Cut(strings.TrimSpace(service), ":")
	kind := BackendKind(strings.ToLower(name))
	for _, k := range Kinds {
		if k == kind {
			return kind, model, nil
		}
	}
	return "", "", types.NewAppErrorWithDetails(types.ErrUnsupportedBackend, "unsupported translation service", service, nil)
}

// NewBackend builds the backend named by cfg.Service.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	kind, model, err := ParseService(cfg.Service)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch kind {
	case KindOpenAI:
		return newEinoBackend(ctx, cfg, model)
	case KindOpenAICompatible:
		return newChatBackend(cfg, model), nil
	case KindDeepL:
		return newDeepLBackend(cfg), nil
	default:
		return EchoBackend{}, nil
	}
}

// EchoBackend returns its input. Useful offline and in tests.
type EchoBackend struct{}

func (EchoBackend) Translate(_ context.Context, text string) (string, error) { return text, nil }
func (EchoBackend) Name() string                                            { return string(KindEcho) }

func systemPrompt(langIn, langOut string) string {
	return fmt.Sprintf(`You are a professional translator for academic and scientific documents.
Translate the user's text from %s to %s.

RULES:
1. Output only the translated text, no explanations or notes.
2. Keep every formula placeholder such as {v0} or {v12} exactly as written.
3. Preserve symbols and numbers that are not words.`, languageName(langIn), languageName(langOut))
}

func languageName(code string) string {
	if code == "" {
		return "the source language"
	}
	return code
}

// einoBackend calls an OpenAI chat model through eino.
type einoBackend struct {
	model  string
	prompt string
	chat   *openai.ChatModel
}

func newEinoBackend(ctx context.Context, cfg BackendConfig, model string) (*einoBackend, error) {
	if model == "" {
		model = DefaultModel
	}
	modelCfg := &openai.ChatModelConfig{
		Model:   model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}
	if cfg.BaseURL != "" {
		modelCfg.BaseURL = cfg.BaseURL
	}
	chat, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}
	return &einoBackend{model: model, prompt: systemPrompt(cfg.LangIn, cfg.LangOut), chat: chat}, nil
}

func (b *einoBackend) Name() string { return string(KindOpenAI) + ":" + b.model }

func (b *einoBackend) Translate(ctx context.Context, text string) (string, error) {
	resp, err := b.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(b.prompt),
		schema.UserMessage(text),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrAPICall, "chat model call failed", err)
	}
	if resp == nil {
		return "", types.NewAppError(types.ErrAPICall, "chat model returned no message", nil)
	}
	return strings.TrimSpace(resp.Content), nil
}

// chatRequest is the body of a chat-completions call.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// chatBackend posts to an OpenAI-compatible chat-completions endpoint.
type chatBackend struct {
	apiKey string
	url    string
	model  string
	prompt string
	client *http.Client
}

func newChatBackend(cfg BackendConfig, model string) *chatBackend {
	if model == "" {
		model = DefaultModel
	}
	return &chatBackend{
		apiKey: cfg.APIKey,
		url:    normalizeAPIURL(cfg.BaseURL),
		model:  model,
		prompt: systemPrompt(cfg.LangIn, cfg.LangOut),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (b *chatBackend) Name() string { return string(KindOpenAICompatible) + ":" + b.model }

func (b *chatBackend) Translate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: b.prompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	data, status, err := do(b.client, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", handleAPIHTTPError(status, data)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to parse API response", err)
	}
	if resp.Error != nil {
		return "", types.NewAppErrorWithDetails(types.ErrAPICall, "API returned error", resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewAppError(types.ErrAPICall, "API returned no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// normalizeAPIURL makes sure the URL ends with /chat/completions.
func normalizeAPIURL(u string) string {
	if u == "" {
		return "https://api.openai.com/v1/chat/completions"
	}
	u = strings.TrimSuffix(u, "/")
	if strings.HasSuffix(u, "/chat/completions") {
		return u
	}
	return u + "/chat/completions"
}

// deeplBackend calls the DeepL v2 translate endpoint.
type deeplBackend struct {
	authKey string
	url     string
	source  string
	target  string
	client  *http.Client
}

const (
	deeplFreeURL = "https://api-free.deepl.com/v2/translate"
	deeplProURL  = "https://api.deepl.com/v2/translate"
)

func newDeepLBackend(cfg BackendConfig) *deeplBackend {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		// free-tier keys end with ":fx"
		endpoint = deeplProURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			endpoint = deeplFreeURL
		}
	}
	return &deeplBackend{
		authKey: cfg.APIKey,
		url:     endpoint,
		source:  deeplLang(cfg.LangIn),
		target:  deeplLang(cfg.LangOut),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// deeplLang maps "zh-CN" to "ZH" and keeps regional English/Portuguese targets.
func deeplLang(code string) string {
	code = strings.ToUpper(strings.ReplaceAll(code, "_", "-"))
	switch code {
	case "EN-US", "EN-GB", "PT-BR", "PT-PT":
		return code
	}
	base, _, _ := strings.Cut(code, "-")
	return base
}

func (b *deeplBackend) Name() string { return string(KindDeepL) }

func (b *deeplBackend) Translate(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", b.target)
	if b.source != "" {
		form.Set("source_lang", b.source)
	}
	// keep placeholders and surrounding spacing as sent
	form.Set("preserve_formatting", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+b.authKey)

	data, status, err := do(b.client, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", handleAPIHTTPError(status, data)
	}

	var resp struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to parse API response", err)
	}
	if len(resp.Translations) == 0 {
		return "", types.NewAppError(types.ErrAPICall, "API returned no translations", nil)
	}
	return resp.Translations[0].Text, nil
}

func do(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrAPICall, "API request failed", err)
	}
	defer resp.Body.Close()

	logger.Debug("API response received", logger.Int("statusCode", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrAPICall, "failed to read API response", err)
	}
	return data, resp.StatusCode, nil
}

// handleAPIHTTPError maps an HTTP failure status to an AppError.
func handleAPIHTTPError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	details := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		details = errResp.Error.Message
		if details == "" {
			details = errResp.Message
		}
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API authentication failed", "invalid API key or unauthorized access", nil)
	case http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, "API rate limit exceeded", details, nil)
	case http.StatusBadRequest:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "invalid API request", details, nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrAPICall, "API request failed", fmt.Sprintf("status %d: %s", status, details), nil)
	}
}
