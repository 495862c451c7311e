// Package config provides configuration management for the layout translator.
//
// Settings come from three layers, highest precedence first: environment
// variables, the config file (JSON or YAML, chosen by extension) and built-in
// defaults. Free-form keys such as LANG_LINEHEIGHT_TH live in the Values map;
// malformed values are logged and replaced by their default.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "layout-translator.yaml"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// EnvDeepLAuthKey is the environment variable name for the DeepL auth key
	EnvDeepLAuthKey = "DEEPL_AUTH_KEY"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultService is the translation service used when none is configured
	DefaultService = "openai:gpt-4o-mini"
	// DefaultConcurrency is the default number of paragraphs translated in parallel
	DefaultConcurrency = 4
	// DefaultPageWorkers is the default number of pages processed in parallel
	DefaultPageWorkers = 2
	// DefaultMinLineUsage is the share of a line that must be filled before a word wrap may snap back
	DefaultMinLineUsage = 0.3
	// DefaultTokenizerEngine is the word segmentation engine used for word-aware wrapping
	DefaultTokenizerEngine = "uax14"
)

// Recognised free-form keys.
const (
	KeyTextShapingEnabled = "TEXT_SHAPING_ENABLED"
	KeyNotoFontPath       = "NOTO_FONT_PATH"
	KeyLatinFontPath      = "LATIN_FONT_PATH"
	KeyFormulaFontPattern = "FORMULA_FONT_PATTERN"
	KeyFormulaCharPattern = "FORMULA_CHAR_PATTERN"
)

// Config 应用配置
type Config struct {
	Service         string            `json:"service" yaml:"service"` // "name:model", e.g. "openai:gpt-4o"
	APIKey          string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL         string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	LangIn          string            `json:"lang_in" yaml:"lang_in"`
	LangOut         string            `json:"lang_out" yaml:"lang_out"`
	Concurrency     int               `json:"concurrency" yaml:"concurrency"`
	PageWorkers     int               `json:"page_workers" yaml:"page_workers"`
	CacheFile       string            `json:"cache_file,omitempty" yaml:"cache_file,omitempty"`
	IgnoreCache     bool              `json:"ignore_cache" yaml:"ignore_cache"`
	LayoutModelPath string            `json:"layout_model_path,omitempty" yaml:"layout_model_path,omitempty"`
	OnnxLibraryPath string            `json:"onnx_library_path,omitempty" yaml:"onnx_library_path,omitempty"`
	LogLevel        string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Values          map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	mu         sync.RWMutex
	config     *Config
	lookupEnv  func(string) (string, bool)
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "layout-translator", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
		lookupEnv:  os.LookupEnv,
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *Config {
	return &Config{
		Service:     DefaultService,
		BaseURL:     DefaultBaseURL,
		LangIn:      "en",
		LangOut:     "zh",
		Concurrency: DefaultConcurrency,
		PageWorkers: DefaultPageWorkers,
		Values:      map[string]string{},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads configuration from the config file.
// A missing file keeps the defaults; a malformed file is logged and ignored.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.setConfig(defaultConfig())
			return nil
		}
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	}

	cfg := &Config{}
	if isYAML(m.configPath) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
		m.setConfig(defaultConfig())
		return nil
	}

	applyDefaults(cfg)
	logger.Info("configuration loaded successfully",
		logger.String("path", m.configPath),
		logger.String("service", cfg.Service),
		logger.Int("values", len(cfg.Values)))
	m.setConfig(cfg)
	return nil
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Service == "" {
		cfg.Service = def.Service
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.LangIn == "" {
		cfg.LangIn = def.LangIn
	}
	if cfg.LangOut == "" {
		cfg.LangOut = def.LangOut
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = def.PageWorkers
	}
	if cfg.Values == nil {
		cfg.Values = map[string]string{}
	}
}

func (m *ConfigManager) setConfig(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	m.mu.RLock()
	var (
		data []byte
		err  error
	)
	if isYAML(m.configPath) {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	m.mu.RUnlock()
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns a copy of the current configuration.
func (m *ConfigManager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Values = make(map[string]string, len(m.config.Values))
	for k, v := range m.config.Values {
		cfg.Values[k] = v
	}
	return cfg
}

// UpdateConfig applies fn to the configuration under the write lock.
// Command line flags use it to override file values.
func (m *ConfigManager) UpdateConfig(fn func(cfg *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.config)
	applyDefaults(m.config)
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetAPIKey returns the API key for the configured service.
// The config file value wins; otherwise the backend's environment variable is used.
func (m *ConfigManager) GetAPIKey() string {
	m.mu.RLock()
	key, service := m.config.APIKey, m.config.Service
	m.mu.RUnlock()
	if key != "" {
		return key
	}
	if strings.HasPrefix(service, "deepl") {
		v, _ := m.lookupEnv(EnvDeepLAuthKey)
		return v
	}
	v, _ := m.lookupEnv(EnvOpenAIAPIKey)
	return v
}

// GetBaseURL returns the API base URL, preferring the environment over the default.
func (m *ConfigManager) GetBaseURL() string {
	m.mu.RLock()
	u := m.config.BaseURL
	m.mu.RUnlock()
	if u != "" && u != DefaultBaseURL {
		return u
	}
	if env, ok := m.lookupEnv(EnvOpenAIBaseURL); ok && env != "" {
		return env
	}
	return DefaultBaseURL
}

// Get returns the raw value of key: environment first, then the config file.
func (m *ConfigManager) Get(key string) (string, bool) {
	if v, ok := m.lookupEnv(key); ok {
		return v, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config.Values[key]
	return v, ok
}

// Set stores a free-form value in the config file layer.
func (m *ConfigManager) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.Values == nil {
		m.config.Values = map[string]string{}
	}
	m.config.Values[key] = value
}

// GetString returns the value of key or def when it is unset or blank.
func (m *ConfigManager) GetString(key, def string) string {
	v, ok := m.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// GetBool returns the boolean value of key; malformed values warn and yield def.
func (m *ConfigManager) GetBool(key string, def bool) bool {
	v, ok := m.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("invalid boolean config value, using default",
			logger.String("key", key), logger.String("value", v), logger.Bool("default", def))
		return def
	}
	return b
}

// GetFloat returns the float value of key; malformed values warn and yield def.
func (m *ConfigManager) GetFloat(key string, def float64) float64 {
	v, ok := m.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn("invalid numeric config value, using default",
			logger.String("key", key), logger.String("value", v), logger.Float64("default", def))
		return def
	}
	return f
}

// LookupFloat is GetFloat without a default: ok is false when the key is unset or malformed.
func (m *ConfigManager) LookupFloat(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn("invalid numeric config value, ignoring",
			logger.String("key", key), logger.String("value", v))
		return 0, false
	}
	return f, true
}

// LangCodeKey returns the code form used by per-language layout keys: "zh-CN" -> "ZH_CN".
func LangCodeKey(lang string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
}

// LangNameKey returns the English language name used by word-wrap keys: "th" -> "THAI".
func LangNameKey(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return LangCodeKey(lang)
	}
	base, _ := tag.Base()
	name := display.English.Languages().Name(base)
	if name == "" {
		return LangCodeKey(lang)
	}
	return strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// LineHeightOverride returns LANG_LINEHEIGHT_<LANG> if set to a valid number.
func (m *ConfigManager) LineHeightOverride(lang string) (float64, bool) {
	return m.LookupFloat("LANG_LINEHEIGHT_" + LangCodeKey(lang))
}

// FontScaleOverride returns LANG_FONTSIZE_SCALE_<LANG> if set to a valid number.
func (m *ConfigManager) FontScaleOverride(lang string) (float64, bool) {
	return m.LookupFloat("LANG_FONTSIZE_SCALE_" + LangCodeKey(lang))
}

// wordWrapLanguages are written without spaces between words and wrap on
// word boundaries unless configured otherwise.
var wordWrapLanguages = map[string]bool{"th": true, "lo": true, "km": true, "my": true}

// WordWrapEnabled reports <LANGUAGE>_WORD_WRAP_ENABLED. It defaults to true
// for Thai, Lao, Khmer and Burmese.
func (m *ConfigManager) WordWrapEnabled(lang string) bool {
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	return m.GetBool(LangNameKey(lang)+"_WORD_WRAP_ENABLED", wordWrapLanguages[base])
}

// MinLineUsage reports <LANGUAGE>_MIN_LINE_USAGE clamped to [0,1].
func (m *ConfigManager) MinLineUsage(lang string) float64 {
	key := LangNameKey(lang) + "_MIN_LINE_USAGE"
	v := m.GetFloat(key, DefaultMinLineUsage)
	if v < 0 || v > 1 {
		logger.Warn("min line usage out of range, using default",
			logger.String("key", key), logger.Float64("value", v))
		return DefaultMinLineUsage
	}
	return v
}

// TokenizerEngine reports <LANGUAGE>_TOKENIZER_ENGINE.
func (m *ConfigManager) TokenizerEngine(lang string) string {
	return strings.ToLower(m.GetString(LangNameKey(lang)+"_TOKENIZER_ENGINE", DefaultTokenizerEngine))
}

// ShapingEnabled reports TEXT_SHAPING_ENABLED, true by default.
func (m *ConfigManager) ShapingEnabled() bool {
	return m.GetBool(KeyTextShapingEnabled, true)
}
