package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, name string) *ConfigManager {
	t.Helper()
	cm, err := NewConfigManager(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	cm.lookupEnv = func(string) (string, bool) { return "", false }
	return cm
}

func TestNewConfigManager(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		cm, err := NewConfigManager("/tmp/test-config.yaml")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/test-config.yaml", cm.GetConfigPath())
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		cm, err := NewConfigManager("")
		require.NoError(t, err)
		assert.NotEmpty(t, cm.GetConfigPath())
	})
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cm := newManager(t, "missing.json")
	require.NoError(t, cm.Load())

	cfg := cm.GetConfig()
	assert.Equal(t, DefaultService, cfg.Service)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultPageWorkers, cfg.PageWorkers)
}

func TestLoadInvalidFileUsesDefaults(t *testing.T) {
	cm := newManager(t, "broken.json")
	require.NoError(t, os.WriteFile(cm.GetConfigPath(), []byte("{not json"), 0600))

	require.NoError(t, cm.Load())
	assert.Equal(t, DefaultService, cm.GetConfig().Service)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		t.Run(name, func(t *testing.T) {
			cm := newManager(t, filepath.Join("nested", name))
			cm.Set("LANG_LINEHEIGHT_TH", "1.6")
			require.NoError(t, cm.Save())

			reloaded := newManager(t, "unused")
			reloaded.configPath = cm.GetConfigPath()
			require.NoError(t, reloaded.Load())

			v, ok := reloaded.Get("LANG_LINEHEIGHT_TH")
			assert.True(t, ok)
			assert.Equal(t, "1.6", v)
			assert.Equal(t, DefaultService, reloaded.GetConfig().Service)
		})
	}
}

func TestYAMLFile(t *testing.T) {
	cm := newManager(t, "config.yml")
	content := `service: deepl
lang_out: th
concurrency: 8
values:
  THAI_MIN_LINE_USAGE: "0.5"
  TEXT_SHAPING_ENABLED: "false"
`
	require.NoError(t, os.WriteFile(cm.GetConfigPath(), []byte(content), 0600))
	require.NoError(t, cm.Load())

	cfg := cm.GetConfig()
	assert.Equal(t, "deepl", cfg.Service)
	assert.Equal(t, "th", cfg.LangOut)
	assert.Equal(t, "en", cfg.LangIn)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 0.5, cm.MinLineUsage("th"))
	assert.False(t, cm.ShapingEnabled())
}

func TestEnvironmentTakesPrecedence(t *testing.T) {
	cm := newManager(t, "cfg.json")
	cm.Set(KeyNotoFontPath, "/from/file.ttf")
	cm.lookupEnv = func(key string) (string, bool) {
		if key == KeyNotoFontPath {
			return "/from/env.ttf", true
		}
		return "", false
	}

	assert.Equal(t, "/from/env.ttf", cm.GetString(KeyNotoFontPath, ""))
}

func TestTypedAccessorsWarnAndDefault(t *testing.T) {
	cm := newManager(t, "cfg.json")
	cm.Set("LANG_LINEHEIGHT_TH", "tall")
	cm.Set("LANG_FONTSIZE_SCALE_ZH_CN", "0.9")
	cm.Set("THAI_WORD_WRAP_ENABLED", "maybe")
	cm.Set("THAI_MIN_LINE_USAGE", "7")
	cm.Set("THAI_TOKENIZER_ENGINE", "UAX29")

	_, ok := cm.LineHeightOverride("th")
	assert.False(t, ok, "malformed line height is ignored")

	scale, ok := cm.FontScaleOverride("zh-CN")
	assert.True(t, ok)
	assert.Equal(t, 0.9, scale)

	assert.True(t, cm.WordWrapEnabled("th"), "malformed bool falls back to default")
	assert.False(t, cm.WordWrapEnabled("en"))
	cm.Set("ENGLISH_WORD_WRAP_ENABLED", "true")
	assert.True(t, cm.WordWrapEnabled("en-US"))
	assert.Equal(t, DefaultMinLineUsage, cm.MinLineUsage("th"))
	assert.Equal(t, "uax29", cm.TokenizerEngine("th"))
	assert.Equal(t, DefaultTokenizerEngine, cm.TokenizerEngine("ja"))
	assert.True(t, cm.ShapingEnabled())
}

func TestLangKeys(t *testing.T) {
	tests := []struct {
		lang    string
		codeKey string
		nameKey string
	}{
		{"th", "TH", "THAI"},
		{"zh-CN", "ZH_CN", "CHINESE"},
		{"ja", "JA", "JAPANESE"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.codeKey, LangCodeKey(tt.lang))
			assert.Equal(t, tt.nameKey, LangNameKey(tt.lang))
		})
	}
}

func TestGetAPIKey(t *testing.T) {
	cm := newManager(t, "cfg.json")
	cm.lookupEnv = func(key string) (string, bool) {
		switch key {
		case EnvOpenAIAPIKey:
			return "sk-env", true
		case EnvDeepLAuthKey:
			return "deepl-env", true
		}
		return "", false
	}

	assert.Equal(t, "sk-env", cm.GetAPIKey())

	cm.config.Service = "deepl"
	assert.Equal(t, "deepl-env", cm.GetAPIKey())

	cm.config.APIKey = "from-file"
	assert.Equal(t, "from-file", cm.GetAPIKey())
}

func TestUpdateConfig(t *testing.T) {
	cm := newManager(t, "cfg.yaml")
	cm.UpdateConfig(func(cfg *Config) {
		cfg.Service = "deepl"
		cfg.LangOut = "th"
		cfg.Concurrency = 0
	})

	cfg := cm.GetConfig()
	assert.Equal(t, "deepl", cfg.Service)
	assert.Equal(t, "th", cfg.LangOut)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency, "zero values fall back to defaults")
}
