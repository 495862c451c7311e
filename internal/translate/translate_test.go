package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layout-translator/internal/types"
)

// flakyBackend fails the first failures calls per text, then upper-cases it.
type flakyBackend struct {
	failures int
	mu       sync.Mutex
	calls    map[string]int
	inFlight int32
	peak     int32
}

func newFlaky(failures int) *flakyBackend {
	return &flakyBackend{failures: failures, calls: make(map[string]int)}
}

func (b *flakyBackend) Name() string { return "flaky" }

func (b *flakyBackend) Translate(_ context.Context, text string) (string, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		p := atomic.LoadInt32(&b.peak)
		if n <= p || atomic.CompareAndSwapInt32(&b.peak, p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	b.mu.Lock()
	b.calls[text]++
	c := b.calls[text]
	b.mu.Unlock()

	if c <= b.failures {
		return "", errors.New("temporary failure")
	}
	return strings.ToUpper(text), nil
}

func (b *flakyBackend) callCount(text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[text]
}

func fastRetry(n int) Retry {
	return Retry{Interval: time.Millisecond, MaxAttempts: n}
}

func TestParseService(t *testing.T) {
	tests := []struct {
		service string
		kind    BackendKind
		model   string
		wantErr bool
	}{
		{"openai:gpt-4o", KindOpenAI, "gpt-4o", false},
		{"openai", KindOpenAI, "", false},
		{"OpenAI-Compatible:qwen2.5", KindOpenAICompatible, "qwen2.5", false},
		{"deepl", KindDeepL, "", false},
		{"echo", KindEcho, "", false},
		{"google", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			kind, model, err := ParseService(tt.service)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrUnsupportedBackend, types.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.model, model)
		})
	}
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(context.Background(), BackendConfig{Service: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", b.Name())

	_, err = NewBackend(context.Background(), BackendConfig{Service: "bing"})
	require.Error(t, err)
	assert.True(t, types.IsFatal(err))

	b, err = NewBackend(context.Background(), BackendConfig{Service: "openai-compatible:m1", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai-compatible:m1", b.Name())
}

func TestShouldTranslate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Hello world", true},
		{"", false},
		{"   \n", false},
		{"{v3}", false},
		{"{v3} and {v4}", true},
		{" {v3}", true},
		{"{v}", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldTranslate(tt.text), "text %q", tt.text)
	}
}

func TestRetryEventuallySucceedsWithSingleDispatch(t *testing.T) {
	backend := newFlaky(2)
	d := &Dispatcher{Backend: backend, Concurrency: 4, Retry: fastRetry(0)}

	out, err := d.TranslateAll(context.Background(), []string{"alpha", "{v0}", "beta"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ALPHA", "{v0}", "BETA"}, out)
	assert.Equal(t, 3, backend.callCount("alpha"), "two failures then one success")
	assert.Equal(t, 3, backend.callCount("beta"))
	assert.Equal(t, 0, backend.callCount("{v0}"))
}

func TestTranslateAllIndexAlignedAndBounded(t *testing.T) {
	backend := newFlaky(0)
	d := &Dispatcher{Backend: backend, Concurrency: 2, Retry: fastRetry(1)}

	texts := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	texts[7] = "  "

	out, err := d.TranslateAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, text := range texts {
		if i == 7 {
			assert.Equal(t, "  ", out[i])
			continue
		}
		assert.Equal(t, strings.ToUpper(text), out[i])
		assert.Equal(t, 1, backend.callCount(text))
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&backend.peak), int32(2))
}

func TestTranslateAllFatalError(t *testing.T) {
	backend := newFlaky(100)
	d := &Dispatcher{Backend: backend, Concurrency: 2, Retry: fastRetry(2)}

	out, err := d.TranslateAll(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, types.ErrTranslation, types.CodeOf(err))
	assert.True(t, types.IsFatal(err))
	assert.LessOrEqual(t, backend.callCount("a"), 2)
}

func TestTranslateAllEmpty(t *testing.T) {
	d := NewDispatcher(EchoBackend{})
	out, err := d.TranslateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTranslateAllProgress(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	d := NewDispatcher(EchoBackend{})
	d.Progress = func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		seen = append(seen, completed)
	}

	_, err := d.TranslateAll(context.Background(), []string{"a", "", "c"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, seen)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	r := Retry{Interval: 10 * time.Millisecond}

	_, err := r.Do(ctx, 0, func(context.Context) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "", errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, "down", err.Error())
	assert.Equal(t, 2, calls)
}

func TestDispatcherUsesCache(t *testing.T) {
	cache := NewCache("")
	backend := newFlaky(0)
	d := &Dispatcher{Backend: backend, Concurrency: 2, Retry: fastRetry(1), Cache: cache}

	_, err := d.TranslateAll(context.Background(), []string{"hello"})
	require.NoError(t, err)
	out, err := d.TranslateAll(context.Background(), []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, []string{"HELLO"}, out)
	assert.Equal(t, 1, backend.callCount("hello"))

	d.IgnoreCache = true
	_, err = d.TranslateAll(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.callCount("hello"))
}

func TestCacheScopes(t *testing.T) {
	c := NewCache("")
	c.Set(Scope("openai:gpt-4o", "en", "zh"), "hi", "你好")

	got, ok := c.Get(Scope("openai:gpt-4o", "en", "zh"), "hi")
	assert.True(t, ok)
	assert.Equal(t, "你好", got)

	_, ok = c.Get(Scope("openai:gpt-4o", "en", "th"), "hi")
	assert.False(t, ok)
}

func TestCacheSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "translations.json")

	c := NewCache(path)
	require.NoError(t, c.Load(), "missing file is not an error")
	c.Set("s", "one", "uno")
	c.Set("s", "two", "dos")
	require.NoError(t, c.Save())

	loaded := NewCache(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 2, loaded.Size())
	got, ok := loaded.Get("s", "two")
	assert.True(t, ok)
	assert.Equal(t, "dos", got)
}

func TestChatBackend(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":" 设 {v0} 为 \n"}}]}`)
	}))
	defer server.Close()

	b, err := NewBackend(context.Background(), BackendConfig{
		Service: "openai-compatible:test-model",
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1/",
		LangIn:  "en",
		LangOut: "zh",
	})
	require.NoError(t, err)

	out, err := b.Translate(context.Background(), "Let {v0} be")
	require.NoError(t, err)
	assert.Equal(t, "设 {v0} 为", out)

	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "{v0}")
	assert.Equal(t, "Let {v0} be", gotReq.Messages[1].Content)
}

func TestChatBackendDefaultModel(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	b, err := NewBackend(context.Background(), BackendConfig{Service: "openai-compatible", BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "openai-compatible:"+DefaultModel, b.Name())

	_, err = b.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, gotReq.Model)
}

func TestChatBackendHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		code   types.ErrorCode
	}{
		{http.StatusTooManyRequests, types.ErrAPIRateLimit},
		{http.StatusUnauthorized, types.ErrAPICall},
		{http.StatusInternalServerError, types.ErrAPICall},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer server.Close()

			b := newChatBackend(BackendConfig{BaseURL: server.URL, Timeout: time.Second}, "m")
			_, err := b.Translate(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.code, types.CodeOf(err))
			assert.False(t, types.IsFatal(err), "backend errors are retried, not fatal")
		})
	}
}

func TestDeepLBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key key:fx", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "ZH", r.PostForm.Get("target_lang"))
		assert.Equal(t, "EN", r.PostForm.Get("source_lang"))
		assert.Equal(t, "Hello", r.PostForm.Get("text"))
		fmt.Fprint(w, `{"translations":[{"detected_source_language":"EN","text":"你好"}]}`)
	}))
	defer server.Close()

	b, err := NewBackend(context.Background(), BackendConfig{
		Service: "deepl",
		APIKey:  "key:fx",
		BaseURL: server.URL,
		LangIn:  "en",
		LangOut: "zh-CN",
	})
	require.NoError(t, err)

	out, err := b.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
}

func TestNormalizeAPIURL(t *testing.T) {
	tests := map[string]string{
		"":                                    "https://api.openai.com/v1/chat/completions",
		"https://x.test/v1":                   "https://x.test/v1/chat/completions",
		"https://x.test/v1/":                  "https://x.test/v1/chat/completions",
		"https://x.test/v1/chat/completions":  "https://x.test/v1/chat/completions",
		"https://x.test/v1/chat/completions/": "https://x.test/v1/chat/completions",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeAPIURL(in), in)
	}
}

func TestDeepLLang(t *testing.T) {
	assert.Equal(t, "ZH", deeplLang("zh-CN"))
	assert.Equal(t, "EN-GB", deeplLang("en_gb"))
	assert.Equal(t, "TH", deeplLang("th"))
	assert.Equal(t, "", deeplLang(""))
}

func TestDeepLEndpointByKey(t *testing.T) {
	assert.Equal(t, deeplFreeURL, newDeepLBackend(BackendConfig{APIKey: "abc:fx"}).url)
	assert.Equal(t, deeplProURL, newDeepLBackend(BackendConfig{APIKey: "abc"}).url)
}
