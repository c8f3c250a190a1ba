package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyModel(t *testing.T) {
	tests := []struct {
		id      string
		want    BackendFamily
		wantErr bool
	}{
		{ModelGPT4oMini, FamilyOpenAI, false},
		{ModelO1, FamilyOpenAI, false},
		{ModelClaude35Sonnet, FamilyOpenRouter, false},
		{ModelGrok2, FamilyOpenRouter, false},
		{ModelDeepSeekChat, FamilyOpenRouter, false},
		{ModelDeepSeekR1Zero, FamilyHyperbolic, false},
		{"mistralai/mistral-large", FamilyOpenRouter, false},
		{"gpt-4o", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ClassifyModel(tt.id)
			if tt.wantErr {
				var rerr *ResolutionError
				require.ErrorAs(t, err, &rerr)
				assert.Equal(t, tt.id, rerr.Model)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyModelExtraHyperbolicAllowlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExtraHyperbolicModels = []string{"meta-llama/Meta-Llama-3.1-405B"}
	r := NewRegistry(cfg, recordingFactory(nil))

	mc, err := r.Resolve("meta-llama/Meta-Llama-3.1-405B")
	require.NoError(t, err)
	assert.Equal(t, FamilyHyperbolic, mc.Family())

	// Without the extension the same identifier routes to the proxy.
	plain := NewRegistry(testConfig(t), recordingFactory(nil))
	mc, err = plain.Resolve("meta-llama/Meta-Llama-3.1-405B")
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenRouter, mc.Family())
}

// testConfig disables limiter waits and points the cache at a temp dir.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.Retry = RetryPolicy{
		InitialWait: time.Microsecond,
		Factor:      1.5,
		MaxWait:     time.Millisecond,
		MaxAttempts: 3,
	}
	return cfg
}

// recordingFactory returns a factory whose clients echo a fixed answer
// and record every wire-level model they are asked for.
func recordingFactory(models *[]string) ProviderFactory {
	return func(family BackendFamily, cfg BackendConfig) Client {
		return ClientFunc(func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
			if models != nil {
				*models = append(*models, model)
			}
			return okResponse("4"), nil
		})
	}
}

func TestResolveMemoizesPerModel(t *testing.T) {
	r := NewRegistry(testConfig(t), recordingFactory(nil))

	first, err := r.Resolve(ModelClaude35Sonnet)
	require.NoError(t, err)
	second, err := r.Resolve(ModelClaude35Sonnet)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := r.Resolve(ModelClaude35Haiku)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestResolveDistinguishesFamiliesWithEqualResolvedNames(t *testing.T) {
	r := NewRegistry(testConfig(t), recordingFactory(nil))

	// Stripping the direct-provider prefix leaves "acme/widget", the
	// same spelling as the proxy identifier. The stacks must not be
	// shared: they talk to different backends.
	direct, err := r.Resolve("openai/acme/widget")
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenAI, direct.Family())
	assert.Equal(t, "acme/widget", direct.Model())

	proxied, err := r.Resolve("acme/widget")
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenRouter, proxied.Family())
	assert.Equal(t, "acme/widget", proxied.Model())

	assert.NotSame(t, direct, proxied)
}

func TestResolveStripsOpenAIPrefix(t *testing.T) {
	var models []string
	r := NewRegistry(testConfig(t), recordingFactory(&models))

	mc, err := r.Resolve(ModelGPT4oMini)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", mc.Model())
	assert.Equal(t, FamilyOpenAI, mc.Family())

	_, err = mc.Complete(context.Background(), UserPrompt("hi"), DefaultParams())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", models[0])
}

func TestResolveUnknownModel(t *testing.T) {
	r := NewRegistry(testConfig(t), recordingFactory(nil))

	_, err := r.Resolve("gpt-4o")
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
}

func TestResolveFailureNotMemoized(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheBackend = CacheBackendSQLite
	// A regular file where the cache directory should go makes store
	// construction fail.
	blocker := filepath.Join(cfg.CacheDir, "openrouter")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	r := NewRegistry(cfg, recordingFactory(nil))
	_, err := r.Resolve(ModelClaude35Sonnet)
	require.Error(t, err)

	// Clearing the obstruction lets the next Resolve succeed, proving
	// the failure was not cached.
	require.NoError(t, os.Remove(blocker))
	mc, err := r.Resolve(ModelClaude35Sonnet)
	require.NoError(t, err)
	assert.NotNil(t, mc)
}

func TestGetResponseEndToEnd(t *testing.T) {
	r := NewRegistry(testConfig(t), recordingFactory(nil))

	answer, err := r.GetResponse(context.Background(), ModelGPT4oMini, UserPrompt("What is 2+2?"), nil)
	require.NoError(t, err)
	assert.Equal(t, "4", answer)
}

func TestGetResponseValidatesBeforeResolving(t *testing.T) {
	r := NewRegistry(testConfig(t), recordingFactory(nil))
	ctx := context.Background()

	bad := DefaultParams()
	bad.Temperature = 3.0
	_, err := r.GetResponse(ctx, ModelGPT4oMini, UserPrompt("q"), &bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "temperature", verr.Field)

	_, err = r.GetResponse(ctx, ModelGPT4oMini, Prompt{}, nil)
	require.ErrorAs(t, err, &verr)

	// An unresolvable model surfaces only after inputs pass validation.
	_, err = r.GetResponse(ctx, "gpt-4o", UserPrompt("q"), nil)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
}

func TestGetResponseSharesCacheAcrossCalls(t *testing.T) {
	var calls atomic.Int32
	factory := func(family BackendFamily, cfg BackendConfig) Client {
		return ClientFunc(func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
			calls.Add(1)
			return okResponse("4"), nil
		})
	}
	r := NewRegistry(testConfig(t), factory)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		answer, err := r.GetResponse(ctx, ModelGPT4oMini, UserPrompt("What is 2+2?"), nil)
		require.NoError(t, err)
		assert.Equal(t, "4", answer)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistryStackRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	factory := func(family BackendFamily, cfg BackendConfig) Client {
		return ClientFunc(func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
			if calls.Add(1) < 3 {
				return nil, &ProviderError{Kind: KindRateLimited, Model: model, Status: 429, Err: errors.New("slow down")}
			}
			return okResponse("4"), nil
		})
	}
	r := NewRegistry(testConfig(t), factory)

	answer, err := r.GetResponse(context.Background(), ModelClaude35Sonnet, UserPrompt("q"), nil)
	require.NoError(t, err)
	assert.Equal(t, "4", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFlushAllWritesEveryModelCache(t *testing.T) {
	cfg := testConfig(t)
	r := NewRegistry(cfg, recordingFactory(nil))
	ctx := context.Background()

	_, err := r.GetResponse(ctx, ModelGPT4oMini, UserPrompt("a"), nil)
	require.NoError(t, err)
	_, err = r.GetResponse(ctx, ModelClaude35Sonnet, UserPrompt("b"), nil)
	require.NoError(t, err)

	require.NoError(t, r.FlushAll())

	for _, path := range []string{
		filepath.Join(cfg.CacheDir, "openai", "gpt-4o-mini-2024-07-18.json"),
		filepath.Join(cfg.CacheDir, "openrouter", "anthropic-claude-3.5-sonnet.json"),
	} {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}
}

func TestCloseFlushesAndResets(t *testing.T) {
	cfg := testConfig(t)
	r := NewRegistry(cfg, recordingFactory(nil))
	ctx := context.Background()

	_, err := r.GetResponse(ctx, ModelGPT4oMini, UserPrompt("a"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	path := filepath.Join(cfg.CacheDir, "openai", "gpt-4o-mini-2024-07-18.json")
	_, err = os.Stat(path)
	require.NoError(t, err)

	// The registry stays usable after Close; stacks are rebuilt on
	// demand and reload the persisted cache.
	mc, err := r.Resolve(ModelGPT4oMini)
	require.NoError(t, err)
	assert.Equal(t, 1, mc.CacheLen())
}

func TestSanitizeModel(t *testing.T) {
	assert.Equal(t, "anthropic-claude-3.5-sonnet", sanitizeModel("anthropic/claude-3.5-sonnet"))
	assert.Equal(t, "DeepSeek-R1-Zero", sanitizeModel("DeepSeek-R1-Zero"))
	assert.Equal(t, "a-b_c.d", sanitizeModel("a:b_c.d"))
}
