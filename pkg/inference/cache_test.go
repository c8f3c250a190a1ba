package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleylabs/parley/pkg/inference/cachestore"
)

func countingCachedClient(store cachestore.Store) (*CachedClient, *int) {
	calls := 0
	inner := ClientFunc(func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
		calls++
		return okResponse(prompt.String()), nil
	})
	return NewCachedClient(inner, store), &calls
}

func fileStore(t *testing.T) *cachestore.FileStore {
	t.Helper()
	return cachestore.NewFileStore(filepath.Join(t.TempDir(), "cache.json"))
}

func TestCacheIdempotentRequests(t *testing.T) {
	cache, calls := countingCachedClient(fileStore(t))
	ctx := context.Background()
	prompt := UserPrompt("What is 2+2?")

	first, err := cache.Complete(ctx, "m", prompt, DefaultParams())
	require.NoError(t, err)
	second, err := cache.Complete(ctx, "m", prompt, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheKeyDiscriminates(t *testing.T) {
	cache, calls := countingCachedClient(fileStore(t))
	ctx := context.Background()

	_, err := cache.Complete(ctx, "m", UserPrompt("q"), DefaultParams())
	require.NoError(t, err)

	// Different prompt text.
	_, err = cache.Complete(ctx, "m", UserPrompt("other q"), DefaultParams())
	require.NoError(t, err)

	// Same text, different role.
	_, err = cache.Complete(ctx, "m", SystemPrompt("q"), DefaultParams())
	require.NoError(t, err)

	// Same prompt, different temperature.
	hot := DefaultParams()
	hot.Temperature = 0.2
	_, err = cache.Complete(ctx, "m", UserPrompt("q"), hot)
	require.NoError(t, err)

	// Same prompt, different seed.
	seeded := DefaultParams()
	seeded.Seed = new(int64)
	_, err = cache.Complete(ctx, "m", UserPrompt("q"), seeded)
	require.NoError(t, err)

	assert.Equal(t, 5, *calls)
	assert.Equal(t, 5, cache.Len())
}

func TestCacheErrorsAreNotCached(t *testing.T) {
	calls := 0
	inner := ClientFunc(func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, &ProviderError{Kind: KindServer, Model: model, Err: errors.New("boom")}
		}
		return okResponse("recovered"), nil
	})
	cache := NewCachedClient(inner, fileStore(t))
	ctx := context.Background()

	_, err := cache.Complete(ctx, "m", UserPrompt("q"), DefaultParams())
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	resp, err := cache.Complete(ctx, "m", UserPrompt("q"), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.FirstContent())
	assert.Equal(t, 2, calls)
}

func TestCachePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()
	prompt := SystemPrompt("be terse").With(RoleUser, "What is 2+2?")

	cache, calls := countingCachedClient(cachestore.NewFileStore(path))
	first, err := cache.Complete(ctx, "m", prompt, DefaultParams())
	require.NoError(t, err)
	require.NoError(t, cache.Flush())

	// A fresh instance over the same store serves the hit without
	// touching the wrapped client.
	reloaded, reloadedCalls := countingCachedClient(cachestore.NewFileStore(path))
	assert.Equal(t, 1, reloaded.Len())

	resp, err := reloaded.Complete(ctx, "m", prompt, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, first.FirstContent(), resp.FirstContent())
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 0, *reloadedCalls)
}

func TestCacheFlushIsExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache, _ := countingCachedClient(cachestore.NewFileStore(path))

	_, err := cache.Complete(context.Background(), "m", UserPrompt("q"), DefaultParams())
	require.NoError(t, err)

	// Nothing on disk until Flush.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, cache.Flush())
	_, statErr = os.Stat(path)
	require.NoError(t, statErr)
}

func TestCacheCorruptStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache, calls := countingCachedClient(cachestore.NewFileStore(path))
	assert.Equal(t, 0, cache.Len())

	resp, err := cache.Complete(context.Background(), "m", UserPrompt("q"), DefaultParams())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.FirstContent())
	assert.Equal(t, 1, *calls)

	// Flush replaces the corrupt file with a valid table.
	require.NoError(t, cache.Flush())
	reloaded, _ := countingCachedClient(cachestore.NewFileStore(path))
	assert.Equal(t, 1, reloaded.Len())
}

func TestCacheUndecodableEntriesDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"some-key": {"model": 42}}`), 0o644))

	cache, _ := countingCachedClient(cachestore.NewFileStore(path))
	assert.Equal(t, 0, cache.Len())
}

func TestCacheKeyEncodingIsDeterministic(t *testing.T) {
	params := DefaultParams()
	params.Metadata = map[string]string{"b": "2", "a": "1", "c": "3"}
	key := CacheKey{Prompt: UserPrompt("q"), Params: params}

	first, err := key.Encode()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := key.Encode()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
