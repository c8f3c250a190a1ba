package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parleylabs/parley/pkg/inference/cachestore"
	sqlitestore "github.com/parleylabs/parley/pkg/inference/cachestore/sqlite"
)

// BackendFamily is a class of model-serving API sharing one wire
// protocol and credential scheme.
type BackendFamily int

const (
	// FamilyOpenAI serves "openai/"-prefixed identifiers directly; the
	// prefix is stripped before the wire call.
	FamilyOpenAI BackendFamily = iota
	// FamilyOpenRouter is the proxy/aggregator; identifiers pass
	// through with their full vendor prefix.
	FamilyOpenRouter
	// FamilyHyperbolic serves a small explicit allow-list of models.
	FamilyHyperbolic
)

func (f BackendFamily) String() string {
	switch f {
	case FamilyOpenAI:
		return "openai"
	case FamilyOpenRouter:
		return "openrouter"
	case FamilyHyperbolic:
		return "hyperbolic"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// BackendConfig holds credentials and limiter settings for one family.
type BackendConfig struct {
	APIKey  string
	BaseURL string

	// MaxRequests per Period for the rate limiter. Zero disables
	// limiting for the family.
	MaxRequests int
	Period      time.Duration
}

// CacheBackend selects the durable store behind each model's cache.
type CacheBackend string

const (
	CacheBackendFile   CacheBackend = "file"
	CacheBackendSQLite CacheBackend = "sqlite"
)

// Config is everything the registry needs to compose clients. It is
// read once at process start and treated as immutable afterwards.
type Config struct {
	OpenAI     BackendConfig
	OpenRouter BackendConfig
	Hyperbolic BackendConfig

	// CacheDir is the root for per-model cache files. Empty selects
	// the user-level default.
	CacheDir     string
	CacheBackend CacheBackend

	Retry RetryPolicy

	// ExtraHyperbolicModels extends the built-in allow-list.
	ExtraHyperbolicModels []string
}

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	hyperbolicBaseURL = "https://api.hyperbolic.xyz/v1"
)

// DefaultConfig returns base URLs and limiter rates for the three
// families: OpenAI 5000 requests per minute (Tier 3), OpenRouter 1400
// per 10 seconds, Hyperbolic 600 per minute.
func DefaultConfig() Config {
	return Config{
		OpenAI: BackendConfig{
			MaxRequests: 5000,
			Period:      60 * time.Second,
		},
		OpenRouter: BackendConfig{
			BaseURL:     openRouterBaseURL,
			MaxRequests: 1400,
			Period:      10 * time.Second,
		},
		Hyperbolic: BackendConfig{
			BaseURL:     hyperbolicBaseURL,
			MaxRequests: 600,
			Period:      60 * time.Second,
		},
		CacheBackend: CacheBackendFile,
		Retry:        DefaultRetryPolicy(),
	}
}

// ProviderFactory constructs the innermost provider client for a
// family. The registry wraps whatever it returns with retry, rate
// limiting and caching; tests substitute fakes here.
type ProviderFactory func(family BackendFamily, cfg BackendConfig) Client

// Registry resolves model identifiers to composed client stacks and
// reuses one stack per resolved model, so the limiter's timestamp queue
// and the cache's table are shared across all calls to that model. It
// is an explicit value owned by the caller; there is no package-level
// instance.
type Registry struct {
	cfg        Config
	factory    ProviderFactory
	hyperbolic map[string]bool

	mu      sync.Mutex
	clients map[clientKey]*ModelClient
}

// clientKey identifies one composed stack. The family is part of the
// key so a stripped direct-provider name can never collide with a
// proxy identifier that happens to spell the same.
type clientKey struct {
	family BackendFamily
	model  string
}

// NewRegistry creates a registry from config and a provider factory.
func NewRegistry(cfg Config, factory ProviderFactory) *Registry {
	allow := make(map[string]bool, len(defaultHyperbolicModels)+len(cfg.ExtraHyperbolicModels))
	for id := range defaultHyperbolicModels {
		allow[id] = true
	}
	for _, id := range cfg.ExtraHyperbolicModels {
		allow[id] = true
	}
	return &Registry{
		cfg:        cfg,
		factory:    factory,
		hyperbolic: allow,
		clients:    map[clientKey]*ModelClient{},
	}
}

// ModelClient is the composed stack (cache over limiter over retry over
// provider) bound to one resolved model.
type ModelClient struct {
	model  string
	family BackendFamily
	cache  *CachedClient
}

// Model returns the resolved wire-level model name.
func (m *ModelClient) Model() string { return m.model }

// Family returns the backend family serving this model.
func (m *ModelClient) Family() BackendFamily { return m.family }

// Complete runs one request through the full stack.
func (m *ModelClient) Complete(ctx context.Context, prompt Prompt, params Params) (*Response, error) {
	return m.cache.Complete(ctx, m.model, prompt, params)
}

// Flush persists this model's cache table.
func (m *ModelClient) Flush() error { return m.cache.Flush() }

// CacheLen returns the number of cached responses for this model.
func (m *ModelClient) CacheLen() int { return m.cache.Len() }

// Resolve classifies the identifier, then returns the composed client
// for it, constructing the stack on first use. Construction failures
// are not memoized; the next Resolve retries from scratch.
func (r *Registry) Resolve(model string) (*ModelClient, error) {
	family, err := classifyModel(model, r.hyperbolic)
	if err != nil {
		return nil, err
	}

	resolved := model
	if family == FamilyOpenAI {
		resolved = strings.TrimPrefix(model, openAIPrefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := clientKey{family: family, model: resolved}
	if mc, ok := r.clients[key]; ok {
		return mc, nil
	}

	mc, err := r.build(family, resolved)
	if err != nil {
		return nil, err
	}
	r.clients[key] = mc
	return mc, nil
}

func (r *Registry) build(family BackendFamily, model string) (*ModelClient, error) {
	backend := r.backendConfig(family)

	client := r.factory(family, backend)
	client = WithRetry(client, r.cfg.Retry)

	if backend.MaxRequests > 0 && backend.Period > 0 {
		// Hyperbolic uses the token-bucket variant; the other families
		// use the sliding window. Both honor the same trailing-window
		// bound.
		if family == FamilyHyperbolic {
			client = WithTokenBucket(client, backend.MaxRequests, backend.Period)
		} else {
			client = WithRateLimit(client, backend.MaxRequests, backend.Period)
		}
	}

	store, err := r.openStore(family, model)
	if err != nil {
		return nil, err
	}

	return &ModelClient{
		model:  model,
		family: family,
		cache:  NewCachedClient(client, store),
	}, nil
}

func (r *Registry) backendConfig(family BackendFamily) BackendConfig {
	switch family {
	case FamilyOpenAI:
		return r.cfg.OpenAI
	case FamilyHyperbolic:
		return r.cfg.Hyperbolic
	default:
		return r.cfg.OpenRouter
	}
}

func (r *Registry) openStore(family BackendFamily, model string) (cachestore.Store, error) {
	dir := r.cfg.CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		dir = filepath.Join(base, "parley")
	}
	dir = filepath.Join(dir, family.String())

	if r.cfg.CacheBackend == CacheBackendSQLite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		return sqlitestore.New(filepath.Join(dir, sanitizeModel(model)+".db"))
	}
	return cachestore.NewFileStore(filepath.Join(dir, sanitizeModel(model)+".json")), nil
}

// sanitizeModel makes a model identifier safe as a file name.
func sanitizeModel(model string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, model)
}

// GetResponse is the boundary the game-orchestration layer consumes:
// resolve the model, run the request through the composed stack, and
// return the first choice's text. A nil params uses defaults.
func (r *Registry) GetResponse(ctx context.Context, model string, prompt Prompt, params *Params) (string, error) {
	p := DefaultParams()
	if params != nil {
		p = *params
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := prompt.Validate(); err != nil {
		return "", err
	}

	mc, err := r.Resolve(model)
	if err != nil {
		return "", err
	}
	resp, err := mc.Complete(ctx, prompt, p)
	if err != nil {
		return "", err
	}
	return resp.FirstContent(), nil
}

// FlushAll persists every resolved model's cache table.
func (r *Registry) FlushAll() error {
	r.mu.Lock()
	clients := make([]*ModelClient, 0, len(r.clients))
	for _, mc := range r.clients {
		clients = append(clients, mc)
	}
	r.mu.Unlock()

	var errs []error
	for _, mc := range clients {
		if err := mc.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", mc.Model(), err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and releases every composed client.
func (r *Registry) Close() error {
	r.mu.Lock()
	clients := make([]*ModelClient, 0, len(r.clients))
	for _, mc := range r.clients {
		clients = append(clients, mc)
	}
	r.clients = map[clientKey]*ModelClient{}
	r.mu.Unlock()

	var errs []error
	for _, mc := range clients {
		if err := mc.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", mc.Model(), err))
		}
	}
	return errors.Join(errs...)
}
