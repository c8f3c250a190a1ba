package inference

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model identifiers exercised by the games harness. Any other
// vendor-prefixed identifier is accepted and routed by family; bare
// names fail resolution.
const (
	ModelClaude35Sonnet    = "anthropic/claude-3.5-sonnet"
	ModelClaude35Haiku     = "anthropic/claude-3.5-haiku"
	ModelGrok2             = "x-ai/grok-2-1212"
	ModelLlama33_70B       = "meta-llama/llama-3.3-70b-instruct"
	ModelQwen25_72B        = "qwen/qwen-2.5-72b-instruct"
	ModelGPT4o             = "openai/gpt-4o-2024-08-06"
	ModelGPT4oMini         = "openai/gpt-4o-mini-2024-07-18"
	ModelO1                = "openai/o1-2024-12-17"
	ModelO1Mini            = "openai/o1-mini-2024-09-12"
	ModelO3Mini            = "openai/o3-mini-2025-01-31"
	ModelDeepSeekChat      = "deepseek/deepseek-chat"
	ModelDeepSeekR1        = "deepseek/deepseek-r1"
	ModelDeepSeekR1Zero    = "deepseek-ai/DeepSeek-R1-Zero"
	ModelDolphinMixtral    = "cognitivecomputations/dolphin-mixtral-8x22b"
)

// KnownModels lists the identifiers above, in a stable order.
func KnownModels() []string {
	return []string{
		ModelClaude35Sonnet,
		ModelClaude35Haiku,
		ModelGrok2,
		ModelLlama33_70B,
		ModelQwen25_72B,
		ModelGPT4o,
		ModelGPT4oMini,
		ModelO1,
		ModelO1Mini,
		ModelO3Mini,
		ModelDeepSeekChat,
		ModelDeepSeekR1,
		ModelDeepSeekR1Zero,
		ModelDolphinMixtral,
	}
}

// defaultHyperbolicModels is the allow-list of identifiers served by
// the Hyperbolic backend rather than the OpenRouter proxy.
var defaultHyperbolicModels = map[string]bool{
	ModelDeepSeekR1Zero: true,
}

// openAIPrefix marks identifiers served directly by OpenAI; the prefix
// is stripped before the wire call.
const openAIPrefix = "openai/"

// ClassifyModel maps a model identifier to its backend family using the
// built-in Hyperbolic allow-list. An identifier that matches no family
// pattern returns a *ResolutionError.
func ClassifyModel(id string) (BackendFamily, error) {
	return classifyModel(id, defaultHyperbolicModels)
}

func classifyModel(id string, hyperbolic map[string]bool) (BackendFamily, error) {
	switch {
	case id == "":
		return 0, &ResolutionError{Model: id}
	case hyperbolic[id]:
		return FamilyHyperbolic, nil
	case strings.HasPrefix(id, openAIPrefix):
		return FamilyOpenAI, nil
	case strings.Contains(id, "/"):
		return FamilyOpenRouter, nil
	}
	return 0, &ResolutionError{Model: id}
}

// Catalog is the on-disk form of a model catalog extension: extra known
// identifiers plus additions to the Hyperbolic allow-list.
type Catalog struct {
	Models     []string `yaml:"models"`
	Hyperbolic []string `yaml:"hyperbolic"`
}

// LoadCatalog reads a catalog file in YAML form.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}
