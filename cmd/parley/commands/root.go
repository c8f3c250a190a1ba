// Package commands implements the CLI commands for parley.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parleylabs/parley/internal/logger"
	"github.com/parleylabs/parley/pkg/inference"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Run prompts against LLM backends with caching and rate limiting",
	Long: `Parley resolves a model identifier to its backend (OpenAI direct,
the OpenRouter proxy, or Hyperbolic), then runs requests through a
composed stack of response cache, rate limiter and retrying client.

Examples:
  # One-shot completion
  parley complete -m openai/gpt-4o-mini-2024-07-18 "What is 2+2?"

  # Proxy-routed model with a system prompt
  parley complete -m anthropic/claude-3.5-sonnet \
      --system "Answer in one word." "Capital of France?"

  # Inspect the on-disk response cache
  parley cache stats`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("json_logs"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.parley.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("json-logs", false, "log in JSON format")
	rootCmd.PersistentFlags().String("cache-dir", "", "response cache directory (default user cache dir)")
	rootCmd.PersistentFlags().String("cache-backend", "file", "cache store: file or sqlite")
	rootCmd.PersistentFlags().Int("max-attempts", 0, "override retry attempt cap (0 = use default)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	_ = viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("cache_backend", rootCmd.PersistentFlags().Lookup("cache-backend"))
	_ = viper.BindPFlag("retry_max_attempts", rootCmd.PersistentFlags().Lookup("max-attempts"))
}

func initConfig() {
	// Credentials may live in a .env next to the working directory.
	_ = godotenv.Load()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".parley")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PARLEY")
	viper.AutomaticEnv()

	_ = viper.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openrouter_api_key", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("hyperbolic_api_key", "HYPERBOLIC_API_KEY")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// buildConfig assembles the registry config from flags, env and the
// config file. Read once per invocation and immutable afterwards.
func buildConfig() inference.Config {
	cfg := inference.DefaultConfig()

	cfg.OpenAI.APIKey = viper.GetString("openai_api_key")
	cfg.OpenRouter.APIKey = viper.GetString("openrouter_api_key")
	cfg.Hyperbolic.APIKey = viper.GetString("hyperbolic_api_key")

	if base := viper.GetString("openai_base_url"); base != "" {
		cfg.OpenAI.BaseURL = base
	}
	if base := viper.GetString("openrouter_base_url"); base != "" {
		cfg.OpenRouter.BaseURL = base
	}
	if base := viper.GetString("hyperbolic_base_url"); base != "" {
		cfg.Hyperbolic.BaseURL = base
	}

	cfg.CacheDir = viper.GetString("cache_dir")
	if backend := viper.GetString("cache_backend"); backend != "" {
		cfg.CacheBackend = inference.CacheBackend(backend)
	}
	if attempts := viper.GetInt("retry_max_attempts"); attempts > 0 {
		cfg.Retry.MaxAttempts = attempts
	}
	if viper.GetBool("retry_forever") {
		// Deliberate opt-in: back off indefinitely on transient errors.
		cfg.Retry.MaxAttempts = 0
	}
	if period := viper.GetDuration("openrouter_period"); period > 0 {
		cfg.OpenRouter.Period = period
	}
	if limit := viper.GetInt("openrouter_max_requests"); limit > 0 {
		cfg.OpenRouter.MaxRequests = limit
	}

	if catalogPath := viper.GetString("models_file"); catalogPath != "" {
		catalog, err := inference.LoadCatalog(catalogPath)
		if err != nil {
			logger.Warn("ignoring models file", "path", catalogPath, "error", err)
		} else {
			cfg.ExtraHyperbolicModels = catalog.Hyperbolic
		}
	}

	return cfg
}

// cacheRoot mirrors the registry's cache-dir defaulting for the cache
// inspection commands.
func cacheRoot() (string, error) {
	if dir := viper.GetString("cache_dir"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return base + string(os.PathSeparator) + "parley", nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// requestTimeout bounds a single CLI completion end to end.
const requestTimeout = 10 * time.Minute
