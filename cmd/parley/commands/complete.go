package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleylabs/parley/internal/logger"
	"github.com/parleylabs/parley/pkg/inference"
	"github.com/parleylabs/parley/pkg/inference/openaichat"
)

var (
	completeModel       string
	completeSystem      string
	completeTemperature float64
	completeTopP        float64
	completeN           int
	completeMaxTokens   int
	completeSeed        int64
	completeStop        []string
	completeJSONMode    bool
	completeNoCache     bool
	completeShowUsage   bool
)

var completeCmd = &cobra.Command{
	Use:   "complete [flags] <prompt>",
	Short: "Run a one-shot completion against the resolved backend",
	Long: `Complete sends a single prompt to the backend serving the given
model identifier and prints the first choice to stdout. Responses are
cached on disk, so repeating an identical request returns the stored
answer without a network call.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVarP(&completeModel, "model", "m", "", "model identifier (required)")
	completeCmd.Flags().StringVar(&completeSystem, "system", "", "system message to prepend")
	completeCmd.Flags().Float64Var(&completeTemperature, "temperature", 1.0, "sampling temperature (0-2)")
	completeCmd.Flags().Float64Var(&completeTopP, "top-p", 1.0, "nucleus sampling mass (0-1)")
	completeCmd.Flags().IntVarP(&completeN, "n", "n", 1, "number of choices to request")
	completeCmd.Flags().IntVar(&completeMaxTokens, "max-tokens", 0, "completion token cap (0 = provider default)")
	completeCmd.Flags().Int64Var(&completeSeed, "seed", 0, "sampling seed (0 = provider default)")
	completeCmd.Flags().StringSliceVar(&completeStop, "stop", nil, "stop sequences")
	completeCmd.Flags().BoolVar(&completeJSONMode, "json", false, "request a JSON object response")
	completeCmd.Flags().BoolVar(&completeNoCache, "no-cache", false, "skip the response cache for this run")
	completeCmd.Flags().BoolVar(&completeShowUsage, "usage", false, "print token usage to stderr")
	_ = completeCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(completeCmd)
}

func runComplete(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if completeNoCache {
		dir, err := os.MkdirTemp("", "parley-nocache-")
		if err != nil {
			return fmt.Errorf("create throwaway cache dir: %w", err)
		}
		defer os.RemoveAll(dir)
		cfg.CacheDir = dir
		cfg.CacheBackend = inference.CacheBackendFile
	}

	registry := inference.NewRegistry(cfg, openaichat.Factory)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("closing registry", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := buildPrompt(completeSystem, strings.Join(args, " "))
	params := buildParams()
	if err := params.Validate(); err != nil {
		return err
	}

	mc, err := registry.Resolve(completeModel)
	if err != nil {
		return err
	}
	logger.Debug("resolved model",
		"model", mc.Model(),
		"family", mc.Family().String())

	resp, err := mc.Complete(ctx, prompt, params)
	if err != nil {
		logger.Error("completion failed", "model", completeModel, "error", err)
		return err
	}

	if completeShowUsage {
		fmt.Fprintf(os.Stderr, "tokens: prompt=%d completion=%d total=%d\n",
			resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	}

	if completeN > 1 {
		out := make([]string, 0, len(resp.Choices))
		for _, c := range resp.Choices {
			out = append(out, c.Message.Content)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(resp.FirstContent())
	return nil
}

func buildPrompt(system, user string) inference.Prompt {
	if system != "" {
		p := inference.SystemPrompt(system)
		return p.With(inference.RoleUser, user)
	}
	return inference.UserPrompt(user)
}

func buildParams() inference.Params {
	params := inference.DefaultParams()
	params.Temperature = completeTemperature
	params.TopP = completeTopP
	params.N = completeN
	if completeMaxTokens > 0 {
		params.MaxCompletionTokens = &completeMaxTokens
	}
	if completeSeed != 0 {
		params.Seed = &completeSeed
	}
	if len(completeStop) > 0 {
		params.Stop = inference.StopSequences(completeStop)
	}
	if completeJSONMode {
		params.ResponseFormat = &inference.ResponseFormat{Type: "json_object"}
	}
	return params
}
