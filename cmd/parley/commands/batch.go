package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleylabs/parley/internal/logger"
	"github.com/parleylabs/parley/internal/output"
	"github.com/parleylabs/parley/pkg/inference"
	"github.com/parleylabs/parley/pkg/inference/openaichat"
)

var (
	batchModel  string
	batchSystem string
	batchInput  string
	batchFormat string
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags]",
	Short: "Fan a file of prompts out against one model",
	Long: `Batch reads prompts (one per line) from a file or stdin, runs them
concurrently against the resolved backend, and writes one result record
per prompt. The rate limiter paces the fan-out and completed requests
land in the response cache, so an interrupted batch resumes where it
left off.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchModel, "model", "m", "", "model identifier (required)")
	batchCmd.Flags().StringVar(&batchSystem, "system", "", "system message prepended to every prompt")
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "-", "prompts file, one per line (- for stdin)")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "jsonl", "output format: json, jsonl or yaml")
	_ = batchCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	prompts, err := readPrompts(batchInput, batchSystem)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in input")
	}

	writer, err := output.NewWriter(os.Stdout, output.Format(batchFormat))
	if err != nil {
		return err
	}

	registry := inference.NewRegistry(buildConfig(), openaichat.Factory)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("closing registry", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	mc, err := registry.Resolve(batchModel)
	if err != nil {
		return err
	}
	logger.Info("running batch",
		"model", mc.Model(),
		"family", mc.Family().String(),
		"prompts", len(prompts))

	fns := make([]func(context.Context) (*inference.Response, error), len(prompts))
	for i, prompt := range prompts {
		prompt := prompt
		fns[i] = func(ctx context.Context) (*inference.Response, error) {
			return mc.Complete(ctx, prompt, inference.DefaultParams())
		}
	}

	responses, err := inference.Gather(ctx, fns)

	// Flush what completed even when the batch as a whole failed, so a
	// rerun only pays for the prompts that were still outstanding.
	if flushErr := registry.FlushAll(); flushErr != nil {
		logger.Warn("flushing caches", "error", flushErr)
	}
	if err != nil {
		return err
	}

	for i, resp := range responses {
		if err := writer.Write(output.NewRecord(batchModel, prompts[i], resp)); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// readPrompts loads one prompt per non-empty line.
func readPrompts(path, system string) ([]inference.Prompt, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open prompts file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var prompts []inference.Prompt
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		prompts = append(prompts, buildPrompt(system, line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return prompts, nil
}
