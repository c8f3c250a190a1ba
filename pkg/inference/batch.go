package inference

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gather runs every request function concurrently and returns their
// results in input order. If any function returns an error the shared
// context is cancelled and the first error is returned; sibling calls
// that are already in flight run to completion on their own (they are
// not forcibly aborted beyond observing the cancelled context at their
// next suspension point).
func Gather[T any](ctx context.Context, fns []func(context.Context) (T, error)) ([]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([]T, len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GatherResponses fans a set of prompts out against one model through
// the registry and returns the first-choice text of each, in order.
func GatherResponses(ctx context.Context, r *Registry, model string, prompts []Prompt, params *Params) ([]string, error) {
	fns := make([]func(context.Context) (string, error), len(prompts))
	for i, prompt := range prompts {
		prompt := prompt
		fns[i] = func(ctx context.Context) (string, error) {
			return r.GetResponse(ctx, model, prompt, params)
		}
	}
	return Gather(ctx, fns)
}
