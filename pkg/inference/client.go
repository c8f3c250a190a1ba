package inference

import "context"

// Client executes one prompt+params pair against a named model and
// returns a normalized response. Implementations wrap each other
// (cache over limiter over retry over provider) and all present this
// same capability.
type Client interface {
	Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error)

func (f ClientFunc) Complete(ctx context.Context, model string, prompt Prompt, params Params) (*Response, error) {
	return f(ctx, model, prompt, params)
}
