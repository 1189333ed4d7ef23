package gpt

import "context"

// Client sends a single prompt to a language model and returns its reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
