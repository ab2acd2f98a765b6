package ai

import "context"

// Client sends one chat completion and returns the raw text of the first choice.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
