package unifiedllm

import "context"

// ProviderAdapter sends one completion request to a model provider and maps
// its reply and failures into this package's types.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold connections or sessions.
type Closer interface {
	Close() error
}

// ProviderFunc adapts a function to ProviderAdapter under a fixed name. It
// serves local or scripted backends that need no SDK client.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (*Response, error)
}

func (p ProviderFunc) Name() string { return p.ID }

func (p ProviderFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.Fn(ctx, req)
}
