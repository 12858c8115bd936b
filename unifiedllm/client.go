package unifiedllm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes completion requests to registered provider adapters through
// an ordered middleware chain. When a Budget is attached every successful
// completion is charged to it, so the agent's spending is tracked no matter
// which provider served the request.
type Client struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
	fallback string
	chain    []Middleware
	budget   *Budget
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) { c.adapters[name] = adapter }
}

// WithDefaultProvider names the adapter used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.fallback = name }
}

// WithMiddleware appends to the chain. The first middleware is outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) { c.chain = append(c.chain, mw...) }
}

// WithBudget charges the cost of each successful completion to b.
func WithBudget(b *Budget) ClientOption {
	return func(c *Client) { c.budget = b }
}

// NewClient creates a Client. A lone registered provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{adapters: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	if c.fallback == "" && len(c.adapters) == 1 {
		for name := range c.adapters {
			c.fallback = name
		}
	}
	return c
}

// RegisterProvider adds adapter under name. The first registration on a
// client without a default becomes the default.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.adapters == nil {
		c.adapters = make(map[string]ProviderAdapter)
	}
	c.adapters[name] = adapter
	if c.fallback == "" {
		c.fallback = name
	}
}

// Providers returns the registered provider names in sorted order.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Budget returns the attached budget, or nil.
func (c *Client) Budget() *Budget { return c.budget }

// route picks the adapter for req: the request's provider, then the default,
// then the catalog entry for the model.
func (c *Client) route(req Request) (ProviderAdapter, []Middleware, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.fallback
	}
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}
	adapter, ok := c.adapters[name]
	if !ok {
		return nil, nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, append([]Middleware(nil), c.chain...), nil
}

// Complete sends req through the middleware chain to the routed adapter.
// Responses missing their model or provider are labelled from the request.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, chain, err := c.route(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	call := adapter.Complete
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], call
		call = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	resp, err := call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Provider == "" {
		resp.Provider = req.Provider
	}
	if c.budget != nil {
		c.budget.Record(resp.Model, resp.Usage)
	}
	return resp, nil
}

// Close closes every adapter that holds resources and returns the first error.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var first error
	for _, adapter := range c.adapters {
		closer, ok := adapter.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
