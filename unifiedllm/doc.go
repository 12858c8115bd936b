// Package unifiedllm is the provider-neutral model transport used by the
// agent cycle. It defines one message and tool-call vocabulary, a Client that
// routes requests to registered ProviderAdapters through a middleware chain,
// and the error taxonomy that Retry uses to decide what is worth retrying.
//
// Adapters exist for the Anthropic Messages API, the OpenAI Chat Completions
// API (and compatible endpoints), and gollm for any other provider it knows:
//
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", unifiedllm.NewOpenAIAdapter(key, "", "gpt-4o")),
//	    unifiedllm.WithMiddleware(unifiedllm.RateLimitMiddleware(unifiedllm.NewRateLimiter(60, 5))),
//	    unifiedllm.WithBudget(budget),
//	)
//	resp, err := unifiedllm.Retry(ctx, unifiedllm.DefaultRetryPolicy(),
//	    func(ctx context.Context) (*unifiedllm.Response, error) {
//	        return client.Complete(ctx, req)
//	    })
//
// The model catalog supplies context windows and prices. A Client with a
// Budget charges every successful completion to it in dollars.
package unifiedllm
