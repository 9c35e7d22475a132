package llm

import (
	"context"
	"sync"
	"time"
)

const (
	defaultResponseTokenEstimate = 512
	minTokenEstimate             = 8
)

// rateLimitedClient spaces out calls and paces them against a tokens-per-minute
// budget. It only delays; failures from the delegate are returned unchanged.
type rateLimitedClient struct {
	delegate Client
	counter  *TokenCounter
	interval time.Duration
	perMin   int

	mu          sync.Mutex
	nextAllowed time.Time
	tokenMu     sync.Mutex
	nextToken   time.Time
}

// NewRateLimitedClient returns base unchanged when both limits are disabled.
func NewRateLimitedClient(base Client, interval time.Duration, tokensPerMinute int) Client {
	if base == nil || (interval <= 0 && tokensPerMinute <= 0) {
		return base
	}
	return &rateLimitedClient{
		delegate: base,
		counter:  &defaultCounter,
		interval: interval,
		perMin:   tokensPerMinute,
	}
}

func (c *rateLimitedClient) Provider() string { return c.delegate.Provider() }

// SupportsPromptCache forwards the delegate's capability so wrapping order
// does not matter.
func (c *rateLimitedClient) SupportsPromptCache() bool {
	cc, ok := c.delegate.(CacheCapable)
	return ok && cc.SupportsPromptCache()
}

func (c *rateLimitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.waitInterval(ctx); err != nil {
		return nil, err
	}
	if c.perMin > 0 {
		if err := c.waitTokens(ctx, c.estimate(req)); err != nil {
			return nil, err
		}
	}
	return c.delegate.Complete(ctx, req)
}

func (c *rateLimitedClient) estimate(req *Request) int {
	tokens := c.counter.CountRequest(req)
	if tokens < minTokenEstimate {
		tokens = minTokenEstimate
	}
	if req != nil && req.MaxTokens > 0 {
		return tokens + req.MaxTokens
	}
	return tokens + defaultResponseTokenEstimate
}

func (c *rateLimitedClient) waitInterval(ctx context.Context) error {
	if c.interval <= 0 {
		return nil
	}
	c.mu.Lock()
	now := time.Now()
	start := c.nextAllowed
	if start.Before(now) {
		start = now
	}
	c.nextAllowed = start.Add(c.interval)
	c.mu.Unlock()

	return sleepUntil(ctx, start)
}

func (c *rateLimitedClient) waitTokens(ctx context.Context, tokens int) error {
	if c.perMin <= 0 || tokens <= 0 {
		return nil
	}
	delay := time.Duration(float64(time.Minute) * float64(tokens) / float64(c.perMin))

	c.tokenMu.Lock()
	now := time.Now()
	if c.nextToken.Before(now) {
		c.nextToken = now
	}
	start := c.nextToken
	c.nextToken = c.nextToken.Add(delay)
	c.tokenMu.Unlock()

	return sleepUntil(ctx, start)
}

func sleepUntil(ctx context.Context, t time.Time) error {
	wait := time.Until(t)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
