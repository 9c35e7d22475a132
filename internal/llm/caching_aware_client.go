package llm

import "context"

// cachingAwareClient strips cache hints before they reach a backend that
// cannot honour them, so the loop can mark requests unconditionally.
type cachingAwareClient struct {
	delegate Client
}

// NewCachingAwareClient wraps base unless it reports prompt-cache support.
func NewCachingAwareClient(base Client) Client {
	if base == nil {
		return nil
	}
	if cc, ok := base.(CacheCapable); ok && cc.SupportsPromptCache() {
		return base
	}
	return &cachingAwareClient{delegate: base}
}

func (c *cachingAwareClient) Provider() string { return c.delegate.Provider() }

func (c *cachingAwareClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	return c.delegate.Complete(ctx, StripCacheHints(req))
}

// StripCacheHints returns a copy of req with every cache hint cleared. The
// caller's conversation is not modified.
func StripCacheHints(req *Request) *Request {
	if req == nil {
		return nil
	}
	out := *req
	out.SystemCacheHint = false

	out.Tools = make([]ToolDefinition, len(req.Tools))
	for i, def := range req.Tools {
		def.CacheHint = false
		out.Tools[i] = def
	}

	out.Messages = make([]Message, len(req.Messages))
	for i, msg := range req.Messages {
		blocks := make([]ContentBlock, len(msg.Content))
		for j, b := range msg.Content {
			b.CacheHint = false
			blocks[j] = b
		}
		out.Messages[i] = Message{Role: msg.Role, Content: blocks}
	}
	return &out
}
