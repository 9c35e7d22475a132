package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt sizes locally. It uses a BPE encoding when one
// is available and falls back to four characters per token otherwise.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var defaultCounter TokenCounter

// CountTokens estimates the token count of text with the shared counter.
func CountTokens(text string) int {
	return defaultCounter.Count(text)
}

func (c *TokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return charsToTokens(len(text))
}

// CountRequest estimates the input tokens of a request.
func (c *TokenCounter) CountRequest(req *Request) int {
	if req == nil {
		return 0
	}
	total := c.Count(req.System)
	for _, def := range req.Tools {
		total += c.Count(def.Name) + c.Count(def.Description)
	}
	for _, msg := range req.Messages {
		for _, b := range msg.Content {
			total += c.Count(b.Text) + c.Count(b.Content)
		}
	}
	return total
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	if tokens := chars / 4; tokens > 0 {
		return tokens
	}
	return 1
}
