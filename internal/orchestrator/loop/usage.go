package loop

import (
	"sync"

	"github.com/codefionn/driveagent/internal/llm"
)

// Usage is a snapshot of the counters of one run.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	ToolCalls           int `json:"tool_calls"`
	Turns               int `json:"turns"`
}

// Plus returns the component-wise sum of u and o.
func (u Usage) Plus(o Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + o.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
		ToolCalls:           u.ToolCalls + o.ToolCalls,
		Turns:               u.Turns + o.Turns,
	}
}

// Accumulator sums usage across the turns of a single run. Counters only
// grow; negative inputs are ignored.
type Accumulator struct {
	mu    sync.Mutex
	total Usage
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add records the token usage of one backend reply.
func (a *Accumulator) Add(u llm.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total.InputTokens += nonNegative(u.InputTokens)
	a.total.OutputTokens += nonNegative(u.OutputTokens)
	a.total.CacheReadTokens += nonNegative(u.CacheReadTokens)
	a.total.CacheCreationTokens += nonNegative(u.CacheCreationTokens)
}

func (a *Accumulator) AddToolCalls(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total.ToolCalls += nonNegative(n)
}

func (a *Accumulator) AddTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total.Turns++
}

func (a *Accumulator) Snapshot() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
