package consts

import "time"

// Agent loop budgets
const (
	// DefaultMaxTurns bounds backend calls for an interactive run
	DefaultMaxTurns = 10
	// DefaultMaxTokens is the per-call output token budget for an interactive run
	DefaultMaxTokens = 4096
	// EvalMaxTurns bounds backend calls for a benchmark run
	EvalMaxTurns = 6
	// EvalMaxTokens is the per-call output token budget for a benchmark run
	EvalMaxTokens = 2048
	// JudgeMaxTokens is the output budget for a single judge call
	JudgeMaxTokens = 1024
	// GeneratorMaxTurns bounds the question generator's research run
	GeneratorMaxTurns = 15
)

// Prompt caching
const (
	// MinCacheableChars is the smallest tool result that still gets a cache breakpoint
	MinCacheableChars = 1024
	// MaxCacheBreakpoints is the provider's limit on cache_control markers per request
	MaxCacheBreakpoints = 3
)

// Document repository limits
const (
	// ReadCharBudget caps the text returned by a single document read
	ReadCharBudget = 8000
	// DefaultSearchResults is the default page size for search_drive
	DefaultSearchResults = 10
	// DefaultListResults is the default page size for list_files
	DefaultListResults = 20
	// MaxListResults is the page size used by the /files endpoint
	MaxListResults = 50
	// MaxDownloadBytes caps raw bytes pulled from the repository per read
	MaxDownloadBytes = 10 * 1024 * 1024
)

// Question generator limits
const (
	MinGeneratedQuestions     = 1
	MaxGeneratedQuestions     = 20
	DefaultGeneratedQuestions = 5
)

// Timeouts for various operations
const (
	// RunTimeout is the wall-clock limit for one caller-facing run
	RunTimeout = 180 * time.Second
	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
)

// Websocket pump timings
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxMessageSize = 64 * 1024
)

// StreamBuffer is the event buffer of one streamed run
const StreamBuffer = 32
