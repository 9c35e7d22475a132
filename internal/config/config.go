// Package config loads driveagent settings from a JSON file, then lets the
// environment override the values operators usually inject at deploy time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/securemem"
)

const appName = "driveagent"

// Supported backend providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// DefaultModel is used when a request names no model or one outside AllowedModels.
const DefaultModel = "claude-sonnet-4-6"

// Config holds every tunable of the agent, the eval harness and the server.
type Config struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	AllowedModels []string `json:"allowed_models"`

	MaxTurns      int `json:"max_turns"`
	MaxTokens     int `json:"max_tokens"`
	EvalMaxTurns  int `json:"eval_max_turns"`
	EvalMaxTokens int `json:"eval_max_tokens"`
	// RunTimeoutSeconds is the wall-clock limit for one chat request.
	RunTimeoutSeconds int `json:"run_timeout_seconds"`

	EnablePromptCache bool   `json:"enable_prompt_cache"`
	PromptCacheTTL    string `json:"prompt_cache_ttl"`
	MinCacheableChars int    `json:"min_cacheable_chars"`

	// ToolConcurrency bounds parallel tool calls within one batch; 0 means unbounded.
	ToolConcurrency int `json:"tool_concurrency"`

	// Client-side throttle. Zero values disable it.
	RequestIntervalMillis int `json:"request_interval_ms"`
	TokensPerMinute       int `json:"tokens_per_minute"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`

	CredentialsPath string `json:"credentials_path"`
	TokenPath       string `json:"token_path"`
	ReadCharBudget  int    `json:"read_char_budget"`

	QuestionsPath string `json:"questions_path"`
	ResultsDir    string `json:"results_dir"`
	DatabasePath  string `json:"database_path"`

	ListenAddr string `json:"listen_addr"`

	keys *securemem.Keyring
}

func defaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", appName)
}

func defaultStateDir() string {
	if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
		return filepath.Join(stateHome, appName)
	}
	if runtime.GOOS == "windows" {
		if local := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); local != "" {
			return filepath.Join(local, appName)
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "state", appName)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	configDir := defaultConfigDir()
	stateDir := defaultStateDir()

	return &Config{
		Provider: ProviderAnthropic,
		Model:    DefaultModel,
		AllowedModels: []string{
			"claude-sonnet-4-6",
			"claude-haiku-4-5-20251001",
			"claude-opus-4-6",
		},
		MaxTurns:          consts.DefaultMaxTurns,
		MaxTokens:         consts.DefaultMaxTokens,
		EvalMaxTurns:      consts.EvalMaxTurns,
		EvalMaxTokens:     consts.EvalMaxTokens,
		RunTimeoutSeconds: int(consts.RunTimeout / time.Second),
		EnablePromptCache: true,
		PromptCacheTTL:    "5m",
		MinCacheableChars: consts.MinCacheableChars,
		LogLevel:          "info",
		LogPath:           filepath.Join(stateDir, appName+".log"),
		CredentialsPath:   filepath.Join(configDir, "credentials.json"),
		TokenPath:         filepath.Join(configDir, "token.json"),
		ReadCharBudget:    consts.ReadCharBudget,
		QuestionsPath:     filepath.Join("eval", "questions.json"),
		ResultsDir:        filepath.Join("eval", "results"),
		DatabasePath:      filepath.Join(stateDir, "eval.db"),
		ListenAddr:        ":8000",
		keys:              securemem.NewKeyring(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.fillZeroValues()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv is parameterised on the lookup so tests need not touch the process env.
func (c *Config) applyEnv(getenv func(string) string) {
	if c.keys == nil {
		c.keys = securemem.NewKeyring()
	}
	c.keys.Set(ProviderAnthropic, getenv("ANTHROPIC_API_KEY"))
	c.keys.Set(ProviderOpenAI, getenv("OPENAI_API_KEY"))
	c.keys.Set(ProviderGemini, getenv("GEMINI_API_KEY"))

	if v := getenv("DRIVEAGENT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := getenv("DRIVEAGENT_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("DRIVEAGENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("GOOGLE_CREDENTIALS_PATH"); v != "" {
		c.CredentialsPath = v
	}
	if v := getenv("GOOGLE_TOKEN_PATH"); v != "" {
		c.TokenPath = v
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.ListenAddr = ":" + v
		}
	}
}

func (c *Config) fillZeroValues() {
	def := DefaultConfig()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if len(c.AllowedModels) == 0 {
		c.AllowedModels = def.AllowedModels
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = def.MaxTurns
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.EvalMaxTurns <= 0 {
		c.EvalMaxTurns = def.EvalMaxTurns
	}
	if c.EvalMaxTokens <= 0 {
		c.EvalMaxTokens = def.EvalMaxTokens
	}
	if c.RunTimeoutSeconds <= 0 {
		c.RunTimeoutSeconds = def.RunTimeoutSeconds
	}
	if c.MinCacheableChars <= 0 {
		c.MinCacheableChars = def.MinCacheableChars
	}
	if c.ReadCharBudget <= 0 {
		c.ReadCharBudget = def.ReadCharBudget
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
	if c.ResultsDir == "" {
		c.ResultsDir = def.ResultsDir
	}
	if c.QuestionsPath == "" {
		c.QuestionsPath = def.QuestionsPath
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.ToolConcurrency < 0 {
		return fmt.Errorf("tool_concurrency must not be negative")
	}
	if c.PromptCacheTTL != "" && c.PromptCacheTTL != "5m" && c.PromptCacheTTL != "1h" {
		return fmt.Errorf("prompt_cache_ttl must be 5m or 1h, got %q", c.PromptCacheTTL)
	}
	return nil
}

// ResolveModel returns requested when it is allowed, else the configured
// default. Non-Anthropic providers accept any model name.
func (c *Config) ResolveModel(requested string) string {
	if requested == "" {
		return c.Model
	}
	if c.Provider != ProviderAnthropic {
		return requested
	}
	if slices.Contains(c.AllowedModels, requested) {
		return requested
	}
	return c.Model
}

// RunTimeout is RunTimeoutSeconds as a duration.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// RequestInterval is the minimum spacing between backend calls.
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMillis) * time.Millisecond
}

// Keys exposes the credential keyring.
func (c *Config) Keys() *securemem.Keyring {
	if c.keys == nil {
		c.keys = securemem.NewKeyring()
	}
	return c.keys
}

// Save writes the configuration as indented JSON. Credentials are never saved.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
