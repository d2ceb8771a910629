package config

import "time"

// reconnect backoff strategies
const (
	StrategyExponential = "exponential"
	StrategyFixed       = "fixed"
)

// ChatClient definition chat_client YAML structure
type ChatClient struct {
	ServerURL  string `mapstructure:"server_url"`
	APIBaseURL string `mapstructure:"api_base_url"`
	AuthToken  string `mapstructure:"auth_token"`
	DebugPort  string `mapstructure:"debug_port"`
	// /state 需要 admin JWT
	DebugAuth bool `mapstructure:"debug_auth"`

	PingInterval  time.Duration `mapstructure:"ping_interval"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`

	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Typing    TypingConfig    `mapstructure:"typing"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ReconnectConfig definition reconnect policy
type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	// exponential | fixed
	Strategy string `mapstructure:"strategy"`
	// 初次連線失敗是否也進入重連, 預設 true
	OnInitialFailure *bool `mapstructure:"on_initial_failure"`
}

// RetryInitial report whether a failed first handshake starts the reconnect loop
func (r ReconnectConfig) RetryInitial() bool {
	return r.OnInitialFailure == nil || *r.OnInitialFailure
}

// TypingConfig definition typing indicator timing
type TypingConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	EmitInterval  time.Duration `mapstructure:"emit_interval"`
}

// RedisConfig definition redis setting, empty Addr falls back to sentinel from .env
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
	Enabled   bool          `mapstructure:"enabled"`
}

// ApplyDefaults fill zero values
func (c *ChatClient) ApplyDefaults() {
	if c.DebugPort == "" {
		c.DebugPort = "8090"
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 30 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Reconnect.Interval <= 0 {
		c.Reconnect.Interval = time.Second
	}
	if c.Reconnect.MaxInterval <= 0 {
		c.Reconnect.MaxInterval = 30 * time.Second
	}
	if c.Reconnect.Strategy != StrategyFixed {
		c.Reconnect.Strategy = StrategyExponential
	}
	if c.Typing.TTL <= 0 {
		c.Typing.TTL = 3 * time.Second
	}
	if c.Typing.SweepInterval <= 0 {
		c.Typing.SweepInterval = time.Second
	}
	if c.Typing.EmitInterval <= 0 {
		c.Typing.EmitInterval = 2 * time.Second
	}
	if c.Redis.StatusTTL <= 0 {
		c.Redis.StatusTTL = 24 * time.Hour
	}
}
