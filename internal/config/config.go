package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Product    ProductConfig    `yaml:"product" mapstructure:"product"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Qualify    QualifyConfig    `yaml:"qualify" mapstructure:"qualify"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ProductConfig describes the product leads are generated for.
type ProductConfig struct {
	Description string `yaml:"description" mapstructure:"description"`
	SenderName  string `yaml:"sender_name" mapstructure:"sender_name"`
}

// IngestConfig configures the job-board ingestion stage.
type IngestConfig struct {
	Source              string   `yaml:"source" mapstructure:"source"`
	BaseURL             string   `yaml:"base_url" mapstructure:"base_url"`
	UserAgent           string   `yaml:"user_agent" mapstructure:"user_agent"`
	Tags                []string `yaml:"tags" mapstructure:"tags"`
	MaxJobsPerRun       int      `yaml:"max_jobs_per_run" mapstructure:"max_jobs_per_run"`
	MaxRetries          int      `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs    int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	TimeoutSecs         int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	KeywordsFile        string   `yaml:"keywords_file" mapstructure:"keywords_file"`
	AIKeywords          bool     `yaml:"ai_keywords" mapstructure:"ai_keywords"`
	DescriptionMaxChars int      `yaml:"description_max_chars" mapstructure:"description_max_chars"`
}

// QualifyConfig configures the qualification gate.
type QualifyConfig struct {
	MinRelevanceScore int `yaml:"min_relevance_score" mapstructure:"min_relevance_score"`
	MaxInputChars     int `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	Limit             int `yaml:"limit" mapstructure:"limit"`
}

// OutreachConfig configures the outreach dispatcher.
type OutreachConfig struct {
	DryRun                  bool   `yaml:"dry_run" mapstructure:"dry_run"`
	Limit                   int    `yaml:"limit" mapstructure:"limit"`
	AdvanceOnDryRun         bool   `yaml:"advance_on_dry_run" mapstructure:"advance_on_dry_run"`
	RecipientOverride       string `yaml:"recipient_override" mapstructure:"recipient_override"`
	RecipientPattern        string `yaml:"recipient_pattern" mapstructure:"recipient_pattern"`
	CircuitFailureThreshold int    `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int    `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// SMTPConfig holds outbound mail server settings.
type SMTPConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	From        string `yaml:"from" mapstructure:"from"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownSecs int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled                  bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DeliveryFailureThreshold float64 `yaml:"delivery_failure_threshold" mapstructure:"delivery_failure_threshold"`
	MinSamples               int     `yaml:"min_samples" mapstructure:"min_samples"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("product.sender_name", "The Team")
	v.SetDefault("ingest.source", "remoteok")
	v.SetDefault("ingest.base_url", "https://remoteok.com/api")
	v.SetDefault("ingest.user_agent", "Mozilla/5.0 (compatible; leadgen-cli/1.0)")
	v.SetDefault("ingest.max_jobs_per_run", 50)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.initial_backoff_ms", 2000)
	v.SetDefault("ingest.max_backoff_ms", 10000)
	v.SetDefault("ingest.timeout_secs", 15)
	v.SetDefault("ingest.ai_keywords", false)
	v.SetDefault("ingest.description_max_chars", 4000)
	v.SetDefault("qualify.min_relevance_score", 60)
	v.SetDefault("qualify.max_input_chars", 2000)
	v.SetDefault("qualify.limit", 50)
	v.SetDefault("outreach.dry_run", true)
	v.SetDefault("outreach.limit", 50)
	v.SetDefault("outreach.advance_on_dry_run", true)
	v.SetDefault("outreach.circuit_failure_threshold", 5)
	v.SetDefault("outreach.circuit_reset_secs", 60)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.delivery_failure_threshold", 0.2)
	v.SetDefault("monitoring.min_samples", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Secrets and optional strings have no default but must still be
	// visible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"store.database_url",
		"anthropic.key",
		"product.description",
		"ingest.keywords_file",
		"outreach.recipient_override",
		"outreach.recipient_pattern",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"monitoring.webhook_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks ranges and required combinations. A failed validation is
// fatal at startup.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Qualify.MinRelevanceScore < 0 || c.Qualify.MinRelevanceScore > 100 {
		return eris.Errorf("config: qualify.min_relevance_score must be within 0-100, got %d", c.Qualify.MinRelevanceScore)
	}
	if c.Qualify.MaxInputChars <= 0 {
		return eris.New("config: qualify.max_input_chars must be positive")
	}
	if c.Qualify.Limit <= 0 {
		return eris.New("config: qualify.limit must be positive")
	}
	if c.Ingest.MaxJobsPerRun <= 0 {
		return eris.New("config: ingest.max_jobs_per_run must be positive")
	}
	if c.Ingest.MaxRetries <= 0 {
		return eris.New("config: ingest.max_retries must be positive")
	}
	if c.Outreach.Limit <= 0 {
		return eris.New("config: outreach.limit must be positive")
	}
	return nil
}

// RequireLLM reports an error when the settings needed for LLM-backed stages
// are missing.
func (c *Config) RequireLLM() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required (LEADGEN_ANTHROPIC_KEY)")
	}
	if strings.TrimSpace(c.Product.Description) == "" {
		return eris.New("config: product.description is required (LEADGEN_PRODUCT_DESCRIPTION)")
	}
	return nil
}

// RequireSMTP reports an error when real delivery is requested without
// credentials.
func (c *Config) RequireSMTP() error {
	if c.SMTP.Username == "" || c.SMTP.Password == "" {
		return eris.New("config: smtp.username and smtp.password are required for real sends")
	}
	return nil
}

// Sender returns the From address used on outbound mail.
func (c *Config) Sender() string {
	if c.SMTP.From != "" {
		return c.SMTP.From
	}
	return c.SMTP.Username
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
