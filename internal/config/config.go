package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	"ProtagonismAnalyzer/internal/domain"
)

const (
	defaultTimezone = "America/Sao_Paulo"
	defaultEnvFile  = ".env"

	configPathEnv      = "PROTAGONISM_CONFIG"
	deepSeekAPIKeyEnv  = "DEEPSEEK_API_KEY"
	classifierModelEnv = "CLASSIFIER_MODEL"
	classifierURLEnv   = "CLASSIFIER_ENDPOINT"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv        = "LOG_LEVEL"
	outputDirEnv       = "REPORT_OUTPUT_DIR"
	pushgatewayEnv     = "PUSHGATEWAY_URL"
)

// Config holds every setting of a run. It is built once and passed by value.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Brands        []BrandConfig      `yaml:"brands" validate:"required,min=1,unique=Name,dive"`
	Endpoints     []EndpointConfig   `yaml:"endpoints" validate:"required,min=1,dive"`
	Source        SourceConfig       `yaml:"source"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Report        ReportConfig       `yaml:"report"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	Schedule      ScheduleConfig     `yaml:"schedule"`
}

// LoggingConfig selects level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json text"`
}

// BrandConfig is one brand with the channel terms that route articles to it.
type BrandConfig struct {
	Name          string               `yaml:"name" validate:"required"`
	ChannelTerms  []string             `yaml:"channelTerms"`
	ContentChecks []ContentCheckConfig `yaml:"contentChecks" validate:"dive"`
}

// ContentCheckConfig forces a minimum Citation when Channel and Term both match.
type ContentCheckConfig struct {
	Channel string `yaml:"channel" validate:"required"`
	Term    string `yaml:"term" validate:"required"`
}

// EndpointConfig describes one source request. Payload is posted as JSON.
type EndpointConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Kind    string            `yaml:"kind"`
	URL     string            `yaml:"url" validate:"required,url"`
	Payload map[string]any    `yaml:"payload"`
	Headers map[string]string `yaml:"headers"`
}

// SourceConfig bounds source fetches.
type SourceConfig struct {
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	Retries    int           `yaml:"retries" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retryDelay" validate:"gte=0"`
}

// ClassifierConfig selects the classifier service and its retry policy.
type ClassifierConfig struct {
	Provider           string        `yaml:"provider" validate:"oneof=deepseek http"`
	Endpoint           string        `yaml:"endpoint" validate:"required,url"`
	Model              string        `yaml:"model"`
	APIKey             string        `yaml:"apiKey"`
	SystemPrompt       string        `yaml:"systemPrompt"`
	Temperature        float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTextRunes       int           `yaml:"maxTextRunes" validate:"gte=0"`
	CallTimeout        time.Duration `yaml:"callTimeout" validate:"gt=0"`
	MaxAttempts        int           `yaml:"maxAttempts" validate:"gte=1"`
	BaseDelay          time.Duration `yaml:"baseDelay" validate:"gte=0"`
	MaxDelay           time.Duration `yaml:"maxDelay" validate:"gtefield=BaseDelay"`
	RateLimitBaseDelay time.Duration `yaml:"rateLimitBaseDelay" validate:"gte=0"`
	RateLimitMaxDelay  time.Duration `yaml:"rateLimitMaxDelay" validate:"gtefield=RateLimitBaseDelay"`
	MaxElapsed         time.Duration `yaml:"maxElapsed" validate:"gte=0"`
	RequestsPerSecond  float64       `yaml:"requestsPerSecond" validate:"gte=0"`
}

// PipelineConfig tunes fan-out, the abort threshold and the local rules.
// FailureBasis picks the failure-rate denominator: "dispatched" or "total" pairs.
type PipelineConfig struct {
	FanOut            int     `yaml:"fanOut" validate:"gte=1,lte=64"`
	FailureThreshold  float64 `yaml:"failureThreshold" validate:"gte=0,lte=1"`
	FailureBasis      string  `yaml:"failureBasis" validate:"oneof=dispatched total"`
	TitleRule         bool    `yaml:"titleRule"`
	ChannelFilter     bool    `yaml:"channelFilter"`
	MentionCorrection bool    `yaml:"mentionCorrection"`
}

// ReportConfig says where spreadsheets go.
type ReportConfig struct {
	OutputDir string `yaml:"outputDir" validate:"required"`
	LinkText  string `yaml:"linkText"`
}

// MetricsConfig enables a Pushgateway push at the end of each run.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIURL   string `yaml:"apiUrl" validate:"omitempty,url"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// ScheduleConfig defines when the schedule command runs the pipeline.
type ScheduleConfig struct {
	Interval time.Duration  `yaml:"interval" validate:"gte=0"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the schedule timezone string to a time.Location.
func (s ScheduleConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $PROTAGONISM_CONFIG), then .env, then the process environment.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := gotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", defaultEnvFile, err)
	}
	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Classifier.Provider == "deepseek" && c.Classifier.APIKey == "" {
		return fmt.Errorf("invalid config: classifier.apiKey is required for provider deepseek (set %s)", deepSeekAPIKeyEnv)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(deepSeekAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv(classifierModelEnv); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.Endpoint = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Report.OutputDir = v
	}
	if v := os.Getenv(pushgatewayEnv); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	c.Schedule.location = loc
}

// DomainBrands converts brand settings for the core.
func (c Config) DomainBrands() []domain.Brand {
	out := make([]domain.Brand, 0, len(c.Brands))
	for _, b := range c.Brands {
		brand := domain.Brand{Name: b.Name, ChannelTerms: append([]string(nil), b.ChannelTerms...)}
		for _, check := range b.ContentChecks {
			brand.ContentChecks = append(brand.ContentChecks, domain.ContentCheck{Channel: check.Channel, Term: check.Term})
		}
		out = append(out, brand)
	}
	return out
}

// DomainEndpoints converts endpoint settings, encoding payloads as JSON.
func (c Config) DomainEndpoints() ([]domain.Endpoint, error) {
	out := make([]domain.Endpoint, 0, len(c.Endpoints))
	for _, e := range c.Endpoints {
		ep := domain.Endpoint{Name: e.Name, Kind: e.Kind, URL: e.URL, Headers: e.Headers}
		if e.Payload != nil {
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("endpoint %s payload: %w", e.Name, err)
			}
			ep.Payload = raw
		}
		out = append(out, ep)
	}
	return out, nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Brands: []BrandConfig{
			{
				Name: "Bradesco",
				ChannelTerms: []string{
					"Asset",
					"Atacado / Banco de Investimento",
					"Corretora/Ágora",
					"Economia",
					"ESG",
					"Inovação/TI",
					"Institucional/Negócios",
					"MKT",
				},
				ContentChecks: []ContentCheckConfig{
					{Channel: "Asset", Term: "Bradesco Asset"},
					{Channel: "Corretora/Ágora", Term: "Ágora"},
				},
			},
			{Name: "Itaú"},
			{Name: "Santander"},
		},
		Source: SourceConfig{Timeout: 60 * time.Second, Retries: 1, RetryDelay: 5 * time.Second},
		Classifier: ClassifierConfig{
			Provider:           "deepseek",
			Endpoint:           "https://api.deepseek.com/v1",
			Model:              "deepseek-chat",
			Temperature:        0.1,
			MaxTextRunes:       12000,
			CallTimeout:        60 * time.Second,
			MaxAttempts:        4,
			BaseDelay:          time.Second,
			MaxDelay:           16 * time.Second,
			RateLimitBaseDelay: 5 * time.Second,
			RateLimitMaxDelay:  60 * time.Second,
			MaxElapsed:         3 * time.Minute,
			RequestsPerSecond:  2,
		},
		Pipeline: PipelineConfig{
			FanOut:            4,
			FailureThreshold:  0.5,
			FailureBasis:      string(domain.BasisDispatched),
			TitleRule:         true,
			ChannelFilter:     true,
			MentionCorrection: true,
		},
		Report:  ReportConfig{OutputDir: "dados/marca_setor", LinkText: "Link"},
		Metrics: MetricsConfig{Job: "protagonism"},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
		Schedule: ScheduleConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone},
	}
}
