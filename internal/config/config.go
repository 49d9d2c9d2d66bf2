package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"EventPoster/internal/domain"
)

const (
	defaultTimezone = "Europe/Prague"
	configPathEnv   = "EVENT_POSTER_CONFIG"
	ledgerDSNEnv    = "LEDGER_DSN"
	openAIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv  = "OPENAI_MODEL"
	mlAPIKeyEnv     = "ML_API_KEY"
	telegramToken   = "TELEGRAM_BOT_TOKEN"
	telegramChatID  = "TELEGRAM_CHAT_ID"
	telegramReview  = "TELEGRAM_REVIEWER_ID"
	publishCmdEnv   = "PUBLISH_COMMAND"
	minReviewWait   = 10 * time.Second
	defaultMaxItems = 4
)

// Extraction providers.
const (
	ProviderOpenAI  = "openai"
	ProviderService = "service"
)

// Config holds every setting of one city pipeline.
type Config struct {
	City          CityConfig         `yaml:"city"`
	Venues        []VenueConfig      `yaml:"venues"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	ML            MLConfig           `yaml:"ml"`
	Review        ReviewConfig       `yaml:"review"`
	Notifications NotificationConfig `yaml:"notifications"`
	Publish       PublishConfig      `yaml:"publish"`
	Render        RenderConfig       `yaml:"render"`
	Paths         PathsConfig        `yaml:"paths"`
	Database      DatabaseConfig     `yaml:"database"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// CityConfig names the city and the texts printed on the title image.
type CityConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
	Country     string `yaml:"country"`
	TitleText   string `yaml:"titleText"`
	TitleAlt    string `yaml:"titleAlt"`
	BadgeText   string `yaml:"badgeText"`
}

// VenueConfig describes one listing page and its parser.
type VenueConfig struct {
	Title   string `yaml:"title"`
	URL     string `yaml:"url"`
	BaseURL string `yaml:"baseUrl"`
	Parser  string `yaml:"parser"`
}

// FetchConfig controls listing retrieval and normalization.
type FetchConfig struct {
	FilterPast bool          `yaml:"filterPast"`
	MaxResults int           `yaml:"maxResults"`
	MinDelay   time.Duration `yaml:"minDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"userAgent"`
	Language   string        `yaml:"language"`
}

// ExtractionConfig selects the detail extractor and its bounds.
type ExtractionConfig struct {
	Provider      string        `yaml:"provider"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerMinute int           `yaml:"ratePerMinute"`
	MaxContent    int           `yaml:"maxContent"`
}

// ChatGPTConfig defines how to contact the OpenAI API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// MLConfig describes the self-hosted extraction service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ReviewConfig tunes the approval poll.
type ReviewConfig struct {
	Question         string        `yaml:"question"`
	CancelLabel      string        `yaml:"cancelLabel"`
	Timeout          time.Duration `yaml:"timeout"`
	CancelPrecedence *bool         `yaml:"cancelPrecedence"`
	MaxOptions       int           `yaml:"maxOptions"`
}

// CancelWins reports whether a cancel vote overrides image votes.
func (r ReviewConfig) CancelWins() bool {
	return r.CancelPrecedence == nil || *r.CancelPrecedence
}

// NotificationConfig encapsulates outbound channels (Telegram).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires the bot used for the poll and the side-channel.
type TelegramConfig struct {
	BotToken   string `yaml:"botToken"`
	ChatID     int64  `yaml:"chatId"`
	ReviewerID int64  `yaml:"reviewerId"`
}

// PublishConfig describes the social publish step.
type PublishConfig struct {
	CaptionTemplate string        `yaml:"captionTemplate"`
	Location        string        `yaml:"location"`
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	Timeout         time.Duration `yaml:"timeout"`
	KeepScratch     bool          `yaml:"keepScratch"`
}

// RenderConfig points at the headless browser used to screenshot HTML.
type RenderConfig struct {
	Browser string        `yaml:"browser"`
	Width   int           `yaml:"width"`
	Height  int           `yaml:"height"`
	Timeout time.Duration `yaml:"timeout"`
}

// PathsConfig holds the scratch and rendering roots.
type PathsConfig struct {
	ScratchDir   string `yaml:"scratchDir"`
	GeneratedDir string `yaml:"generatedDir"`
}

// DatabaseConfig describes the run ledger: a sqlite path or a postgres:// URL.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig names the Prometheus textfile written after every command.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// SchedulerConfig defines when the two phases run in schedule mode.
type SchedulerConfig struct {
	MorningAt string         `yaml:"morningAt"`
	PostAt    string         `yaml:"postAt"`
	Timezone  string         `yaml:"timezone"`
	location  *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML configuration at path (or the env path) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path == "" {
		return Config{}, &ConfigurationError{Missing: []string{"config path (-config or " + configPathEnv + ")"}}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DomainVenues converts venue configs into domain values.
func (c Config) DomainVenues() []domain.Venue {
	out := make([]domain.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		out = append(out, domain.Venue{Title: v.Title, URL: v.URL, BaseURL: v.BaseURL, Parser: v.Parser})
	}
	return out
}

// LedgerDSN resolves the ledger location. "off" disables the ledger,
// an empty value keeps a sqlite file in the scratch root.
func (c Config) LedgerDSN() string {
	switch strings.TrimSpace(c.Database.DSN) {
	case "off":
		return ""
	case "":
		return filepath.Join(c.ScratchRoot(), "ledger.db")
	default:
		return c.Database.DSN
	}
}

// ScratchRoot is the per-city directory holding JSON snapshots and the post dir.
func (c Config) ScratchRoot() string {
	return filepath.Join(c.Paths.ScratchDir, c.City.Name)
}

// GeneratedRoot is the per-city rendering tree removed after finalize.
func (c Config) GeneratedRoot() string {
	return filepath.Join(c.Paths.GeneratedDir, c.City.Name)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(ledgerDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramToken); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatID); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Notifications.Telegram.ChatID = id
		}
	}
	if v := os.Getenv(telegramReview); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Notifications.Telegram.ReviewerID = id
		}
	}

	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(publishCmdEnv); v != "" {
		c.Publish.Command = v
	}
}

func (c *Config) normalize() error {
	c.City.Name = strings.TrimSpace(c.City.Name)
	if c.City.DisplayName == "" {
		c.City.DisplayName = c.City.Name
	}

	if c.Review.Timeout < minReviewWait {
		c.Review.Timeout = minReviewWait
	}
	if c.Fetch.MaxDelay < c.Fetch.MinDelay {
		c.Fetch.MaxDelay = c.Fetch.MinDelay
	}
	if c.Fetch.MaxResults < 0 {
		c.Fetch.MaxResults = 0
	}
	c.Extraction.Provider = strings.ToLower(strings.TrimSpace(c.Extraction.Provider))

	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return &ConfigurationError{Problems: []string{fmt.Sprintf("unknown timezone %q", tz)}}
	}
	c.Scheduler.location = loc

	if _, _, err := ParseClock(c.Scheduler.MorningAt); err != nil {
		return &ConfigurationError{Problems: []string{"scheduler.morningAt: " + err.Error()}}
	}
	if _, _, err := ParseClock(c.Scheduler.PostAt); err != nil {
		return &ConfigurationError{Problems: []string{"scheduler.postAt: " + err.Error()}}
	}

	return nil
}

// ParseClock parses a HH:MM time of day.
func ParseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, errors.New("expected HH:MM")
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func defaultConfig() Config {
	return Config{
		City: CityConfig{TitleText: "EVENTS", TitleAlt: "Events", BadgeText: "DNES"},
		Fetch: FetchConfig{
			FilterPast: true,
			MaxResults: defaultMaxItems,
			MinDelay:   time.Second,
			MaxDelay:   2 * time.Second,
			Timeout:    20 * time.Second,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			Language:   "cs-CZ",
		},
		Extraction: ExtractionConfig{
			Provider:      ProviderOpenAI,
			Timeout:       60 * time.Second,
			RatePerMinute: 20,
			MaxContent:    10000,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Review: ReviewConfig{
			Question:    "Which images should be posted?",
			CancelLabel: "Skip / cancel upload",
			Timeout:     600 * time.Second,
			MaxOptions:  10,
		},
		Publish: PublishConfig{
			CaptionTemplate: "Events in {city} {date}",
			Timeout:         10 * time.Minute,
		},
		Render: RenderConfig{
			Browser: "chromium",
			Width:   1080,
			Height:  1080,
			Timeout: 60 * time.Second,
		},
		Paths: PathsConfig{
			ScratchDir:   "temp",
			GeneratedDir: "generated",
		},
		Scheduler: SchedulerConfig{
			MorningAt: "09:00",
			PostAt:    "00:01",
			Timezone:  defaultTimezone,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
