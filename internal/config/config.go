// Package config provides configuration types and loading for pinguess.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KafClaw/pinguess/internal/classify"
	"github.com/KafClaw/pinguess/internal/partition"
)

// ErrConfiguration is the fatal, pre-submission configuration error.
var ErrConfiguration = partition.ErrConfiguration

// Config is the root configuration struct.
// Top-level groups: Agent, Target, Backoff, Paths, Kafka, Slack.
type Config struct {
	Agent   AgentConfig   `json:"agent"`
	Target  TargetConfig  `json:"target"`
	Backoff BackoffConfig `json:"backoff"`
	Paths   PathsConfig   `json:"paths"`
	Kafka   KafkaConfig   `json:"kafka"`
	Slack   SlackConfig   `json:"slack"`
}

// ---------------------------------------------------------------------------
// Agent – partitioning
// ---------------------------------------------------------------------------

// AgentConfig identifies this agent among its cooperating peers.
// SharedSeed must be identical on every agent.
type AgentConfig struct {
	ID         int   `json:"id" envconfig:"ID"`
	Count      int   `json:"count" envconfig:"COUNT"`
	SharedSeed int64 `json:"sharedSeed" envconfig:"SHARED_SEED"`
	SpaceSize  int   `json:"spaceSize" envconfig:"SPACE_SIZE"`
	Width      int   `json:"width" envconfig:"WIDTH"`
}

// ---------------------------------------------------------------------------
// Target – the remote endpoint
// ---------------------------------------------------------------------------

// TargetConfig describes the endpoint and the text it answers with.
type TargetConfig struct {
	URL     string           `json:"url" envconfig:"URL"`
	Field   string           `json:"field" envconfig:"FIELD"`
	Timeout time.Duration    `json:"timeout" envconfig:"TIMEOUT"`
	Markers classify.Markers `json:"markers"`
}

// ---------------------------------------------------------------------------
// Backoff – pacing
// ---------------------------------------------------------------------------

// BackoffConfig holds the sleep after unexpected outcomes and optional pacing.
// RatePerSecond <= 0 leaves pacing to the endpoint.
type BackoffConfig struct {
	Ambiguous     time.Duration `json:"ambiguous" envconfig:"AMBIGUOUS"`
	Transport     time.Duration `json:"transport" envconfig:"TRANSPORT"`
	RatePerSecond float64       `json:"ratePerSecond" envconfig:"RATE_PER_SECOND"`
	Burst         int           `json:"burst" envconfig:"BURST"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	LogFile    string `json:"logFile" envconfig:"LOG_FILE"`
	TimelineDB string `json:"timelineDb" envconfig:"TIMELINE_DB"`
	LockDir    string `json:"lockDir" envconfig:"LOCK_DIR"`
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// KafkaConfig enables publishing loop events to a topic.
type KafkaConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// SlackConfig enables webhook alerts on success and external resets.
type SlackConfig struct {
	Enabled    bool   `json:"enabled" envconfig:"ENABLED"`
	WebhookURL string `json:"webhookUrl" envconfig:"WEBHOOK_URL"`
	Channel    string `json:"channel" envconfig:"CHANNEL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ConfigDir)
	return &Config{
		Agent: AgentConfig{
			ID:         0,
			Count:      1,
			SharedSeed: 1415926535,
			SpaceSize:  partition.DefaultSpaceSize,
			Width:      4,
		},
		Target: TargetConfig{
			URL:     "https://www.guessthepin.com/prg.php",
			Field:   "guess",
			Timeout: 30 * time.Second,
			Markers: classify.DefaultMarkers(),
		},
		Backoff: BackoffConfig{
			Ambiguous: 10 * time.Second,
			Transport: 20 * time.Second,
			Burst:     1,
		},
		Paths: PathsConfig{
			LogFile:    "guess-the-pin.log",
			TimelineDB: filepath.Join(base, "timeline.db"),
			LockDir:    base,
		},
		Kafka: KafkaConfig{
			Brokers: "localhost:9092",
			Topic:   "pinguess.events",
		},
	}
}

// Validate reports every problem at once, wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Agent.Count <= 0 {
		add("agent.count must be positive, got %d", c.Agent.Count)
	} else if c.Agent.ID < 0 || c.Agent.ID >= c.Agent.Count {
		add("agent.id %d outside [0, %d)", c.Agent.ID, c.Agent.Count)
	}
	if c.Agent.SpaceSize <= 0 {
		add("agent.spaceSize must be positive, got %d", c.Agent.SpaceSize)
	} else if digits := len(strconv.Itoa(c.Agent.SpaceSize - 1)); c.Agent.Width < digits {
		add("agent.width %d cannot hold %d-digit candidates", c.Agent.Width, digits)
	}

	if strings.TrimSpace(c.Target.URL) == "" {
		add("target.url is required")
	} else if u, err := url.Parse(c.Target.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("target.url %q is not an absolute URL", c.Target.URL)
	}
	if strings.TrimSpace(c.Target.Field) == "" {
		add("target.field is required")
	}
	if c.Backoff.Ambiguous <= 0 || c.Backoff.Transport <= 0 {
		add("backoff durations must be positive")
	}
	if c.Backoff.RatePerSecond < 0 {
		add("backoff.ratePerSecond must not be negative")
	}

	if c.Kafka.Enabled && (strings.TrimSpace(c.Kafka.Brokers) == "" || strings.TrimSpace(c.Kafka.Topic) == "") {
		add("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Slack.Enabled && strings.TrimSpace(c.Slack.WebhookURL) == "" {
		add("slack.webhookUrl is required when slack is enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}

// IsConfigurationError reports whether err is fatal configuration trouble.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
