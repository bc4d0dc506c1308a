// Package config loads overlay client settings from defaults, a YAML file and the
// environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"

	"github.com/bsv-blockchain/go-overlay-client/pkg/lookup"
	"github.com/bsv-blockchain/go-overlay-client/pkg/topic"
	"github.com/bsv-blockchain/go-overlay-client/pkg/utils"
	"github.com/bsv-blockchain/go-sdk/overlay"
)

// DefaultValues is the configuration applied before the file and the environment.
const DefaultValues = `
network: mainnet
timeout: 5s
verifyAdvertisements: false
`

// Static error variables for err113 compliance
var (
	ErrInvalidAckRequirement = errors.New(`acknowledgment requirement must be "all", "any" or a list of topics`)
	ErrNegativeTimeout       = errors.New("timeout cannot be negative")
)

// Config holds the settings shared by the resolver and the broadcaster.
type Config struct {
	Network              string              `yaml:"network"`
	SLAPTrackers         []string            `yaml:"slapTrackers"`
	HostOverrides        map[string][]string `yaml:"hostOverrides"`
	AdditionalHosts      map[string][]string `yaml:"additionalHosts"`
	Timeout              time.Duration       `yaml:"timeout"`
	VerifyAdvertisements bool                `yaml:"verifyAdvertisements"`
	Broadcast            Broadcast           `yaml:"broadcast"`
}

// Broadcast holds the broadcaster settings.
type Broadcast struct {
	Topics                      []string           `yaml:"topics"`
	RequireAckFromAllHosts      *AckSpec           `yaml:"requireAckFromAllHosts"`
	RequireAckFromAnyHost       *AckSpec           `yaml:"requireAckFromAnyHost"`
	RequireAckFromSpecificHosts map[string]AckSpec `yaml:"requireAckFromSpecificHosts"`
}

// envOverrides are the settings that can be replaced from the environment.
type envOverrides struct {
	Network      string   `env:"OVERLAY_NETWORK"`
	SLAPTrackers []string `env:"OVERLAY_SLAP_TRACKERS" envSeparator:","`
	Topics       []string `env:"OVERLAY_TOPICS" envSeparator:","`
}

// AckSpec is an acknowledgment requirement as written in YAML: the scalar "all" or "any",
// or a list of topics.
type AckSpec struct {
	Mode   string
	Topics []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *AckSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value != "all" && value.Value != "any" {
			return fmt.Errorf("%w: got %q", ErrInvalidAckRequirement, value.Value)
		}
		a.Mode = value.Value
		a.Topics = nil
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAckRequirement, err)
		}
		a.Mode = ""
		a.Topics = topics
		return nil
	default:
		return fmt.Errorf("%w: line %d", ErrInvalidAckRequirement, value.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (a AckSpec) MarshalYAML() (interface{}, error) {
	if a.Mode != "" {
		return a.Mode, nil
	}
	if a.Topics == nil {
		return []string{}, nil
	}
	return a.Topics, nil
}

// Requirement converts the setting. A nil AckSpec is an unset requirement.
func (a *AckSpec) Requirement() topic.AckRequirement {
	if a == nil {
		return topic.AckRequirement{}
	}
	switch a.Mode {
	case "all":
		return topic.AllTopics()
	case "any":
		return topic.AnyTopic()
	default:
		return topic.Topics(a.Topics...)
	}
}

func loadDefault(defaultValues string, cfg interface{}) error {
	return yaml.Unmarshal([]byte(defaultValues), cfg)
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(bs, cfg)
}

func loadEnv(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return err
	}
	if overrides.Network != "" {
		cfg.Network = overrides.Network
	}
	if len(overrides.SLAPTrackers) > 0 {
		cfg.SLAPTrackers = overrides.SLAPTrackers
	}
	if len(overrides.Topics) > 0 {
		cfg.Broadcast.Topics = overrides.Topics
	}
	return nil
}

// Load reads the defaults, then filePath when it is not empty, then the environment, and
// validates the result.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if err := loadDefault(DefaultValues, cfg); err != nil {
		return nil, fmt.Errorf("error loading default configuration: %w", err)
	}
	var errLoadFile error
	if filePath != "" {
		errLoadFile = loadFile(filePath, cfg)
	}
	errLoadEnv := loadEnv(cfg)
	if errLoadFile != nil {
		return nil, fmt.Errorf("error loading configuration file: %w", errLoadFile)
	}
	if errLoadEnv != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", errLoadEnv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without network access.
func (c *Config) Validate() error {
	if _, err := lookup.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeTimeout, c.Timeout)
	}
	for _, t := range c.Broadcast.Topics {
		if !utils.IsTopicName(t) {
			return fmt.Errorf("%w: %q", topic.ErrInvalidTopicPrefix, t)
		}
	}
	return nil
}

// NetworkPreset returns the configured network.
func (c *Config) NetworkPreset() overlay.Network {
	network, err := lookup.ParseNetwork(c.Network)
	if err != nil {
		return overlay.NetworkMainnet
	}
	return network
}

// ResolverConfig builds the lookup resolver configuration.
func (c *Config) ResolverConfig(logger *slog.Logger) *lookup.Config {
	return &lookup.Config{
		NetworkPreset:        c.NetworkPreset(),
		SLAPTrackers:         c.SLAPTrackers,
		HostOverrides:        c.HostOverrides,
		AdditionalHosts:      c.AdditionalHosts,
		VerifyAdvertisements: c.VerifyAdvertisements,
		Logger:               logger,
	}
}

// BroadcasterConfig builds the broadcaster configuration around resolver.
func (c *Config) BroadcasterConfig(resolver topic.Resolver, logger *slog.Logger) *topic.Config {
	cfg := &topic.Config{
		NetworkPreset:          c.NetworkPreset(),
		Resolver:               resolver,
		RequireAckFromAllHosts: c.Broadcast.RequireAckFromAllHosts.Requirement(),
		RequireAckFromAnyHost:  c.Broadcast.RequireAckFromAnyHost.Requirement(),
		VerifyAdvertisements:   c.VerifyAdvertisements,
		Logger:                 logger,
	}
	if len(c.Broadcast.RequireAckFromSpecificHosts) > 0 {
		cfg.RequireAckFromSpecificHosts = make(map[string]topic.AckRequirement, len(c.Broadcast.RequireAckFromSpecificHosts))
		for host, spec := range c.Broadcast.RequireAckFromSpecificHosts {
			cfg.RequireAckFromSpecificHosts[host] = spec.Requirement()
		}
	}
	return cfg
}
