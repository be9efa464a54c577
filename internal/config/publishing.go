package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider describes one external publishing target.
type Provider struct {
	Code        string `mapstructure:"code"`
	DisplayName string `mapstructure:"displayName"`
	Enabled     bool   `mapstructure:"enabled"`
}

// DispatcherConfig tunes the outbox dispatcher.
type DispatcherConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queueSize"`
	SweepInterval  time.Duration `mapstructure:"sweepInterval"`
	SweepBatchSize int           `mapstructure:"sweepBatchSize"`
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	RetryBackoff   time.Duration `mapstructure:"retryBackoff"`
}

// PublishingConfig is the hot-reloadable publishing section of publishing.yml.
type PublishingConfig struct {
	Providers  []Provider       `mapstructure:"providers"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

func DefaultPublishingConfig() PublishingConfig {
	return PublishingConfig{
		Providers: []Provider{
			{Code: "linkedin", DisplayName: "LinkedIn", Enabled: true},
			{Code: "instagram", DisplayName: "Instagram", Enabled: true},
			{Code: "facebook", DisplayName: "Facebook", Enabled: true},
			{Code: "x", DisplayName: "X", Enabled: true},
		},
		Dispatcher: DispatcherConfig{
			Workers:        4,
			QueueSize:      1024,
			SweepInterval:  30 * time.Second,
			SweepBatchSize: 50,
			MaxAttempts:    5,
			RetryBackoff:   time.Minute,
		},
	}
}

type PublishingConfigHolder struct {
	current atomic.Value // holds PublishingConfig
}

func NewPublishingConfigHolder() (*PublishingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("publishing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/postdesk/config") // Volume-mounted config
	v.AddConfigPath("/etc/postdesk")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("POSTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPublishingConfig()
		v.SetDefault("publishing.providers", defaults.Providers)
		v.SetDefault("publishing.dispatcher", defaults.Dispatcher)
	}

	var cfg PublishingConfig
	if err := v.UnmarshalKey("publishing", &cfg); err != nil {
		return nil, err
	}
	cfg = withPublishingDefaults(cfg)
	if err := validatePublishingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PublishingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PublishingConfig
		if err := v.UnmarshalKey("publishing", &updated); err != nil {
			log.Printf("[publishing-config] reload failed: %v", err)
			return
		}
		updated = withPublishingDefaults(updated)
		if err := validatePublishingConfig(updated); err != nil {
			log.Printf("[publishing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[publishing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPublishingConfigHolder wraps a fixed config with no file watching.
// Used by tests and one-shot tooling.
func NewStaticPublishingConfigHolder(cfg PublishingConfig) *PublishingConfigHolder {
	holder := &PublishingConfigHolder{}
	holder.current.Store(withPublishingDefaults(cfg))
	return holder
}

func (h *PublishingConfigHolder) Get() PublishingConfig {
	return h.current.Load().(PublishingConfig)
}

// ProviderEnabled reports whether the provider code is in the active catalog.
func (h *PublishingConfigHolder) ProviderEnabled(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, p := range h.Get().Providers {
		if strings.EqualFold(p.Code, code) {
			return p.Enabled
		}
	}
	return false
}

func withPublishingDefaults(cfg PublishingConfig) PublishingConfig {
	defaults := DefaultPublishingConfig().Dispatcher
	if cfg.Dispatcher.Workers <= 0 {
		cfg.Dispatcher.Workers = defaults.Workers
	}
	if cfg.Dispatcher.QueueSize <= 0 {
		cfg.Dispatcher.QueueSize = defaults.QueueSize
	}
	if cfg.Dispatcher.SweepInterval <= 0 {
		cfg.Dispatcher.SweepInterval = defaults.SweepInterval
	}
	if cfg.Dispatcher.SweepBatchSize <= 0 {
		cfg.Dispatcher.SweepBatchSize = defaults.SweepBatchSize
	}
	if cfg.Dispatcher.MaxAttempts <= 0 {
		cfg.Dispatcher.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Dispatcher.RetryBackoff <= 0 {
		cfg.Dispatcher.RetryBackoff = defaults.RetryBackoff
	}
	return cfg
}

func validatePublishingConfig(cfg PublishingConfig) error {
	if len(cfg.Providers) == 0 {
		return errors.New("publishing.providers cannot be empty")
	}
	for _, p := range cfg.Providers {
		if strings.TrimSpace(p.Code) == "" {
			return errors.New("publishing.providers entries need a code")
		}
	}
	return nil
}
