package config

import (
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	pipelineOnce   sync.Once
	pipelineConfig *PipelineConfig
)

// PipelineConfig is the tunable pipeline policy. Values come from an optional
// yaml file (STORYLOOM_PIPELINE_CONFIG, default configs/pipeline.yaml) with
// env-free defaults baked in.
type PipelineConfig struct {
	// Queue behavior.
	Concurrency    int           `yaml:"concurrency"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelaySecs int           `yaml:"retryDelaySeconds"`
	TimeoutSecs    int           `yaml:"timeoutSeconds"`

	// Narrative generation.
	MinNarrativeChars int `yaml:"minNarrativeChars"`

	// Curation.
	ChapterSize int `yaml:"chapterSize"`

	// Live feed.
	DiscoveryBufferSize  int `yaml:"discoveryBufferSize"`
	SubscriberBufferSize int `yaml:"subscriberBufferSize"`
	HeartbeatSecs        int `yaml:"heartbeatSeconds"`

	// Progress snapshot retention.
	SnapshotTTLHours int `yaml:"snapshotTTLHours"`
}

func defaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Concurrency:          10,
		MaxRetries:           3,
		RetryDelaySecs:       30,
		TimeoutSecs:          600,
		MinNarrativeChars:    80,
		ChapterSize:          6,
		DiscoveryBufferSize:  32,
		SubscriberBufferSize: 64,
		HeartbeatSecs:        15,
		SnapshotTTLHours:     24,
	}
}

func GetPipelineConfig() *PipelineConfig {
	pipelineOnce.Do(func() {
		loadEnv()
		cfg := defaultPipelineConfig()

		path := getenv("STORYLOOM_PIPELINE_CONFIG", "configs/pipeline.yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				log.Printf("Warning: invalid pipeline config %s: %v, using defaults", path, err)
				cfg = defaultPipelineConfig()
			}
		}

		if cfg.MinNarrativeChars < 0 {
			cfg.MinNarrativeChars = 0
		}
		if cfg.ChapterSize < 1 {
			cfg.ChapterSize = 1
		}
		if cfg.DiscoveryBufferSize < 1 {
			cfg.DiscoveryBufferSize = 1
		}
		if cfg.SubscriberBufferSize < 1 {
			cfg.SubscriberBufferSize = 1
		}

		pipelineConfig = cfg
	})
	return pipelineConfig
}

// RetryDelay returns the configured redelivery backoff base.
func (c *PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// ProcessTimeout returns the per-message processing deadline.
func (c *PipelineConfig) ProcessTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Heartbeat returns the live feed keepalive interval.
func (c *PipelineConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}

// SnapshotTTL returns how long terminal progress snapshots are retained.
func (c *PipelineConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLHours) * time.Hour
}
