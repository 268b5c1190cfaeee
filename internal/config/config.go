package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/splitdl/internal/utils"
)

const (
	envVarPrefix = "SPLITDL"
	appName      = "splitdl"
)

// Config holds the tunables shared by every download. Values come from
// defaults, then the YAML file, then SPLITDL_* environment variables;
// command-line flags are applied last by the caller.
type Config struct {
	Segments         int               `yaml:"segments"          envconfig:"SEGMENTS"`
	Concurrency      int               `yaml:"concurrency"       envconfig:"CONCURRENCY"`
	ChunkSize        int               `yaml:"chunk_size"        envconfig:"CHUNK_SIZE"`
	CheckpointChunks int               `yaml:"checkpoint_chunks" envconfig:"CHECKPOINT_CHUNKS"`
	Timeout          time.Duration     `yaml:"timeout"           envconfig:"TIMEOUT"`
	KATimeout        time.Duration     `yaml:"keep_alive_timeout" envconfig:"KEEP_ALIVE_TIMEOUT"`
	UserAgent        string            `yaml:"user_agent"        envconfig:"USER_AGENT"`
	ProxyURL         string            `yaml:"proxy"             envconfig:"PROXY"`
	ProxyUsername    string            `yaml:"proxy_username"    envconfig:"PROXY_USERNAME"`
	ProxyPassword    string            `yaml:"proxy_password"    envconfig:"PROXY_PASSWORD"`
	Headers          map[string]string `yaml:"headers"           envconfig:"HEADERS"`
	Debug            bool              `yaml:"debug"             envconfig:"DEBUG"`
}

func Default() Config {
	return Config{
		Segments:         utils.DefaultSegments,
		Concurrency:      utils.DefaultConcurrent,
		ChunkSize:        utils.DefaultChunkSize,
		CheckpointChunks: utils.DefaultCheckpointChunks,
		Timeout:          3 * time.Minute,
		KATimeout:        90 * time.Second,
		UserAgent:        utils.ToolUserAgent,
		Headers:          map[string]string{},
	}
}

// DefaultPath is $SPLITDL_CONFIG_FILE, or splitdl.yaml in the user config
// directory.
func DefaultPath() string {
	if p := os.Getenv(envVarPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName+".yaml")
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is ignored) and the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Segments < 1 {
		return fmt.Errorf("invalid config: segments must be at least 1, got %d", c.Segments)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid config: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("invalid config: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.CheckpointChunks < 0 {
		return fmt.Errorf("invalid config: checkpoint_chunks must not be negative, got %d", c.CheckpointChunks)
	}
	return nil
}

// HTTPClientConfig maps the transport settings onto the HTTP client.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	userAgent := c.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	return utils.HTTPClientConfig{
		Timeout:        c.Timeout,
		KATimeout:      c.KATimeout,
		ProxyURL:       c.ProxyURL,
		ProxyUsername:  c.ProxyUsername,
		ProxyPassword:  c.ProxyPassword,
		UserAgent:      userAgent,
		Headers:        c.Headers,
		HighThreadMode: c.Concurrency > 5,
	}
}
