package piimask

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries the client settings a user may pin in a YAML file instead
// of repeating flags. Command-line flags override file values; file values
// override the built-in defaults.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Mask     MaskConfig     `mapstructure:"mask"`
	Download DownloadConfig `mapstructure:"download"`
}

type ServiceConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MaskConfig struct {
	Style string `mapstructure:"style"`
}

type DownloadConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoadConfig reads the YAML file at path. Keys absent from the file keep
// their built-in defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// NewConfig loads path, falling back to the built-in defaults when the
// file cannot be loaded. A missing config file is not an error: the client
// works out of the box against a local service.
func NewConfig(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.endpoint", DefaultEndpoint)
	v.SetDefault("service.timeout", DefaultRequestTimeout)
	v.SetDefault("mask.style", string(MaskRectangle))
	v.SetDefault("download.dir", ".")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service:  ServiceConfig{Endpoint: DefaultEndpoint, Timeout: DefaultRequestTimeout},
		Mask:     MaskConfig{Style: string(MaskRectangle)},
		Download: DownloadConfig{Dir: "."},
	}
}
