// Package config loads the forwarder configuration once at process start.
// Values come from environment variables and, optionally, a YAML file. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	hecfwd "github.com/zakharovvi/hec-forwarder"
)

// ChannelAuto generates a random request channel at load time.
const ChannelAuto = "auto"

// Config is immutable after Load and passed explicitly to the components that need it.
type Config struct {
	HEC     HECConfig     `mapstructure:"splunk_hec"`
	Forward ForwardConfig `mapstructure:"forwarder"`
}

// HECConfig holds the collector endpoint settings.
type HECConfig struct {
	URL   string       `mapstructure:"url"`
	Token hecfwd.Token `mapstructure:"token"`
	// InsecureSkipVerify disables TLS certificate verification of the collector. Opt-in only.
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	Source             hecfwd.Source     `mapstructure:"source"`
	SourceType         hecfwd.SourceType `mapstructure:"sourcetype"`
	Index              hecfwd.Index      `mapstructure:"index"`
	Host               string            `mapstructure:"host"`
	Channel            hecfwd.Channel    `mapstructure:"channel"`
}

// ForwardConfig holds settings of the function host.
type ForwardConfig struct {
	ListenAddr           string `mapstructure:"listen_addr"`
	TraceStdout          bool   `mapstructure:"trace_stdout"`
	MaxDecompressedBytes int64  `mapstructure:"max_decompressed_bytes"`
}

// Load reads configuration from environment variables and the optional YAML file at path.
// Keys map to variables by upper-casing and replacing dots: splunk_hec.url -> SPLUNK_HEC_URL.
//
// Missing URL and token are not rejected: they surface as delivery errors. Use Validate to fail early.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	if strings.EqualFold(string(cfg.HEC.Channel), ChannelAuto) {
		cfg.HEC.Channel = hecfwd.Channel(uuid.NewString())
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("splunk_hec.url", "")
	v.SetDefault("splunk_hec.token", "")
	v.SetDefault("splunk_hec.insecure_skip_verify", false)
	v.SetDefault("splunk_hec.timeout", "10s")
	v.SetDefault("splunk_hec.source", string(hecfwd.DefaultSource))
	v.SetDefault("splunk_hec.sourcetype", string(hecfwd.DefaultSourceType))
	v.SetDefault("splunk_hec.index", "")
	v.SetDefault("splunk_hec.host", "")
	v.SetDefault("splunk_hec.channel", "")

	v.SetDefault("forwarder.listen_addr", ":8080")
	v.SetDefault("forwarder.trace_stdout", false)
	v.SetDefault("forwarder.max_decompressed_bytes", 64<<20)
}

// Validate reports missing or malformed required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.HEC.URL == "" {
		errs = append(errs, errors.New("SPLUNK_HEC_URL is not set"))
	}
	if c.HEC.Token == "" {
		errs = append(errs, errors.New("SPLUNK_HEC_TOKEN is not set"))
	}
	if c.HEC.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("SPLUNK_HEC_TIMEOUT must be positive, got %s", c.HEC.Timeout))
	}
	if c.Forward.MaxDecompressedBytes <= 0 {
		errs = append(errs, fmt.Errorf("FORWARDER_MAX_DECOMPRESSED_BYTES must be positive, got %d", c.Forward.MaxDecompressedBytes))
	}
	if c.HEC.Channel != "" {
		if _, err := uuid.Parse(string(c.HEC.Channel)); err != nil {
			errs = append(errs, fmt.Errorf("SPLUNK_HEC_CHANNEL must be a GUID: %w", err))
		}
	}

	return errors.Join(errs...)
}
