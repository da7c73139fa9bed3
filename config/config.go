// Package config holds the rtltcp_client settings file
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Frequency           int64  `yaml:"frequency"`
	SampleRate          uint32 `yaml:"sampleRate"`
	FrequencyCorrection int32  `yaml:"ppm"`
	RtlAgc              bool   `yaml:"rtlAgc"`
	TunerAgc            bool   `yaml:"tunerAgc"`
	GainIndex           uint32 `yaml:"gainIndex"`

	Output         string `yaml:"output"`
	Samples        uint64 `yaml:"samples"`
	MetricsAddress string `yaml:"metricsAddress"`
	Verbose        bool   `yaml:"verbose"`
}

func Default() Config {
	return Config{
		Host:       "127.0.0.1",
		Port:       1234,
		Frequency:  100000000,
		SampleRate: 2048000,
		TunerAgc:   true,
		Output:     "-",
	}
}

// Load reads a YAML file over the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Frequency < 0 || c.Frequency > 0xFFFFFFFF {
		return fmt.Errorf("frequency %d does not fit the protocol", c.Frequency)
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("sample rate is required")
	}
	return nil
}
