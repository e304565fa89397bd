// Package config loads and validates process configuration from a YAML file
// with environment-variable overrides for the common knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blotterfeed/blotterfeed/internal/sim"
)

// Config is the full process configuration.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Simulator    SimulatorConfig `yaml:"simulator"`
	Fanout       FanoutConfig    `yaml:"fanout"`
	SeedExamples bool            `yaml:"seedExamples"`
}

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`
}

// SimulatorConfig drives the market simulator.
type SimulatorConfig struct {
	UpdateFrequencyMs     int     `yaml:"updateFrequencyMs"`
	VolatilityFactor      float64 `yaml:"volatilityFactor"`
	CorrelationStrength   float64 `yaml:"correlationStrength"`
	Scenario              string  `yaml:"scenario"`
	TimeOfDay             string  `yaml:"timeOfDay"`
	FlashEventProbability float64 `yaml:"flashEventProbability"`
	FlashEventMagnitude   float64 `yaml:"flashEventMagnitude"`
}

// FanoutConfig holds the per-subscriber pacing defaults.
type FanoutConfig struct {
	MaxUpdatesPerSecond float64 `yaml:"maxUpdatesPerSecond"`
	BucketSize          int     `yaml:"bucketSize"`
	SendQueueSize       int     `yaml:"sendQueueSize"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:   "127.0.0.1:8080",
			LogLevel: "info",
		},
		Simulator: SimulatorConfig{
			UpdateFrequencyMs:     500,
			VolatilityFactor:      0.2,
			CorrelationStrength:   0.7,
			Scenario:              string(sim.ScenarioNormal),
			TimeOfDay:             string(sim.TimeAuto),
			FlashEventProbability: 0.001,
			FlashEventMagnitude:   3.0,
		},
		Fanout: FanoutConfig{
			MaxUpdatesPerSecond: 10,
			BucketSize:          20,
			SendQueueSize:       256,
		},
		SeedExamples: true,
	}
}

// Load reads the YAML file (when path is non-empty), applies environment
// overrides, and validates. Configuration errors abort initialization.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("UPDATE_FREQUENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Simulator.UpdateFrequencyMs = n
		}
	}
	if v := os.Getenv("SCENARIO"); v != "" {
		c.Simulator.Scenario = v
	}
	if v := os.Getenv("MAX_UPDATES_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fanout.MaxUpdatesPerSecond = f
		}
	}
}

// Validate ensures the configuration is consistent.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Simulator.UpdateFrequencyMs <= 0 {
		return fmt.Errorf("simulator.updateFrequencyMs must be positive, got %d", c.Simulator.UpdateFrequencyMs)
	}
	if c.Simulator.VolatilityFactor < 0 || c.Simulator.VolatilityFactor > 1 {
		return fmt.Errorf("simulator.volatilityFactor must be in [0,1], got %v", c.Simulator.VolatilityFactor)
	}
	if c.Simulator.CorrelationStrength < 0 || c.Simulator.CorrelationStrength > 1 {
		return fmt.Errorf("simulator.correlationStrength must be in [0,1], got %v", c.Simulator.CorrelationStrength)
	}
	if _, err := sim.ParseScenario(c.Simulator.Scenario); err != nil {
		return err
	}
	if _, err := sim.ParseTimeOfDay(c.Simulator.TimeOfDay); err != nil {
		return err
	}
	if c.Simulator.FlashEventProbability < 0 || c.Simulator.FlashEventProbability > 1 {
		return fmt.Errorf("simulator.flashEventProbability must be in [0,1], got %v", c.Simulator.FlashEventProbability)
	}
	if c.Simulator.FlashEventMagnitude <= 0 {
		return fmt.Errorf("simulator.flashEventMagnitude must be positive, got %v", c.Simulator.FlashEventMagnitude)
	}
	if c.Fanout.MaxUpdatesPerSecond <= 0 {
		return fmt.Errorf("fanout.maxUpdatesPerSecond must be positive, got %v", c.Fanout.MaxUpdatesPerSecond)
	}
	if c.Fanout.BucketSize <= 0 {
		return fmt.Errorf("fanout.bucketSize must be positive, got %d", c.Fanout.BucketSize)
	}
	if c.Fanout.SendQueueSize <= 0 {
		return fmt.Errorf("fanout.sendQueueSize must be positive, got %d", c.Fanout.SendQueueSize)
	}
	return nil
}

// SimParams converts the validated simulator config into engine parameters.
func (c *Config) SimParams() sim.Params {
	scenario, _ := sim.ParseScenario(c.Simulator.Scenario)
	tod, _ := sim.ParseTimeOfDay(c.Simulator.TimeOfDay)
	return sim.Params{
		UpdateFrequency:       time.Duration(c.Simulator.UpdateFrequencyMs) * time.Millisecond,
		VolatilityFactor:      c.Simulator.VolatilityFactor,
		Scenario:              scenario,
		TimeOfDay:             tod,
		FlashEventProbability: c.Simulator.FlashEventProbability,
		FlashEventMagnitude:   c.Simulator.FlashEventMagnitude,
	}
}
