package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	RedisURL string `mapstructure:"redis_url"`

	InputRate  int `mapstructure:"input_rate"`
	OutputRate int `mapstructure:"output_rate"`

	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("input_rate", 16000)
	v.SetDefault("output_rate", 24000)
	v.SetDefault("session_ttl", "300s")

	// Environment wins over the file: GEMINI_API_KEY, REDIS_URL, etc.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Model: %s\n", cfg.Mode, cfg.Port, cfg.GeminiModel)
	return &cfg, nil
}

// Validate rejects a configuration the process cannot serve traffic with.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL is not set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is not set")
	}
	return nil
}
