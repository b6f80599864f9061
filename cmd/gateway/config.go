package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
)

const (
	envMQTTPassword = "XIAOZHI_MQTT_PASSWORD"
	envAPIKey       = "XIAOZHI_API_KEY"
)

type Config struct {
	Log        entity.LogConfig          `yaml:"log"`
	HTTPClient entity.HTTPClientConfig   `yaml:"http_client"`
	Server     entity.ServerConfig       `yaml:"server"`
	Publishers []*entity.PublisherConfig `yaml:"publishers"`
	Store      entity.StoreConfig        `yaml:"store"`
	Devices    []entity.DeviceConfig     `yaml:"devices"`
}

func parseConfig(configBytes []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config file failed, %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTPClient.Timeout <= 0 {
		c.HTTPClient.Timeout = entity.DefaultHTTPTimeout
	}
	if c.Server.Listen == "" {
		c.Server.Listen = entity.DefaultListenAddr
	}
	if c.Store.Path == "" {
		c.Store.Path = entity.DefaultStorePath
	}
	for i := range c.Devices {
		if c.Devices[i].APIURL == "" {
			c.Devices[i].APIURL = entity.DefaultAPIURL
		}
	}
}

// applyEnv overlays secrets from the environment, loading .env first when present.
func (c *Config) applyEnv(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file failed, %w", err)
	}
	if password := os.Getenv(envMQTTPassword); password != "" {
		for _, publisher := range c.Publishers {
			if publisher.MQTT != nil {
				publisher.MQTT.Password = password
			}
		}
	}
	if apiKey := os.Getenv(envAPIKey); apiKey != "" {
		for i := range c.Devices {
			if c.Devices[i].APIKey == "" {
				c.Devices[i].APIKey = apiKey
			}
		}
	}
	return nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for _, device := range c.Devices {
		if device.DeviceID == "" {
			return fmt.Errorf("device_id is required for every configured device")
		}
		if seen[device.DeviceID] {
			return fmt.Errorf("device %v is configured twice", device.DeviceID)
		}
		seen[device.DeviceID] = true
		if device.APIKey == "" {
			return fmt.Errorf("api_key is required for device %v", device.DeviceID)
		}
	}
	return nil
}

func newLogger(config entity.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level failed, %w", err)
	}
	zapConfig := zap.NewProductionConfig()
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	return zapConfig.Build()
}
