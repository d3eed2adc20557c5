package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
}

type ServiceType string

const (
	API    ServiceType = "API"
	WORKER ServiceType = "WORKER"
)

type ServiceConfig struct {
	Type    ServiceType `mapstructure:"type"`
	Port    string      `mapstructure:"port"`
	BaseURL string      `mapstructure:"baseUrl"`
}

type DatabasesConfig struct {
	SQL SQLConfig `mapstructure:"sql"`
}

type SQLConfig struct {
	Host             string `mapstructure:"host"`
	Port             string `mapstructure:"port"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Driver           string `mapstructure:"driver"`
	Database         string `mapstructure:"database"`
	ConnectionString string `mapstructure:"connection_string"`
}

type WorkerConfig struct {
	PollInterval     string `mapstructure:"pollInterval"`
	BatchSize        int    `mapstructure:"batchSize"`
	DownloadTTLHours int    `mapstructure:"downloadTtlHours"`
}

type DeliveryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Sender  string `mapstructure:"sender"`
}

// LoadConfig reads appsettings.yaml (or appsettings.{env}.yaml) from path.
// A .env file, if present, is loaded first so secrets can stay out of yaml.
func LoadConfig(path, env string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	viper.AddConfigPath(path)
	if env != "" {
		viper.SetConfigName(fmt.Sprintf("appsettings.%s", env))
	} else {
		viper.SetConfigName("appsettings")
	}
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Worker.PollInterval == "" {
		cfg.Worker.PollInterval = "1m"
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.DownloadTTLHours <= 0 {
		cfg.Worker.DownloadTTLHours = 72
	}
	return &cfg, nil
}
