package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Settings struct {
	Database      DbSettings          `mapstructure:"database"`
	Broker        BrokerSettings      `mapstructure:"broker"`
	Publisher     PublisherSettings   `mapstructure:"publisher"`
	Idempotency   IdempotencySettings `mapstructure:"idempotency"`
	Observability Observability       `mapstructure:"observability"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// LoadFromFile reads worker.yaml from the given path (plus an optional
// worker.<environment>.yaml overlay), merges environment variables on top and
// validates the result.
func LoadFromFile(filePath string) (*Settings, error) {
	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	viper.SetConfigType("yaml")
	viper.SetConfigName("worker")
	viper.AddConfigPath(filePath)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := mergeConfig(filePath, "worker."+env); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SAGA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like SAGA_DATABASE_DSN

	viper.BindEnv("database.dsn")
	viper.BindEnv("broker.type")
	viper.BindEnv("broker.brokers")
	viper.BindEnv("broker.group_id")
	viper.BindEnv("broker.url")
	viper.BindEnv("broker.exchange")
	viper.BindEnv("broker.project_id")
	viper.BindEnv("publisher.poll_interval")
	viper.BindEnv("publisher.retry_interval")
	viper.BindEnv("publisher.batch_size")
	viper.BindEnv("publisher.max_retries")
	viper.BindEnv("idempotency.ttl")
	viper.BindEnv("idempotency.sweep_interval")
	viper.BindEnv("observability.service_name")
	viper.BindEnv("observability.tracing_url")

	return viper.Unmarshal(&c)
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	return viper.MergeInConfig()
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
