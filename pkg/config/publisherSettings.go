package config

import "time"

// PublisherSettings tunes the two-speed outbox relay: a fast sweep for first
// attempts and a slower, bounded sweep for retries.
type PublisherSettings struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"required"`
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"required"`
	BatchSize     int           `mapstructure:"batch_size" validate:"required,gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"required,gt=0"`
}

// IdempotencySettings tunes the exactly-once-effect gate.
type IdempotencySettings struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"required"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}
