package config

// DbSettings holds configuration for the participant's local postgres store.
type DbSettings struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}
