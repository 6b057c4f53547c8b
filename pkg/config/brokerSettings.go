package config

// BrokerSettings holds configuration for connecting to a message broker.
type BrokerSettings struct {
	Type      string   `mapstructure:"type" validate:"required,oneof=kafka rabbitmq gcp-pubsub"`
	Brokers   []string `mapstructure:"brokers"`    // kafka bootstrap servers
	GroupID   string   `mapstructure:"group_id"`   // kafka consumer group prefix
	URL       string   `mapstructure:"url"`        // rabbitmq
	Exchange  string   `mapstructure:"exchange"`   // rabbitmq
	ProjectID string   `mapstructure:"project_id"` // gcp-pubsub
}
