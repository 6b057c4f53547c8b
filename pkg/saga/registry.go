package saga

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-order-saga/pkg/broker"
)

// Registry maps a participant's subscribed topics to their step executors
// and dispatches inbound messages. Its Handle method satisfies broker.Handler.
type Registry struct {
	executors map[string]*Executor
	log       zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{executors: make(map[string]*Executor), log: log}
}

func (r *Registry) Register(topic string, ex *Executor) {
	r.executors[topic] = ex
}

// Topics returns the topics this participant subscribes to.
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.executors))
	for topic := range r.executors {
		topics = append(topics, topic)
	}
	return topics
}

func (r *Registry) Handle(ctx context.Context, msg *broker.Message) error {
	ex, ok := r.executors[msg.Topic]
	if !ok {
		// Subscription and registry disagree; drop rather than redeliver.
		r.log.Error().Str("topic", msg.Topic).Msg("no executor registered for topic")
		return nil
	}
	return ex.Process(ctx, msg)
}
