package queue

import (
	"fmt"

	"github.com/michaelprice232/book-harvester/internal/config"
	"github.com/michaelprice232/book-harvester/internal/observability"
)

// Create builds the broker selected by the queue config.
func Create(cfg *config.QueueConfig, logger observability.Logger) (Broker, error) {
	switch cfg.Adapter {
	case "rabbitmq":
		logger.Info("creating RabbitMQ broker", "url", cfg.RabbitMQ.URL)
		return NewRabbitMQBroker(&cfg.RabbitMQ, logger)

	case "sqs":
		logger.Info("creating SQS broker", "region", cfg.SQS.Region)
		return NewSQSBroker(&cfg.SQS, logger)

	default:
		return nil, fmt.Errorf("unsupported queue adapter: %s", cfg.Adapter)
	}
}
