package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/michaelprice232/book-harvester/internal/config"
	"github.com/michaelprice232/book-harvester/internal/observability"
)

// SQSBroker publishes to Amazon SQS. SendMessage is synchronous, so every
// publish returns an already resolved Pending.
type SQSBroker struct {
	client *sqs.Client
	logger observability.Logger

	mu        sync.Mutex
	queueURLs map[string]string
}

// NewSQSBroker creates an SQS-backed broker for the configured region.
func NewSQSBroker(cfg *config.SQSConfig, logger observability.Logger) (*SQSBroker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("SQS broker initialized", "region", cfg.Region)

	return &SQSBroker{
		client:    sqs.NewFromConfig(awsCfg),
		logger:    logger,
		queueURLs: make(map[string]string),
	}, nil
}

func (b *SQSBroker) Publish(ctx context.Context, msg *Message) (Pending, error) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	queueURL, err := b.getQueueURL(ctx, msg.Topic)
	if err != nil {
		b.logger.Error("failed to get queue URL", "error", err, "queue", msg.Topic)
		return nil, err
	}

	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		b.logger.Error("failed to send message", "error", err, "queue", msg.Topic)
		return Resolved{Outcome: fmt.Errorf("failed to send message: %w", err)}, nil
	}

	return Resolved{}, nil
}

// getQueueURL resolves and caches the queue URL for a queue name.
func (b *SQSBroker) getQueueURL(ctx context.Context, queueName string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if url, ok := b.queueURLs[queueName]; ok {
		return url, nil
	}

	result, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", queueName, err)
	}

	b.queueURLs[queueName] = *result.QueueUrl
	return *result.QueueUrl, nil
}

func (b *SQSBroker) Close() error {
	return nil
}
