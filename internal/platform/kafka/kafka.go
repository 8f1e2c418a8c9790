// Package kafka builds the franz-go producer client and bootstraps topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"regflow/internal/platform/config"
)

// NewClient returns nil when no brokers are configured.
func NewClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(clientOpts(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

const defaultDeliveryTimeout = 5 * time.Second

func clientOpts(cfg config.KafkaConfig) []kgo.Opt {
	delivery := cfg.DeliveryTimeout
	if delivery <= 0 {
		delivery = defaultDeliveryTimeout
	}
	return []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.NotificationTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordDeliveryTimeout(delivery),
		kgo.ProduceRequestTimeout(delivery),
	}
}

// EnsureTopics creates the given topics with broker-default partitioning.
// Topics that already exist are left alone.
func EnsureTopics(ctx context.Context, client *kgo.Client, logger *slog.Logger, topics ...string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
		if t.Err == nil {
			logger.InfoContext(ctx, "kafka topic created", "topic", t.Topic)
		}
	}
	return nil
}
