package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"regflow/internal/platform/config"
)

func TestNewClientWithoutBrokers(t *testing.T) {
	client, err := NewClient(config.KafkaConfig{NotificationTopic: "registration-notifications"})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewClientDoesNotDialEagerly(t *testing.T) {
	client, err := NewClient(config.KafkaConfig{
		Brokers:           []string{"127.0.0.1:1"},
		ClientID:          "regflow-test",
		NotificationTopic: "registration-notifications",
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()
}

func TestNewClientBoundsDelivery(t *testing.T) {
	client, err := NewClient(config.KafkaConfig{
		Brokers:         []string{"127.0.0.1:1"},
		DeliveryTimeout: 750 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 750*time.Millisecond, client.OptValue(kgo.RecordDeliveryTimeout))
	assert.Equal(t, 750*time.Millisecond, client.OptValue(kgo.ProduceRequestTimeout))

	fallback, err := NewClient(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	defer fallback.Close()
	assert.Equal(t, defaultDeliveryTimeout, fallback.OptValue(kgo.RecordDeliveryTimeout))
}
