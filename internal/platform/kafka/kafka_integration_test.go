//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"vcissuer/internal/platform/kafka"
	"vcissuer/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	brokers  []string
	producer *kafka.Producer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
	producer, err := kafka.NewProducer(s.brokers)
	s.Require().NoError(err)
	s.producer = producer
}

func (s *ProducerSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *ProducerSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.producer.EnsureTopic(ctx, "vcissuer.test.ensure", 1, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, "vcissuer.test.ensure", 1, 1))
}

func (s *ProducerSuite) TestPublishIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "vcissuer.test.publish"
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.Ping(ctx))

	err := s.producer.Publish(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte("vc-1"),
		Value:   []byte(`{"credential_id":"vc-1"}`),
		Headers: map[string]string{"event_type": "credential.revoked"},
	})
	s.Require().NoError(err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("vc-1", string(records[0].Key))
	s.Require().Len(records[0].Headers, 1)
	s.Equal("credential.revoked", string(records[0].Headers[0].Value))
}
