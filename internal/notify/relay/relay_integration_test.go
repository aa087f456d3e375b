//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"labelcheck/internal/notify"
	"labelcheck/internal/notify/relay"
	"labelcheck/internal/platform/config"
	platformkafka "labelcheck/internal/platform/kafka"
	"labelcheck/pkg/testutil/containers"
)

type RelayIntegrationSuite struct {
	suite.Suite
}

func TestRelayIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) TestRedisSinkPublishes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rc := containers.GetManager().GetRedis(s.T())

	pubsub := rc.Client.Subscribe(ctx, relay.DefaultRedisChannel)
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	s.Require().NoError(err)

	sink := relay.NewRedisSink(rc.Client, "")
	s.Require().NoError(sink.Send(ctx, notify.Notification{ID: "n1", Type: notify.TypeSyncAck, ApplicationID: "app-1", Scope: notify.ScopeApplication}))

	msg, err := pubsub.ReceiveMessage(ctx)
	s.Require().NoError(err)
	var got notify.Notification
	s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &got))
	s.Equal("n1", got.ID)
	s.Equal(notify.TypeSyncAck, got.Type)
}

func (s *RelayIntegrationSuite) TestKafkaSinkProduces() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(s.T()).Broker

	producer, err := platformkafka.New(ctx, config.Kafka{Brokers: []string{broker}, Topic: relay.DefaultKafkaTopic})
	s.Require().NoError(err)
	s.Require().NoError(relay.EnsureTopic(ctx, producer, relay.DefaultKafkaTopic, 1, 1))
	s.Require().NoError(relay.EnsureTopic(ctx, producer, relay.DefaultKafkaTopic, 1, 1), "second create is a no-op")

	sink := relay.NewKafkaSink(producer, "")
	defer sink.Close()
	s.Require().NoError(sink.Send(ctx, notify.Notification{ID: "n2", Type: notify.TypeBatchProgress, BatchID: "batch-1", Scope: notify.ScopeBatch}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(relay.DefaultKafkaTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)
	s.Equal("batch-1", string(records[0].Key))

	var got notify.Notification
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("n2", got.ID)
}
