//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"zkgate/internal/platform/kafka/producer"
	audit "zkgate/pkg/platform/audit"
	"zkgate/pkg/platform/audit/store/memory"
	"zkgate/pkg/testutil/containers"
)

type KafkaStoreIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
	store    *Store
}

func TestKafkaStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(KafkaStoreIntegrationSuite))
}

func (s *KafkaStoreIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	p, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.producer = p
	s.store = New(p, memory.NewInMemoryStore(0), WithTopicPrefix("it.audit"))
}

func (s *KafkaStoreIntegrationSuite) TearDownSuite() {
	s.producer.Close(5 * time.Second)
}

func (s *KafkaStoreIntegrationSuite) TestEventReachesCategoryTopic() {
	ctx := context.Background()
	s.Require().NoError(s.producer.Ping(ctx))

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp:    time.Now(),
		Action:       string(audit.EventCredentialIssued),
		CredentialID: "cred_integration",
		Outcome:      "eligible",
	}))

	consumer, err := s.kafka.NewConsumer(s.store.Topic(audit.CategoryCompliance))
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForRecord(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "cred_integration"
	})
	s.Require().NotNil(record, "audit event not delivered")

	var body eventJSON
	s.Require().NoError(json.Unmarshal(record.Value, &body))
	s.Equal("credential_issued", body.Action)
	s.Equal("eligible", body.Outcome)
}
