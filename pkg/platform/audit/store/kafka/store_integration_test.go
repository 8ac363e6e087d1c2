//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	platformkafka "captable/internal/platform/kafka"
	id "captable/pkg/domain"
	audit "captable/pkg/platform/audit"
	"captable/pkg/platform/audit/store/kafka"
	"captable/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *kgo.Client
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	producer, err := platformkafka.NewProducer(s.kafka.Brokers, "audit-test")
	s.Require().NoError(err)
	s.producer = producer
}

func (s *KafkaStoreSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaStoreSuite) TestAppendIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "company.audit." + uuid.NewString()
	s.Require().NoError(platformkafka.EnsureTopic(ctx, s.producer, topic, 1, 1))

	companyID := id.NewCompanyID()
	event := audit.Event{
		ID:           uuid.New(),
		ActorType:    audit.ActorSystem,
		Action:       audit.ActionVerificationFailed,
		ResourceType: audit.ResourceCompany,
		ResourceID:   companyID.String(),
		CompanyID:    companyID,
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(kafka.New(s.producer, topic).Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(companyID.String(), string(records[0].Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(event.ID, got.ID)
	s.Equal(audit.ActionVerificationFailed, got.Action)
}
