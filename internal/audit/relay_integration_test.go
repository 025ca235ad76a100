//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"castline/internal/audit"
	"castline/internal/platform/config"
	"castline/internal/platform/kafka"
	id "castline/pkg/domain"
	auditmodel "castline/pkg/platform/audit"
	auditpg "castline/pkg/platform/audit/store/postgres"
	"castline/pkg/platform/tx"
	"castline/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	producer *kafka.Producer
	topic    string
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.kafka = mgr.GetKafka(s.T())
	s.topic = "castline.audit.relay-test"

	producer, err := kafka.NewProducer(context.Background(), config.KafkaConfig{
		Brokers:     s.kafka.Brokers,
		AuditTopic:  s.topic,
		Partitions:  1,
		Replication: 1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.producer = producer
}

func (s *RelaySuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) TestOutboxRowsReachTheTopic() {
	ctx := context.Background()
	outbox := auditpg.New(s.postgres.DB)
	account := id.AccountID(id.NewSubjectID())
	subjects := []string{id.NewSubjectID().String(), id.NewSubjectID().String()}
	for _, subject := range subjects {
		s.Require().NoError(outbox.Append(ctx, auditmodel.Event{
			Timestamp: time.Now(),
			AccountID: account,
			Subject:   subject,
			Action:    string(auditmodel.EventSubjectApproved),
			ActorID:   "admin",
		}))
	}

	relay, err := audit.NewRelay(outbox, s.producer, audit.RelayConfig{BatchSize: 10},
		audit.WithTxRunner(tx.NewSQLRunner(s.postgres.DB)))
	s.Require().NoError(err)

	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	pending, err := outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	seen := map[string]string{}
	deadline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for len(seen) < len(subjects) {
		fetches := consumer.PollFetches(deadline)
		s.Require().NoError(deadline.Err())
		fetches.EachRecord(func(rec *kgo.Record) {
			var payload struct {
				Action   string `json:"action"`
				Category string `json:"category"`
			}
			s.Require().NoError(json.Unmarshal(rec.Value, &payload))
			s.Equal("compliance", payload.Category)
			seen[string(rec.Key)] = payload.Action
		})
	}
	for _, subject := range subjects {
		s.Equal(string(auditmodel.EventSubjectApproved), seen[subject])
	}

	n, err = relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}
