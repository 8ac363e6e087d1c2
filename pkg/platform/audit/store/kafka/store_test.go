package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "captable/pkg/domain"
	audit "captable/pkg/platform/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestAppendProducesKeyedRecord(t *testing.T) {
	producer := &fakeProducer{}
	store := New(producer, "company.audit")
	companyID := id.NewCompanyID()
	event := audit.Event{
		ID:        uuid.New(),
		ActorType: audit.ActorUser,
		Action:    audit.ActionVerificationCompleted,
		CompanyID: companyID,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Append(context.Background(), event))
	require.Len(t, producer.records, 1)

	record := producer.records[0]
	assert.Equal(t, "company.audit", record.Topic)
	assert.Equal(t, companyID.String(), string(record.Key))
	assert.Equal(t, "compliance", string(record.Headers[1].Value))

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, audit.ActionVerificationCompleted, decoded.Action)
}

func TestAppendSurfacesProduceError(t *testing.T) {
	store := New(&fakeProducer{err: errors.New("broker down")}, "company.audit")
	err := store.Append(context.Background(), audit.Event{ID: uuid.New(), Action: audit.ActionStatusChanged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
