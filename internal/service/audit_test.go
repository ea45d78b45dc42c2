package service_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/service"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordStoresFailure(t *testing.T) {
	f := newFixture(t, false)
	logIndex := uint64(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key := f.audit.Record(ctx, service.Failure{
		Stage:    models.AuditStageDecode,
		Kind:     "Pledged",
		TxHash:   "0xabc",
		LogIndex: &logIndex,
		Payload:  []byte(`{"id":"whevt_1"}`),
		Err:      stderrors.New("bad data"),
		Notes:    "log 0",
	})
	require.NotEmpty(t, key)

	record, err := f.audit.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, models.AuditStageDecode, record.Stage)
	require.Equal(t, "bad data", record.Error)
	require.Equal(t, `{"id":"whevt_1"}`, record.Data)
	require.Equal(t, uint64(3), *record.LogIndex)
}

func TestAuditRecordKeepsBinaryPayload(t *testing.T) {
	f := newFixture(t, false)

	key := f.audit.Record(context.Background(), service.Failure{
		Stage:   models.AuditStageRequest,
		Payload: []byte{0xff, 0xfe, 'x'},
	})
	record, err := f.audit.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, `"\xff\xfex"`, record.Data)
	require.Equal(t, "unknown error", record.Error)
}

func TestAuditRecordNeverFails(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.db.Migrator().DropTable(&models.AuditRecord{}))

	key := f.audit.Record(context.Background(), service.Failure{
		Stage:   models.AuditStageHandle,
		Payload: []byte("payload"),
		Err:     stderrors.New("handler failed"),
	})
	require.Empty(t, key)
}

func TestAuditRecent(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 3; i++ {
		f.audit.Record(context.Background(), service.Failure{Stage: models.AuditStageRequest, Payload: []byte("{}")})
	}

	records, err := f.audit.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	missing, err := f.audit.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}
