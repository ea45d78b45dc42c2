package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// fallbackPayloadLimit bounds the payload kept by the minimal record written
// when the full record cannot be stored.
const fallbackPayloadLimit = 2048

// Failure is one processing failure handed to the audit sink.
type Failure struct {
	Stage    models.AuditStage
	Kind     string
	TxHash   string
	LogIndex *uint64
	Payload  []byte
	Err      error
	Notes    string
}

// AuditSink persists failures. Record never fails and never blocks the batch
// on its own errors.
type AuditSink struct {
	repo *repository.AuditRepository
}

func NewAuditSink(repo *repository.AuditRepository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Record stores f and returns the replay key of the stored record, or "" when
// nothing could be stored.
func (s *AuditSink) Record(ctx context.Context, f Failure) string {
	// The write must land even when the request that caused it is gone.
	ctx = context.WithoutCancel(ctx)

	errText := "unknown error"
	if f.Err != nil {
		errText = f.Err.Error()
	}

	record := &models.AuditRecord{
		ReplayKey: uuid.NewString(),
		Stage:     f.Stage,
		EventKind: f.Kind,
		TxHash:    f.TxHash,
		LogIndex:  f.LogIndex,
		Data:      toValidUTF8(f.Payload),
		Error:     errText,
		Notes:     f.Notes,
	}

	fields := logrus.Fields{
		"stage":      f.Stage,
		"event":      f.Kind,
		"tx_hash":    f.TxHash,
		"replay_key": record.ReplayKey,
	}

	err := s.repo.Create(ctx, record)
	if err == nil {
		logger.WithFields(fields).WithError(f.Err).Warn("failure recorded")
		return record.ReplayKey
	}

	minimal := &models.AuditRecord{
		ReplayKey: uuid.NewString(),
		Stage:     f.Stage,
		Data:      truncate(toValidUTF8(f.Payload), fallbackPayloadLimit),
		Error:     errText,
		Notes:     fmt.Sprintf("full audit record failed: %v", err),
	}
	fbErr := s.repo.Create(ctx, minimal)
	if fbErr == nil {
		fields["replay_key"] = minimal.ReplayKey
		logger.WithFields(fields).WithError(err).Warn("failure recorded with minimal audit record")
		return minimal.ReplayKey
	}

	fields["audit_error"] = fbErr.Error()
	fields["error"] = errText
	fields["payload"] = truncate(toValidUTF8(f.Payload), fallbackPayloadLimit)
	logger.WithFields(fields).Error("failed to persist audit record")
	return ""
}

func (s *AuditSink) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	return s.repo.GetRecent(ctx, limit)
}

func (s *AuditSink) Get(ctx context.Context, key string) (*models.AuditRecord, error) {
	return s.repo.GetByReplayKey(ctx, key)
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("%q", b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
