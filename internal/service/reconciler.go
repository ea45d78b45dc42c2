package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"runtime/debug"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/models"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// LogResult is the outcome of one log of a delivery.
type LogResult struct {
	Index     int     `json:"index"`
	TxHash    string  `json:"tx_hash,omitempty"`
	LogIndex  *uint64 `json:"log_index,omitempty"`
	Kind      string  `json:"event,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
	ReplayKey string  `json:"replay_key,omitempty"`
}

type BatchReport struct {
	Results []LogResult `json:"results"`
}

// Count returns how many results have outcome o.
func (b BatchReport) Count(o Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Finalizer submits the owner finalize call for a campaign.
type Finalizer interface {
	Finalize(ctx context.Context, id *big.Int) (string, error)
}

type ReconcilerConfig struct {
	TokenDecimals int32
	AutoFinalize  bool
}

// Reconciler applies decoded contract events to the ledger.
type Reconciler struct {
	store     *repository.Store
	decoder   *blockchain.Decoder
	audit     *AuditSink
	finalizer Finalizer
	cfg       ReconcilerConfig
}

func NewReconciler(store *repository.Store, decoder *blockchain.Decoder, audit *AuditSink, finalizer Finalizer, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store:     store,
		decoder:   decoder,
		audit:     audit,
		finalizer: finalizer,
		cfg:       cfg,
	}
}

var errDuplicate = stderrors.New("duplicate delivery")

// handleResult is what a handler reports besides its error.
type handleResult struct {
	outcome  Outcome
	finalize *big.Int
}

// ProcessDelivery runs every log of d through normalize, decode and apply.
// No log can abort the batch; every failure is audited and reported.
func (r *Reconciler) ProcessDelivery(ctx context.Context, body []byte, d *blockchain.Delivery) BatchReport {
	logs := d.Logs()
	report := BatchReport{Results: make([]LogResult, 0, len(logs))}
	block := d.Block()

	for i, raw := range logs {
		report.Results = append(report.Results, r.processLog(ctx, body, i, raw, block))
	}

	logger.WithFields(map[string]interface{}{
		"delivery_id": d.ID,
		"logs":        len(logs),
		"applied":     report.Count(OutcomeApplied),
		"duplicate":   report.Count(OutcomeDuplicate),
		"failed":      report.Count(OutcomeFailed),
	}).Info("delivery processed")

	return report
}

func (r *Reconciler) processLog(ctx context.Context, body []byte, i int, raw json.RawMessage, block *blockchain.RawBlock) LogResult {
	result := LogResult{Index: i}

	rec, err := blockchain.NormalizeLog(raw, block)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Error = err.Error()
		result.ReplayKey = r.audit.Record(ctx, Failure{
			Stage:   models.AuditStageNormalize,
			Payload: body,
			Err:     err,
			Notes:   fmt.Sprintf("log %d: %s", i, raw),
		})
		return result
	}
	result.TxHash = rec.TxHash
	result.LogIndex = rec.LogIndex

	if rec.Removed {
		logger.WithFields(map[string]interface{}{
			"tx_hash":   rec.TxHash,
			"log_index": rec.LogIndex,
		}).Warn("skipping removed log")
		result.Outcome = OutcomeSkipped
		return result
	}

	ev, err := r.decoder.Decode(rec)
	if stderrors.Is(err, blockchain.ErrUnknownEvent) {
		logger.WithFields(map[string]interface{}{
			"topic":   rec.Topics[0].Hex(),
			"tx_hash": rec.TxHash,
		}).Debug("unknown event topic")
		result.Outcome = OutcomeSkipped
		return result
	}
	if err != nil {
		kind, _ := r.decoder.Lookup(rec.Topics[0])
		result.Kind = string(kind)
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		result.ReplayKey = r.audit.Record(ctx, Failure{
			Stage:    models.AuditStageDecode,
			Kind:     string(kind),
			TxHash:   rec.TxHash,
			LogIndex: rec.LogIndex,
			Payload:  body,
			Err:      errors.New(errors.ErrEventDecode, "failed to decode log", err),
			Notes:    fmt.Sprintf("log %d: %s", i, raw),
		})
		return result
	}
	result.Kind = string(ev.Kind())

	res, stack, err := r.apply(ctx, rec, ev)
	switch {
	case stderrors.Is(err, errDuplicate):
		logger.WithFields(map[string]interface{}{
			"event":     ev.Kind(),
			"tx_hash":   rec.TxHash,
			"log_index": rec.LogIndex,
		}).Info("event already processed")
		result.Outcome = OutcomeDuplicate
		return result
	case err != nil:
		notes := fmt.Sprintf("log %d: %s", i, raw)
		if stack != nil {
			notes += "\n" + string(stack)
		}
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		result.ReplayKey = r.audit.Record(ctx, Failure{
			Stage:    models.AuditStageHandle,
			Kind:     string(ev.Kind()),
			TxHash:   rec.TxHash,
			LogIndex: rec.LogIndex,
			Payload:  body,
			Err:      err,
			Notes:    notes,
		})
		return result
	}
	result.Outcome = res.outcome

	if res.finalize != nil {
		r.followUpFinalize(ctx, body, rec, res.finalize)
	}
	return result
}

// apply runs the handler for ev inside one database transaction. A panic in
// the handler rolls the transaction back and is returned as an error together
// with the goroutine stack.
func (r *Reconciler) apply(ctx context.Context, rec blockchain.LogRecord, ev blockchain.Event) (res handleResult, stack []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack = debug.Stack()
			err = errors.New(errors.ErrReconcile, fmt.Sprintf("handler panic: %v", p), nil)
		}
	}()

	err = r.store.Transaction(ctx, func(tx *repository.Store) error {
		if rec.TxHash == "" || rec.LogIndex == nil {
			logger.WithFields(map[string]interface{}{
				"event":   ev.Kind(),
				"tx_hash": rec.TxHash,
			}).Warn("log has no dedup key, processing without duplicate protection")
		} else {
			claimErr := tx.Events.Claim(ctx, &models.ProcessedEvent{
				TxHash:      rec.TxHash,
				LogIndex:    *rec.LogIndex,
				EventKind:   string(ev.Kind()),
				BlockNumber: rec.BlockNumber,
			})
			if stderrors.Is(claimErr, repository.ErrAlreadyProcessed) {
				return errDuplicate
			}
			if claimErr != nil {
				return errors.New(errors.ErrLedgerUpdate, "failed to claim event", claimErr)
			}
		}

		var hErr error
		res, hErr = r.dispatch(ctx, tx, rec, ev)
		return hErr
	})
	return res, stack, err
}

func (r *Reconciler) dispatch(ctx context.Context, tx *repository.Store, rec blockchain.LogRecord, ev blockchain.Event) (handleResult, error) {
	switch e := ev.(type) {
	case blockchain.CampaignCreatedEvent:
		return r.onCampaignCreated(ctx, tx, rec, e)
	case blockchain.PledgedEvent:
		return r.onPledged(ctx, tx, rec, e)
	case blockchain.CampaignStateChangedEvent:
		return r.onCampaignStateChanged(ctx, tx, e)
	case blockchain.MilestoneApprovedEvent:
		return r.onMilestoneApproved(ctx, tx, e)
	case blockchain.MilestoneWithdrawnEvent:
		return r.onMilestoneWithdrawn(ctx, tx, rec, e)
	case blockchain.RefundedEvent:
		return r.onRefunded(ctx, tx, rec, e)
	case blockchain.UnpledgedEvent,
		blockchain.PlatformWalletUpdatedEvent,
		blockchain.FeeUpdatedEvent,
		blockchain.TokenAllowlistUpdatedEvent,
		blockchain.PausedEvent,
		blockchain.UnpausedEvent,
		blockchain.OwnershipTransferredEvent:
		return r.onAcknowledged(rec, e)
	default:
		return handleResult{}, errors.New(errors.ErrReconcile, fmt.Sprintf("no handler for %s", ev.Kind()), nil)
	}
}

// followUpFinalize submits finalize after the pledge that completed the last
// milestone has committed. Failures are audited only.
func (r *Reconciler) followUpFinalize(ctx context.Context, body []byte, rec blockchain.LogRecord, id *big.Int) {
	if !r.cfg.AutoFinalize || r.finalizer == nil {
		return
	}
	hash, err := r.finalizer.Finalize(ctx, id)
	if err != nil {
		r.audit.Record(ctx, Failure{
			Stage:    models.AuditStageFollowUp,
			Kind:     string(blockchain.KindPledged),
			TxHash:   rec.TxHash,
			LogIndex: rec.LogIndex,
			Payload:  body,
			Err:      err,
			Notes:    fmt.Sprintf("finalize(%s) after final milestone completed", id),
		})
		return
	}
	logger.WithFields(map[string]interface{}{
		"campaign_id": id.String(),
		"tx_hash":     hash,
	}).Info("finalize submitted")
}

// Replay re-runs the delivery stored in an audit record. Events that were
// applied since are reported as duplicates.
func (r *Reconciler) Replay(ctx context.Context, key string) (*BatchReport, error) {
	record, err := r.audit.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAuditRecordNotFound
	}
	body := []byte(record.Data)
	d, err := blockchain.ParseDelivery(body)
	if err != nil {
		return nil, fmt.Errorf("stored payload is not a delivery: %w", err)
	}
	report := r.ProcessDelivery(ctx, body, d)
	return &report, nil
}
