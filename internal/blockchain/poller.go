package blockchain

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/config"
	"github.com/Blackspectre-tech/u4c-backends/internal/repository"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const maxBatchSize = 5000

// DeliverFunc hands one synthetic delivery to the reconciliation pipeline.
type DeliverFunc func(ctx context.Context, body []byte, d *Delivery) error

// LogPoller pulls contract logs with eth_getLogs and replays them through the
// webhook pipeline, one delivery per block. Deduplication downstream makes
// overlap with webhook deliveries harmless.
type LogPoller struct {
	cfg          *config.PollerConfig
	client       *Client
	cursors      *repository.CursorRepository
	deliver      DeliverFunc
	cursorName   string
	stopChan     chan struct{}
	isProcessing int32
}

func NewLogPoller(cfg *config.PollerConfig, client *Client, cursors *repository.CursorRepository, deliver DeliverFunc) *LogPoller {
	return &LogPoller{
		cfg:        cfg,
		client:     client,
		cursors:    cursors,
		deliver:    deliver,
		cursorName: "logs:" + strings.ToLower(client.contract.Hex()),
		stopChan:   make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called.
func (p *LogPoller) Start(ctx context.Context) {
	interval := time.Duration(p.cfg.PullInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("log poller stopped: context cancelled")
			return
		case <-p.stopChan:
			logger.Info("log poller stopped")
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&p.isProcessing, 0, 1) {
				logger.Warn("previous poll still running, skipping tick")
				continue
			}
			if _, err := p.PollOnce(ctx); err != nil {
				logger.WithError(err).Error("log poll failed")
			}
			atomic.StoreInt32(&p.isProcessing, 0)
		}
	}
}

func (p *LogPoller) Stop() {
	close(p.stopChan)
}

func (p *LogPoller) IsProcessing() bool {
	return atomic.LoadInt32(&p.isProcessing) == 1
}

// PollOnce delivers the next block range and advances the cursor. It returns
// the last block covered.
func (p *LogPoller) PollOnce(ctx context.Context) (uint64, error) {
	last, err := p.cursors.Get(ctx, p.cursorName)
	if err != nil {
		return 0, err
	}

	latest, err := p.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return last, err
	}

	start := last + 1
	if last == 0 && p.cfg.StartBlock > 0 {
		start = p.cfg.StartBlock
	}
	if start > latest {
		return last, nil
	}

	batchSize := p.cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	end := latest
	if end-start >= batchSize {
		end = start + batchSize - 1
	}

	logs, err := p.client.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(start),
		ToBlock:   new(big.Int).SetUint64(end),
		Addresses: []common.Address{p.client.contract},
	})
	if err != nil {
		return last, err
	}

	logger.WithFields(map[string]interface{}{
		"start_block": start,
		"end_block":   end,
		"logs_count":  len(logs),
	}).Info("polled contract logs")

	for _, block := range groupByBlock(logs) {
		body, d, err := p.buildDelivery(ctx, block)
		if err != nil {
			return last, err
		}
		if err := p.deliver(ctx, body, d); err != nil {
			return last, err
		}
	}

	if err := p.cursors.Save(ctx, p.cursorName, end); err != nil {
		return last, err
	}
	return end, nil
}

func groupByBlock(logs []types.Log) [][]types.Log {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	var groups [][]types.Log
	for i, l := range logs {
		if i == 0 || l.BlockNumber != logs[i-1].BlockNumber {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], l)
	}
	return groups
}

// buildDelivery renders logs of one block in the webhook shape.
func (p *LogPoller) buildDelivery(ctx context.Context, logs []types.Log) ([]byte, *Delivery, error) {
	first := logs[0]
	block := &RawBlock{
		Hash:   first.BlockHash.Hex(),
		Number: NewFlexUint(first.BlockNumber),
	}

	senders := make(map[common.Hash]string)
	for _, l := range logs {
		from, ok := senders[l.TxHash]
		if !ok {
			from = p.sender(ctx, l.TxHash)
			senders[l.TxHash] = from
		}

		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		raw := RawLog{
			Address:          l.Address.Hex(),
			Topics:           topics,
			Data:             hexutil.Encode(l.Data),
			LogIndex:         NewFlexUint(uint64(l.Index)),
			BlockNumber:      NewFlexUint(l.BlockNumber),
			BlockHash:        l.BlockHash.Hex(),
			TransactionHash:  l.TxHash.Hex(),
			TransactionIndex: NewFlexUint(uint64(l.TxIndex)),
			Removed:          l.Removed,
			Transaction: &RawTransaction{
				Hash:  l.TxHash.Hex(),
				Index: NewFlexUint(uint64(l.TxIndex)),
			},
		}
		if from != "" {
			raw.Transaction.From = &RawAccount{Address: from}
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, nil, err
		}
		block.Logs = append(block.Logs, encoded)
	}

	d := &Delivery{Type: "POLLED_LOGS"}
	d.Event.Data.Block = block
	body, err := json.Marshal(d)
	if err != nil {
		return nil, nil, err
	}
	return body, d, nil
}

// sender recovers the from address of a transaction; "" when unavailable.
func (p *LogPoller) sender(ctx context.Context, hash common.Hash) string {
	tx, _, err := p.client.backend.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		logger.WithFields(map[string]interface{}{
			"tx_hash": hash.Hex(),
		}).Warn("could not fetch transaction for sender lookup")
		return ""
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	return strings.ToLower(from.Hex())
}
