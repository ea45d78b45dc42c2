package testutil

import (
	"context"
	stderrors "errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeBackend is an in-process stand-in for the JSON-RPC client. Unset
// function fields fall back to simple defaults.
type FakeBackend struct {
	mu sync.Mutex

	CallFn     func(msg ethereum.CallMsg) ([]byte, error)
	EstimateFn func(msg ethereum.CallMsg) (uint64, error)
	SendFn     func(tx *types.Transaction) error
	LogsFn     func(q ethereum.FilterQuery) ([]types.Log, error)

	Nonce    uint64
	GasPrice *big.Int
	Chain    *big.Int
	Head     uint64
	Txs      map[common.Hash]*types.Transaction

	Sent    []*types.Transaction
	Queries []ethereum.FilterQuery
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		GasPrice: big.NewInt(30_000_000_000),
		Chain:    big.NewInt(137),
		Txs:      make(map[common.Hash]*types.Transaction),
	}
}

func (f *FakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.CallFn == nil {
		return nil, stderrors.New("no contract code")
	}
	return f.CallFn(msg)
}

func (f *FakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.EstimateFn == nil {
		return 100000, nil
	}
	return f.EstimateFn(msg)
}

func (f *FakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.GasPrice, nil
}

func (f *FakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.SendFn != nil {
		if err := f.SendFn(tx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	f.Nonce++
	return nil
}

func (f *FakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, nil
}

func (f *FakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.Chain, nil
}

func (f *FakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.Head, nil
}

func (f *FakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.Queries = append(f.Queries, q)
	f.mu.Unlock()
	if f.LogsFn == nil {
		return nil, nil
	}
	return f.LogsFn(q)
}

func (f *FakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.Txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

// SentCount is safe to call while sends are in flight.
func (f *FakeBackend) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
