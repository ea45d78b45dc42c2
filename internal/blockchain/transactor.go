package blockchain

import (
	"context"
	"crypto/ecdsa"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChainID is used when neither config nor the node report a chain id.
const DefaultChainID = 137

var ErrMissingOwnerKey = stderrors.New("owner private key is not configured")

// Call describes one contract method invocation.
type Call struct {
	Method string
	Args   []interface{}
}

// TxOverrides replaces fields the transactor would otherwise fill in.
// GasLimit is used only when gas estimation fails.
type TxOverrides struct {
	Nonce    *uint64
	GasPrice *big.Int
	GasLimit uint64
	Value    *big.Int
}

// OwnerTransactor signs and submits privileged calls with the platform owner
// key. Sends are serialized so concurrent calls never reuse a pending nonce.
type OwnerTransactor struct {
	client *Client
	key    *ecdsa.PrivateKey
	from   common.Address
	mu     sync.Mutex
}

func NewOwnerTransactor(client *Client) (*OwnerTransactor, error) {
	t := &OwnerTransactor{client: client}
	hexKey := strings.TrimPrefix(strings.TrimSpace(client.chainCfg.OwnerPrivateKey), "0x")
	if hexKey == "" {
		logger.Warn("owner private key not set; privileged transactions are disabled")
		return t, nil
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.New(errors.ErrConfigLoad, "invalid owner private key", err)
	}
	t.key = key
	t.from = crypto.PubkeyToAddress(key.PublicKey)
	return t, nil
}

// From returns the owner address, or the zero address without a key.
func (t *OwnerTransactor) From() common.Address {
	return t.from
}

func (t *OwnerTransactor) Enabled() bool {
	return t.key != nil
}

// Send builds, signs and submits call. It returns the transaction hash.
func (t *OwnerTransactor) Send(ctx context.Context, call Call, overrides *TxOverrides) (string, error) {
	if t.key == nil {
		return "", ErrMissingOwnerKey
	}
	if overrides == nil {
		overrides = &TxOverrides{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.client
	backend := c.backend

	input, err := c.abi.Pack(call.Method, call.Args...)
	if err != nil {
		return "", errors.New(errors.ErrTxBuild, fmt.Sprintf("failed to pack %s", call.Method), err)
	}

	nonce := uint64(0)
	if overrides.Nonce != nil {
		nonce = *overrides.Nonce
	} else {
		nonce, err = backend.PendingNonceAt(ctx, t.from)
		if err != nil {
			return "", errors.New(errors.ErrTxBuild, "failed to fetch pending nonce", err)
		}
	}

	gasPrice := overrides.GasPrice
	if gasPrice == nil {
		gasPrice, err = backend.SuggestGasPrice(ctx)
		if err != nil {
			return "", errors.New(errors.ErrTxBuild, "failed to fetch gas price", err)
		}
	}

	value := overrides.Value
	if value == nil {
		value = new(big.Int)
	}

	chainID := t.chainID(ctx)
	gasLimit := t.gasLimit(ctx, call.Method, ethereum.CallMsg{
		From:     t.from,
		To:       &c.contract,
		GasPrice: gasPrice,
		Value:    value,
		Data:     input,
	}, overrides.GasLimit)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &c.contract,
		Value:    value,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return "", errors.New(errors.ErrTxSign, "failed to sign transaction", err)
	}
	hash := signed.Hash().Hex()

	if err := t.submit(ctx, signed); err != nil {
		return "", errors.New(errors.ErrTxSubmit, fmt.Sprintf("failed to submit %s", call.Method), err)
	}

	logger.WithFields(map[string]interface{}{
		"method":    call.Method,
		"tx_hash":   hash,
		"nonce":     nonce,
		"gas_limit": gasLimit,
		"gas_price": gasPrice.String(),
		"chain_id":  chainID.String(),
	}).Info("owner transaction submitted")

	return hash, nil
}

func (t *OwnerTransactor) chainID(ctx context.Context) *big.Int {
	if id := t.client.chainCfg.ChainID; id != 0 {
		return new(big.Int).SetUint64(id)
	}
	id, err := t.client.backend.ChainID(ctx)
	if err != nil || id == nil || id.Sign() == 0 {
		logger.WithFields(map[string]interface{}{
			"fallback": DefaultChainID,
		}).Warn("chain id unavailable, using fallback")
		return big.NewInt(DefaultChainID)
	}
	return id
}

// gasLimit returns estimate*(100+buffer)/100, or the fallback when
// estimation fails.
func (t *OwnerTransactor) gasLimit(ctx context.Context, method string, msg ethereum.CallMsg, override uint64) uint64 {
	cfg := t.client.chainCfg
	estimate, err := t.client.backend.EstimateGas(ctx, msg)
	if err != nil || estimate == 0 {
		fallback := override
		if fallback == 0 {
			fallback = cfg.GasLimitFallback
		}
		if fallback == 0 {
			fallback = 500000
		}
		logger.WithFields(map[string]interface{}{
			"method":   method,
			"fallback": fallback,
			"error":    fmt.Sprint(err),
		}).Warn("gas estimation failed, using fallback")
		return fallback
	}
	return estimate * (100 + cfg.GasBufferPercent) / 100
}

func (t *OwnerTransactor) submit(ctx context.Context, tx *types.Transaction) error {
	cfg := t.client.chainCfg
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	delay := time.Duration(cfg.RetryDelayMillis) * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = t.client.backend.SendTransaction(ctx, tx)
		if err == nil || isAlreadyKnown(err) {
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"tx_hash": tx.Hash().Hex(),
			"attempt": i + 1,
		}).WithError(err).Warn("send transaction failed, retrying")

		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * delay):
		}
	}
	return err
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func (t *OwnerTransactor) Pause(ctx context.Context) (string, error) {
	return t.Send(ctx, Call{Method: "pause"}, nil)
}

func (t *OwnerTransactor) Unpause(ctx context.Context) (string, error) {
	return t.Send(ctx, Call{Method: "unpause"}, nil)
}

func (t *OwnerTransactor) SetFeeBps(ctx context.Context, feeBps *big.Int) (string, error) {
	return t.Send(ctx, Call{Method: "setFeeBps", Args: []interface{}{feeBps}}, nil)
}

func (t *OwnerTransactor) SetPlatformWallet(ctx context.Context, wallet common.Address) (string, error) {
	return t.Send(ctx, Call{Method: "setPlatformWallet", Args: []interface{}{wallet}}, nil)
}

func (t *OwnerTransactor) SetTokenAllowed(ctx context.Context, token common.Address, allowed bool) (string, error) {
	return t.Send(ctx, Call{Method: "setTokenAllowed", Args: []interface{}{token, allowed}}, nil)
}

func (t *OwnerTransactor) TransferOwnership(ctx context.Context, newOwner common.Address) (string, error) {
	return t.Send(ctx, Call{Method: "transferOwnership", Args: []interface{}{newOwner}}, nil)
}

func (t *OwnerTransactor) ApproveMilestone(ctx context.Context, id, index *big.Int) (string, error) {
	return t.Send(ctx, Call{Method: "approveMilestone", Args: []interface{}{id, index}}, nil)
}

func (t *OwnerTransactor) WithdrawMilestone(ctx context.Context, id, index *big.Int) (string, error) {
	return t.Send(ctx, Call{Method: "withdrawMilestone", Args: []interface{}{id, index}}, nil)
}

func (t *OwnerTransactor) Finalize(ctx context.Context, id *big.Int) (string, error) {
	return t.Send(ctx, Call{Method: "finalize", Args: []interface{}{id}}, nil)
}
