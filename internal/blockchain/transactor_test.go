package blockchain_test

import (
	"context"
	stderrors "errors"
	"math/big"
	"testing"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"
	"github.com/Blackspectre-tech/u4c-backends/internal/config"
	"github.com/Blackspectre-tech/u4c-backends/internal/testutil"
	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const ownerKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func init() {
	logger.Discard()
}

func chainConfig() *config.ChainConfig {
	return &config.ChainConfig{
		ContractAddress:  testutil.ContractAddress.Hex(),
		ChainID:          137,
		TokenDecimals:    6,
		OwnerPrivateKey:  ownerKey,
		GasBufferPercent: 20,
		MaxRetries:       3,
		RetryDelayMillis: 1,
	}
}

func newTransactor(t *testing.T, cfg *config.ChainConfig, backend *testutil.FakeBackend) *blockchain.OwnerTransactor {
	t.Helper()
	client, err := blockchain.NewClientWithBackend(cfg, backend)
	require.NoError(t, err)
	tr, err := blockchain.NewOwnerTransactor(client)
	require.NoError(t, err)
	return tr
}

func TestOwnerTransactorSignsForChain(t *testing.T) {
	backend := testutil.NewFakeBackend()
	backend.Nonce = 4
	tr := newTransactor(t, chainConfig(), backend)

	key, err := crypto.HexToECDSA(ownerKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), tr.From())
	require.True(t, tr.Enabled())

	hash, err := tr.SetFeeBps(context.Background(), big.NewInt(250))
	require.NoError(t, err)
	require.Len(t, backend.Sent, 1)

	tx := backend.Sent[0]
	require.Equal(t, tx.Hash().Hex(), hash)
	require.Equal(t, uint64(4), tx.Nonce())
	require.Equal(t, uint64(120000), tx.Gas())
	require.Equal(t, testutil.ContractAddress, *tx.To())
	require.Equal(t, big.NewInt(137), tx.ChainId())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	require.NoError(t, err)
	require.Equal(t, tr.From(), from)

	parsed, err := blockchain.ParseCrowdfundABI()
	require.NoError(t, err)
	method, err := parsed.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	require.Equal(t, "setFeeBps", method.Name)
}

func TestOwnerTransactorMissingKey(t *testing.T) {
	cfg := chainConfig()
	cfg.OwnerPrivateKey = ""
	backend := testutil.NewFakeBackend()
	tr := newTransactor(t, cfg, backend)

	require.False(t, tr.Enabled())
	_, err := tr.Pause(context.Background())
	require.ErrorIs(t, err, blockchain.ErrMissingOwnerKey)
	require.Empty(t, backend.Sent)
}

func TestOwnerTransactorInvalidKey(t *testing.T) {
	cfg := chainConfig()
	cfg.OwnerPrivateKey = "0xnothex"
	client, err := blockchain.NewClientWithBackend(cfg, testutil.NewFakeBackend())
	require.NoError(t, err)

	_, err = blockchain.NewOwnerTransactor(client)
	require.Error(t, err)
	require.Equal(t, errors.ErrConfigLoad, errors.CodeOf(err))
}

func TestOwnerTransactorGasFallback(t *testing.T) {
	cfg := chainConfig()
	cfg.GasLimitFallback = 321000
	backend := testutil.NewFakeBackend()
	backend.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		return 0, stderrors.New("execution reverted")
	}
	tr := newTransactor(t, cfg, backend)

	_, err := tr.Finalize(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(321000), backend.Sent[0].Gas())

	_, err = tr.Send(context.Background(), blockchain.Call{Method: "unpause"}, &blockchain.TxOverrides{GasLimit: 90000})
	require.NoError(t, err)
	require.Equal(t, uint64(90000), backend.Sent[1].Gas())
}

func TestOwnerTransactorChainIDFallback(t *testing.T) {
	cfg := chainConfig()
	cfg.ChainID = 0
	backend := testutil.NewFakeBackend()
	backend.Chain = big.NewInt(80002)
	tr := newTransactor(t, cfg, backend)

	_, err := tr.Pause(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(80002), backend.Sent[0].ChainId())

	backend.Chain = nil
	_, err = tr.Unpause(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(blockchain.DefaultChainID), backend.Sent[1].ChainId())
}

func TestOwnerTransactorRetries(t *testing.T) {
	backend := testutil.NewFakeBackend()
	attempts := 0
	backend.SendFn = func(*types.Transaction) error {
		attempts++
		if attempts < 3 {
			return stderrors.New("connection reset")
		}
		return nil
	}
	tr := newTransactor(t, chainConfig(), backend)

	_, err := tr.TransferOwnership(context.Background(), common.HexToAddress("0x3000000000000000000000000000000000000003"))
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestOwnerTransactorAlreadyKnown(t *testing.T) {
	backend := testutil.NewFakeBackend()
	attempts := 0
	backend.SendFn = func(*types.Transaction) error {
		attempts++
		return stderrors.New("already known")
	}
	tr := newTransactor(t, chainConfig(), backend)

	hash, err := tr.ApproveMilestone(context.Background(), big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Equal(t, 1, attempts)
}

func TestOwnerTransactorGivesUp(t *testing.T) {
	backend := testutil.NewFakeBackend()
	attempts := 0
	backend.SendFn = func(*types.Transaction) error {
		attempts++
		return stderrors.New("nonce too low")
	}
	tr := newTransactor(t, chainConfig(), backend)

	_, err := tr.SetTokenAllowed(context.Background(), backer, true)
	require.Error(t, err)
	require.Equal(t, errors.ErrTxSubmit, errors.CodeOf(err))
	require.Equal(t, 3, attempts)
}

func TestClientReads(t *testing.T) {
	parsed, err := blockchain.ParseCrowdfundABI()
	require.NoError(t, err)

	backend := testutil.NewFakeBackend()
	backend.CallFn = func(msg ethereum.CallMsg) ([]byte, error) {
		method, err := parsed.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "owner", "platformWallet":
			return method.Outputs.Pack(creator)
		case "paused":
			return method.Outputs.Pack(true)
		case "feeBps":
			return method.Outputs.Pack(big.NewInt(250))
		case "campaignCount":
			return method.Outputs.Pack(big.NewInt(12))
		case "getCampaignCore":
			return method.Outputs.Pack(creator, backer, big.NewInt(1000), big.NewInt(600), uint64(1717200000), uint8(0), uint8(2), uint8(1))
		case "getMilestone":
			return method.Outputs.Pack(big.NewInt(600), true, false)
		}
		return nil, stderrors.New("unexpected call")
	}
	client, err := blockchain.NewClientWithBackend(chainConfig(), backend)
	require.NoError(t, err)
	ctx := context.Background()

	owner, err := client.Owner(ctx)
	require.NoError(t, err)
	require.Equal(t, creator, owner)

	paused, err := client.Paused(ctx)
	require.NoError(t, err)
	require.True(t, paused)

	fee, err := client.FeeBps(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(250), fee.Int64())

	count, err := client.CampaignCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(12), count.Int64())

	core, err := client.GetCampaignCore(ctx, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, creator, core.Creator)
	require.Equal(t, backer, core.Token)
	require.Equal(t, int64(600), core.Pledged.Int64())
	require.Equal(t, uint64(1717200000), core.Deadline)
	require.Equal(t, uint8(2), core.MilestoneCount)
	require.Equal(t, uint8(1), core.MilestonesReleased)

	m, err := client.GetMilestone(ctx, big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, int64(600), m.Amount.Int64())
	require.True(t, m.Approved)
	require.False(t, m.Withdrawn)
}

func TestClientCallFailure(t *testing.T) {
	client, err := blockchain.NewClientWithBackend(chainConfig(), testutil.NewFakeBackend())
	require.NoError(t, err)

	_, err = client.Owner(context.Background())
	require.Error(t, err)
	require.Equal(t, errors.ErrContractCall, errors.CodeOf(err))
}
