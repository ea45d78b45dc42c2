package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Blackspectre-tech/u4c-backends/internal/config"
	"github.com/Blackspectre-tech/u4c-backends/pkg/errors"
	"github.com/Blackspectre-tech/u4c-backends/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the JSON-RPC client the service uses.
// *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// CampaignCore mirrors getCampaignCore's return tuple.
type CampaignCore struct {
	Creator            common.Address `json:"creator"`
	Token              common.Address `json:"token"`
	Goal               *big.Int       `json:"goal"`
	Pledged            *big.Int       `json:"pledged"`
	Deadline           uint64         `json:"deadline"`
	State              uint8          `json:"state"`
	MilestoneCount     uint8          `json:"milestone_count"`
	MilestonesReleased uint8          `json:"milestones_released"`
}

type MilestoneInfo struct {
	Amount    *big.Int `json:"amount"`
	Approved  bool     `json:"approved"`
	Withdrawn bool     `json:"withdrawn"`
}

type Client struct {
	chainCfg *config.ChainConfig
	backend  Backend
	abi      abi.ABI
	contract common.Address
	close    func()
}

// NewClient dials the configured RPC node.
func NewClient(chainCfg *config.ChainConfig) (*Client, error) {
	ec, err := ethclient.Dial(chainCfg.RPCURL)
	if err != nil {
		return nil, errors.New(errors.ErrRPConnect,
			fmt.Sprintf("failed to dial rpc: %s", chainCfg.RPCURL), err)
	}
	c, err := NewClientWithBackend(chainCfg, ec)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.close = ec.Close
	return c, nil
}

// NewClientWithBackend builds a client over an existing backend.
func NewClientWithBackend(chainCfg *config.ChainConfig, backend Backend) (*Client, error) {
	parsed, err := ParseCrowdfundABI()
	if err != nil {
		return nil, errors.New(errors.ErrConfigLoad, "failed to parse contract abi", err)
	}
	return &Client{
		chainCfg: chainCfg,
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(chainCfg.ContractAddress),
	}, nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

func (c *Client) Backend() Backend {
	return c.backend
}

func (c *Client) ABI() abi.ABI {
	return c.abi
}

func (c *Client) ContractAddress() common.Address {
	return c.contract
}

func (c *Client) callTimeout() time.Duration {
	if c.chainCfg.CallTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.chainCfg.CallTimeout) * time.Second
}

// call packs method, runs eth_call against the latest block and unpacks the
// outputs.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.New(errors.ErrContractCall, fmt.Sprintf("failed to pack %s", method), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout())
	defer cancel()

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return nil, errors.New(errors.ErrContractCall, fmt.Sprintf("call %s failed", method), err)
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, errors.New(errors.ErrContractCall, fmt.Sprintf("failed to unpack %s", method), err)
	}

	logger.WithFields(map[string]interface{}{
		"method":   method,
		"contract": c.contract.Hex(),
	}).Debug("contract call")

	return values, nil
}

func (c *Client) CampaignCount(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "campaignCount")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *Client) PlatformWallet(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "platformWallet")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Client) Paused(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, "paused")
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Client) FeeBps(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "feeBps")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// GetCampaignCore reads the core state of a campaign.
func (c *Client) GetCampaignCore(ctx context.Context, id *big.Int) (*CampaignCore, error) {
	out, err := c.call(ctx, "getCampaignCore", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, errors.New(errors.ErrContractCall,
			fmt.Sprintf("getCampaignCore returned %d values", len(out)), nil)
	}
	return &CampaignCore{
		Creator:            *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Token:              *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Goal:               abi.ConvertType(out[2], new(big.Int)).(*big.Int),
		Pledged:            abi.ConvertType(out[3], new(big.Int)).(*big.Int),
		Deadline:           *abi.ConvertType(out[4], new(uint64)).(*uint64),
		State:              *abi.ConvertType(out[5], new(uint8)).(*uint8),
		MilestoneCount:     *abi.ConvertType(out[6], new(uint8)).(*uint8),
		MilestonesReleased: *abi.ConvertType(out[7], new(uint8)).(*uint8),
	}, nil
}

func (c *Client) GetMilestone(ctx context.Context, id, index *big.Int) (*MilestoneInfo, error) {
	out, err := c.call(ctx, "getMilestone", id, index)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, errors.New(errors.ErrContractCall,
			fmt.Sprintf("getMilestone returned %d values", len(out)), nil)
	}
	return &MilestoneInfo{
		Amount:    abi.ConvertType(out[0], new(big.Int)).(*big.Int),
		Approved:  *abi.ConvertType(out[1], new(bool)).(*bool),
		Withdrawn: *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

// GetLatestBlockNumber returns the head block number.
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, errors.New(errors.ErrRPConnect, "failed to fetch latest block", err)
	}
	return n, nil
}
