package testutil

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"

	"github.com/Blackspectre-tech/u4c-backends/internal/blockchain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractAddress is the contract the fixtures pretend to come from.
var ContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// EventLogs encodes contract events the way the contract would emit them.
type EventLogs struct {
	t   *testing.T
	abi abi.ABI
}

func NewEventLogs(t *testing.T) *EventLogs {
	t.Helper()
	parsed, err := blockchain.ParseCrowdfundABI()
	if err != nil {
		t.Fatalf("failed to parse abi: %v", err)
	}
	return &EventLogs{t: t, abi: parsed}
}

// Encode returns topics and data for event name with args in declaration
// order, indexed arguments included.
func (e *EventLogs) Encode(name string, args ...interface{}) ([]common.Hash, []byte) {
	e.t.Helper()
	ev, ok := e.abi.Events[name]
	if !ok {
		e.t.Fatalf("unknown event %s", name)
	}
	if len(args) != len(ev.Inputs) {
		e.t.Fatalf("%s takes %d args, got %d", name, len(ev.Inputs), len(args))
	}

	topics := []common.Hash{ev.ID}
	var values []interface{}
	for i, in := range ev.Inputs {
		if in.Indexed {
			topics = append(topics, topicOf(e.t, args[i]))
			continue
		}
		values = append(values, args[i])
	}
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		e.t.Fatalf("failed to pack %s: %v", name, err)
	}
	return topics, data
}

func topicOf(t *testing.T, v interface{}) common.Hash {
	switch x := v.(type) {
	case *big.Int:
		return common.BigToHash(x)
	case common.Address:
		return common.BytesToHash(x.Bytes())
	case bool:
		if x {
			return common.BigToHash(big.NewInt(1))
		}
		return common.Hash{}
	default:
		t.Fatalf("unsupported indexed value %T", v)
		return common.Hash{}
	}
}

// WebhookLog is one log of a fixture delivery.
type WebhookLog struct {
	Topics   []common.Hash
	Data     []byte
	TxHash   common.Hash
	LogIndex uint64
	From     common.Address
	Removed  bool
}

// Log builds a WebhookLog for event name.
func (e *EventLogs) Log(txHash common.Hash, logIndex uint64, name string, args ...interface{}) WebhookLog {
	e.t.Helper()
	topics, data := e.Encode(name, args...)
	return WebhookLog{Topics: topics, Data: data, TxHash: txHash, LogIndex: logIndex}
}

// Delivery renders logs as an Alchemy custom webhook body.
func Delivery(t *testing.T, blockNumber uint64, logs ...WebhookLog) []byte {
	t.Helper()
	rendered := make([]map[string]interface{}, 0, len(logs))
	for _, l := range logs {
		topics := make([]string, len(l.Topics))
		for i, topic := range l.Topics {
			topics[i] = topic.Hex()
		}
		tx := map[string]interface{}{
			"hash":  l.TxHash.Hex(),
			"index": 0,
			"to":    map[string]string{"address": ContractAddress.Hex()},
		}
		if l.From != (common.Address{}) {
			tx["from"] = map[string]string{"address": l.From.Hex()}
		}
		rendered = append(rendered, map[string]interface{}{
			"account":     map[string]string{"address": ContractAddress.Hex()},
			"topics":      topics,
			"data":        hexutil.Encode(l.Data),
			"index":       l.LogIndex,
			"removed":     l.Removed,
			"transaction": tx,
		})
	}

	body, err := json.Marshal(map[string]interface{}{
		"webhookId": "wh_test",
		"id":        fmt.Sprintf("whevt_%d", blockNumber),
		"createdAt": "2024-05-01T12:00:00.000Z",
		"type":      "GRAPHQL",
		"event": map[string]interface{}{
			"data": map[string]interface{}{
				"block": map[string]interface{}{
					"hash":      common.BigToHash(new(big.Int).SetUint64(blockNumber)).Hex(),
					"number":    blockNumber,
					"timestamp": 1714564800,
					"logs":      rendered,
				},
			},
			"sequenceNumber": "10000000000000000000000",
		},
	})
	if err != nil {
		t.Fatalf("failed to render delivery: %v", err)
	}
	return body
}

// ChainLog converts a WebhookLog into the JSON-RPC form returned by
// eth_getLogs.
func ChainLog(blockNumber uint64, l WebhookLog) types.Log {
	return types.Log{
		Address:     ContractAddress,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: blockNumber,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(blockNumber)),
		TxHash:      l.TxHash,
		Index:       uint(l.LogIndex),
		Removed:     l.Removed,
	}
}

// TxHash returns a distinct deterministic transaction hash.
func TxHash(n int64) common.Hash {
	return common.BigToHash(new(big.Int).Add(big.NewInt(0xabc0000), big.NewInt(n)))
}
