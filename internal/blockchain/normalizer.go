package blockchain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNoTopics     = errors.New("log has no topics")
	ErrInvalidTopic = errors.New("log topic is not a 32-byte hex value")
	ErrInvalidData  = errors.New("log data is not valid hex")
)

// FlexUint decodes a JSON number, a decimal string or a 0x-prefixed hex
// string. Anything else leaves it unset; decoding never fails.
type FlexUint struct {
	value *uint64
}

func (f *FlexUint) UnmarshalJSON(b []byte) error {
	f.value = parseFlexUint(b)
	return nil
}

func (f FlexUint) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(*f.value, 10)), nil
}

// Ptr returns the parsed value or nil.
func (f FlexUint) Ptr() *uint64 {
	return f.value
}

func NewFlexUint(v uint64) FlexUint {
	return FlexUint{value: &v}
}

func parseFlexUint(b []byte) *uint64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	return ParseUintMaybeHex(s)
}

// ParseUintMaybeHex accepts "123" or "0x7b". It returns nil when s is neither.
func ParseUintMaybeHex(s string) *uint64 {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return nil
	}
	return &v
}

type RawAccount struct {
	Address string `json:"address"`
}

type RawTransaction struct {
	Hash  string      `json:"hash,omitempty"`
	Index FlexUint    `json:"index"`
	From  *RawAccount `json:"from,omitempty"`
	To    *RawAccount `json:"to,omitempty"`
}

// RawLog is one log as a webhook provider delivers it. Both the Alchemy
// GraphQL shape (account, index, transaction) and the JSON-RPC shape
// (address, logIndex, transactionHash) are accepted.
type RawLog struct {
	Account          *RawAccount     `json:"account,omitempty"`
	Address          string          `json:"address,omitempty"`
	Topics           []string        `json:"topics"`
	Data             string          `json:"data"`
	Index            FlexUint        `json:"index"`
	LogIndex         FlexUint        `json:"logIndex"`
	BlockNumber      FlexUint        `json:"blockNumber"`
	BlockHash        string          `json:"blockHash,omitempty"`
	TransactionHash  string          `json:"transactionHash,omitempty"`
	TransactionIndex FlexUint        `json:"transactionIndex"`
	Removed          bool            `json:"removed"`
	Transaction      *RawTransaction `json:"transaction,omitempty"`
}

type RawBlock struct {
	Hash      string            `json:"hash,omitempty"`
	Number    FlexUint          `json:"number"`
	Timestamp FlexUint          `json:"timestamp"`
	Logs      []json.RawMessage `json:"logs"`
}

// Delivery is the webhook body. Logs stay raw so one malformed log cannot
// fail the whole delivery.
type Delivery struct {
	WebhookID string `json:"webhookId,omitempty"`
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Type      string `json:"type,omitempty"`
	Event     struct {
		Data struct {
			Block *RawBlock `json:"block"`
		} `json:"data"`
		SequenceNumber string `json:"sequenceNumber,omitempty"`
	} `json:"event"`
}

// ParseDelivery fails only when body is not a JSON object of the expected
// top-level shape.
func ParseDelivery(body []byte) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Block returns the delivered block context, or nil.
func (d *Delivery) Block() *RawBlock {
	return d.Event.Data.Block
}

// Logs returns the raw logs of the delivery.
func (d *Delivery) Logs() []json.RawMessage {
	if d.Event.Data.Block == nil {
		return nil
	}
	return d.Event.Data.Block.Logs
}

// LogRecord is the canonical form of a log. Numeric fields are nil when the
// delivery did not carry a parsable value.
type LogRecord struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        []byte         `json:"data"`
	BlockNumber *uint64        `json:"blockNumber"`
	BlockHash   string         `json:"blockHash"`
	TxHash      string         `json:"transactionHash"`
	TxIndex     *uint64        `json:"transactionIndex"`
	LogIndex    *uint64        `json:"logIndex"`
	Removed     bool           `json:"removed"`
	From        string         `json:"from,omitempty"`
}

// NormalizeLog converts one raw log into a LogRecord. It is a pure transform;
// an error means the log must be skipped.
func NormalizeLog(raw json.RawMessage, block *RawBlock) (LogRecord, error) {
	var rl RawLog
	if err := json.Unmarshal(raw, &rl); err != nil {
		return LogRecord{}, fmt.Errorf("decode log: %w", err)
	}
	if block == nil {
		block = &RawBlock{}
	}
	if len(rl.Topics) == 0 {
		return LogRecord{}, ErrNoTopics
	}

	rec := LogRecord{Removed: rl.Removed}

	rec.Topics = make([]common.Hash, 0, len(rl.Topics))
	for _, t := range rl.Topics {
		b, err := hexutil.Decode(t)
		if err != nil || len(b) != common.HashLength {
			return LogRecord{}, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
		}
		rec.Topics = append(rec.Topics, common.BytesToHash(b))
	}

	data := rl.Data
	if data == "" || data == "0x" || data == "0X" {
		rec.Data = []byte{}
	} else {
		b, err := hexutil.Decode(data)
		if err != nil {
			return LogRecord{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		rec.Data = b
	}

	address := rl.Address
	if rl.Account != nil && rl.Account.Address != "" {
		address = rl.Account.Address
	}
	if common.IsHexAddress(address) {
		rec.Address = common.HexToAddress(address)
	}

	tx := rl.Transaction
	if tx == nil {
		tx = &RawTransaction{}
	}

	rec.BlockNumber = firstUint(rl.BlockNumber, block.Number)
	rec.BlockHash = firstString(rl.BlockHash, block.Hash)
	rec.TxHash = strings.ToLower(firstString(tx.Hash, rl.TransactionHash))
	rec.TxIndex = firstUint(rl.TransactionIndex, tx.Index)
	rec.LogIndex = firstUint(rl.LogIndex, rl.Index)
	if tx.From != nil {
		rec.From = strings.ToLower(tx.From.Address)
	}

	return rec, nil
}

func firstUint(values ...FlexUint) *uint64 {
	for _, v := range values {
		if v.Ptr() != nil {
			return v.Ptr()
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
