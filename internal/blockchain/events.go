package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	KindCampaignCreated       EventKind = "CampaignCreated"
	KindPledged               EventKind = "Pledged"
	KindUnpledged             EventKind = "Unpledged"
	KindCampaignStateChanged  EventKind = "CampaignStateChanged"
	KindMilestoneApproved     EventKind = "MilestoneApproved"
	KindMilestoneWithdrawn    EventKind = "MilestoneWithdrawn"
	KindRefunded              EventKind = "Refunded"
	KindPlatformWalletUpdated EventKind = "PlatformWalletUpdated"
	KindFeeUpdated            EventKind = "FeeUpdated"
	KindTokenAllowlistUpdated EventKind = "TokenAllowlistUpdated"
	KindPaused                EventKind = "Paused"
	KindUnpaused              EventKind = "Unpaused"
	KindOwnershipTransferred  EventKind = "OwnershipTransferred"
)

var (
	ErrUnknownEvent  = errors.New("unknown event topic")
	ErrTopicMismatch = errors.New("topic count does not match event signature")
	ErrSignatureHash = errors.New("event signature does not hash to the deployed topic")
)

// deployedTopics are the topic0 values the MilestoneCrowdfund deployment
// emits. An ABI whose events hash differently is rejected by NewDecoder.
var deployedTopics = map[EventKind]common.Hash{
	KindCampaignCreated:       common.HexToHash("0x54225ce5de7dc72a6f5cf898ef7283ada08aadfba3372fc87dfd0bf689261e45"),
	KindPledged:               common.HexToHash("0xf36ffe7645287fddf6deab03a17f4f024a0551da54638685d25cac0dbdf5b6be"),
	KindUnpledged:             common.HexToHash("0xfcd29b1632c6748a9a4bb9b4cd5c6486c3c84a8550dce2368f83fef3969d9685"),
	KindCampaignStateChanged:  common.HexToHash("0x7c387a42b7678e1b26d65927d4a0176444d9c6509a72583dee248753b768db41"),
	KindMilestoneApproved:     common.HexToHash("0xffe56bf760f6d13072fce783b476e75aa4fec7f9319bd00fd896ad53bd325848"),
	KindMilestoneWithdrawn:    common.HexToHash("0xfdad5626a5dc3ef449341e73d009a9349b676bb5b58cbb8201e7440e77692725"),
	KindRefunded:              common.HexToHash("0x7ca5472b7ea78c2c0141c5a12ee6d170cf4ce8ed06be3d22c8252ddfc7a6a2c4"),
	KindPlatformWalletUpdated: common.HexToHash("0x73238e3ae0a71b401b31ae67204506d074de41bd5c084082fba9b64b1c7fa28f"),
	KindFeeUpdated:            common.HexToHash("0x12d0978e09577356906c174508d8758fbe5e9cc762c7d94a64d74817039b937c"),
	KindTokenAllowlistUpdated: common.HexToHash("0x1da521c13439ac6ab125c52e0da7dd7de929f09e58aa0f89ebe3dbb12e63a52b"),
	KindPaused:                common.HexToHash("0x62e78cea01bee320cd4e420270b5ea74000d11b0c9f74754ebdbfc544b05a258"),
	KindUnpaused:              common.HexToHash("0x5db9ee0a495bf2e6ff9c91a7834c1ba4fdd244a5e8aa4e537bd38aeae4b073aa"),
	KindOwnershipTransferred:  common.HexToHash("0x8be0079c531659141344cd1fd0a4f28419497f9722a3daafe3b4186f6b6457e0"),
}

// Event is a decoded contract event. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	event()
}

type CampaignCreatedEvent struct {
	ID             *big.Int
	Creator        common.Address
	MilestoneCount uint8
	Token          common.Address
	Goal           *big.Int
	// Deadline is unix seconds.
	Deadline uint64
}

// PledgedEvent splits a pledge into the gross transfer, the platform fee, the
// net amount credited to the campaign and the optional tip.
type PledgedEvent struct {
	ID             *big.Int
	Backer         common.Address
	GrossAmount    *big.Int
	FeeAmount      *big.Int
	NetAmount      *big.Int
	TipAmount      *big.Int
	MilestoneIndex uint8
}

type UnpledgedEvent struct {
	ID     *big.Int
	Backer common.Address
	Amount *big.Int
}

// CampaignStateChangedEvent carries the contract's state enum: 1 succeeded,
// 2 failed.
type CampaignStateChangedEvent struct {
	ID       *big.Int
	NewState uint8
}

type MilestoneApprovedEvent struct {
	ID          *big.Int
	Index       *big.Int
	Description string
	Amount      *big.Int
}

type MilestoneWithdrawnEvent struct {
	ID     *big.Int
	Index  *big.Int
	Amount *big.Int
}

type RefundedEvent struct {
	ID     *big.Int
	Backer common.Address
	Amount *big.Int
}

type PlatformWalletUpdatedEvent struct {
	Wallet common.Address
}

type FeeUpdatedEvent struct {
	FeeBps *big.Int
}

type TokenAllowlistUpdatedEvent struct {
	Token   common.Address
	Allowed bool
}

type PausedEvent struct {
	Account common.Address
}

type UnpausedEvent struct {
	Account common.Address
}

type OwnershipTransferredEvent struct {
	PreviousOwner common.Address
	NewOwner      common.Address
}

func (CampaignCreatedEvent) Kind() EventKind       { return KindCampaignCreated }
func (PledgedEvent) Kind() EventKind               { return KindPledged }
func (UnpledgedEvent) Kind() EventKind             { return KindUnpledged }
func (CampaignStateChangedEvent) Kind() EventKind  { return KindCampaignStateChanged }
func (MilestoneApprovedEvent) Kind() EventKind     { return KindMilestoneApproved }
func (MilestoneWithdrawnEvent) Kind() EventKind    { return KindMilestoneWithdrawn }
func (RefundedEvent) Kind() EventKind              { return KindRefunded }
func (PlatformWalletUpdatedEvent) Kind() EventKind { return KindPlatformWalletUpdated }
func (FeeUpdatedEvent) Kind() EventKind            { return KindFeeUpdated }
func (TokenAllowlistUpdatedEvent) Kind() EventKind { return KindTokenAllowlistUpdated }
func (PausedEvent) Kind() EventKind                { return KindPaused }
func (UnpausedEvent) Kind() EventKind              { return KindUnpaused }
func (OwnershipTransferredEvent) Kind() EventKind  { return KindOwnershipTransferred }

func (CampaignCreatedEvent) event()       {}
func (PledgedEvent) event()               {}
func (UnpledgedEvent) event()             {}
func (CampaignStateChangedEvent) event()  {}
func (MilestoneApprovedEvent) event()     {}
func (MilestoneWithdrawnEvent) event()    {}
func (RefundedEvent) event()              {}
func (PlatformWalletUpdatedEvent) event() {}
func (FeeUpdatedEvent) event()            {}
func (TokenAllowlistUpdatedEvent) event() {}
func (PausedEvent) event()                {}
func (UnpausedEvent) event()              {}
func (OwnershipTransferredEvent) event()  {}

// ParseCrowdfundABI parses CrowdfundABI.
func ParseCrowdfundABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(CrowdfundABI))
}

// Decoder maps log topics to events of the crowdfund contract.
type Decoder struct {
	abi   abi.ABI
	kinds map[common.Hash]EventKind
}

func NewDecoder() (*Decoder, error) {
	parsed, err := ParseCrowdfundABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return NewDecoderFromABI(parsed)
}

// NewDecoderFromABI builds a decoder over parsed, which must declare every
// event kind with the signature the deployed contract emits.
func NewDecoderFromABI(parsed abi.ABI) (*Decoder, error) {
	kinds := make(map[common.Hash]EventKind, len(deployedTopics))
	for kind, topic := range deployedTopics {
		ev, ok := parsed.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("contract abi has no %s event", kind)
		}
		if ev.ID != topic {
			return nil, fmt.Errorf("%w: %s hashes to %s, want %s", ErrSignatureHash, ev.Sig, ev.ID.Hex(), topic.Hex())
		}
		kinds[ev.ID] = kind
	}
	return &Decoder{abi: parsed, kinds: kinds}, nil
}

// Topic returns the signature hash of kind, or the zero hash.
func (d *Decoder) Topic(kind EventKind) common.Hash {
	ev, ok := d.abi.Events[string(kind)]
	if !ok {
		return common.Hash{}
	}
	return ev.ID
}

// Lookup resolves topic0 without decoding.
func (d *Decoder) Lookup(topic common.Hash) (EventKind, bool) {
	kind, ok := d.kinds[topic]
	return kind, ok
}

// Decode decodes rec into its typed event. It returns ErrUnknownEvent when
// topics[0] is not an event of the contract.
func (d *Decoder) Decode(rec LogRecord) (Event, error) {
	if len(rec.Topics) == 0 {
		return nil, ErrNoTopics
	}
	kind, ok := d.kinds[rec.Topics[0]]
	if !ok {
		return nil, ErrUnknownEvent
	}
	ev := d.abi.Events[string(kind)]

	values, err := unpackEvent(ev, rec)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	v := eventValues(values)

	var out Event
	switch kind {
	case KindCampaignCreated:
		out = CampaignCreatedEvent{
			ID:             v.bigInt("id"),
			Creator:        v.address("creator"),
			MilestoneCount: v.u8("milestoneCount"),
			Token:          v.address("token"),
			Goal:           v.bigInt("goal"),
			Deadline:       v.bigU64("deadline"),
		}
	case KindPledged:
		out = PledgedEvent{
			ID:             v.bigInt("id"),
			Backer:         v.address("backer"),
			GrossAmount:    v.bigInt("grossAmount"),
			FeeAmount:      v.bigInt("feeAmount"),
			NetAmount:      v.bigInt("netAmount"),
			TipAmount:      v.bigInt("tipAmount"),
			MilestoneIndex: v.u8("milestoneIndex"),
		}
	case KindUnpledged:
		out = UnpledgedEvent{ID: v.bigInt("id"), Backer: v.address("backer"), Amount: v.bigInt("amount")}
	case KindCampaignStateChanged:
		out = CampaignStateChangedEvent{ID: v.bigInt("id"), NewState: v.u8("newState")}
	case KindMilestoneApproved:
		out = MilestoneApprovedEvent{ID: v.bigInt("id"), Index: v.bigInt("index"), Description: v.str("description"), Amount: v.bigInt("amount")}
	case KindMilestoneWithdrawn:
		out = MilestoneWithdrawnEvent{ID: v.bigInt("id"), Index: v.bigInt("index"), Amount: v.bigInt("amount")}
	case KindRefunded:
		out = RefundedEvent{ID: v.bigInt("id"), Backer: v.address("backer"), Amount: v.bigInt("amount")}
	case KindPlatformWalletUpdated:
		out = PlatformWalletUpdatedEvent{Wallet: v.address("wallet")}
	case KindFeeUpdated:
		out = FeeUpdatedEvent{FeeBps: v.bigInt("feeBps")}
	case KindTokenAllowlistUpdated:
		out = TokenAllowlistUpdatedEvent{Token: v.address("token"), Allowed: v.boolean("allowed")}
	case KindPaused:
		out = PausedEvent{Account: v.address("account")}
	case KindUnpaused:
		out = UnpausedEvent{Account: v.address("account")}
	case KindOwnershipTransferred:
		out = OwnershipTransferredEvent{PreviousOwner: v.address("previousOwner"), NewOwner: v.address("newOwner")}
	default:
		return nil, ErrUnknownEvent
	}
	if v.err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, v.err)
	}
	return out, nil
}

func unpackEvent(ev abi.Event, rec LogRecord) (map[string]interface{}, error) {
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(rec.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("%w: got %d topics, want %d", ErrTopicMismatch, len(rec.Topics), len(indexed)+1)
	}

	values := make(map[string]interface{}, len(ev.Inputs))
	if nonIndexed := ev.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(values, rec.Data); err != nil {
			return nil, err
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, rec.Topics[1:]); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// valueReader reads typed values out of an unpacked map, keeping the first
// missing or mistyped field as err.
type valueReader struct {
	m   map[string]interface{}
	err error
}

func eventValues(m map[string]interface{}) *valueReader {
	return &valueReader{m: m}
}

func (r *valueReader) get(name string) (interface{}, bool) {
	val, ok := r.m[name]
	if !ok && r.err == nil {
		r.err = fmt.Errorf("missing field %q", name)
	}
	return val, ok
}

func (r *valueReader) mistyped(name string, val interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("field %q has unexpected type %T", name, val)
	}
}

func (r *valueReader) bigInt(name string) *big.Int {
	val, ok := r.get(name)
	if !ok {
		return nil
	}
	b, ok := val.(*big.Int)
	if !ok {
		r.mistyped(name, val)
		return nil
	}
	return b
}

func (r *valueReader) address(name string) common.Address {
	val, ok := r.get(name)
	if !ok {
		return common.Address{}
	}
	a, ok := val.(common.Address)
	if !ok {
		r.mistyped(name, val)
	}
	return a
}

// bigU64 reads a uint256 field that must fit in 64 bits.
func (r *valueReader) bigU64(name string) uint64 {
	b := r.bigInt(name)
	if b == nil {
		return 0
	}
	if !b.IsUint64() {
		if r.err == nil {
			r.err = fmt.Errorf("field %q overflows uint64: %s", name, b)
		}
		return 0
	}
	return b.Uint64()
}

func (r *valueReader) str(name string) string {
	val, ok := r.get(name)
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		r.mistyped(name, val)
	}
	return s
}

func (r *valueReader) u8(name string) uint8 {
	val, ok := r.get(name)
	if !ok {
		return 0
	}
	n, ok := val.(uint8)
	if !ok {
		r.mistyped(name, val)
	}
	return n
}

func (r *valueReader) boolean(name string) bool {
	val, ok := r.get(name)
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		r.mistyped(name, val)
	}
	return b
}
