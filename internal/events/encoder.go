package events

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"datedVamm/internal/model"
)

// TakerOrder is a committed swap from the taker's side.
type TakerOrder struct {
	AccountID          *big.Int
	MarketID           *big.Int
	Maturity           uint32
	ExecutedBase       *big.Int
	ExecutedQuote      *big.Int
	AnnualizedNotional *big.Int
	SqrtPriceX96       *big.Int
	Liquidity          *big.Int
	Tick               int32
}

// LiquidityChange is a committed mint or burn.
type LiquidityChange struct {
	AccountID      *big.Int
	MarketID       *big.Int
	Maturity       uint32
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	Base           *big.Int
}

// PoolConfigured is emitted on creation and on every config change.
type PoolConfigured struct {
	MarketID    *big.Int
	Maturity    uint32
	TickSpacing int32
	MinTick     int32
	MaxTick     int32
	Paused      bool
}

// Encoder turns engine events into journal records with increasing
// sequence numbers.
type Encoder struct {
	abi abi.ABI
	seq atomic.Uint64
}

// NewEncoder continues numbering after lastSequence.
func NewEncoder(lastSequence uint64) (*Encoder, error) {
	parsed, err := VammABI()
	if err != nil {
		return nil, fmt.Errorf("parse vamm abi: %w", err)
	}
	e := &Encoder{abi: parsed}
	e.seq.Store(lastSequence)
	return e, nil
}

// TakerOrder encodes a TakerOrder event.
func (e *Encoder) TakerOrder(timestamp int64, o TakerOrder) (model.LogRecord, error) {
	return e.build(model.EventTakerOrder, o.MarketID, o.Maturity, timestamp,
		[]interface{}{o.AccountID, o.MarketID, o.Maturity},
		orZero(o.ExecutedBase),
		orZero(o.ExecutedQuote),
		orZero(o.AnnualizedNotional),
		orZero(o.SqrtPriceX96),
		orZero(o.Liquidity),
		big.NewInt(int64(o.Tick)),
	)
}

// LiquidityChange encodes a LiquidityChange event.
func (e *Encoder) LiquidityChange(timestamp int64, c LiquidityChange) (model.LogRecord, error) {
	return e.build(model.EventLiquidityChange, c.MarketID, c.Maturity, timestamp,
		[]interface{}{c.AccountID, c.MarketID, c.Maturity},
		big.NewInt(int64(c.TickLower)),
		big.NewInt(int64(c.TickUpper)),
		orZero(c.LiquidityDelta),
		orZero(c.Base),
	)
}

// PoolConfigured encodes a PoolConfigured event.
func (e *Encoder) PoolConfigured(timestamp int64, c PoolConfigured) (model.LogRecord, error) {
	return e.build(model.EventPoolConfigured, c.MarketID, c.Maturity, timestamp,
		[]interface{}{c.MarketID, c.Maturity},
		big.NewInt(int64(c.TickSpacing)),
		big.NewInt(int64(c.MinTick)),
		big.NewInt(int64(c.MaxTick)),
		c.Paused,
	)
}

func (e *Encoder) build(name string, marketID *big.Int, maturity uint32, timestamp int64, indexed []interface{}, values ...interface{}) (model.LogRecord, error) {
	event, ok := e.abi.Events[name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unknown event %s", name)
	}
	if marketID == nil {
		return model.LogRecord{}, fmt.Errorf("%s: market id is nil", name)
	}
	addr, err := InstanceAddress(marketID, maturity)
	if err != nil {
		return model.LogRecord{}, err
	}

	query := make([][]interface{}, 0, len(indexed))
	for _, v := range indexed {
		if b, ok := v.(*big.Int); ok {
			if b == nil {
				return model.LogRecord{}, fmt.Errorf("%s: nil indexed value", name)
			}
			// MakeTopics rewrites big.Int arguments in place.
			v = new(big.Int).Set(b)
		}
		query = append(query, []interface{}{v})
	}
	hashes, err := abi.MakeTopics(query...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("make %s topics: %w", name, err)
	}
	topics := make([]string, 0, len(hashes)+1)
	topics = append(topics, event.ID.Hex())
	for _, h := range hashes {
		topics = append(topics, h[0].Hex())
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	return model.LogRecord{
		Sequence:   e.seq.Add(1),
		MarketID:   marketID.String(),
		Maturity:   maturity,
		Address:    addr.Hex(),
		Topics:     topics,
		Data:       hexutil.Encode(data),
		Timestamp:  uint64(timestamp),
		IngestedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
