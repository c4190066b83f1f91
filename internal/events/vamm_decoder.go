package events

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"datedVamm/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// VammDecoder decodes engine journal records.
type VammDecoder struct {
	vammABI     abi.ABI
	topicToName map[string]string
}

type instanceTopics struct {
	AccountId *big.Int
	MarketId  *big.Int
	Maturity  uint32
}

// NewVammDecoder builds a decoder for the engine events.
func NewVammDecoder(cfg DecoderConfig) (*VammDecoder, error) {
	vammABI, err := VammABI()
	if err != nil {
		return nil, err
	}

	topicToName := map[string]string{
		strings.ToLower(vammABI.Events[model.EventTakerOrder].ID.Hex()):      model.EventTakerOrder,
		strings.ToLower(vammABI.Events[model.EventLiquidityChange].ID.Hex()): model.EventLiquidityChange,
		strings.ToLower(vammABI.Events[model.EventPoolConfigured].ID.Hex()):  model.EventPoolConfigured,
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &VammDecoder{
		vammABI:     vammABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *VammDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent. The record address must
// match the instance named by its topics.
func (d *VammDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid instance address: %s", log.Address)
	}
	address := common.HexToAddress(log.Address)

	var (
		decoded  interface{}
		marketID *big.Int
		maturity uint32
		apply    func(*model.PoolMeta)
	)
	switch name {
	case model.EventTakerOrder:
		data, indexed, err := d.decodeTakerOrder(log)
		if err != nil {
			return nil, err
		}
		decoded, marketID, maturity = data, indexed.MarketId, indexed.Maturity
		apply = func(meta *model.PoolMeta) {
			meta.Liquidity = data.Liquidity
			meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: data.SqrtPriceX96, Tick: data.Tick}
		}
	case model.EventLiquidityChange:
		data, indexed, err := d.decodeLiquidityChange(log)
		if err != nil {
			return nil, err
		}
		decoded, marketID, maturity = data, indexed.MarketId, indexed.Maturity
	case model.EventPoolConfigured:
		data, indexed, err := d.decodePoolConfigured(log)
		if err != nil {
			return nil, err
		}
		decoded, marketID, maturity = data, indexed.MarketId, indexed.Maturity
		apply = func(meta *model.PoolMeta) { meta.TickSpacing = data.TickSpacing }
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}

	expected, err := InstanceAddress(marketID, maturity)
	if err != nil {
		return nil, err
	}
	if expected != address {
		return nil, fmt.Errorf("address %s does not match instance %s/%d", log.Address, marketID, maturity)
	}

	meta, err := getPoolMeta(ctx, address, marketID, maturity)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(&meta)
	}
	return buildTypedEvent(log, name, decoded, meta), nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "takerorder", "taker_order", "swap":
		return model.EventTakerOrder
	case "liquiditychange", "liquidity_change", "mint", "burn":
		return model.EventLiquidityChange
	case "poolconfigured", "pool_configured":
		return model.EventPoolConfigured
	default:
		return ""
	}
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		Sequence:  log.Sequence,
		Address:   log.Address,
		EventName: name,
		Timestamp: log.Timestamp,
		Decoded:   decoded,
		PoolMeta:  meta,
		Raw:       raw,
	}
}

func (d *VammDecoder) decodeTakerOrder(log model.LogRecord) (model.TakerOrderEventData, instanceTopics, error) {
	event := d.vammABI.Events[model.EventTakerOrder]
	indexed, err := d.parseInstanceTopics(event, log.Topics)
	if err != nil {
		return model.TakerOrderEventData{}, indexed, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.TakerOrderEventData{}, indexed, err
	}
	if len(values) != 6 {
		return model.TakerOrderEventData{}, indexed, fmt.Errorf("unexpected taker order values: %d", len(values))
	}

	ints := make([]*big.Int, len(values))
	for i, v := range values {
		if ints[i], err = asBigInt(v); err != nil {
			return model.TakerOrderEventData{}, indexed, err
		}
	}
	tick, err := int24FromBig(ints[5])
	if err != nil {
		return model.TakerOrderEventData{}, indexed, err
	}

	return model.TakerOrderEventData{
		AccountID:          indexed.AccountId.String(),
		MarketID:           indexed.MarketId.String(),
		Maturity:           indexed.Maturity,
		ExecutedBase:       ints[0].String(),
		ExecutedQuote:      ints[1].String(),
		AnnualizedNotional: ints[2].String(),
		SqrtPriceX96:       ints[3].String(),
		Liquidity:          ints[4].String(),
		Tick:               tick,
	}, indexed, nil
}

func (d *VammDecoder) decodeLiquidityChange(log model.LogRecord) (model.LiquidityChangeEventData, instanceTopics, error) {
	event := d.vammABI.Events[model.EventLiquidityChange]
	indexed, err := d.parseInstanceTopics(event, log.Topics)
	if err != nil {
		return model.LiquidityChangeEventData{}, indexed, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LiquidityChangeEventData{}, indexed, err
	}
	if len(values) != 4 {
		return model.LiquidityChangeEventData{}, indexed, fmt.Errorf("unexpected liquidity change values: %d", len(values))
	}

	ints := make([]*big.Int, len(values))
	for i, v := range values {
		if ints[i], err = asBigInt(v); err != nil {
			return model.LiquidityChangeEventData{}, indexed, err
		}
	}
	tickLower, err := int24FromBig(ints[0])
	if err != nil {
		return model.LiquidityChangeEventData{}, indexed, err
	}
	tickUpper, err := int24FromBig(ints[1])
	if err != nil {
		return model.LiquidityChangeEventData{}, indexed, err
	}

	return model.LiquidityChangeEventData{
		AccountID:      indexed.AccountId.String(),
		MarketID:       indexed.MarketId.String(),
		Maturity:       indexed.Maturity,
		TickLower:      tickLower,
		TickUpper:      tickUpper,
		LiquidityDelta: ints[2].String(),
		Base:           ints[3].String(),
	}, indexed, nil
}

func (d *VammDecoder) decodePoolConfigured(log model.LogRecord) (model.PoolConfiguredEventData, instanceTopics, error) {
	event := d.vammABI.Events[model.EventPoolConfigured]
	indexed, err := d.parseInstanceTopics(event, log.Topics)
	if err != nil {
		return model.PoolConfiguredEventData{}, indexed, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.PoolConfiguredEventData{}, indexed, err
	}
	if len(values) != 4 {
		return model.PoolConfiguredEventData{}, indexed, fmt.Errorf("unexpected pool configured values: %d", len(values))
	}

	ticks := make([]int32, 3)
	for i := range ticks {
		v, err := asBigInt(values[i])
		if err != nil {
			return model.PoolConfiguredEventData{}, indexed, err
		}
		if ticks[i], err = int24FromBig(v); err != nil {
			return model.PoolConfiguredEventData{}, indexed, err
		}
	}
	paused, err := asBool(values[3])
	if err != nil {
		return model.PoolConfiguredEventData{}, indexed, err
	}

	return model.PoolConfiguredEventData{
		MarketID:    indexed.MarketId.String(),
		Maturity:    indexed.Maturity,
		TickSpacing: ticks[0],
		MinTick:     ticks[1],
		MaxTick:     ticks[2],
		Paused:      paused,
	}, indexed, nil
}

func (d *VammDecoder) parseInstanceTopics(event abi.Event, topics []string) (instanceTopics, error) {
	var indexed instanceTopics
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return indexed, err
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return indexed, fmt.Errorf("parse topics: %w", err)
	}
	if indexed.MarketId == nil {
		return indexed, fmt.Errorf("missing market id topic")
	}
	if indexed.AccountId == nil {
		indexed.AccountId = new(big.Int)
	}
	return indexed, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
