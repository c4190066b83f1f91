package events

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"datedVamm/internal/model"
)

// MetaSource resolves instance metadata, typically from the snapshot store.
type MetaSource interface {
	PoolMeta(ctx context.Context, marketID *big.Int, maturity uint32) (model.PoolMeta, bool, error)
}

// PoolMetaCache caches instance metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

func getPoolMeta(ctx DecodeContext, address common.Address, marketID *big.Int, maturity uint32) (model.PoolMeta, error) {
	if ctx.PoolMetaCache != nil {
		if meta, ok := ctx.PoolMetaCache.Get(address); ok {
			return meta, nil
		}
	}

	meta := model.PoolMeta{MarketID: marketID.String(), Maturity: maturity}
	if ctx.Meta != nil {
		callCtx := ctx.Context
		if callCtx == nil {
			callCtx = context.Background()
		}
		loaded, ok, err := ctx.Meta.PoolMeta(callCtx, marketID, maturity)
		if err != nil {
			return model.PoolMeta{}, fmt.Errorf("load pool meta: %w", err)
		}
		if ok {
			meta = loaded
		}
	}
	if ctx.PoolMetaCache != nil && meta.TickSpacing != 0 {
		ctx.PoolMetaCache.Set(address, meta)
	}
	return meta, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", value)
	}
	return b, nil
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
