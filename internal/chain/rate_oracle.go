package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"datedVamm/internal/position"
)

const lendingPoolABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
    "name": "getReserveNormalizedIncome",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	lendingPoolABI     abi.ABI
	lendingPoolABIOnce sync.Once
	lendingPoolABIErr  error

	// ray indices carry 27 decimals, the engine works in 18
	rayToWad = big.NewInt(1_000_000_000)
)

func lendingPoolABIInstance() (abi.ABI, error) {
	lendingPoolABIOnce.Do(func() {
		lendingPoolABI, lendingPoolABIErr = abi.JSON(strings.NewReader(lendingPoolABIJSON))
	})
	return lendingPoolABI, lendingPoolABIErr
}

// ContractCaller is the subset of Client the oracle needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RateOracleConfig maps markets to the reserve asset whose liquidity index
// drives the variable leg.
type RateOracleConfig struct {
	LendingPool  common.Address
	Assets       map[string]common.Address
	MaxRetries   int
	RetryBackoff time.Duration
}

// RateOracle reads variable-rate indices from a lending pool.
type RateOracle struct {
	cfg    RateOracleConfig
	caller ContractCaller
	abi    abi.ABI
	logger *zap.Logger
}

func NewRateOracle(cfg RateOracleConfig, caller ContractCaller, logger *zap.Logger) (*RateOracle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := lendingPoolABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse lending pool abi: %w", err)
	}
	return &RateOracle{cfg: cfg, caller: caller, abi: parsed, logger: logger}, nil
}

// RateAt returns the market's current liquidity index in WAD, stamped with
// now.
func (o *RateOracle) RateAt(ctx context.Context, marketID *big.Int, now int64) (position.RateObservation, error) {
	asset, ok := o.cfg.Assets[marketID.String()]
	if !ok {
		return position.RateObservation{}, fmt.Errorf("no reserve asset for market %s", marketID)
	}
	input, err := o.abi.Pack("getReserveNormalizedIncome", asset)
	if err != nil {
		return position.RateObservation{}, fmt.Errorf("pack call: %w", err)
	}
	to := o.cfg.LendingPool

	var output []byte
	err = withRetry(ctx, o.cfg.MaxRetries, o.cfg.RetryBackoff, func(ctx context.Context) error {
		var callErr error
		output, callErr = o.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
		if callErr != nil {
			o.logger.Warn("rate index call failed", zap.String("market", marketID.String()), zap.Error(callErr))
		}
		return callErr
	})
	if err != nil {
		return position.RateObservation{}, fmt.Errorf("call getReserveNormalizedIncome: %w", err)
	}

	values, err := o.abi.Unpack("getReserveNormalizedIncome", output)
	if err != nil {
		return position.RateObservation{}, fmt.Errorf("unpack index: %w", err)
	}
	if len(values) != 1 {
		return position.RateObservation{}, fmt.Errorf("unexpected index values: %d", len(values))
	}
	ray, ok := values[0].(*big.Int)
	if !ok {
		return position.RateObservation{}, fmt.Errorf("unsupported index type %T", values[0])
	}
	return position.RateObservation{
		Index:     new(big.Int).Quo(ray, rayToWad),
		Timestamp: now,
	}, nil
}

// ParseAssets parses "market=0xasset" pairs.
func ParseAssets(pairs map[string]string) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(pairs))
	for market, asset := range pairs {
		if !common.IsHexAddress(asset) {
			return nil, fmt.Errorf("invalid asset address for market %s: %s", market, asset)
		}
		out[strings.TrimSpace(market)] = common.HexToAddress(asset)
	}
	return out, nil
}
