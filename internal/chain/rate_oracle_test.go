package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeCaller struct {
	fails  int
	calls  int
	output []byte
	to     common.Address
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if msg.To != nil {
		f.to = *msg.To
	}
	if f.calls <= f.fails {
		return nil, errors.New("rpc unavailable")
	}
	return f.output, nil
}

func TestRateOracleConvertsRayToWad(t *testing.T) {
	parsed, err := lendingPoolABIInstance()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	ray, _ := new(big.Int).SetString("1050000000000000000000000000", 10)
	output, err := parsed.Methods["getReserveNormalizedIncome"].Outputs.Pack(ray)
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	caller := &fakeCaller{fails: 2, output: output}
	oracle, err := NewRateOracle(RateOracleConfig{
		LendingPool:  pool,
		Assets:       map[string]common.Address{"1": common.HexToAddress("0x2222222222222222222222222222222222222222")},
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, caller, zap.NewNop())
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}

	obs, err := oracle.RateAt(context.Background(), big.NewInt(1), 1700000000)
	if err != nil {
		t.Fatalf("rate at: %v", err)
	}
	if obs.Index.String() != "1050000000000000000" {
		t.Fatalf("index mismatch: %s", obs.Index)
	}
	if obs.Timestamp != 1700000000 {
		t.Fatalf("timestamp mismatch: %d", obs.Timestamp)
	}
	if caller.calls != 3 || caller.to != pool {
		t.Fatalf("calls %d to %s", caller.calls, caller.to.Hex())
	}

	if _, err := oracle.RateAt(context.Background(), big.NewInt(2), 1700000000); err == nil {
		t.Fatalf("expected unknown market error")
	}
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := withRetry(ctx, 5, 50*time.Millisecond, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }

func TestWithRetryDoesNotRepeatReverts(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		attempts++
		return revertError{}
	})
	if !errors.Is(err, revertError{}) {
		t.Fatalf("expected revert, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetryReportsAttempts(t *testing.T) {
	unavailable := errors.New("rpc unavailable")
	attempts := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		attempts++
		return unavailable
	})
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if attempts != 3 || err.Error() != "giving up after 3 attempts: rpc unavailable" {
		t.Fatalf("attempts %d err %v", attempts, err)
	}
}

func TestParseAssets(t *testing.T) {
	assets, err := ParseAssets(map[string]string{"1": "0x2222222222222222222222222222222222222222"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if assets["1"] != common.HexToAddress("0x2222222222222222222222222222222222222222") {
		t.Fatalf("asset mismatch")
	}
	if _, err := ParseAssets(map[string]string{"1": "nope"}); err == nil {
		t.Fatalf("expected invalid address error")
	}
}
