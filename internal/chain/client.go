package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client reads lending indices over JSON-RPC.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(rpcClient), nil
}

func newClient(rpcClient *rpc.Client) *Client {
	return &Client{rpcClient: rpcClient, eth: ethclient.NewClient(rpcClient)}
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Connect returns the chain id after checking that every address carries
// contract code. A lending pool or reserve pointed at an EOA would answer
// eth_call with empty output and surface later as an unpack error.
func (c *Client) Connect(ctx context.Context, contracts ...common.Address) (*big.Int, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	for _, addr := range contracts {
		code, err := c.eth.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("get code %s: %w", addr.Hex(), err)
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("no contract at %s on chain %s", addr.Hex(), chainID)
		}
	}
	return chainID, nil
}

// CallContract performs an eth_call. A nil block reads the latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
