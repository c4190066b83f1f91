package kv

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout, one prefix per market+maturity instance:
//
//	vamm/<market>/<maturity>/state
//	vamm/<market>/<maturity>/tick/<sortable tick>
//	vamm/<market>/<maturity>/obs/<slot>
//	vamm/<market>/<maturity>/pos/<position id>
const (
	prefixVamm  = "vamm/"
	suffixState = "state"
	segTick     = "tick/"
	segObs      = "obs/"
	segPos      = "pos/"
)

func instancePrefix(marketID *big.Int, maturity uint32) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d/", prefixVamm, marketID.String(), maturity))
}

func stateKey(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), suffixState...)
}

// tickKey flips the sign bit so byte order matches numeric order.
func tickKey(prefix []byte, tick int32) []byte {
	return append(append([]byte{}, prefix...), fmt.Sprintf("%s%08x", segTick, uint32(tick)^0x80000000)...)
}

func obsKey(prefix []byte, slot int) []byte {
	return append(append([]byte{}, prefix...), fmt.Sprintf("%s%05d", segObs, slot)...)
}

func posKey(prefix []byte, id common.Hash) []byte {
	return append(append([]byte{}, prefix...), (segPos + id.Hex())...)
}

func segmentPrefix(prefix []byte, seg string) []byte {
	return append(append([]byte{}, prefix...), seg...)
}

// keyUpperBound returns the smallest key greater than every key with prefix.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
