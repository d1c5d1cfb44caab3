package amm

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"launchpool/internal/types"
)

// DeadAddress receives liquidity that must stay locked forever.
var DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

var (
	poolInitCodeHash  = crypto.Keccak256([]byte("launchpool/LiquidityPool"))
	shareInitCodeHash = crypto.Keccak256([]byte("launchpool/ShareToken"))
)

// Component deployment nonces relative to the deployer address.
const (
	RegistryNonce uint64 = iota
	RouterNonce
	CurveNonce
	GraduationNonce
)

// ComponentAddress derives the address of an engine component deployed by deployer.
func ComponentAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// SortTokens orders two asset identifiers into canonical (low, high) order.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, types.ErrIdenticalAddresses.Wrapf("%s", tokenA.Hex())
	}
	token0, token1 := tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, types.ErrZeroAddress.Wrap("pair token")
	}
	return token0, token1, nil
}

// PairFor derives the pool handle for a pair without any registry state, so
// pool identity can be computed before the pool exists.
func PairFor(registry, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress2(registry, pairSalt(token0, token1), poolInitCodeHash), nil
}

func shareTokenFor(registry, token0, token1 common.Address) common.Address {
	return crypto.CreateAddress2(registry, pairSalt(token0, token1), shareInitCodeHash)
}

func pairSalt(token0, token1 common.Address) [32]byte {
	return crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
}
