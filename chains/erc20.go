package chains

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20MetaABI covers the two read-only calls the monitor needs.
const erc20MetaABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20Meta = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20MetaABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ContractCaller is the slice of the RPC client used for metadata reads,
// satisfied by ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetadata reads symbol() and decimals() from token. Tokens whose
// metadata cannot be decoded are dropped by the caller.
func TokenMetadata(ctx context.Context, caller ContractCaller, token common.Address) (string, uint8, error) {
	symData, err := erc20Meta.Pack("symbol")
	if err != nil {
		return "", 0, err
	}
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: symData}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("symbol call: %w", err)
	}
	symOut, err := erc20Meta.Unpack("symbol", raw)
	if err != nil || len(symOut) != 1 {
		return "", 0, fmt.Errorf("symbol decode: %v", err)
	}
	symbol, ok := symOut[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("symbol is not a string")
	}

	decData, err := erc20Meta.Pack("decimals")
	if err != nil {
		return "", 0, err
	}
	raw, err = caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: decData}, nil)
	if err != nil {
		return "", 0, fmt.Errorf("decimals call: %w", err)
	}
	decOut, err := erc20Meta.Unpack("decimals", raw)
	if err != nil || len(decOut) != 1 {
		return "", 0, fmt.Errorf("decimals decode: %v", err)
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return "", 0, fmt.Errorf("decimals is not uint8")
	}
	return symbol, decimals, nil
}
