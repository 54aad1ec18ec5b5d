package crypto

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	abiTypesMu sync.Mutex
	abiTypes   = map[string]abi.Type{}
)

func abiType(name string) (abi.Type, error) {
	abiTypesMu.Lock()
	defer abiTypesMu.Unlock()
	if t, ok := abiTypes[name]; ok {
		return t, nil
	}
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		return abi.Type{}, fmt.Errorf("abi type %q: %w", name, err)
	}
	abiTypes[name] = t
	return t, nil
}

func abiArguments(types []string) (abi.Arguments, error) {
	args := make(abi.Arguments, len(types))
	for i, name := range types {
		t, err := abiType(name)
		if err != nil {
			return nil, err
		}
		args[i] = abi.Argument{Type: t}
	}
	return args, nil
}

// ABIEncode is Solidity's abi.encode for the given type list.
// bytes32 values are passed as [32]byte, uint256 as *big.Int.
func ABIEncode(types []string, values ...interface{}) ([]byte, error) {
	args, err := abiArguments(types)
	if err != nil {
		return nil, err
	}
	return args.Pack(values...)
}

// ABIDecode reverses ABIEncode
func ABIDecode(types []string, data []byte) ([]interface{}, error) {
	args, err := abiArguments(types)
	if err != nil {
		return nil, err
	}
	return args.Unpack(data)
}
