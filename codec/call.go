package codec

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector returns the first four bytes of the keccak256 hash of a canonical
// function signature, e.g. "execute(address,uint256,bytes)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// EncodeCall returns the selector of the named method followed by the
// head-tail encoding of args.
//
// Parameters:
//   - def: The parsed contract ABI that declares the method.
//   - name: The method name.
//   - args: The argument values in declaration order.
//
// Returns:
//   - []byte: The call data.
//   - error: An error wrapping ErrEncoding if the method is unknown or any
//     argument does not match its declared type.
func EncodeCall(def abi.ABI, name string, args ...interface{}) (data []byte, err error) {
	method, ok := def.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: method %q is not declared", ErrEncoding, name)
	}

	// abi packing panics on nil *big.Int values
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("%w: %s: %v", ErrEncoding, method.Sig, r)
		}
	}()

	packed, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, method.Sig, err)
	}

	sel := Selector(method.Sig)
	data = make([]byte, 0, len(sel)+len(packed))
	data = append(data, sel[:]...)
	return append(data, packed...), nil
}

var (
	typeCacheMu sync.Mutex
	typeCache   = map[string]abi.Type{}
)

// EncodeArgs ABI-encodes values as the tuple described by types, without a
// selector. Only elementary types ("address", "uint256", "bytes32", "bytes",
// "string", ...) are accepted.
func EncodeArgs(types []string, values ...interface{}) (data []byte, err error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: %d types for %d values", ErrEncoding, len(types), len(values))
	}

	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := lookupType(t)
		if err != nil {
			return nil, err
		}
		args[i] = abi.Argument{Type: typ}
	}

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("%w: %v", ErrEncoding, r)
		}
	}()

	data, err = args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

func lookupType(t string) (abi.Type, error) {
	typeCacheMu.Lock()
	defer typeCacheMu.Unlock()

	if typ, ok := typeCache[t]; ok {
		return typ, nil
	}
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		return abi.Type{}, fmt.Errorf("%w: type %q: %v", ErrEncoding, t, err)
	}
	typeCache[t] = typ
	return typ, nil
}
