package evmrpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// validAddress reports whether s is a 0x-prefixed 20-byte hex address.
func validAddress(s string) bool { return addressRe.MatchString(s) }

// selector returns the 4-byte function selector for a Solidity signature.
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// encodeCall builds calldata for a function taking only uint256 arguments.
func encodeCall(signature string, args ...uint64) string {
	buf := selector(signature)
	for _, a := range args {
		word := make([]byte, 32)
		new(big.Int).SetUint64(a).FillBytes(word)
		buf = append(buf, word...)
	}
	return "0x" + hex.EncodeToString(buf)
}

// decodeHex strips the 0x prefix and decodes.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}

// parseQuantity decodes a JSON-RPC hex quantity such as "0x1bc16d674ec80000".
func parseQuantity(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(s, "0x")
	if digits == "" || digits == s {
		return nil, fmt.Errorf("quantity %q: missing 0x prefix", s)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("quantity %q: not hex", s)
	}
	return n, nil
}

// decodeUint reads the first ABI word as an unsigned integer.
func decodeUint(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, errors.New("abi: short uint256")
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// decodeAddress reads the first ABI word as an address.
func decodeAddress(data []byte) (string, error) {
	if len(data) < 32 {
		return "", errors.New("abi: short address")
	}
	return "0x" + hex.EncodeToString(data[12:32]), nil
}

// decodeString reads a single dynamic string return value. Offsets and
// lengths are compared against the remaining bytes so hostile words near
// 2^64 cannot wrap the bounds check.
func decodeString(data []byte) (string, error) {
	off, err := decodeUint(data)
	if err != nil {
		return "", err
	}
	size := uint64(len(data))
	if !off.IsUint64() || off.Uint64() > size-32 {
		return "", errors.New("abi: string offset out of range")
	}
	start := off.Uint64() + 32
	n := new(big.Int).SetBytes(data[start-32 : start])
	if !n.IsUint64() || n.Uint64() > size-start {
		return "", errors.New("abi: string length out of range")
	}
	return string(data[start : start+n.Uint64()]), nil
}
