package evmrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/port/chain"
)

const registry = "0x8004a818bfb912233c491871b3d84c89a494bd9e"

var _ chain.Reader = (*Reader)(nil)

// fakeNode answers JSON-RPC requests from a handler keyed by method and calldata selector.
type fakeNode struct {
	calls atomic.Int64
	reply func(method string, params []json.RawMessage) (any, *RPCError)
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, rpcErr := f.reply(req.Method, req.Params)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func word(n uint64) []byte {
	w := make([]byte, 32)
	new(big.Int).SetUint64(n).FillBytes(w)
	return w
}

func abiString(s string) string {
	data := append(word(32), word(uint64(len(s)))...)
	padded := make([]byte, (len(s)+31)/32*32)
	copy(padded, s)
	return "0x" + hex.EncodeToString(append(data, padded...))
}

func newReader(t *testing.T, node *fakeNode) *Reader {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	r, err := New(Options{URL: srv.URL, RegistryAddress: registry, MaxConcurrent: 2, MaxIdentities: 10, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSelector(t *testing.T) {
	// Well-known ERC-721 selectors.
	if got := hex.EncodeToString(selector("ownerOf(uint256)")); got != "6352211e" {
		t.Errorf("expected 6352211e, got %s", got)
	}
	if got := hex.EncodeToString(selector("tokenURI(uint256)")); got != "c87b56dd" {
		t.Errorf("expected c87b56dd, got %s", got)
	}
	if got := encodeCall("ownerOf(uint256)", 7); !strings.HasSuffix(got, "07") || len(got) != 2+8+64 {
		t.Errorf("unexpected calldata %s", got)
	}
}

func TestBalance(t *testing.T) {
	node := &fakeNode{reply: func(method string, params []json.RawMessage) (any, *RPCError) {
		if method != "eth_getBalance" {
			t.Errorf("expected eth_getBalance, got %s", method)
		}
		return "0x1bc16d674ec80000", nil // 2 ether
	}}
	bal, err := newReader(t, node).Balance(context.Background(), registry)
	if err != nil {
		t.Fatal(err)
	}
	if bal.String() != "2" {
		t.Errorf("expected 2, got %s", bal)
	}
}

func TestBalanceInvalidAddress(t *testing.T) {
	node := &fakeNode{reply: func(string, []json.RawMessage) (any, *RPCError) { return "0x0", nil }}
	_, err := newReader(t, node).Balance(context.Background(), "0x123")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if node.calls.Load() != 0 {
		t.Error("invalid address should not reach the node")
	}
}

func TestRegistry(t *testing.T) {
	owner := strings.Repeat("ab", 20)
	node := &fakeNode{reply: func(method string, params []json.RawMessage) (any, *RPCError) {
		var msg struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		_ = json.Unmarshal(params[0], &msg)
		if msg.To != registry {
			t.Errorf("expected call to registry, got %s", msg.To)
		}
		data, _ := decodeHex(msg.Data)
		sel := hex.EncodeToString(data[:4])
		var id uint64
		if len(data) >= 36 {
			id = new(big.Int).SetBytes(data[4:36]).Uint64()
		}
		switch sel {
		case hex.EncodeToString(selector("nextTokenId()")):
			return "0x" + hex.EncodeToString(word(4)), nil
		case "6352211e":
			if id == 2 {
				return nil, &RPCError{Code: 3, Message: "execution reverted"}
			}
			return "0x" + strings.Repeat("00", 12) + owner, nil
		case "c87b56dd":
			return abiString("ipfs://agent-" + string(rune('0'+id))), nil
		}
		t.Errorf("unexpected selector %s", sel)
		return nil, &RPCError{Code: -32601, Message: "unknown"}
	}}

	ids, err := newReader(t, node).Registry(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 identities (token 2 burned), got %d", len(ids))
	}
	if ids[0].TokenID != 1 || ids[1].TokenID != 3 {
		t.Errorf("expected tokens 1 and 3 in order, got %d and %d", ids[0].TokenID, ids[1].TokenID)
	}
	if ids[0].Owner != "0x"+owner {
		t.Errorf("expected owner 0x%s, got %s", owner, ids[0].Owner)
	}
	if ids[1].TokenURI != "ipfs://agent-3" {
		t.Errorf("expected ipfs://agent-3, got %q", ids[1].TokenURI)
	}
}

func TestRegistryUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	r, err := New(Options{URL: srv.URL, RegistryAddress: registry, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Registry(context.Background()); !errors.Is(err, chain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDecodeStringBounds(t *testing.T) {
	if _, err := decodeString(word(64)); err == nil {
		t.Error("expected out-of-range offset error")
	}
	maxWord := make([]byte, 32)
	for i := 24; i < 32; i++ {
		maxWord[i] = 0xff
	}
	if _, err := decodeString(maxWord); err == nil {
		t.Error("expected error for offset near 2^64")
	}
	if _, err := decodeString(append(word(32), maxWord...)); err == nil {
		t.Error("expected error for length near 2^64")
	}
	got, err := decodeString(mustHex(t, abiString("hello")))
	if err != nil || got != "hello" {
		t.Errorf("expected hello, got %q (%v)", got, err)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := decodeHex(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
