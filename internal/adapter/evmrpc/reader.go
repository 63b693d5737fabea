package evmrpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/port/chain"
	"github.com/nice-bills/substrate/internal/resilience"
)

// weiExp scales wei to ether.
const weiExp = -18

// firstTokenID is the id the identity registry mints first.
const firstTokenID = 1

// Options configures a Reader.
type Options struct {
	URL             string
	RegistryAddress string
	MaxConcurrent   int
	MaxIdentities   int
	HTTPClient      *http.Client
	Breaker         *resilience.Breaker
}

// Reader implements chain.Reader against a JSON-RPC endpoint.
type Reader struct {
	rpc           *rpcClient
	registry      string
	maxConcurrent int
	maxIdentities int
	breaker       *resilience.Breaker
}

// New creates a Reader.
func New(opts Options) (*Reader, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("evmrpc: rpc url is required: %w", domain.ErrInvalidInput)
	}
	if !validAddress(opts.RegistryAddress) {
		return nil, fmt.Errorf("evmrpc: registry address %q: %w", opts.RegistryAddress, domain.ErrInvalidInput)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Reader{
		rpc:           &rpcClient{url: opts.URL, http: client},
		registry:      strings.ToLower(opts.RegistryAddress),
		maxConcurrent: max(opts.MaxConcurrent, 1),
		maxIdentities: max(opts.MaxIdentities, 1),
		breaker:       opts.Breaker,
	}, nil
}

// Balance returns the ether balance of address at the latest block.
func (r *Reader) Balance(ctx context.Context, address string) (_ decimal.Decimal, err error) {
	if !validAddress(address) {
		return decimal.Decimal{}, fmt.Errorf("address %q: %w", address, domain.ErrInvalidInput)
	}
	ctx, span := subotel.StartOutboundSpan(ctx, "evm", "eth_getBalance")
	defer func() { subotel.EndSpan(span, err) }()

	var hexWei string
	if err := r.call(ctx, "eth_getBalance", &hexWei, address, "latest"); err != nil {
		return decimal.Decimal{}, err
	}
	wei, err := parseQuantity(hexWei)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", chain.ErrUnavailable, err)
	}
	return decimal.NewFromBigInt(wei, weiExp), nil
}

// Registry lists minted identities, oldest first, up to the configured cap.
// Burned tokens are skipped; a missing token URI is left empty.
func (r *Reader) Registry(ctx context.Context) (_ []chain.Identity, err error) {
	ctx, span := subotel.StartOutboundSpan(ctx, "evm", "registry")
	defer func() { subotel.EndSpan(span, err) }()

	next, err := r.ethCall(ctx, encodeCall("nextTokenId()"))
	if err != nil {
		return nil, err
	}
	n, err := decodeUint(next)
	if err != nil {
		return nil, fmt.Errorf("%w: nextTokenId: %w", chain.ErrUnavailable, err)
	}
	var count uint64
	if n.IsUint64() && n.Uint64() > firstTokenID {
		count = n.Uint64() - firstTokenID
	} else if !n.IsUint64() {
		count = uint64(r.maxIdentities)
	}
	count = min(count, uint64(r.maxIdentities))

	found := make([]*chain.Identity, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i := range count {
		id := firstTokenID + i
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%w: token %d: decode panic: %v", chain.ErrUnavailable, id, p)
				}
			}()
			ident, ok, err := r.identity(gctx, id)
			if err != nil {
				return err
			}
			if ok {
				found[i] = &ident
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]chain.Identity, 0, len(found))
	for _, ident := range found {
		if ident != nil {
			out = append(out, *ident)
		}
	}
	return out, nil
}

// identity reads one token. ok is false when the token does not exist.
func (r *Reader) identity(ctx context.Context, id uint64) (chain.Identity, bool, error) {
	ownerData, err := r.ethCall(ctx, encodeCall("ownerOf(uint256)", id))
	if err != nil {
		if isRevert(err) {
			return chain.Identity{}, false, nil
		}
		return chain.Identity{}, false, err
	}
	owner, err := decodeAddress(ownerData)
	if err != nil {
		return chain.Identity{}, false, fmt.Errorf("%w: ownerOf(%d): %w", chain.ErrUnavailable, id, err)
	}

	ident := chain.Identity{TokenID: id, Owner: owner}
	uriData, err := r.ethCall(ctx, encodeCall("tokenURI(uint256)", id))
	switch {
	case err == nil:
		if uri, derr := decodeString(uriData); derr == nil {
			ident.TokenURI = uri
		}
	case isRevert(err):
	default:
		return chain.Identity{}, false, err
	}
	return ident, true, nil
}

func (r *Reader) ethCall(ctx context.Context, data string) ([]byte, error) {
	var hexOut string
	msg := map[string]string{"to": r.registry, "data": data}
	if err := r.call(ctx, "eth_call", &hexOut, msg, "latest"); err != nil {
		return nil, err
	}
	out, err := decodeHex(hexOut)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_call: %w", chain.ErrUnavailable, err)
	}
	return out, nil
}

// call runs one RPC through the breaker. Reverts are returned as *RPCError
// and do not count as collaborator failures.
func (r *Reader) call(ctx context.Context, method string, result any, params ...any) error {
	var revert error
	fn := func(ctx context.Context) error {
		err := r.rpc.call(ctx, method, result, params...)
		if err != nil && isRevert(err) {
			revert = err
			return nil
		}
		return err
	}
	var err error
	if r.breaker == nil {
		err = fn(ctx)
	} else {
		err = r.breaker.ExecuteContext(ctx, fn)
	}
	if err == nil {
		err = revert
	}
	if err != nil {
		return fmt.Errorf("%w: %w", chain.ErrUnavailable, err)
	}
	return nil
}
