package evm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/connection/infra/rpc"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	MethodSubscribe   = "eth_subscribe"
	MethodUnsubscribe = "eth_unsubscribe"
	MethodGetBalance  = "eth_getBalance"

	subscriptionNewHeads = "newHeads"

	// DefaultFetchLimit bounds concurrent eth_getBalance calls per head.
	DefaultFetchLimit = 8
)

// BatchSource refreshes every address's balance on each new head.
type BatchSource struct {
	limit int
}

// NewBatchSource creates an EVM batch source.
func NewBatchSource() *BatchSource {
	return &BatchSource{limit: DefaultFetchLimit}
}

var _ app.BatchSource = (*BatchSource)(nil)

// NormalizeKeys checks hex addresses and returns them checksummed.
func (BatchSource) NormalizeKeys(_ domain.Metadata, keys []string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		k = strings.TrimSpace(k)
		if !common.IsHexAddress(k) {
			return nil, apperror.New(apperror.CodeInvalidKey, apperror.WithContext("address "+k))
		}
		out[i] = common.HexToAddress(k).Hex()
	}
	return out, nil
}

type head struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// Open subscribes to newHeads and fetches all balances once immediately and
// again on every head.
func (s *BatchSource) Open(ctx context.Context, caller app.Caller, keys []string) (app.BatchStream, error) {
	sub, err := caller.Subscribe(ctx, MethodSubscribe, MethodUnsubscribe, subscriptionNewHeads)
	if err != nil {
		return nil, err
	}

	stream := rpc.NewStream(sub)
	go func() {
		if !stream.Emit(s.fetch(stream.Context(), caller, keys, "latest")) {
			return
		}
		stream.Run(func(ctx context.Context, raw json.RawMessage) error {
			var h head
			if err := json.Unmarshal(raw, &h); err != nil {
				return apperror.Decode("newHeads", err)
			}
			stream.Emit(s.fetch(ctx, caller, keys, h.Number))
			return nil
		})
	}()
	return stream, nil
}

// fetch reads every balance. A failed read is an error for that index only.
func (s *BatchSource) fetch(ctx context.Context, caller app.Caller, keys []string, block string) domain.RawBatch {
	batch := domain.RawBatch{
		Values: make([][]byte, len(keys)),
		Errs:   make([]error, len(keys)),
		Block:  block,
	}

	var g errgroup.Group
	g.SetLimit(max(s.limit, 1))
	for i, key := range keys {
		g.Go(func() error {
			var quantity string
			if err := caller.Call(ctx, MethodGetBalance, &quantity, key, "latest"); err != nil {
				batch.Errs[i] = err
				return nil
			}
			v, err := hexutil.DecodeBig(quantity)
			if err != nil {
				batch.Errs[i] = apperror.Decode("balance of "+key, err)
				return nil
			}
			// A zero balance is "no state"; the value stays nil.
			if v.Sign() != 0 {
				batch.Values[i] = v.Bytes()
			}
			return nil
		})
	}
	_ = g.Wait()
	return batch
}
