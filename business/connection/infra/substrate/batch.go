package substrate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/chain-wallet/business/connection/app"
	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/connection/infra/rpc"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	MethodSubscribeStorage   = "state_subscribeStorage"
	MethodUnsubscribeStorage = "state_unsubscribeStorage"
)

// BatchSource subscribes to many storage keys with one state_subscribeStorage.
type BatchSource struct{}

// NewBatchSource creates a Substrate batch source.
func NewBatchSource() *BatchSource {
	return &BatchSource{}
}

var _ app.BatchSource = (*BatchSource)(nil)

// NormalizeKeys maps SS58 addresses to System.Account keys using the chain's
// address prefix.
func (BatchSource) NormalizeKeys(md domain.Metadata, keys []string) ([]string, error) {
	prefix := md.AddressFormat.Prefix
	out := make([]string, len(keys))
	for i, k := range keys {
		nk, err := NormalizeKey(strings.TrimSpace(k), prefix)
		if err != nil {
			return nil, err
		}
		out[i] = nk
	}
	return out, nil
}

// storageChangeSet is the state_subscribeStorage notification payload.
type storageChangeSet struct {
	Block   string      `json:"block"`
	Changes [][]*string `json:"changes"`
}

// Open subscribes to keys. Every notification is merged into a last value
// per key and delivered for all keys in order.
func (BatchSource) Open(ctx context.Context, caller app.Caller, keys []string) (app.BatchStream, error) {
	sub, err := caller.Subscribe(ctx, MethodSubscribeStorage, MethodUnsubscribeStorage, keys)
	if err != nil {
		return nil, err
	}

	positions := make(map[string][]int, len(keys))
	for i, k := range keys {
		positions[strings.ToLower(k)] = append(positions[strings.ToLower(k)], i)
	}
	cache := make([][]byte, len(keys))

	stream := rpc.NewStream(sub)
	go stream.Run(func(_ context.Context, raw json.RawMessage) error {
		var set storageChangeSet
		if err := json.Unmarshal(raw, &set); err != nil {
			return apperror.Decode("storage change set", err)
		}

		errs := make([]error, len(keys))
		for _, change := range set.Changes {
			if len(change) == 0 || change[0] == nil {
				continue
			}
			idx, ok := positions[strings.ToLower(*change[0])]
			if !ok {
				continue
			}

			var value []byte
			var decodeErr error
			if len(change) > 1 && change[1] != nil {
				value, decodeErr = hexutil.Decode(*change[1])
			}
			for _, i := range idx {
				if decodeErr != nil {
					errs[i] = apperror.Decode("storage value "+keys[i], decodeErr)
					continue
				}
				cache[i] = value
			}
		}

		values := make([][]byte, len(cache))
		copy(values, cache)
		stream.Emit(domain.RawBatch{Values: values, Errs: errs, Block: set.Block})
		return nil
	})
	return stream, nil
}
