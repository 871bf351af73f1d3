package subscription

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chain-wallet/business/connection"
	connectionDI "github.com/fd1az/chain-wallet/business/connection/di"
	"github.com/fd1az/chain-wallet/business/connection/infra/substrate"
	"github.com/fd1az/chain-wallet/business/subscription/app"
	subscriptionDI "github.com/fd1az/chain-wallet/business/subscription/di"
	"github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/internal/config"
	"github.com/fd1az/chain-wallet/internal/logger"
	"github.com/fd1az/chain-wallet/internal/monolith"
)

const alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

type nodeRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// accountValue encodes an AccountInfo holding free planck.
func accountValue(free uint64) string {
	raw := make([]byte, 80)
	binary.LittleEndian.PutUint32(raw[0:4], 1)
	binary.LittleEndian.PutUint64(raw[16:24], free)
	return hexutil.Encode(raw)
}

// newDevNode answers resolution calls and pushes one storage change for
// every key passed to state_subscribeStorage.
func newDevNode(t *testing.T) *httptest.Server {
	t.Helper()
	results := map[string]any{
		"system_chain":      "Development",
		"system_name":       "dev-node",
		"system_version":    "1.0.0",
		"system_properties": map[string]any{"ss58Format": 42, "tokenDecimals": 12, "tokenSymbol": "UNIT"},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var mu sync.Mutex
		write := func(v any) {
			mu.Lock()
			defer mu.Unlock()
			_ = wsjson.Write(context.Background(), conn, v)
		}

		for {
			var req nodeRequest
			if err := wsjson.Read(context.Background(), conn, &req); err != nil {
				return
			}
			switch req.Method {
			case substrate.MethodSubscribeStorage:
				var keys []string
				if len(req.Params) > 0 {
					_ = json.Unmarshal(req.Params[0], &keys)
				}
				write(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "sub-1"})

				changes := make([][]any, len(keys))
				for i, k := range keys {
					changes[i] = []any{k, accountValue(2_500_000_000_000)}
				}
				write(map[string]any{
					"jsonrpc": "2.0",
					"method":  "state_storage",
					"params": map[string]any{
						"subscription": "sub-1",
						"result":       map[string]any{"block": "0x01", "changes": changes},
					},
				})
			case substrate.MethodUnsubscribeStorage:
				write(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": true})
			default:
				write(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": results[req.Method]})
			}
		}
	}))
}

func TestModules_BalanceOverWebsocket(t *testing.T) {
	node := newDevNode(t)
	defer node.Close()

	cfg := &config.Config{
		App: config.AppConfig{Name: "test"},
		Transport: config.TransportConfig{
			Backoff:        config.BackoffConstant,
			InitialBackoff: 10 * time.Millisecond,
		},
		Chains: map[string]config.ChainConfig{
			"dev": {Endpoint: "ws" + strings.TrimPrefix(node.URL, "http"), Family: config.FamilySubstrate},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mono := monolith.New(cfg, logger.NewDiscard())
	modules := []monolith.Module{&connection.Module{}, &Module{}}
	require.NoError(t, mono.RegisterModules(modules...))
	require.NoError(t, mono.StartModules(ctx, modules...))
	defer mono.Close(context.Background())

	conn, err := connectionDI.GetRegistry(mono.Services()).Get("dev")
	require.NoError(t, err)
	h, err := conn.Ready().Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UNIT", h.Metadata().Symbol())

	mux := subscriptionDI.GetMultiplexer(mono.Services())
	got := make(chan domain.AccountBalance, 1)
	batch, err := app.OpenBatch(ctx, mux, h, []string{alice}, substrate.DecodeAccountInfo,
		func(i int, b domain.AccountBalance) {
			select {
			case got <- b:
			default:
			}
		}, app.WithName("balances"))
	require.NoError(t, err)
	defer batch.Close()

	select {
	case b := <-got:
		assert.True(t, b.Present)
		assert.Equal(t, "2.5", h.Metadata().Amount(&b.Free).String())
	case <-ctx.Done():
		t.Fatal("no balance delivered")
	}
	assert.Len(t, mux.Active(), 1)
}
