package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	connapp "github.com/fd1az/chain-wallet/business/connection/app"
	conndomain "github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/business/connection/infra/evm"
	"github.com/fd1az/chain-wallet/business/connection/infra/substrate"
	subapp "github.com/fd1az/chain-wallet/business/subscription/app"
	subdomain "github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/internal/logger"
)

// failedRetryDelay is how long a watched chain may sit in Failed before the
// watcher asks for a reconnect.
const failedRetryDelay = 5 * time.Second

// watchTarget is one -watch chain=key1,key2 flag.
type watchTarget struct {
	chainID string
	keys    []string
}

// watchFlags collects repeated -watch flags.
type watchFlags []watchTarget

func (w *watchFlags) String() string {
	parts := make([]string, len(*w))
	for i, s := range *w {
		parts[i] = s.chainID + "=" + strings.Join(s.keys, ",")
	}
	return strings.Join(parts, " ")
}

func (w *watchFlags) Set(v string) error {
	target, err := parseWatch(v)
	if err != nil {
		return err
	}
	*w = append(*w, target)
	return nil
}

func parseWatch(v string) (watchTarget, error) {
	chainID, list, ok := strings.Cut(v, "=")
	chainID = strings.TrimSpace(chainID)
	if !ok || chainID == "" {
		return watchTarget{}, fmt.Errorf("watch %q: expected chain=key1,key2", v)
	}

	var keys []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return watchTarget{}, fmt.Errorf("watch %q: no keys", v)
	}
	return watchTarget{chainID: chainID, keys: keys}, nil
}

func decoderFor(f conndomain.Family) (subapp.Decoder[subdomain.AccountBalance], error) {
	switch f {
	case conndomain.FamilySubstrate:
		return substrate.DecodeAccountInfo, nil
	case conndomain.FamilyEVM:
		return evm.DecodeBalance, nil
	default:
		return nil, fmt.Errorf("no balance decoder for family %q", f)
	}
}

// watcher keeps one balance batch open per ready period of a chain. Batches
// are not resubscribed by the subscription layer, so the watcher opens a
// new one after every interruption.
type watcher struct {
	target watchTarget
	reg    *connapp.Registry
	mux    *subapp.Multiplexer
	view   *statusView
	log    logger.LoggerInterface
}

func (w *watcher) run(ctx context.Context) {
	conn, err := w.reg.Get(w.target.chainID)
	if err != nil {
		w.log.Error(ctx, "watch: unknown chain", "chain", w.target.chainID, "error", err)
		return
	}
	decode, err := decoderFor(conn.Chain().Family)
	if err != nil {
		w.log.Error(ctx, "watch: unsupported chain", "chain", w.target.chainID, "error", err)
		return
	}

	for ctx.Err() == nil {
		handle, err := conn.Ready().Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn(ctx, "watch: chain not ready", "chain", w.target.chainID, "error", err)
			w.awaitChange(ctx, conn)
			continue
		}

		md := handle.Metadata()
		interrupted := make(chan error, 1)
		batch, err := subapp.OpenBatch(ctx, w.mux, handle, w.target.keys, decode,
			func(i int, b subdomain.AccountBalance) {
				w.view.balance(w.target.chainID, w.target.keys[i], md, b)
				w.log.Info(ctx, "balance",
					"chain", w.target.chainID,
					"key", w.target.keys[i],
					"exists", b.Present,
					"free", md.FormatAmount(&b.Free),
					"transferable", md.FormatAmount(b.Transferable()))
			},
			subapp.WithName("watch"),
			subapp.WithInterrupted(func(err error) { interrupted <- err }),
		)
		if err != nil {
			w.log.Error(ctx, "watch: open batch failed", "chain", w.target.chainID, "error", err)
			w.awaitChange(ctx, conn)
			continue
		}

		select {
		case <-ctx.Done():
			batch.Close()
			return
		case err := <-interrupted:
			w.log.Info(ctx, "watch: batch interrupted, waiting for ready", "chain", w.target.chainID, "error", err)
		}
	}
}

// awaitChange blocks until the next transition, asking a failed connection
// to reconnect after failedRetryDelay.
func (w *watcher) awaitChange(ctx context.Context, conn *connapp.Connection) {
	changed := make(chan struct{}, 1)
	cancel := conn.OnTransition(func(conndomain.Transition) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	timer := time.NewTimer(failedRetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-changed:
	case <-timer.C:
		if conn.State() == conndomain.StateFailed {
			w.log.Info(ctx, "watch: reconnecting failed chain", "chain", w.target.chainID)
			conn.Reconnect()
		}
	}
}
