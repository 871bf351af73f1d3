package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
	"github.com/fd1az/chain-wallet/internal/logger"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithResolveTimeout bounds each metadata resolution.
func WithResolveTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.resolveTimeout = d
		}
	}
}

// Registry is the only place connections are created. It holds at most one
// connection per configured chain, built lazily on first lookup.
type Registry struct {
	chains         map[string]domain.ChainConfig
	table          *StrategyTable
	factory        TransportFactory
	log            logger.LoggerInterface
	metrics        *connectionMetrics
	resolveTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]*Connection
	hints map[string]domain.Metadata
}

// NewRegistry creates a registry over a fixed set of chains.
func NewRegistry(chains []domain.ChainConfig, table *StrategyTable, factory TransportFactory,
	log logger.LoggerInterface, opts ...RegistryOption) (*Registry, error) {
	m, err := newConnectionMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	r := &Registry{
		chains:         make(map[string]domain.ChainConfig, len(chains)),
		table:          table,
		factory:        factory,
		log:            log,
		metrics:        m,
		resolveTimeout: DefaultResolveTimeout,
		conns:          make(map[string]*Connection),
		hints:          make(map[string]domain.Metadata),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, ch := range chains {
		if ch.ID == "" {
			return nil, apperror.Validation(apperror.CodeRequiredField, "chain id")
		}
		if _, dup := r.chains[ch.ID]; dup {
			return nil, apperror.Validation(apperror.CodeInvalidInput, "duplicate chain "+ch.ID)
		}
		r.chains[ch.ID] = ch
	}

	return r, nil
}

// Get returns the connection for chainID, creating it on first use.
// Concurrent first lookups converge on one instance.
func (r *Registry) Get(chainID string) (*Connection, error) {
	r.mu.RLock()
	conn, ok := r.conns[chainID]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if conn, ok := r.conns[chainID]; ok {
		return conn, nil
	}

	chain, ok := r.chains[chainID]
	if !ok {
		return nil, apperror.New(apperror.CodeChainNotConfigured, apperror.WithChain(chainID))
	}

	strategy, err := r.table.Resolve(chain)
	if err != nil {
		return nil, err
	}

	conn = newConnection(chain, strategy, r.factory, r.log, r.metrics)
	conn.resolveTimeout = r.resolveTimeout
	if hint, ok := r.hints[chainID]; ok {
		conn.SeedMetadata(hint)
	}
	r.conns[chainID] = conn

	r.log.Debug(context.Background(), "connection created",
		"chain", chainID, "family", string(chain.Family), "endpoint", chain.Endpoint)

	return conn, nil
}

// Remove disconnects and evicts the connection. A later Get builds a new one.
func (r *Registry) Remove(chainID string) {
	r.mu.Lock()
	conn, ok := r.conns[chainID]
	delete(r.conns, chainID)
	r.mu.Unlock()

	if ok {
		conn.close()
	}
}

// All returns a snapshot of the existing connections ordered by chain id.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChainID() < out[j].ChainID() })
	return out
}

// Chains returns every configured chain id in sorted order.
func (r *Registry) Chains() []string {
	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Chain returns the configuration for chainID.
func (r *Registry) Chain(chainID string) (domain.ChainConfig, bool) {
	ch, ok := r.chains[chainID]
	return ch, ok
}

// SeedMetadata records a persisted metadata hint for chainID.
func (r *Registry) SeedMetadata(chainID string, md domain.Metadata) error {
	if _, ok := r.chains[chainID]; !ok {
		return apperror.New(apperror.CodeChainNotConfigured, apperror.WithChain(chainID))
	}

	r.mu.Lock()
	r.hints[chainID] = md.Clone()
	conn := r.conns[chainID]
	r.mu.Unlock()

	if conn != nil {
		conn.SeedMetadata(md)
	}
	return nil
}

// ConnectAll connects every configured chain.
func (r *Registry) ConnectAll() error {
	for _, id := range r.Chains() {
		conn, err := r.Get(id)
		if err != nil {
			return err
		}
		conn.Connect()
	}
	return nil
}

// Close disconnects and evicts every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.close()
		}(c)
	}
	wg.Wait()
}
