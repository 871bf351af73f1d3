package app

import (
	"sort"
	"sync"

	"github.com/fd1az/chain-wallet/business/connection/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

// Strategy bundles the family-specific rules a connection is built with.
type Strategy struct {
	Family   domain.Family
	Resolver MetadataResolver
	Batch    BatchSource
}

// StrategyTable maps chain families to strategies. A connection resolves its
// strategy once, at construction.
type StrategyTable struct {
	mu         sync.RWMutex
	strategies map[domain.Family]Strategy
}

// NewStrategyTable creates a table holding strategies.
func NewStrategyTable(strategies ...Strategy) *StrategyTable {
	t := &StrategyTable{strategies: make(map[domain.Family]Strategy)}
	for _, s := range strategies {
		t.Register(s)
	}
	return t
}

// Register adds or replaces the strategy for s.Family.
func (t *StrategyTable) Register(s Strategy) {
	t.mu.Lock()
	t.strategies[s.Family] = s
	t.mu.Unlock()
}

// Resolve returns the strategy for chain.
func (t *StrategyTable) Resolve(chain domain.ChainConfig) (Strategy, error) {
	t.mu.RLock()
	s, ok := t.strategies[chain.Family]
	t.mu.RUnlock()

	if !ok || s.Resolver == nil {
		return Strategy{}, apperror.New(apperror.CodeUnsupportedFamily,
			apperror.WithChain(chain.ID),
			apperror.WithContext(string(chain.Family)))
	}
	return s, nil
}

// Families returns the registered families in sorted order.
func (t *StrategyTable) Families() []domain.Family {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Family, 0, len(t.strategies))
	for f := range t.strategies {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
