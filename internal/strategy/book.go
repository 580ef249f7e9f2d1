package strategy

import (
	"fmt"
	"sort"
	"sync"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Book maps strategy identities to their implementations.
// Whether a strategy may be used is decided by the strategy whitelist, not the Book.
type Book struct {
	mu         sync.RWMutex
	strategies map[common.Address]Strategy
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{strategies: make(map[common.Address]Strategy)}
}

// Register binds addr to s, replacing any previous binding.
func (b *Book) Register(addr common.Address, s Strategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategies[addr] = s
}

// Get returns the strategy bound to addr.
func (b *Book) Get(addr common.Address) (Strategy, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.strategies[addr]
	return s, ok
}

// Descriptors describes every registered strategy, ordered by address.
// active reports whitelist membership; nil marks all as inactive.
func (b *Book) Descriptors(active domain.MembershipOracle) []domain.StrategyDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.StrategyDescriptor, 0, len(b.strategies))
	for addr, s := range b.strategies {
		out = append(out, domain.StrategyDescriptor{
			Address:        addr,
			Name:           s.Name(),
			ProtocolFeeBps: s.ProtocolFee(),
			Active:         active != nil && active.IsWhitelisted(addr),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

// Kinds accepted by New.
const (
	KindStandard    = "standard"
	KindAnyItem     = "any_item"
	KindPrivateSale = "private_sale"
)

// New builds a strategy by kind name.
func New(kind string, feeBps uint64, clk domain.Clock) (Strategy, error) {
	switch kind {
	case KindStandard:
		return NewStandardFixedPrice(feeBps, clk), nil
	case KindAnyItem:
		return NewAnyItemFromCollectionFixedPrice(feeBps, clk), nil
	case KindPrivateSale:
		return NewPrivateSale(feeBps, clk), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
}
