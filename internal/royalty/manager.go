package royalty

import (
	"math/big"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Manager computes the royalty owed on a sale.
type Manager struct {
	registry    *Registry
	collections domain.CollectionDirectory
}

// NewManager creates a Manager. collections may be nil when no ERC2981 fallback is wanted.
func NewManager(registry *Registry, collections domain.CollectionDirectory) *Manager {
	return &Manager{registry: registry, collections: collections}
}

// Resolve returns the registered receiver and fee rate, or (null, 0).
func (m *Manager) Resolve(collection common.Address) (common.Address, uint64) {
	return m.registry.Resolve(collection)
}

// CalculateRoyalty returns the receiver and amount owed on a sale at salePrice.
// The registry entry wins; without one the collection's ERC2981 report is used, capped at
// the registry fee limit. Returns (null, 0) when nothing is owed.
func (m *Manager) CalculateRoyalty(collection common.Address, tokenID, salePrice *big.Int) (common.Address, *big.Int) {
	receiver, feeBps := m.registry.Resolve(collection)
	amount := domain.ApplyBasisPoints(salePrice, feeBps)
	if receiver != (common.Address{}) && amount.Sign() > 0 {
		return receiver, amount
	}

	if m.collections != nil {
		if impl, ok := m.collections.Collection(collection); ok {
			if r, ok := impl.(ERC2981); ok {
				recv, amt := r.RoyaltyInfo(tokenID, salePrice)
				if recv != (common.Address{}) && amt != nil && amt.Sign() > 0 {
					ceiling := domain.ApplyBasisPoints(salePrice, m.registry.FeeLimit())
					if amt.Cmp(ceiling) > 0 {
						amt = ceiling
					}
					return recv, new(big.Int).Set(amt)
				}
			}
		}
	}
	return common.Address{}, new(big.Int)
}
