package royalty

import (
	"fmt"
	"sync"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists royalty configuration. Writes happen before the in-memory state changes.
type Store interface {
	SaveRoyalty(collection common.Address, info domain.RoyaltyInfo) error
	SaveFeeLimit(limit uint64) error
}

// Registry holds per-collection royalty information bounded by a governed fee limit.
// It performs no authorization; Setter decides who may write.
type Registry struct {
	mu       sync.RWMutex
	feeLimit uint64
	infos    map[common.Address]domain.RoyaltyInfo
	store    Store
}

// NewRegistry creates a registry with the given fee limit (bps). store may be nil.
func NewRegistry(feeLimit uint64, store Store) (*Registry, error) {
	if feeLimit > domain.MaxRoyaltyFeeLimit {
		return nil, feeLimitTooHigh(feeLimit)
	}
	return &Registry{
		feeLimit: feeLimit,
		infos:    make(map[common.Address]domain.RoyaltyInfo),
		store:    store,
	}, nil
}

// FeeLimit returns the current royalty fee ceiling in bps.
func (r *Registry) FeeLimit() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeLimit
}

// UpdateFeeLimit changes the ceiling. It cannot exceed MaxRoyaltyFeeLimit (95%).
// Existing entries above a lowered limit are kept; the limit only gates new writes.
func (r *Registry) UpdateFeeLimit(newLimit uint64) error {
	if newLimit > domain.MaxRoyaltyFeeLimit {
		return feeLimitTooHigh(newLimit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		if err := r.store.SaveFeeLimit(newLimit); err != nil {
			return fmt.Errorf("persist royalty fee limit: %w", err)
		}
	}
	r.feeLimit = newLimit
	return nil
}

// UpdateRoyaltyInfo writes the royalty information of a collection.
func (r *Registry) UpdateRoyaltyInfo(collection, setter, receiver common.Address, feeBps uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if feeBps > r.feeLimit {
		return domain.NewError(domain.KindRegistryRoyaltyFeeTooHigh, "updateRoyaltyInfo",
			fmt.Errorf("fee %d exceeds limit %d", feeBps, r.feeLimit))
	}
	if feeBps > 0 && receiver == (common.Address{}) {
		return domain.NewError(domain.KindRegistryRoyaltyReceiverInvalid, "updateRoyaltyInfo",
			fmt.Errorf("null receiver for fee %d", feeBps))
	}

	info := domain.RoyaltyInfo{Setter: setter, Receiver: receiver, FeeBps: feeBps}
	if r.store != nil {
		if err := r.store.SaveRoyalty(collection, info); err != nil {
			return fmt.Errorf("persist royalty info: %w", err)
		}
	}
	r.infos[collection] = info
	return nil
}

// Info returns the stored royalty information of a collection.
func (r *Registry) Info(collection common.Address) (domain.RoyaltyInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[collection]
	return info, ok
}

// Resolve returns the receiver and fee rate of a collection, or (null, 0) when unset.
func (r *Registry) Resolve(collection common.Address) (common.Address, uint64) {
	info, _ := r.Info(collection)
	return info.Receiver, info.FeeBps
}

// Restore loads persisted state without writing it back.
func (r *Registry) Restore(feeLimit uint64, infos map[common.Address]domain.RoyaltyInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if feeLimit <= domain.MaxRoyaltyFeeLimit {
		r.feeLimit = feeLimit
	}
	for c, info := range infos {
		r.infos[c] = info
	}
}

func feeLimitTooHigh(limit uint64) error {
	return domain.NewError(domain.KindOwnerRoyaltyFeeLimitTooHigh, "updateRoyaltyFeeLimit",
		fmt.Errorf("limit %d exceeds %d", limit, domain.MaxRoyaltyFeeLimit))
}
