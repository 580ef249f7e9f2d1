package nonce

import (
	"fmt"
	"sync"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFloorIncrease bounds how far a single CancelAllBelow may raise a signer's floor.
const MaxFloorIncrease = 500000

// Store persists ledger mutations. Writes happen before the in-memory state changes.
type Store interface {
	SaveFloor(signer common.Address, floor uint64) error
	SaveCancelled(signer common.Address, nonces []uint64) error
}

type nonceSet map[uint64]struct{}

// Ledger tracks per-signer cancellation state and consumed orders.
// Entries are only ever added; a floor only ever rises.
type Ledger struct {
	mu        sync.RWMutex
	floors    map[common.Address]uint64
	cancelled map[common.Address]nonceSet
	consumed  map[common.Address]nonceSet
	executed  map[common.Hash]struct{}
	store     Store
}

// NewLedger creates an empty ledger. store may be nil.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		floors:    make(map[common.Address]uint64),
		cancelled: make(map[common.Address]nonceSet),
		consumed:  make(map[common.Address]nonceSet),
		executed:  make(map[common.Hash]struct{}),
		store:     store,
	}
}

// IsValid is false when nonce is below the signer's floor, individually cancelled,
// or already consumed by an executed order.
func (l *Ledger) IsValid(signer common.Address, nonce uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if nonce < l.floors[signer] {
		return false
	}
	if _, ok := l.cancelled[signer][nonce]; ok {
		return false
	}
	_, ok := l.consumed[signer][nonce]
	return !ok
}

// Floor returns the signer's current floor.
func (l *Ledger) Floor(signer common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.floors[signer]
}

// Cancel invalidates individual nonces. Cancelling an already cancelled nonce is a no-op.
func (l *Ledger) Cancel(signer common.Address, nonces []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make([]uint64, 0, len(nonces))
	seen := make(map[uint64]struct{}, len(nonces))
	for _, n := range nonces {
		if _, ok := l.cancelled[signer][n]; ok {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		fresh = append(fresh, n)
	}
	if len(fresh) == 0 {
		return nil
	}

	if l.store != nil {
		if err := l.store.SaveCancelled(signer, fresh); err != nil {
			return fmt.Errorf("persist cancelled nonces: %w", err)
		}
	}
	set := l.cancelled[signer]
	if set == nil {
		set = make(nonceSet, len(fresh))
		l.cancelled[signer] = set
	}
	for _, n := range fresh {
		set[n] = struct{}{}
	}
	return nil
}

// CancelAllBelow raises the signer's floor so every nonce < newFloor is invalid.
// It runs in constant time regardless of how many orders it invalidates.
func (l *Ledger) CancelAllBelow(signer common.Address, newFloor uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.floors[signer]
	if newFloor <= current {
		return domain.NewError(domain.KindNonceFloorNotIncreasing, "cancelAllBelow",
			fmt.Errorf("new floor %d, current %d", newFloor, current))
	}
	if newFloor-current > MaxFloorIncrease {
		return domain.NewError(domain.KindNonceCancelTooMany, "cancelAllBelow",
			fmt.Errorf("raise of %d exceeds %d", newFloor-current, MaxFloorIncrease))
	}

	if l.store != nil {
		if err := l.store.SaveFloor(signer, newFloor); err != nil {
			return fmt.Errorf("persist nonce floor: %w", err)
		}
	}
	l.floors[signer] = newFloor
	return nil
}

// IsExecuted reports whether the order digest has been consumed.
func (l *Ledger) IsExecuted(digest common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.executed[digest]
	return ok
}

// MarkExecuted consumes the digest and the signer's nonce. A second call for the same
// digest fails with Order_AlreadyExecuted and changes nothing.
func (l *Ledger) MarkExecuted(digest common.Hash, signer common.Address, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.executed[digest]; ok {
		return domain.NewError(domain.KindOrderAlreadyExecuted, "markExecuted", nil)
	}
	l.markLocked(digest, signer, nonce)
	return nil
}

func (l *Ledger) markLocked(digest common.Hash, signer common.Address, nonce uint64) {
	l.executed[digest] = struct{}{}
	set := l.consumed[signer]
	if set == nil {
		set = make(nonceSet)
		l.consumed[signer] = set
	}
	set[nonce] = struct{}{}
}

// Restore loads persisted state without writing it back to the store.
func (l *Ledger) Restore(floors map[common.Address]uint64, cancelled map[common.Address][]uint64, executed []domain.ExecutedOrderRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for signer, floor := range floors {
		if floor > l.floors[signer] {
			l.floors[signer] = floor
		}
	}
	for signer, nonces := range cancelled {
		set := l.cancelled[signer]
		if set == nil {
			set = make(nonceSet, len(nonces))
			l.cancelled[signer] = set
		}
		for _, n := range nonces {
			set[n] = struct{}{}
		}
	}
	for _, rec := range executed {
		l.markLocked(common.HexToHash(rec.Digest), common.HexToAddress(rec.Signer), uint64(rec.Nonce))
	}
}
