package registry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// List names used for persistence.
const (
	ListCurrency = "currency"
	ListStrategy = "strategy"
)

// Store persists whitelist membership. Writes happen before the in-memory state changes.
type Store interface {
	AddMember(list string, id common.Address, position uint64) error
	RemoveMember(list string, id common.Address) error
}

// Whitelist is a duplicate-free set of identities with stable, insertion-ordered enumeration.
type Whitelist struct {
	name  string
	mu    sync.RWMutex
	index map[common.Address]int
	items []common.Address
	next  uint64
	store Store
}

// NewWhitelist creates an empty whitelist. store may be nil.
func NewWhitelist(name string, store Store) *Whitelist {
	return &Whitelist{
		name:  name,
		index: make(map[common.Address]int),
		store: store,
	}
}

// NewCurrencyRegistry creates the whitelist of accepted settlement currencies.
func NewCurrencyRegistry(store Store) *Whitelist {
	return NewWhitelist(ListCurrency, store)
}

// NewStrategyRegistry creates the whitelist of accepted execution strategies.
func NewStrategyRegistry(store Store) *Whitelist {
	return NewWhitelist(ListStrategy, store)
}

// Name returns the list name.
func (w *Whitelist) Name() string {
	return w.name
}

// Add inserts id. Adding an existing member is a no-op.
func (w *Whitelist) Add(id common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[id]; ok {
		return nil
	}
	if w.store != nil {
		if err := w.store.AddMember(w.name, id, w.next); err != nil {
			return fmt.Errorf("persist %s whitelist add: %w", w.name, err)
		}
	}
	w.appendLocked(id)
	return nil
}

// Remove deletes id. Removing a non-member is a no-op.
func (w *Whitelist) Remove(id common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pos, ok := w.index[id]
	if !ok {
		return nil
	}
	if w.store != nil {
		if err := w.store.RemoveMember(w.name, id); err != nil {
			return fmt.Errorf("persist %s whitelist remove: %w", w.name, err)
		}
	}
	w.items = append(w.items[:pos], w.items[pos+1:]...)
	delete(w.index, id)
	for i := pos; i < len(w.items); i++ {
		w.index[w.items[i]] = i
	}
	return nil
}

// IsWhitelisted reports membership.
func (w *Whitelist) IsWhitelisted(id common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[id]
	return ok
}

// Count returns the number of members.
func (w *Whitelist) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

// List returns all members in insertion order.
func (w *Whitelist) List() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]common.Address(nil), w.items...)
}

// View pages through the members: it returns up to size members starting at cursor and
// the cursor of the next page.
func (w *Whitelist) View(cursor, size int) ([]common.Address, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if cursor < 0 || cursor >= len(w.items) || size <= 0 {
		return nil, cursor
	}
	end := cursor + size
	if end > len(w.items) {
		end = len(w.items)
	}
	return append([]common.Address(nil), w.items[cursor:end]...), end
}

// Restore loads persisted members (already ordered) without writing them back.
func (w *Whitelist) Restore(ids []common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if _, ok := w.index[id]; !ok {
			w.appendLocked(id)
		}
	}
}

func (w *Whitelist) appendLocked(id common.Address) {
	w.index[id] = len(w.items)
	w.items = append(w.items, id)
	w.next++
}
