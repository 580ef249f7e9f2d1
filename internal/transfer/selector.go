package transfer

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Convention is the transfer interface a collection implements.
type Convention uint8

const (
	ConventionNone Convention = iota
	ConventionERC721
	ConventionERC1155
	ConventionNonCompliant
)

// String returns the string representation of Convention
func (c Convention) String() string {
	switch c {
	case ConventionERC721:
		return "ERC721"
	case ConventionERC1155:
		return "ERC1155"
	case ConventionNonCompliant:
		return "NON_COMPLIANT_ERC721"
	default:
		return "NONE"
	}
}

type erc721Transfer interface {
	SafeTransferFrom(from, to common.Address, tokenID *big.Int) error
}

type erc1155Transfer interface {
	SafeTransferFrom(from, to common.Address, id, amount *big.Int) error
}

type legacyTransfer interface {
	TransferFrom(from, to common.Address, tokenID *big.Int) error
}

// Manager performs a transfer for one convention.
type Manager interface {
	Convention() Convention
	Transfer(ctx context.Context, impl any, from, to common.Address, tokenID, amount *big.Int) error
}

// ERC721Manager transfers single-owner tokens. amount is ignored.
type ERC721Manager struct{}

func (ERC721Manager) Convention() Convention { return ConventionERC721 }

func (ERC721Manager) Transfer(ctx context.Context, impl any, from, to common.Address, tokenID, _ *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := impl.(erc721Transfer)
	if !ok {
		return fmt.Errorf("collection %T is not ERC721", impl)
	}
	return c.SafeTransferFrom(from, to, tokenID)
}

// ERC1155Manager transfers amount units of a multi-quantity token.
type ERC1155Manager struct{}

func (ERC1155Manager) Convention() Convention { return ConventionERC1155 }

func (ERC1155Manager) Transfer(ctx context.Context, impl any, from, to common.Address, tokenID, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := impl.(erc1155Transfer)
	if !ok {
		return fmt.Errorf("collection %T is not ERC1155", impl)
	}
	return c.SafeTransferFrom(from, to, tokenID, amount)
}

// NonCompliantERC721Manager transfers tokens of collections that only have TransferFrom.
type NonCompliantERC721Manager struct{}

func (NonCompliantERC721Manager) Convention() Convention { return ConventionNonCompliant }

func (NonCompliantERC721Manager) Transfer(ctx context.Context, impl any, from, to common.Address, tokenID, _ *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := impl.(legacyTransfer)
	if !ok {
		return fmt.Errorf("collection %T has no TransferFrom", impl)
	}
	return c.TransferFrom(from, to, tokenID)
}

// Directory resolves collection identities to in-process implementations.
type Directory struct {
	mu    sync.RWMutex
	items map[common.Address]any
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{items: make(map[common.Address]any)}
}

// Register binds addr to impl.
func (d *Directory) Register(addr common.Address, impl any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[addr] = impl
}

// Collection implements domain.CollectionDirectory.
func (d *Directory) Collection(addr common.Address) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	impl, ok := d.items[addr]
	return impl, ok
}

// Selector routes asset transfers to the manager matching each collection.
// Manual overrides win over capability detection.
type Selector struct {
	dir       domain.CollectionDirectory
	mu        sync.RWMutex
	overrides map[common.Address]Manager
}

// NewSelector creates a Selector over dir.
func NewSelector(dir domain.CollectionDirectory) *Selector {
	return &Selector{dir: dir, overrides: make(map[common.Address]Manager)}
}

// AddCollectionTransferManager forces m for collection.
func (s *Selector) AddCollectionTransferManager(collection common.Address, m Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[collection] = m
}

// RemoveCollectionTransferManager drops a manual override.
func (s *Selector) RemoveCollectionTransferManager(collection common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, collection)
}

// CheckTransferManagerForToken returns the manager for collection, or false when none applies.
func (s *Selector) CheckTransferManagerForToken(collection common.Address) (Manager, bool) {
	s.mu.RLock()
	m, ok := s.overrides[collection]
	s.mu.RUnlock()
	if ok {
		return m, true
	}

	impl, ok := s.dir.Collection(collection)
	if !ok {
		return nil, false
	}
	switch impl.(type) {
	case erc721Transfer:
		return ERC721Manager{}, true
	case erc1155Transfer:
		return ERC1155Manager{}, true
	default:
		return nil, false
	}
}

// TransferAsset implements domain.AssetTransferer.
func (s *Selector) TransferAsset(ctx context.Context, collection, from, to common.Address, tokenID, amount *big.Int) error {
	m, ok := s.CheckTransferManagerForToken(collection)
	if !ok {
		return fmt.Errorf("no transfer manager for %s", collection.Hex())
	}
	impl, ok := s.dir.Collection(collection)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCollection, collection.Hex())
	}
	return m.Transfer(ctx, impl, from, to, tokenID, amount)
}
