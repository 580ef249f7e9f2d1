package transfer

import (
	"fmt"
	"math/big"
	"sync"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Option configures the optional roles of an in-memory collection.
type Option func(*roles)

type roles struct {
	owner common.Address
	admin common.Address
}

// WithOwner exposes an owner-style role.
func WithOwner(owner common.Address) Option { return func(r *roles) { r.owner = owner } }

// WithAdmin exposes an admin role.
func WithAdmin(admin common.Address) Option { return func(r *roles) { r.admin = admin } }

func newRoles(opts []Option) roles {
	var r roles
	for _, o := range opts {
		o(&r)
	}
	return r
}

// Owner returns the collection owner, null when none was configured.
func (r roles) Owner() common.Address { return r.owner }

// Admin returns the collection admin, null when none was configured.
func (r roles) Admin() common.Address { return r.admin }

func key(id *big.Int) string { return id.String() }

// ERC721 is an in-memory single-owner-per-id collection.
type ERC721 struct {
	roles
	mu     sync.Mutex
	owners map[string]common.Address
}

// NewERC721 creates an empty ERC-721 style collection.
func NewERC721(opts ...Option) *ERC721 {
	return &ERC721{roles: newRoles(opts), owners: make(map[string]common.Address)}
}

// Mint assigns tokenID to to. Minting an existing id fails.
func (c *ERC721) Mint(to common.Address, tokenID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[key(tokenID)]; ok {
		return fmt.Errorf("token %s already minted", tokenID)
	}
	c.owners[key(tokenID)] = to
	return nil
}

// OwnerOf returns the holder of tokenID.
func (c *ERC721) OwnerOf(tokenID *big.Int) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[key(tokenID)]
	return owner, ok
}

// SafeTransferFrom moves tokenID from from to to.
func (c *ERC721) SafeTransferFrom(from, to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to null address")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[key(tokenID)]; !ok || owner != from {
		return fmt.Errorf("token %s not owned by %s", tokenID, from.Hex())
	}
	c.owners[key(tokenID)] = to
	return nil
}

// ERC1155 is an in-memory multi-quantity-per-id collection.
type ERC1155 struct {
	roles
	mu       sync.Mutex
	balances map[string]map[common.Address]*big.Int
}

// NewERC1155 creates an empty ERC-1155 style collection.
func NewERC1155(opts ...Option) *ERC1155 {
	return &ERC1155{roles: newRoles(opts), balances: make(map[string]map[common.Address]*big.Int)}
}

// Mint credits amount units of id to to.
func (c *ERC1155) Mint(to common.Address, id, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(to, id, amount)
}

// BalanceOf returns the units of id held by account.
func (c *ERC1155) BalanceOf(account common.Address, id *big.Int) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[key(id)][account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// SafeTransferFrom moves amount units of id from from to to.
func (c *ERC1155) SafeTransferFrom(from, to common.Address, id, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to null address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amount %v", amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	held := c.balances[key(id)][from]
	if held == nil || held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %v of %s, needs %s", domain.ErrInsufficientBalance, from.Hex(), held, id, amount)
	}
	held.Sub(held, amount)
	c.credit(to, id, amount)
	return nil
}

func (c *ERC1155) credit(to common.Address, id, amount *big.Int) {
	m, ok := c.balances[key(id)]
	if !ok {
		m = make(map[common.Address]*big.Int)
		c.balances[key(id)] = m
	}
	if b, ok := m[to]; ok {
		b.Add(b, amount)
		return
	}
	m[to] = new(big.Int).Set(amount)
}

// LegacyERC721 is a single-owner collection predating the ERC-721 interface: it only has
// a plain TransferFrom and needs a manual override in the Selector.
type LegacyERC721 struct {
	inner *ERC721
}

// NewLegacyERC721 creates an empty legacy collection.
func NewLegacyERC721(opts ...Option) *LegacyERC721 {
	return &LegacyERC721{inner: NewERC721(opts...)}
}

func (c *LegacyERC721) Mint(to common.Address, tokenID *big.Int) error {
	return c.inner.Mint(to, tokenID)
}

func (c *LegacyERC721) OwnerOf(tokenID *big.Int) (common.Address, bool) {
	return c.inner.OwnerOf(tokenID)
}

func (c *LegacyERC721) Owner() common.Address { return c.inner.Owner() }

// TransferFrom moves tokenID from from to to.
func (c *LegacyERC721) TransferFrom(from, to common.Address, tokenID *big.Int) error {
	return c.inner.SafeTransferFrom(from, to, tokenID)
}

// RoyaltyERC721 is an ERC-721 collection that reports its own royalties (ERC-2981).
type RoyaltyERC721 struct {
	*ERC721
	receiver common.Address
	feeBps   uint64
}

// NewRoyaltyERC721 creates an ERC-721 collection paying feeBps of every sale to receiver.
func NewRoyaltyERC721(receiver common.Address, feeBps uint64, opts ...Option) *RoyaltyERC721 {
	return &RoyaltyERC721{ERC721: NewERC721(opts...), receiver: receiver, feeBps: feeBps}
}

// RoyaltyInfo returns the receiver and amount owed on a sale of tokenID at salePrice.
func (c *RoyaltyERC721) RoyaltyInfo(_, salePrice *big.Int) (common.Address, *big.Int) {
	return c.receiver, domain.ApplyBasisPoints(salePrice, c.feeBps)
}
