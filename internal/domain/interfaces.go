package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Clock provides the current time to time-window checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// CurrencyTransferer moves fungible settlement currency between accounts.
type CurrencyTransferer interface {
	TransferFrom(ctx context.Context, currency, from, to common.Address, amount *big.Int) error
}

// AssetTransferer moves amount units of (collection, tokenID) between accounts,
// choosing the transfer convention the collection implements.
type AssetTransferer interface {
	TransferAsset(ctx context.Context, collection, from, to common.Address, tokenID, amount *big.Int) error
}

// CollectionDirectory resolves a collection identity to its implementation, which callers
// type-assert for optional capabilities.
type CollectionDirectory interface {
	Collection(addr common.Address) (any, bool)
}

// MembershipOracle answers whitelist membership questions.
type MembershipOracle interface {
	IsWhitelisted(id common.Address) bool
}
