package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Balance is one account's holding of one settlement currency.
type Balance struct {
	Currency common.Address `json:"currency"`
	Account  common.Address `json:"account"`
	Amount   *big.Int       `json:"amount"`
	LastSeq  uint64         `json:"last_seq"` // Last settlement sequence that modified this
}

// Credit adds funds to the balance.
func (b *Balance) Credit(amount *big.Int, seq uint64) {
	b.Amount = new(big.Int).Add(b.Amount, amount)
	b.LastSeq = seq
}

// Debit removes funds from the balance. Fails without side effects when insufficient.
func (b *Balance) Debit(amount *big.Int, seq uint64) error {
	if amount.Cmp(b.Amount) > 0 {
		return fmt.Errorf("%w: %s need %s, available %s",
			ErrInsufficientBalance, b.Account.Hex(), amount, b.Amount)
	}
	b.Amount = new(big.Int).Sub(b.Amount, amount)
	b.LastSeq = seq
	return nil
}

// VerifyInvariant checks that balance satisfies invariants.
// Call this after any state change to ensure data integrity.
func (b *Balance) VerifyInvariant() {
	if b.Amount == nil || b.Amount.Sign() < 0 {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_AMOUNT: %s/%s = %v",
			b.Currency.Hex(), b.Account.Hex(), b.Amount))
	}
}

type balanceKey struct {
	currency common.Address
	account  common.Address
}

// BalanceBook manages balances per (currency, account) with invariant checking.
type BalanceBook struct {
	balances map[balanceKey]*Balance
}

// NewBalanceBook creates a new balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[balanceKey]*Balance),
	}
}

// Get returns the balance for (currency, account), creating if not exists.
func (bb *BalanceBook) Get(currency, account common.Address) *Balance {
	k := balanceKey{currency, account}
	b, ok := bb.balances[k]
	if !ok {
		b = &Balance{Currency: currency, Account: account, Amount: new(big.Int)}
		bb.balances[k] = b
	}
	return b
}

// VerifyAll checks invariants on all balances.
func (bb *BalanceBook) VerifyAll() {
	for _, b := range bb.balances {
		b.VerifyInvariant()
	}
}

// Supply returns the sum of all balances held in currency.
func (bb *BalanceBook) Supply(currency common.Address) *big.Int {
	total := new(big.Int)
	for k, b := range bb.balances {
		if k.currency == currency {
			total.Add(total, b.Amount)
		}
	}
	return total
}

// Snapshot returns a copy of all balances (for state dump).
func (bb *BalanceBook) Snapshot() []Balance {
	result := make([]Balance, 0, len(bb.balances))
	for _, v := range bb.balances {
		c := *v
		c.Amount = new(big.Int).Set(v.Amount)
		result = append(result, c)
	}
	return result
}
