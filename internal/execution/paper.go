package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer is one executed currency movement.
type Transfer struct {
	Seq      uint64         `json:"seq"`
	Currency common.Address `json:"currency"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   *big.Int       `json:"amount"`
	At       time.Time      `json:"at"`
}

// PaperLedger is an in-memory settlement currency ledger.
// It implements domain.CurrencyTransferer.
type PaperLedger struct {
	mu        sync.Mutex
	book      *domain.BalanceBook
	seq       uint64
	transfers []Transfer
}

// NewPaperLedger creates an empty ledger.
func NewPaperLedger() *PaperLedger {
	return &PaperLedger{book: domain.NewBalanceBook()}
}

// Deposit credits amount of currency to account.
func (p *PaperLedger) Deposit(currency, account common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	b := p.book.Get(currency, account)
	b.Credit(amount, p.seq)
	b.VerifyInvariant()
}

// BalanceOf returns account's holding of currency.
func (p *PaperLedger) BalanceOf(currency, account common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.book.Get(currency, account).Amount)
}

// Supply returns the total amount of currency held across all accounts.
func (p *PaperLedger) Supply(currency common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Supply(currency)
}

// TransferFrom moves amount of currency from from to to. Fails without side effects
// when from cannot cover it.
func (p *PaperLedger) TransferFrom(ctx context.Context, currency, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount %v", amount)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to null address")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	src := p.book.Get(currency, from)
	if err := src.Debit(amount, p.seq); err != nil {
		return err
	}
	dst := p.book.Get(currency, to)
	dst.Credit(amount, p.seq)

	src.VerifyInvariant()
	dst.VerifyInvariant()

	p.transfers = append(p.transfers, Transfer{
		Seq:      p.seq,
		Currency: currency,
		From:     from,
		To:       to,
		Amount:   new(big.Int).Set(amount),
		At:       time.Now(),
	})
	return nil
}

// Transfers returns the executed transfers in order.
func (p *PaperLedger) Transfers() []Transfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transfer, len(p.transfers))
	copy(out, p.transfers)
	return out
}

// Snapshot returns all balances.
func (p *PaperLedger) Snapshot() []domain.Balance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Snapshot()
}
