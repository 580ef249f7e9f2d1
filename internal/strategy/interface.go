package strategy

import (
	"math/big"

	"booksrare_go/internal/domain"
)

// Match is the outcome of a strategy check.
// TokenID and Amount are reported even when OK is false if the strategy could resolve them.
type Match struct {
	OK      bool
	TokenID *big.Int
	Amount  *big.Int
}

// NoMatch is returned when a pair is not executable and nothing could be resolved.
func NoMatch() Match {
	return Match{TokenID: new(big.Int), Amount: new(big.Int)}
}

// Strategy is the interface that all execution strategies must implement.
// It is called synchronously by the settlement engine, after signature and nonce checks.
// A mismatch is an ordinary Match{OK: false}; an error means the maker order carried a
// malformed parameter payload.
type Strategy interface {
	// Name identifies the strategy in logs and descriptors.
	Name() string

	// ProtocolFee returns the protocol fee rate in basis points.
	ProtocolFee() uint64

	// CanExecuteTakerAsk checks a taker ask against a maker bid.
	CanExecuteTakerAsk(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error)

	// CanExecuteTakerBid checks a taker bid against a maker ask.
	CanExecuteTakerBid(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error)
}

// base carries what every fixed-price strategy shares.
type base struct {
	name string
	fee  uint64
	clk  domain.Clock
}

func newBase(name string, feeBps uint64, clk domain.Clock) base {
	if clk == nil {
		clk = domain.SystemClock{}
	}
	return base{name: name, fee: feeBps, clk: clk}
}

func (b base) Name() string        { return b.name }
func (b base) ProtocolFee() uint64 { return b.fee }

func (b base) active(maker *domain.MakerOrder) bool {
	now := b.clk.Now().Unix()
	if now < 0 {
		return false
	}
	return maker.IsActiveAt(uint64(now))
}

func samePrice(a, b *big.Int) bool {
	return a != nil && b != nil && a.Cmp(b) == 0
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
