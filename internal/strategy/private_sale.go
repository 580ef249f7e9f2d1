package strategy

import (
	"fmt"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var targetArguments = func() abi.Arguments {
	t, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// EncodeTarget builds the maker params of a private sale reserved for buyer.
func EncodeTarget(buyer common.Address) []byte {
	out, err := targetArguments.Pack(buyer)
	if err != nil {
		panic(err)
	}
	return out
}

// DecodeTarget extracts the designated buyer from private sale params.
func DecodeTarget(params []byte) (common.Address, error) {
	values, err := targetArguments.Unpack(params)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode private sale target: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode private sale target: unexpected %T", values[0])
	}
	return addr, nil
}

// PrivateSale is a maker ask reserved for one buyer, named in the maker's params.
type PrivateSale struct {
	base
}

// NewPrivateSale creates the strategy. clk may be nil for the system clock.
func NewPrivateSale(feeBps uint64, clk domain.Clock) *PrivateSale {
	return &PrivateSale{base: newBase("PrivateSale", feeBps, clk)}
}

// CanExecuteTakerAsk never matches; private sales are maker asks only.
func (s *PrivateSale) CanExecuteTakerAsk(*domain.TakerOrder, *domain.MakerOrder) (Match, error) {
	return NoMatch(), nil
}

// CanExecuteTakerBid matches when the taker is the designated buyer, the price and token
// agree and the maker's window is open. A price mismatch still reports the token id.
func (s *PrivateSale) CanExecuteTakerBid(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error) {
	target, err := DecodeTarget(maker.Params)
	if err != nil {
		return NoMatch(), domain.NewError(domain.KindStrategyExecutionInvalid, "privateSale", err)
	}

	ok := target == taker.Taker &&
		samePrice(taker.Price, maker.Price) &&
		samePrice(taker.TokenID, maker.TokenID) &&
		s.active(maker)
	return Match{OK: ok, TokenID: copyInt(maker.TokenID), Amount: copyInt(maker.Amount)}, nil
}
