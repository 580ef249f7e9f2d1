package strategy

import "booksrare_go/internal/domain"

// StandardFixedPrice matches a single token at the maker's exact price.
type StandardFixedPrice struct {
	base
}

// NewStandardFixedPrice creates the strategy. clk may be nil for the system clock.
func NewStandardFixedPrice(feeBps uint64, clk domain.Clock) *StandardFixedPrice {
	return &StandardFixedPrice{base: newBase("StandardSaleForFixedPrice", feeBps, clk)}
}

// CanExecuteTakerAsk matches when price and token id agree inside the maker's window.
func (s *StandardFixedPrice) CanExecuteTakerAsk(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error) {
	return s.match(taker, maker), nil
}

// CanExecuteTakerBid matches when price and token id agree inside the maker's window.
func (s *StandardFixedPrice) CanExecuteTakerBid(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error) {
	return s.match(taker, maker), nil
}

func (s *StandardFixedPrice) match(taker *domain.TakerOrder, maker *domain.MakerOrder) Match {
	ok := samePrice(taker.Price, maker.Price) &&
		samePrice(taker.TokenID, maker.TokenID) &&
		s.active(maker)
	return Match{OK: ok, TokenID: copyInt(maker.TokenID), Amount: copyInt(maker.Amount)}
}
