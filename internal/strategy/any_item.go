package strategy

import "booksrare_go/internal/domain"

// AnyItemFromCollectionFixedPrice matches any token of the maker's collection at the maker's
// price. The token is the one the taker names.
type AnyItemFromCollectionFixedPrice struct {
	base
}

// NewAnyItemFromCollectionFixedPrice creates the strategy. clk may be nil for the system clock.
func NewAnyItemFromCollectionFixedPrice(feeBps uint64, clk domain.Clock) *AnyItemFromCollectionFixedPrice {
	return &AnyItemFromCollectionFixedPrice{base: newBase("AnyItemFromCollectionForFixedPrice", feeBps, clk)}
}

// CanExecuteTakerAsk serves collection offers: the taker sells whichever token it names.
func (s *AnyItemFromCollectionFixedPrice) CanExecuteTakerAsk(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error) {
	return s.match(taker, maker), nil
}

// CanExecuteTakerBid serves collection-wide listings: the taker picks the token to buy.
// The transfer fails later if the maker does not hold it.
func (s *AnyItemFromCollectionFixedPrice) CanExecuteTakerBid(taker *domain.TakerOrder, maker *domain.MakerOrder) (Match, error) {
	return s.match(taker, maker), nil
}

func (s *AnyItemFromCollectionFixedPrice) match(taker *domain.TakerOrder, maker *domain.MakerOrder) Match {
	ok := samePrice(taker.Price, maker.Price) && s.active(maker)
	return Match{OK: ok, TokenID: copyInt(taker.TokenID), Amount: copyInt(maker.Amount)}
}
