package domain

import "math/big"

const (
	// BasisPointsDenominator is 100% expressed in basis points.
	BasisPointsDenominator = 10000

	// MaxRoyaltyFeeLimit is the absolute ceiling (95%) for the governed royalty fee limit.
	MaxRoyaltyFeeLimit = 9500
)

var bpsDenominator = big.NewInt(BasisPointsDenominator)

// FitsUint256 reports whether x is a non-negative integer of at most 256 bits. ABI encoding
// reduces wider values mod 2^256, so anything else would hash like a different number.
func FitsUint256(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.BitLen() <= 256
}

// ApplyBasisPoints returns amount * bps / 10000, truncated toward zero.
func ApplyBasisPoints(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || bps == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, bpsDenominator)
}

// FeeBreakdown splits a sale price between the protocol, the royalty receiver and the seller.
type FeeBreakdown struct {
	Price          *big.Int `json:"price"`
	ProtocolFee    *big.Int `json:"protocol_fee"`
	Royalty        *big.Int `json:"royalty"`
	SellerProceeds *big.Int `json:"seller_proceeds"`
}

// NewFeeBreakdown computes the split. SellerProceeds may be negative when the fees exceed
// the price; callers reject such breakdowns through MeetsMinimum.
func NewFeeBreakdown(price *big.Int, protocolFeeBps uint64, royalty *big.Int) FeeBreakdown {
	protocolFee := ApplyBasisPoints(price, protocolFeeBps)
	if royalty == nil {
		royalty = new(big.Int)
	}
	proceeds := new(big.Int).Sub(price, protocolFee)
	proceeds.Sub(proceeds, royalty)
	return FeeBreakdown{
		Price:          new(big.Int).Set(price),
		ProtocolFee:    protocolFee,
		Royalty:        new(big.Int).Set(royalty),
		SellerProceeds: proceeds,
	}
}

// MeetsMinimum reports whether the seller keeps at least minPercentage (bps) of the price.
func (f FeeBreakdown) MeetsMinimum(minPercentage uint64) bool {
	return f.SellerProceeds.Cmp(ApplyBasisPoints(f.Price, minPercentage)) >= 0
}

// Conserves reports whether the three shares add up to the price exactly.
func (f FeeBreakdown) Conserves() bool {
	sum := new(big.Int).Add(f.ProtocolFee, f.Royalty)
	sum.Add(sum, f.SellerProceeds)
	return sum.Cmp(f.Price) == 0
}
