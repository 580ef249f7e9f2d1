package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the direction of an order.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideAsk:
		return "ASK"
	case SideBid:
		return "BID"
	default:
		return "UNKNOWN"
	}
}

// IsAsk reports whether the side sells the asset.
func (s Side) IsAsk() bool {
	return s == SideAsk
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideAsk {
		return SideBid
	}
	return SideAsk
}

// MakerOrder is a standing offer created off-line and signed by its Signer.
// Price, TokenID and Amount are uint256 quantities; timestamps are unix seconds.
type MakerOrder struct {
	Side               Side           `json:"side"`
	Signer             common.Address `json:"signer"`
	Collection         common.Address `json:"collection"`
	Price              *big.Int       `json:"price" validate:"required"`
	TokenID            *big.Int       `json:"token_id" validate:"required"`
	Amount             *big.Int       `json:"amount" validate:"required"`
	Strategy           common.Address `json:"strategy"`
	Currency           common.Address `json:"currency"`
	Nonce              uint64         `json:"nonce"`
	StartTime          uint64         `json:"start_time"`
	EndTime            uint64         `json:"end_time" validate:"gtfield=StartTime"`
	MinPercentageToAsk uint64         `json:"min_percentage_to_ask" validate:"lte=10000"`
	Params             []byte         `json:"params"`
	Signature          []byte         `json:"signature"`
}

// IsActiveAt reports whether ts lies inside the order's validity window (inclusive).
func (o *MakerOrder) IsActiveAt(ts uint64) bool {
	return o.StartTime <= ts && ts <= o.EndTime
}

// TakerOrder is the unsigned counter-order supplied at settlement time.
type TakerOrder struct {
	Side               Side           `json:"side"`
	Taker              common.Address `json:"taker"`
	Price              *big.Int       `json:"price" validate:"required"`
	TokenID            *big.Int       `json:"token_id" validate:"required"`
	MinPercentageToAsk uint64         `json:"min_percentage_to_ask" validate:"lte=10000"`
	Params             []byte         `json:"params"`
}
