package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoyaltyInfo is the royalty configuration of a collection.
type RoyaltyInfo struct {
	Setter   common.Address `json:"setter"`
	Receiver common.Address `json:"receiver"`
	FeeBps   uint64         `json:"fee_bps"`
}

// StrategyDescriptor describes a registered execution strategy.
type StrategyDescriptor struct {
	Address        common.Address `json:"address"`
	Name           string         `json:"name"`
	ProtocolFeeBps uint64         `json:"protocol_fee_bps"`
	Active         bool           `json:"active"`
}

// Settlement is the record emitted for every settled maker/taker pair.
type Settlement struct {
	Digest          common.Hash    `json:"digest"`
	MakerSide       Side           `json:"maker_side"`
	Maker           common.Address `json:"maker"`
	Taker           common.Address `json:"taker"`
	Buyer           common.Address `json:"buyer"`
	Seller          common.Address `json:"seller"`
	Nonce           uint64         `json:"nonce"`
	Strategy        common.Address `json:"strategy"`
	Currency        common.Address `json:"currency"`
	Collection      common.Address `json:"collection"`
	TokenID         *big.Int       `json:"token_id"`
	Amount          *big.Int       `json:"amount"`
	Fees            FeeBreakdown   `json:"fees"`
	RoyaltyReceiver common.Address `json:"royalty_receiver"`
	ExecutedAt      time.Time      `json:"executed_at"`
}

// Record converts the settlement into its persisted form.
func (s *Settlement) Record() *SettlementRecord {
	return &SettlementRecord{
		Digest:          s.Digest.Hex(),
		Side:            s.MakerSide.String(),
		Maker:           s.Maker.Hex(),
		Taker:           s.Taker.Hex(),
		Nonce:           Uint64Text(s.Nonce),
		Strategy:        s.Strategy.Hex(),
		Currency:        s.Currency.Hex(),
		Collection:      s.Collection.Hex(),
		TokenID:         s.TokenID.String(),
		Amount:          s.Amount.String(),
		Price:           s.Fees.Price.String(),
		ProtocolFee:     s.Fees.ProtocolFee.String(),
		Royalty:         s.Fees.Royalty.String(),
		RoyaltyReceiver: s.RoyaltyReceiver.Hex(),
		SellerProceeds:  s.Fees.SellerProceeds.String(),
		ExecutedAt:      s.ExecutedAt,
	}
}

// Cancellation records a nonce cancellation, either a floor raise or a set of nonces.
type Cancellation struct {
	Signer   common.Address `json:"signer"`
	NewFloor uint64         `json:"new_floor,omitempty"`
	Nonces   []uint64       `json:"nonces,omitempty"`
	At       time.Time      `json:"at"`
}
