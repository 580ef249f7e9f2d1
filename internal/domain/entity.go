package domain

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Uint64Text is a uint64 column stored as zero-padded base-10 text. database/sql cannot
// bind a uint64 with the high bit set, and the fixed width keeps text order numeric.
type Uint64Text uint64

// Value implements driver.Valuer.
func (u Uint64Text) Value() (driver.Value, error) {
	return fmt.Sprintf("%020d", uint64(u)), nil
}

// Scan implements sql.Scanner.
func (u *Uint64Text) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = 0
	case string:
		return u.parse(v)
	case []byte:
		return u.parse(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("uint64 column holds %d", v)
		}
		*u = Uint64Text(v)
	default:
		return fmt.Errorf("uint64 column holds %T", src)
	}
	return nil
}

func (u *Uint64Text) parse(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("uint64 column: %w", err)
	}
	*u = Uint64Text(n)
	return nil
}

// GormDataType keeps the column TEXT so sqlite never coerces it to INTEGER or REAL.
func (Uint64Text) GormDataType() string {
	return "text"
}

// Persisted records. Addresses and digests are stored as 0x-prefixed hex, uint256 amounts
// as base-10 strings.

// NonceFloorRecord is a signer's bulk-cancel floor.
type NonceFloorRecord struct {
	Signer    string `gorm:"primaryKey"`
	Floor     Uint64Text
	UpdatedAt time.Time
}

// CancelledNonceRecord is one individually cancelled (signer, nonce) pair.
type CancelledNonceRecord struct {
	Signer    string     `gorm:"primaryKey"`
	Nonce     Uint64Text `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

// ExecutedOrderRecord is a consumed order digest.
type ExecutedOrderRecord struct {
	Digest    string `gorm:"primaryKey"`
	Signer    string `gorm:"index"`
	Nonce     Uint64Text
	CreatedAt time.Time
}

// RoyaltyRecord mirrors RoyaltyInfo for one collection.
type RoyaltyRecord struct {
	Collection string `gorm:"primaryKey"`
	Setter     string
	Receiver   string
	FeeBps     uint64
	UpdatedAt  time.Time
}

// WhitelistRecord is one member of a named whitelist ("currency" or "strategy").
type WhitelistRecord struct {
	List      string `gorm:"primaryKey"`
	Identity  string `gorm:"primaryKey"`
	Position  uint64 `gorm:"index"`
	CreatedAt time.Time
}

// ParameterRecord stores protocol-level key/value settings (e.g. the royalty fee limit).
type ParameterRecord struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// SettlementRecord is the journal entry written for every successful settlement.
type SettlementRecord struct {
	Digest          string `gorm:"primaryKey"`
	Side            string
	Maker           string `gorm:"index"`
	Taker           string `gorm:"index"`
	Nonce           Uint64Text
	Strategy        string
	Currency        string
	Collection      string `gorm:"index"`
	TokenID         string
	Amount          string
	Price           string
	ProtocolFee     string
	Royalty         string
	RoyaltyReceiver string
	SellerProceeds  string
	ExecutedAt      time.Time
}

// CancellationRecord is the journal entry of a cancelAllBelow or cancel call.
// Nonces is a comma-separated list; empty for floor raises.
type CancellationRecord struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	Signer   string `gorm:"index"`
	NewFloor Uint64Text
	Nonces   string
	At       time.Time
}
