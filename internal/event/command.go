package event

import (
	"time"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Type identifies a command processed by the Sequencer.
type Type uint8

const (
	TypeMatchAskWithTakerBid Type = iota + 1
	TypeMatchBidWithTakerAsk
	TypeCancelAllBelow
	TypeCancelNonces
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeMatchAskWithTakerBid:
		return "MATCH_ASK_WITH_TAKER_BID"
	case TypeMatchBidWithTakerAsk:
		return "MATCH_BID_WITH_TAKER_ASK"
	case TypeCancelAllBelow:
		return "CANCEL_ALL_BELOW"
	case TypeCancelNonces:
		return "CANCEL_NONCES"
	default:
		return "UNKNOWN"
	}
}

// Command is a state-changing request for the Sequencer.
type Command interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetType() Type
	Reply() chan<- Result
	Done() <-chan Result
}

// BaseCommand carries the fields common to every command.
// Seq is assigned by the Sequencer on receipt.
type BaseCommand struct {
	Seq     uint64      `json:"seq"`
	Ts      time.Time   `json:"ts"`
	ReplyTo chan Result `json:"-"`
}

func (b *BaseCommand) GetSeq() uint64       { return b.Seq }
func (b *BaseCommand) SetSeq(seq uint64)    { b.Seq = seq }
func (b *BaseCommand) Reply() chan<- Result { return b.ReplyTo }
func (b *BaseCommand) Done() <-chan Result  { return b.ReplyTo }

// MatchCommand settles a taker order against a maker order. Caller is the submitting account.
type MatchCommand struct {
	BaseCommand
	Type   Type               `json:"type"`
	Caller common.Address     `json:"caller"`
	Taker  *domain.TakerOrder `json:"taker"`
	Maker  *domain.MakerOrder `json:"maker"`
}

func (c *MatchCommand) GetType() Type { return c.Type }

// CancelAllCommand raises a signer's nonce floor.
type CancelAllCommand struct {
	BaseCommand
	Signer   common.Address `json:"signer"`
	MinNonce uint64         `json:"min_nonce"`
}

func (c *CancelAllCommand) GetType() Type { return TypeCancelAllBelow }

// CancelNoncesCommand cancels individual nonces.
type CancelNoncesCommand struct {
	BaseCommand
	Signer common.Address `json:"signer"`
	Nonces []uint64       `json:"nonces"`
}

func (c *CancelNoncesCommand) GetType() Type { return TypeCancelNonces }

// Result is the outcome of one command.
type Result struct {
	Seq          uint64
	Settlement   *domain.Settlement
	Cancellation *domain.Cancellation
	Err          error
}
