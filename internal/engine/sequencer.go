package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

// Sequencer is the single-threaded command processor in front of the Exchange.
// It numbers every command it receives, so the processing order is explicit and replayable.
type Sequencer struct {
	inbox    chan event.Command
	exchange *Exchange
	nextSeq  atomic.Uint64

	lastDigest atomic.Value // common.Hash of the most recent settlement
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, ex *Exchange) *Sequencer {
	s := &Sequencer{
		inbox:    make(chan event.Command, inboxSize),
		exchange: ex,
	}
	s.nextSeq.Store(1)
	s.lastDigest.Store(common.Hash{})
	return s
}

// Inbox returns the command channel. Producers send commands here.
func (s *Sequencer) Inbox() chan<- event.Command {
	return s.inbox
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			// Ledgers may have diverged; halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case cmd := <-s.inbox:
			s.processCommand(ctx, cmd)
		}
	}
}

func (s *Sequencer) processCommand(ctx context.Context, cmd event.Command) {
	seq := s.nextSeq.Load()
	cmd.SetSeq(seq)

	res := event.Result{Seq: seq}
	switch c := cmd.(type) {
	case *event.MatchCommand:
		switch c.Type {
		case event.TypeMatchAskWithTakerBid:
			res.Settlement, res.Err = s.exchange.MatchAskWithTakerBid(ctx, c.Caller, c.Taker, c.Maker)
		case event.TypeMatchBidWithTakerAsk:
			res.Settlement, res.Err = s.exchange.MatchBidWithTakerAsk(ctx, c.Caller, c.Taker, c.Maker)
		default:
			res.Err = fmt.Errorf("unknown match type %d", c.Type)
		}
		if res.Settlement != nil {
			s.lastDigest.Store(res.Settlement.Digest)
		}
	case *event.CancelAllCommand:
		res.Cancellation, res.Err = s.exchange.CancelAllBelow(ctx, c.Signer, c.MinNonce)
	case *event.CancelNoncesCommand:
		res.Cancellation, res.Err = s.exchange.CancelMultipleMakerOrders(ctx, c.Signer, c.Nonces)
	default:
		slog.Warn("Unknown command type", slog.String("type", cmd.GetType().String()))
		res.Err = fmt.Errorf("unknown command %T", cmd)
	}

	s.nextSeq.Add(1)

	if reply := cmd.Reply(); reply != nil {
		select {
		case reply <- res:
		default:
			slog.Warn("Reply dropped", slog.Uint64("seq", seq))
		}
	}
}

// Match submits a settlement on behalf of caller and waits for its result.
func (s *Sequencer) Match(ctx context.Context, typ event.Type, caller common.Address, taker *domain.TakerOrder, maker *domain.MakerOrder) (*domain.Settlement, error) {
	cmd := event.AcquireMatchCommand()
	cmd.Type = typ
	cmd.Caller = caller
	cmd.Taker = taker
	cmd.Maker = maker

	res, err := s.submit(ctx, cmd)
	if err != nil {
		// The loop may still answer; leave the command to the GC.
		return nil, err
	}
	event.ReleaseMatchCommand(cmd)
	return res.Settlement, res.Err
}

// CancelAllBelow submits a floor raise and waits for its result.
func (s *Sequencer) CancelAllBelow(ctx context.Context, signer common.Address, minNonce uint64) (*domain.Cancellation, error) {
	cmd := &event.CancelAllCommand{
		BaseCommand: event.BaseCommand{ReplyTo: make(chan event.Result, 1)},
		Signer:      signer,
		MinNonce:    minNonce,
	}
	res, err := s.submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return res.Cancellation, res.Err
}

// CancelMultipleMakerOrders submits a nonce cancellation and waits for its result.
func (s *Sequencer) CancelMultipleMakerOrders(ctx context.Context, signer common.Address, nonces []uint64) (*domain.Cancellation, error) {
	cmd := &event.CancelNoncesCommand{
		BaseCommand: event.BaseCommand{ReplyTo: make(chan event.Result, 1)},
		Signer:      signer,
		Nonces:      nonces,
	}
	res, err := s.submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return res.Cancellation, res.Err
}

func (s *Sequencer) submit(ctx context.Context, cmd event.Command) (event.Result, error) {
	select {
	case s.inbox <- cmd:
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}
	select {
	case res := <-cmd.Done():
		return res, nil
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}
}

// NextSeq returns the sequence number the next command will receive.
func (s *Sequencer) NextSeq() uint64 {
	return s.nextSeq.Load()
}

// LastSettlement returns the digest of the most recent settlement.
func (s *Sequencer) LastSettlement() common.Hash {
	return s.lastDigest.Load().(common.Hash)
}

// DumpState writes the sequencer and registry state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq        uint64                      `json:"next_seq"`
		LastSettlement common.Hash                 `json:"last_settlement"`
		Strategies     []domain.StrategyDescriptor `json:"strategies"`
		Currencies     []common.Address            `json:"currencies"`
	}{
		NextSeq:        s.NextSeq(),
		LastSettlement: s.LastSettlement(),
		Strategies:     s.exchange.d.Book.Descriptors(s.exchange.d.Strategies),
		Currencies:     s.exchange.d.Currencies.List(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
