package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/infra"
	"booksrare_go/internal/nonce"
	"booksrare_go/internal/registry"
	"booksrare_go/internal/signing"
	"booksrare_go/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

const (
	opMatchAsk = "matchAskWithTakerBid"
	opMatchBid = "matchBidWithTakerAsk"
)

var validate = validator.New()

// RoyaltyCalculator returns the royalty receiver and amount owed on a sale.
type RoyaltyCalculator interface {
	CalculateRoyalty(collection common.Address, tokenID, salePrice *big.Int) (common.Address, *big.Int)
}

// Journal durably records a settlement. Record must be all-or-nothing.
type Journal interface {
	RecordSettlement(ctx context.Context, s *domain.Settlement) error
	RecordCancellation(ctx context.Context, c *domain.Cancellation) error
}

// Observer is notified after a state change has been applied.
type Observer interface {
	OnSettlement(s *domain.Settlement)
	OnCancellation(c *domain.Cancellation)
}

// Deps are the collaborators of the Exchange, owned by the composition root.
type Deps struct {
	Verifier             *signing.Verifier
	Nonces               *nonce.Ledger
	Currencies           *registry.Whitelist
	Strategies           *registry.Whitelist
	Book                 *strategy.Book
	Royalty              RoyaltyCalculator
	Currency             domain.CurrencyTransferer
	Assets               domain.AssetTransferer
	ProtocolFeeRecipient common.Address

	Journal   Journal        // optional
	Observers []Observer     // optional
	Clock     domain.Clock   // defaults to the system clock
	Logger    *slog.Logger   // defaults to slog.Default()
	Metrics   *infra.Metrics // defaults to infra.GlobalMetrics
}

// Exchange validates and settles maker/taker pairs.
// Every mutating call holds mu for its whole duration, so settlements, cancellations and
// whitelist updates are applied one at a time and never observed half-done.
type Exchange struct {
	mu sync.Mutex
	d  Deps
}

// NewExchange wires an Exchange.
func NewExchange(d Deps) (*Exchange, error) {
	switch {
	case d.Verifier == nil:
		return nil, fmt.Errorf("exchange: verifier is required")
	case d.Nonces == nil:
		return nil, fmt.Errorf("exchange: nonce ledger is required")
	case d.Currencies == nil || d.Strategies == nil:
		return nil, fmt.Errorf("exchange: whitelists are required")
	case d.Book == nil:
		return nil, fmt.Errorf("exchange: strategy book is required")
	case d.Royalty == nil:
		return nil, fmt.Errorf("exchange: royalty calculator is required")
	case d.Currency == nil || d.Assets == nil:
		return nil, fmt.Errorf("exchange: transfer collaborators are required")
	case d.ProtocolFeeRecipient == (common.Address{}):
		return nil, fmt.Errorf("exchange: protocol fee recipient is required")
	}
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = infra.GlobalMetrics
	}
	return &Exchange{d: d}, nil
}

// Domain returns the signing domain orders must be signed for.
func (e *Exchange) Domain() signing.Domain {
	return e.d.Verifier.Domain()
}

// MatchAskWithTakerBid sells the maker's asset to the taker. caller is the account submitting
// the taker order and must be the taker.
func (e *Exchange) MatchAskWithTakerBid(ctx context.Context, caller common.Address, taker *domain.TakerOrder, maker *domain.MakerOrder) (*domain.Settlement, error) {
	return e.match(ctx, opMatchAsk, caller, taker, maker)
}

// MatchBidWithTakerAsk sells the taker's asset to the maker. caller must be the taker.
func (e *Exchange) MatchBidWithTakerAsk(ctx context.Context, caller common.Address, taker *domain.TakerOrder, maker *domain.MakerOrder) (*domain.Settlement, error) {
	return e.match(ctx, opMatchBid, caller, taker, maker)
}

func (e *Exchange) match(ctx context.Context, op string, caller common.Address, taker *domain.TakerOrder, maker *domain.MakerOrder) (*domain.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	s, err := e.settle(ctx, op, caller, taker, maker)
	e.d.Metrics.RecordCommand(time.Since(start).Nanoseconds())
	if err != nil {
		e.d.Metrics.RecordRejection()
		attrs := []any{slog.String("op", op), slog.String("kind", domain.KindOf(err).String()), slog.Any("error", err)}
		if maker != nil {
			attrs = append(attrs, slog.String("signer", maker.Signer.Hex()), slog.Uint64("nonce", maker.Nonce))
		}
		e.d.Logger.Warn("SETTLEMENT_REJECTED", attrs...)
		return nil, err
	}

	e.d.Metrics.RecordSettlement()
	e.d.Logger.Info("SETTLEMENT",
		slog.String("digest", s.Digest.Hex()),
		slog.String("maker_side", s.MakerSide.String()),
		slog.String("buyer", s.Buyer.Hex()),
		slog.String("seller", s.Seller.Hex()),
		slog.String("collection", s.Collection.Hex()),
		slog.String("token_id", s.TokenID.String()),
		slog.String("price", infra.FormatWei(s.Fees.Price)),
		slog.String("protocol_fee", infra.FormatWei(s.Fees.ProtocolFee)),
		slog.String("royalty", infra.FormatWei(s.Fees.Royalty)),
	)
	for _, o := range e.d.Observers {
		o.OnSettlement(s)
	}
	return s, nil
}

// settle runs the state machine of one maker/taker pair. Nothing is mutated before the
// transfer phase; the transfer phase reverts itself on failure.
func (e *Exchange) settle(ctx context.Context, op string, caller common.Address, taker *domain.TakerOrder, maker *domain.MakerOrder) (*domain.Settlement, error) {
	if taker == nil || maker == nil {
		return nil, domain.NewError(domain.KindOrderInvalid, op, fmt.Errorf("missing order"))
	}
	// Only the taker can spend its balance or sell its asset.
	if taker.Taker == (common.Address{}) || caller != taker.Taker {
		return nil, domain.NewError(domain.KindOrderInvalid, op,
			fmt.Errorf("caller %s cannot act as taker %s", caller.Hex(), taker.Taker.Hex()))
	}

	wantMaker := domain.SideAsk
	if op == opMatchBid {
		wantMaker = domain.SideBid
	}
	if maker.Side != wantMaker || taker.Side != wantMaker.Opposite() {
		return nil, domain.NewError(domain.KindOrderWrongSides, op,
			fmt.Errorf("maker %s, taker %s", maker.Side, taker.Side))
	}

	if err := checkShape(maker, taker); err != nil {
		return nil, domain.NewError(domain.KindOrderInvalid, op, err)
	}

	// Unseen -> SignatureVerified
	digest, err := e.d.Verifier.VerifyOrder(maker)
	if err != nil {
		return nil, err
	}

	if e.d.Nonces.IsExecuted(digest) {
		return nil, domain.NewError(domain.KindOrderAlreadyExecuted, op, fmt.Errorf("digest %s", digest.Hex()))
	}
	if !e.d.Nonces.IsValid(maker.Signer, maker.Nonce) {
		return nil, domain.NewError(domain.KindOrderInvalid, op, fmt.Errorf("nonce %d not valid for %s", maker.Nonce, maker.Signer.Hex()))
	}

	// SignatureVerified -> Authorized
	now := e.d.Clock.Now()
	if !e.d.Currencies.IsWhitelisted(maker.Currency) {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op, fmt.Errorf("currency %s not whitelisted", maker.Currency.Hex()))
	}
	if !e.d.Strategies.IsWhitelisted(maker.Strategy) {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op, fmt.Errorf("strategy %s not whitelisted", maker.Strategy.Hex()))
	}
	if now.Unix() < 0 || !maker.IsActiveAt(uint64(now.Unix())) {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op,
			fmt.Errorf("outside window [%d, %d] at %d", maker.StartTime, maker.EndTime, now.Unix()))
	}
	strat, ok := e.d.Book.Get(maker.Strategy)
	if !ok {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op, fmt.Errorf("strategy %s has no implementation", maker.Strategy.Hex()))
	}

	var m strategy.Match
	if op == opMatchAsk {
		m, err = strat.CanExecuteTakerBid(taker, maker)
	} else {
		m, err = strat.CanExecuteTakerAsk(taker, maker)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op, err)
	}
	if !m.OK {
		return nil, domain.NewError(domain.KindStrategyExecutionInvalid, op, fmt.Errorf("%s: no match", strat.Name()))
	}

	price := taker.Price
	receiver, royalty := e.d.Royalty.CalculateRoyalty(maker.Collection, m.TokenID, price)
	if receiver == (common.Address{}) {
		royalty = new(big.Int)
	}
	fees := domain.NewFeeBreakdown(price, strat.ProtocolFee(), royalty)

	s := &domain.Settlement{
		Digest:          digest,
		MakerSide:       maker.Side,
		Maker:           maker.Signer,
		Taker:           taker.Taker,
		Nonce:           maker.Nonce,
		Strategy:        maker.Strategy,
		Currency:        maker.Currency,
		Collection:      maker.Collection,
		TokenID:         m.TokenID,
		Amount:          m.Amount,
		Fees:            fees,
		RoyaltyReceiver: receiver,
		ExecutedAt:      now,
	}
	minPct := maker.MinPercentageToAsk
	if maker.Side.IsAsk() {
		s.Buyer, s.Seller = taker.Taker, maker.Signer
	} else {
		s.Buyer, s.Seller = maker.Signer, taker.Taker
		minPct = taker.MinPercentageToAsk
	}
	if !fees.MeetsMinimum(minPct) {
		return nil, domain.NewError(domain.KindFeesHigherThanExpected, op,
			fmt.Errorf("seller keeps %s of %s, minimum %d bps", fees.SellerProceeds, fees.Price, minPct))
	}
	if !fees.Conserves() {
		panic(fmt.Sprintf("FEE_INVARIANT_VIOLATED: %+v", fees))
	}

	// Authorized -> Settled
	if err := e.transfer(ctx, op, s); err != nil {
		return nil, err
	}
	if err := e.d.Nonces.MarkExecuted(digest, maker.Signer, maker.Nonce); err != nil {
		panic(fmt.Sprintf("LEDGER_DIVERGED: %v", err))
	}
	return s, nil
}

func checkShape(maker *domain.MakerOrder, taker *domain.TakerOrder) error {
	if err := validate.Struct(maker); err != nil {
		return fmt.Errorf("maker: %w", err)
	}
	if err := validate.Struct(taker); err != nil {
		return fmt.Errorf("taker: %w", err)
	}
	if maker.Amount.Sign() <= 0 {
		return fmt.Errorf("maker amount must be positive, got %s", maker.Amount)
	}
	fields := []struct {
		name string
		v    *big.Int
	}{
		{"maker price", maker.Price},
		{"maker token id", maker.TokenID},
		{"maker amount", maker.Amount},
		{"taker price", taker.Price},
		{"taker token id", taker.TokenID},
	}
	for _, f := range fields {
		if !domain.FitsUint256(f.v) {
			return fmt.Errorf("%s %s is not a uint256", f.name, f.v)
		}
	}
	if maker.Signer == (common.Address{}) {
		return fmt.Errorf("null signer")
	}
	return nil
}

// leg is one executed value movement, kept so it can be reverted.
type leg struct {
	name string
	undo func(ctx context.Context) error
}

// transfer moves currency and the asset, then journals the settlement. Any failure reverts
// the legs already executed in reverse order.
func (e *Exchange) transfer(ctx context.Context, op string, s *domain.Settlement) error {
	var done []leg
	fail := func(name string, err error) error {
		e.revert(done)
		return domain.NewError(domain.KindTransferFailed, op, fmt.Errorf("%s: %w", name, err))
	}

	pay := func(name string, to common.Address, amount *big.Int) error {
		if amount.Sign() == 0 {
			return nil
		}
		if err := e.d.Currency.TransferFrom(ctx, s.Currency, s.Buyer, to, amount); err != nil {
			return err
		}
		done = append(done, leg{name: name, undo: func(ctx context.Context) error {
			return e.d.Currency.TransferFrom(ctx, s.Currency, to, s.Buyer, amount)
		}})
		return nil
	}

	if err := pay("proceeds", s.Seller, s.Fees.SellerProceeds); err != nil {
		return fail("proceeds", err)
	}
	if err := pay("royalty", s.RoyaltyReceiver, s.Fees.Royalty); err != nil {
		return fail("royalty", err)
	}
	if err := pay("protocol fee", e.d.ProtocolFeeRecipient, s.Fees.ProtocolFee); err != nil {
		return fail("protocol fee", err)
	}

	if err := e.d.Assets.TransferAsset(ctx, s.Collection, s.Seller, s.Buyer, s.TokenID, s.Amount); err != nil {
		return fail("asset", err)
	}
	done = append(done, leg{name: "asset", undo: func(ctx context.Context) error {
		return e.d.Assets.TransferAsset(ctx, s.Collection, s.Buyer, s.Seller, s.TokenID, s.Amount)
	}})

	if e.d.Journal != nil {
		if err := e.d.Journal.RecordSettlement(ctx, s); err != nil {
			e.revert(done)
			return fmt.Errorf("journal settlement: %w", err)
		}
	}
	return nil
}

// revert undoes executed legs newest first. A failing undo leaves balances inconsistent,
// so it halts the process.
func (e *Exchange) revert(done []leg) {
	if len(done) == 0 {
		return
	}
	e.d.Metrics.RecordRollback()
	ctx := context.Background()
	for i := len(done) - 1; i >= 0; i-- {
		if err := done[i].undo(ctx); err != nil {
			e.d.Logger.Error("ROLLBACK_FAILURE", slog.String("leg", done[i].name), slog.Any("error", err))
			panic(fmt.Sprintf("ROLLBACK_FAILURE: %s: %v", done[i].name, err))
		}
	}
	e.d.Logger.Warn("SETTLEMENT_ROLLED_BACK", slog.Int("legs", len(done)))
}

// CancelAllBelow invalidates every order of signer with a nonce below minNonce.
func (e *Exchange) CancelAllBelow(ctx context.Context, signer common.Address, minNonce uint64) (*domain.Cancellation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.d.Nonces.CancelAllBelow(signer, minNonce); err != nil {
		return nil, err
	}
	c := &domain.Cancellation{Signer: signer, NewFloor: minNonce, At: e.d.Clock.Now()}
	e.cancelled(ctx, "CANCEL_ALL_ORDERS", c)
	return c, nil
}

// CancelMultipleMakerOrders invalidates individual nonces of signer.
func (e *Exchange) CancelMultipleMakerOrders(ctx context.Context, signer common.Address, nonces []uint64) (*domain.Cancellation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(nonces) == 0 {
		return nil, domain.NewError(domain.KindOrderInvalid, "cancelMultipleMakerOrders", fmt.Errorf("empty nonce set"))
	}
	if err := e.d.Nonces.Cancel(signer, nonces); err != nil {
		return nil, err
	}
	c := &domain.Cancellation{Signer: signer, Nonces: append([]uint64(nil), nonces...), At: e.d.Clock.Now()}
	e.cancelled(ctx, "CANCEL_MULTIPLE_ORDERS", c)
	return c, nil
}

func (e *Exchange) cancelled(ctx context.Context, msg string, c *domain.Cancellation) {
	if e.d.Journal != nil {
		// The ledger is already durable; the journal entry is an audit record.
		if err := e.d.Journal.RecordCancellation(ctx, c); err != nil {
			e.d.Logger.Error("CANCELLATION_JOURNAL_FAILED", slog.Any("error", err))
		}
	}
	e.d.Metrics.RecordCancellation()
	e.d.Logger.Info(msg, slog.String("signer", c.Signer.Hex()), slog.Uint64("new_floor", c.NewFloor), slog.Any("nonces", c.Nonces))
	for _, o := range e.d.Observers {
		o.OnCancellation(c)
	}
}

// AddCurrency whitelists a settlement currency.
func (e *Exchange) AddCurrency(currency common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d.Currencies.Add(currency)
}

// RemoveCurrency removes a settlement currency from the whitelist.
func (e *Exchange) RemoveCurrency(currency common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d.Currencies.Remove(currency)
}

// AddStrategy binds impl to addr and whitelists it.
func (e *Exchange) AddStrategy(addr common.Address, impl strategy.Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.d.Book.Register(addr, impl)
	return e.d.Strategies.Add(addr)
}

// RemoveStrategy removes a strategy from the whitelist. Orders naming it stop settling.
func (e *Exchange) RemoveStrategy(addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d.Strategies.Remove(addr)
}

// Strategies describes every known strategy and whether it is whitelisted.
func (e *Exchange) Strategies() []domain.StrategyDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d.Book.Descriptors(e.d.Strategies)
}
