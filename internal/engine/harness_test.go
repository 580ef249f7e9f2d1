package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/execution"
	"booksrare_go/internal/infra"
	"booksrare_go/internal/nonce"
	"booksrare_go/internal/registry"
	"booksrare_go/internal/royalty"
	"booksrare_go/internal/signing"
	"booksrare_go/internal/strategy"
	"booksrare_go/internal/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	apes        = common.HexToAddress("0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D")
	feeSink     = common.HexToAddress("0xFEE5")
	governance  = common.HexToAddress("0x60F")
	royaltyDest = common.HexToAddress("0x0707")
	exchangeID  = common.HexToAddress("0xE8C4")

	stdAddr     = common.HexToAddress("0x5741")
	anyAddr     = common.HexToAddress("0xA4E1")
	privateAddr = common.HexToAddress("0x9817")

	startAt = time.Unix(1_700_000_000, 0)

	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu            sync.Mutex
	settlements   []*domain.Settlement
	cancellations []*domain.Cancellation
}

func (r *recorder) OnSettlement(s *domain.Settlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements = append(r.settlements, s)
}

func (r *recorder) OnCancellation(c *domain.Cancellation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancellations = append(r.cancellations, c)
}

type memJournal struct {
	fail          error
	settlements   []*domain.Settlement
	cancellations []*domain.Cancellation
}

func (j *memJournal) RecordSettlement(_ context.Context, s *domain.Settlement) error {
	if j.fail != nil {
		return j.fail
	}
	j.settlements = append(j.settlements, s)
	return nil
}

func (j *memJournal) RecordCancellation(_ context.Context, c *domain.Cancellation) error {
	j.cancellations = append(j.cancellations, c)
	return nil
}

// flakyCurrency fails the n-th transfer (1-based) and delegates the rest.
type flakyCurrency struct {
	inner  domain.CurrencyTransferer
	failAt int
	calls  int
}

func (f *flakyCurrency) TransferFrom(ctx context.Context, currency, from, to common.Address, amount *big.Int) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("currency leg rejected")
	}
	return f.inner.TransferFrom(ctx, currency, from, to, amount)
}

type harness struct {
	ex       *Exchange
	clock    *fixedClock
	paper    *execution.PaperLedger
	nft      *transfer.ERC721
	nonces   *nonce.Ledger
	setter   *royalty.Setter
	journal  *memJournal
	observer *recorder
	metrics  *infra.Metrics
	domain   signing.Domain
	seller   *signing.Signer
	buyer    *signing.Signer
}

type harnessOption func(*Deps)

func newHarness(t testing.TB, opts ...harnessOption) *harness {
	t.Helper()

	seller, err := signing.NewSignerFromHex(devKey)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer := signing.NewSigner(key)

	clk := &fixedClock{t: startAt}
	dom := signing.NewDomain(big.NewInt(31337), exchangeID)

	book := strategy.NewBook()
	book.Register(stdAddr, strategy.NewStandardFixedPrice(200, clk))
	book.Register(anyAddr, strategy.NewAnyItemFromCollectionFixedPrice(200, clk))
	book.Register(privateAddr, strategy.NewPrivateSale(0, clk))

	strategies := registry.NewStrategyRegistry(nil)
	for _, a := range []common.Address{stdAddr, anyAddr, privateAddr} {
		require.NoError(t, strategies.Add(a))
	}
	currencies := registry.NewCurrencyRegistry(nil)
	require.NoError(t, currencies.Add(weth))

	nft := transfer.NewERC721(transfer.WithOwner(governance))
	require.NoError(t, nft.Mint(seller.Address(), big.NewInt(10)))
	dir := transfer.NewDirectory()
	dir.Register(apes, nft)

	reg, err := royalty.NewRegistry(domain.MaxRoyaltyFeeLimit, nil)
	require.NoError(t, err)

	paper := execution.NewPaperLedger()
	paper.Deposit(weth, buyer.Address(), infra.MustParseEther("200"))
	paper.Deposit(weth, seller.Address(), infra.MustParseEther("200"))

	nonces := nonce.NewLedger(nil)
	journal := &memJournal{}
	obs := &recorder{}
	metrics := &infra.Metrics{}

	d := Deps{
		Verifier:             signing.NewVerifier(dom),
		Nonces:               nonces,
		Currencies:           currencies,
		Strategies:           strategies,
		Book:                 book,
		Royalty:              royalty.NewManager(reg, dir),
		Currency:             paper,
		Assets:               transfer.NewSelector(dir),
		ProtocolFeeRecipient: feeSink,
		Journal:              journal,
		Observers:            []Observer{obs},
		Clock:                clk,
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:              metrics,
	}
	for _, o := range opts {
		o(&d)
	}
	ex, err := NewExchange(d)
	require.NoError(t, err)

	return &harness{
		ex:       ex,
		clock:    clk,
		paper:    paper,
		nft:      nft,
		nonces:   nonces,
		setter:   royalty.NewSetter(reg, dir, governance),
		journal:  journal,
		observer: obs,
		metrics:  metrics,
		domain:   dom,
		seller:   seller,
		buyer:    buyer,
	}
}

// ask returns a signed maker ask for #10 at price ether, valid for 1000 seconds.
func (h *harness) ask(t testing.TB, price string, mutate ...func(*domain.MakerOrder)) *domain.MakerOrder {
	t.Helper()
	o := &domain.MakerOrder{
		Side:               domain.SideAsk,
		Collection:         apes,
		Price:              infra.MustParseEther(price),
		TokenID:            big.NewInt(10),
		Amount:             big.NewInt(1),
		Strategy:           stdAddr,
		Currency:           weth,
		Nonce:              100,
		StartTime:          uint64(startAt.Unix()),
		EndTime:            uint64(startAt.Unix()) + 1000,
		MinPercentageToAsk: 9000,
	}
	for _, m := range mutate {
		m(o)
	}
	require.NoError(t, h.seller.SignOrder(h.domain, o))
	return o
}

// bid returns a signed maker bid from the buyer for #10 at price ether.
func (h *harness) bid(t testing.TB, price string, mutate ...func(*domain.MakerOrder)) *domain.MakerOrder {
	t.Helper()
	o := &domain.MakerOrder{
		Side:               domain.SideBid,
		Collection:         apes,
		Price:              infra.MustParseEther(price),
		TokenID:            big.NewInt(10),
		Amount:             big.NewInt(1),
		Strategy:           stdAddr,
		Currency:           weth,
		Nonce:              7,
		StartTime:          uint64(startAt.Unix()),
		EndTime:            uint64(startAt.Unix()) + 1000,
		MinPercentageToAsk: 0,
	}
	for _, m := range mutate {
		m(o)
	}
	require.NoError(t, h.buyer.SignOrder(h.domain, o))
	return o
}

func (h *harness) takerBid(price string) *domain.TakerOrder {
	return &domain.TakerOrder{
		Side:               domain.SideBid,
		Taker:              h.buyer.Address(),
		Price:              infra.MustParseEther(price),
		TokenID:            big.NewInt(10),
		MinPercentageToAsk: 9000,
	}
}

func (h *harness) takerAsk(price string) *domain.TakerOrder {
	return &domain.TakerOrder{
		Side:               domain.SideAsk,
		Taker:              h.seller.Address(),
		Price:              infra.MustParseEther(price),
		TokenID:            big.NewInt(10),
		MinPercentageToAsk: 9000,
	}
}

func (h *harness) balance(a common.Address) string {
	return infra.FormatWei(h.paper.BalanceOf(weth, a))
}

func (h *harness) owner(t testing.TB, id int64) common.Address {
	t.Helper()
	o, ok := h.nft.OwnerOf(big.NewInt(id))
	require.True(t, ok)
	return o
}
