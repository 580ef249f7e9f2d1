package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/infra"
	"booksrare_go/internal/signing"
	"booksrare_go/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExchange_MatchAskWithTakerBid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), h.ask(t, "2"))
	require.NoError(t, err)

	assert.Equal(t, "198", h.balance(h.buyer.Address()), "buyer pays the price")
	assert.Equal(t, "201.96", h.balance(h.seller.Address()), "seller receives price minus 2% fee")
	assert.Equal(t, "0.04", h.balance(feeSink))
	assert.Equal(t, h.buyer.Address(), h.owner(t, 10))

	assert.Equal(t, h.buyer.Address(), s.Buyer)
	assert.Equal(t, h.seller.Address(), s.Seller)
	assert.True(t, s.Fees.Conserves())
	assert.EqualValues(t, 10, s.TokenID.Int64())
	assert.Equal(t, startAt, s.ExecutedAt)
	assert.True(t, h.nonces.IsExecuted(s.Digest))

	require.Len(t, h.journal.settlements, 1)
	require.Len(t, h.observer.settlements, 1)
	assert.EqualValues(t, 1, h.metrics.Snapshot().Settlements)
}

func TestExchange_MatchBidWithTakerAsk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.ex.MatchBidWithTakerAsk(ctx, h.seller.Address(), h.takerAsk("3"), h.bid(t, "3"))
	require.NoError(t, err)

	assert.Equal(t, h.buyer.Address(), s.Buyer, "maker bid signer buys")
	assert.Equal(t, "197", h.balance(h.buyer.Address()))
	assert.Equal(t, "202.94", h.balance(h.seller.Address()))
	assert.Equal(t, h.buyer.Address(), h.owner(t, 10))
}

func TestExchange_ExpiredOrder(t *testing.T) {
	h := newHarness(t)
	maker := h.ask(t, "2")

	h.clock.advance(1001 * time.Second)
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrStrategyExecutionInvalid)

	assert.Equal(t, "200", h.balance(h.buyer.Address()))
	assert.Equal(t, h.seller.Address(), h.owner(t, 10))
	assert.Empty(t, h.journal.settlements)
	assert.EqualValues(t, 1, h.metrics.Snapshot().Rejections)
}

func TestExchange_NotYetActive(t *testing.T) {
	h := newHarness(t)
	maker := h.ask(t, "2", func(o *domain.MakerOrder) {
		o.StartTime += 60
		o.EndTime += 60
	})
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrStrategyExecutionInvalid)
}

func TestExchange_Replay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	maker := h.ask(t, "2")

	_, err := h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), maker)
	require.NoError(t, err)

	_, err = h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrOrderAlreadyExecuted)
	assert.Equal(t, "198", h.balance(h.buyer.Address()), "replay must not charge twice")

	t.Run("same nonce, different order", func(t *testing.T) {
		again := h.ask(t, "3")
		_, err := h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("3"), again)
		require.ErrorIs(t, err, domain.ErrOrderInvalid)
	})
}

func TestExchange_CancelAllBelow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seller.Address()

	c, err := h.ex.CancelAllBelow(ctx, seller, 101)
	require.NoError(t, err)
	assert.EqualValues(t, 101, c.NewFloor)
	require.Len(t, h.observer.cancellations, 1)
	require.Len(t, h.journal.cancellations, 1)

	_, err = h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), h.ask(t, "2"))
	require.ErrorIs(t, err, domain.ErrOrderInvalid, "nonce 100 is below the floor")

	_, err = h.ex.CancelAllBelow(ctx, seller, 101)
	require.ErrorIs(t, err, domain.ErrNonceFloorNotIncreasing)

	_, err = h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), h.ask(t, "2", func(o *domain.MakerOrder) { o.Nonce = 101 }))
	require.NoError(t, err, "nonces at or above the floor are unaffected")
}

func TestExchange_CancelMultipleMakerOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ex.CancelMultipleMakerOrders(ctx, h.seller.Address(), []uint64{100, 5})
	require.NoError(t, err)
	_, err = h.ex.CancelMultipleMakerOrders(ctx, h.seller.Address(), []uint64{100})
	require.NoError(t, err, "cancelling twice is idempotent")

	_, err = h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), h.ask(t, "2"))
	require.ErrorIs(t, err, domain.ErrOrderInvalid)

	_, err = h.ex.CancelMultipleMakerOrders(ctx, h.seller.Address(), nil)
	require.ErrorIs(t, err, domain.ErrOrderInvalid)
}

func TestExchange_PrivateSale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := common.HexToAddress("0x0BAD")

	maker := h.ask(t, "2", func(o *domain.MakerOrder) {
		o.Strategy = privateAddr
		o.Params = strategy.EncodeTarget(h.buyer.Address())
	})

	intruder := h.takerBid("2")
	intruder.Taker = other
	_, err := h.ex.MatchAskWithTakerBid(ctx, intruder.Taker, intruder, maker)
	require.ErrorIs(t, err, domain.ErrStrategyExecutionInvalid)

	_, err = h.ex.MatchAskWithTakerBid(ctx, h.buyer.Address(), h.takerBid("2"), maker)
	require.NoError(t, err)
	assert.Equal(t, "202", h.balance(h.seller.Address()), "private sale strategy charges no fee")
}

func TestExchange_CallerMustBeTaker(t *testing.T) {
	stranger := common.HexToAddress("0x0BAD")

	t.Run("taker bid paid from someone else's balance", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ex.MatchAskWithTakerBid(context.Background(), stranger, h.takerBid("2"), h.ask(t, "2"))
		require.ErrorIs(t, err, domain.ErrOrderInvalid)
		assert.Equal(t, "200", h.balance(h.buyer.Address()))
		assert.Equal(t, h.seller.Address(), h.owner(t, 10))
	})

	t.Run("taker ask selling someone else's asset", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ex.MatchBidWithTakerAsk(context.Background(), stranger, h.takerAsk("3"), h.bid(t, "3"))
		require.ErrorIs(t, err, domain.ErrOrderInvalid)
		assert.Equal(t, h.seller.Address(), h.owner(t, 10))
	})

	t.Run("private sale target spoofed", func(t *testing.T) {
		h := newHarness(t)
		maker := h.ask(t, "2", func(o *domain.MakerOrder) {
			o.Strategy = privateAddr
			o.Params = strategy.EncodeTarget(h.buyer.Address())
		})
		_, err := h.ex.MatchAskWithTakerBid(context.Background(), stranger, h.takerBid("2"), maker)
		require.ErrorIs(t, err, domain.ErrOrderInvalid)
		assert.Equal(t, "200", h.balance(h.buyer.Address()))
		assert.Equal(t, h.seller.Address(), h.owner(t, 10))
	})

	t.Run("null taker", func(t *testing.T) {
		h := newHarness(t)
		taker := h.takerBid("2")
		taker.Taker = common.Address{}
		_, err := h.ex.MatchAskWithTakerBid(context.Background(), common.Address{}, taker, h.ask(t, "2"))
		require.ErrorIs(t, err, domain.ErrOrderInvalid)
	})
}

func TestExchange_AnyItemCollectionOffer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.nft.Mint(h.seller.Address(), big.NewInt(77)))

	maker := h.bid(t, "1", func(o *domain.MakerOrder) {
		o.Strategy = anyAddr
		o.TokenID = big.NewInt(0)
	})
	taker := h.takerAsk("1")
	taker.TokenID = big.NewInt(77)

	s, err := h.ex.MatchBidWithTakerAsk(context.Background(), taker.Taker, taker, maker)
	require.NoError(t, err)
	assert.EqualValues(t, 77, s.TokenID.Int64())
	assert.Equal(t, h.buyer.Address(), h.owner(t, 77))
}

func TestExchange_OtherDomain(t *testing.T) {
	h := newHarness(t)
	maker := h.ask(t, "2")

	foreign := signing.NewDomain(big.NewInt(1), exchangeID)
	require.NoError(t, h.seller.SignOrder(foreign, maker))

	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestExchange_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder)
		match func(h *harness) func(context.Context, *domain.TakerOrder, *domain.MakerOrder) (*domain.Settlement, error)
		want  error
	}{
		{
			name: "maker bid on ask path",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("2"), h.bid(t, "2")
			},
			want: domain.ErrOrderWrongSides,
		},
		{
			name: "taker ask on ask path",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerAsk("2"), h.ask(t, "2")
			},
			want: domain.ErrOrderWrongSides,
		},
		{
			name: "zero amount",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("2"), h.ask(t, "2", func(o *domain.MakerOrder) { o.Amount = big.NewInt(0) })
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "end before start",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("2"), h.ask(t, "2", func(o *domain.MakerOrder) { o.EndTime = o.StartTime })
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "min percentage above 100%",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("2"), h.ask(t, "2", func(o *domain.MakerOrder) { o.MinPercentageToAsk = 10001 })
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "tampered price",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				m := h.ask(t, "2")
				m.Price = infra.MustParseEther("1")
				return h.takerBid("1"), m
			},
			want: domain.ErrSignatureInvalid,
		},
		{
			name: "price wrapped past uint256",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				m := h.ask(t, "2")
				m.Price = new(big.Int).Add(m.Price, two256)
				taker := h.takerBid("2")
				taker.Price = new(big.Int).Set(m.Price)
				return taker, m
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "token id wrapped past uint256",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				m := h.ask(t, "2")
				m.TokenID = new(big.Int).Add(m.TokenID, two256)
				taker := h.takerBid("2")
				taker.TokenID = new(big.Int).Set(m.TokenID)
				return taker, m
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "taker price beyond uint256",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				taker := h.takerBid("2")
				taker.Price = new(big.Int).Add(taker.Price, two256)
				return taker, h.ask(t, "2")
			},
			want: domain.ErrOrderInvalid,
		},
		{
			name: "currency not whitelisted",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("2"), h.ask(t, "2", func(o *domain.MakerOrder) { o.Currency = common.HexToAddress("0xDA1") })
			},
			want: domain.ErrStrategyExecutionInvalid,
		},
		{
			name: "strategy removed",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				require.NoError(t, h.ex.RemoveStrategy(stdAddr))
				return h.takerBid("2"), h.ask(t, "2")
			},
			want: domain.ErrStrategyExecutionInvalid,
		},
		{
			name: "price mismatch",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				return h.takerBid("1.9"), h.ask(t, "2")
			},
			want: domain.ErrStrategyExecutionInvalid,
		},
		{
			name: "royalty erodes maker minimum",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				require.NoError(t, h.setter.SetFee(governance, apes, governance, royaltyDest, 1000))
				return h.takerBid("2"), h.ask(t, "2")
			},
			want: domain.ErrFeesHigherThanExpected,
		},
		{
			name: "seller does not own the asset",
			build: func(t *testing.T, h *harness) (*domain.TakerOrder, *domain.MakerOrder) {
				taker := h.takerBid("2")
				taker.TokenID = big.NewInt(11)
				return taker, h.ask(t, "2", func(o *domain.MakerOrder) { o.TokenID = big.NewInt(11) })
			},
			want: domain.ErrTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			taker, maker := tt.build(t, h)

			_, err := h.ex.MatchAskWithTakerBid(context.Background(), taker.Taker, taker, maker)
			require.ErrorIs(t, err, tt.want)

			assert.Equal(t, "200", h.balance(h.buyer.Address()))
			assert.Equal(t, "200", h.balance(h.seller.Address()))
			assert.Equal(t, "0", h.balance(feeSink))
			assert.Equal(t, "0", h.balance(royaltyDest))
			assert.Equal(t, h.seller.Address(), h.owner(t, 10))
			assert.Empty(t, h.journal.settlements)
		})
	}
}

func TestExchange_ExpiryWinsOverFees(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.setter.SetFee(governance, apes, governance, royaltyDest, 5000))
	maker := h.ask(t, "2")

	h.clock.advance(2000 * time.Second)
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrStrategyExecutionInvalid)
}

func TestExchange_Royalty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.setter.SetFee(governance, apes, governance, royaltyDest, 2000))

	maker := h.ask(t, "1", func(o *domain.MakerOrder) { o.MinPercentageToAsk = 7000 })
	s, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("1"), maker)
	require.NoError(t, err)

	assert.Equal(t, "0.2", h.balance(royaltyDest))
	assert.Equal(t, royaltyDest, s.RoyaltyReceiver)
	assert.Equal(t, "0.2", infra.FormatWei(s.Fees.Royalty))
	assert.Equal(t, "0.02", infra.FormatWei(s.Fees.ProtocolFee))
	assert.Equal(t, "0.78", infra.FormatWei(s.Fees.SellerProceeds))
	assert.Equal(t, "200.78", h.balance(h.seller.Address()))
}

func TestExchange_RollbackOnLateLegFailure(t *testing.T) {
	var flaky *flakyCurrency
	h := newHarness(t, func(d *Deps) {
		flaky = &flakyCurrency{inner: d.Currency, failAt: 2}
		d.Currency = flaky
	})
	require.NoError(t, h.setter.SetFee(governance, apes, governance, royaltyDest, 500))

	maker := h.ask(t, "2", func(o *domain.MakerOrder) { o.MinPercentageToAsk = 0 })
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.True(t, domain.IsRetriable(err))

	assert.Equal(t, "200", h.balance(h.buyer.Address()), "proceeds leg must be reverted")
	assert.Equal(t, "200", h.balance(h.seller.Address()))
	assert.True(t, h.nonces.IsValid(h.seller.Address(), 100), "nonce stays usable")
	assert.EqualValues(t, 1, h.metrics.Snapshot().Rollbacks)

	flaky.failAt = 0
	_, err = h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.NoError(t, err, "a rolled back order can settle later")
}

func TestExchange_RollbackOnJournalFailure(t *testing.T) {
	h := newHarness(t)
	h.journal.fail = errors.New("database is locked")

	maker := h.ask(t, "2")
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
	require.Error(t, err)

	assert.Equal(t, "200", h.balance(h.buyer.Address()))
	assert.Equal(t, "0", h.balance(feeSink))
	assert.Equal(t, h.seller.Address(), h.owner(t, 10), "asset must return to the seller")
	assert.Empty(t, h.observer.settlements)
}

func TestExchange_ConcurrentSettlement(t *testing.T) {
	h := newHarness(t)
	maker := h.ask(t, "2")

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), maker)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			rejected = append(rejected, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	for _, err := range rejected {
		assert.ErrorIs(t, err, domain.ErrOrderAlreadyExecuted)
	}
	assert.Equal(t, "198", h.balance(h.buyer.Address()))
}

func TestExchange_Strategies(t *testing.T) {
	h := newHarness(t)
	extra := common.HexToAddress("0x5742")
	require.NoError(t, h.ex.AddStrategy(extra, strategy.NewStandardFixedPrice(50, h.clock)))
	require.NoError(t, h.ex.RemoveStrategy(privateAddr))

	active := map[common.Address]bool{}
	for _, d := range h.ex.Strategies() {
		active[d.Address] = d.Active
	}
	assert.True(t, active[extra])
	assert.False(t, active[privateAddr])
	assert.True(t, active[stdAddr])

	require.NoError(t, h.ex.RemoveCurrency(weth))
	_, err := h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), h.ask(t, "2"))
	require.ErrorIs(t, err, domain.ErrStrategyExecutionInvalid)
	require.NoError(t, h.ex.AddCurrency(weth))
	_, err = h.ex.MatchAskWithTakerBid(context.Background(), h.buyer.Address(), h.takerBid("2"), h.ask(t, "2"))
	require.NoError(t, err)
}

func TestNewExchange_RequiresCollaborators(t *testing.T) {
	_, err := NewExchange(Deps{})
	require.Error(t, err)
}

// Every settlement conserves value: fee + royalty + proceeds == price, and the currency
// supply is unchanged.
func TestExchange_FeeInvariant(t *testing.T) {
	h := newHarness(t)
	supply := h.paper.Supply(weth)
	nonce := uint64(1000)
	tokenID := int64(1000)

	rapid.Check(t, func(rt *rapid.T) {
		royaltyBps := rapid.Uint64Range(0, domain.MaxRoyaltyFeeLimit).Draw(rt, "royaltyBps")
		price := rapid.Int64Range(0, 1_000_000_000).Draw(rt, "price")

		require.NoError(rt, h.setter.SetFee(governance, apes, governance, royaltyDest, royaltyBps))
		nonce++
		tokenID++
		require.NoError(rt, h.nft.Mint(h.seller.Address(), big.NewInt(tokenID)))

		maker := &domain.MakerOrder{
			Side:       domain.SideAsk,
			Collection: apes,
			Price:      big.NewInt(price),
			TokenID:    big.NewInt(tokenID),
			Amount:     big.NewInt(1),
			Strategy:   stdAddr,
			Currency:   weth,
			Nonce:      nonce,
			StartTime:  uint64(startAt.Unix()),
			EndTime:    uint64(startAt.Unix()) + 1000,
		}
		require.NoError(rt, h.seller.SignOrder(h.domain, maker))
		taker := &domain.TakerOrder{
			Side:    domain.SideBid,
			Taker:   h.buyer.Address(),
			Price:   big.NewInt(price),
			TokenID: big.NewInt(tokenID),
		}

		s, err := h.ex.MatchAskWithTakerBid(context.Background(), taker.Taker, taker, maker)
		require.NoError(rt, err)
		require.True(rt, s.Fees.Conserves())
		require.GreaterOrEqual(rt, s.Fees.SellerProceeds.Sign(), 0)
		require.Zero(rt, h.paper.Supply(weth).Cmp(supply))
	})
}

func BenchmarkExchange_MatchAskWithTakerBid(b *testing.B) {
	h := newHarness(b)
	ctx := context.Background()
	makers := make([]*domain.MakerOrder, b.N)
	for i := range makers {
		id := big.NewInt(int64(1000 + i))
		if err := h.nft.Mint(h.seller.Address(), id); err != nil {
			b.Fatal(err)
		}
		makers[i] = h.ask(b, "0.001", func(o *domain.MakerOrder) {
			o.Nonce = uint64(1000 + i)
			o.TokenID = id
		})
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		taker := h.takerBid("0.001")
		taker.TokenID = makers[i].TokenID
		if _, err := h.ex.MatchAskWithTakerBid(ctx, taker.Taker, taker, makers[i]); err != nil {
			b.Fatal(err)
		}
	}
}
