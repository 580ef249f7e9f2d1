package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/engine"
	"booksrare_go/internal/execution"
	"booksrare_go/internal/infra"
	"booksrare_go/internal/infra/feed"
	"booksrare_go/internal/infra/storage"
	"booksrare_go/internal/nonce"
	"booksrare_go/internal/registry"
	"booksrare_go/internal/royalty"
	"booksrare_go/internal/service"
	"booksrare_go/internal/signing"
	"booksrare_go/internal/strategy"
	"booksrare_go/internal/transfer"

	"github.com/ethereum/go-ethereum/common"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage

	Nonces        *nonce.Ledger
	Currencies    *registry.Whitelist
	Strategies    *registry.Whitelist
	Royalties     *royalty.Registry
	RoyaltySetter *royalty.Setter
	Book          *strategy.Book
	Collections   *transfer.Directory
	Assets        *transfer.Selector
	Ledger        *execution.PaperLedger

	Exchange  *engine.Exchange
	Sequencer *engine.Sequencer
	Feed      *feed.Hub
	Market    *service.MarketService

	wg sync.WaitGroup
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, storage, restored
// ledgers and registries, and the exchange itself.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("Bootstrapping BooksRare exchange...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	// 4. Restore persisted state
	if err := b.restore(); err != nil {
		store.Close()
		return err
	}

	// 5. Strategies and currencies from config
	if err := b.seed(); err != nil {
		store.Close()
		return err
	}

	// 6. Exchange, sequencer and feed
	b.Collections = transfer.NewDirectory()
	b.Assets = transfer.NewSelector(b.Collections)
	b.Ledger = execution.NewPaperLedger()
	b.RoyaltySetter = royalty.NewSetter(b.Royalties, b.Collections, common.HexToAddress(cfg.Exchange.Governance))
	if err := b.seedPaper(); err != nil {
		store.Close()
		return err
	}

	b.Market = service.NewMarketService()
	observers := []engine.Observer{b.Market}
	if cfg.Feed.Enabled {
		b.Feed = feed.NewHub(infra.GlobalMetrics)
		observers = append(observers, b.Feed)
	}

	dom := signing.Domain{
		Name:              cfg.Exchange.DomainName,
		Version:           cfg.Exchange.DomainVersion,
		ChainID:           cfg.ChainID(),
		VerifyingContract: common.HexToAddress(cfg.Exchange.VerifyingContract),
	}
	ex, err := engine.NewExchange(engine.Deps{
		Verifier:             signing.NewVerifier(dom),
		Nonces:               b.Nonces,
		Currencies:           b.Currencies,
		Strategies:           b.Strategies,
		Book:                 b.Book,
		Royalty:              royalty.NewManager(b.Royalties, b.Collections),
		Currency:             b.Ledger,
		Assets:               b.Assets,
		ProtocolFeeRecipient: common.HexToAddress(cfg.Exchange.FeeRecipient),
		Journal:              store,
		Observers:            observers,
		Logger:               logger,
	})
	if err != nil {
		store.Close()
		return err
	}
	b.Exchange = ex
	b.Sequencer = engine.NewSequencer(cfg.Exchange.InboxSize, ex)

	slog.Info("Exchange ready",
		slog.String("domain", dom.Name),
		slog.String("separator", dom.Separator().Hex()),
		slog.Int("strategies", b.Strategies.Count()),
		slog.Int("currencies", b.Currencies.Count()),
	)
	return nil
}

func (b *Bootstrap) restore() error {
	floors, cancelled, executed, err := b.Storage.LoadNonces()
	if err != nil {
		return err
	}
	b.Nonces = nonce.NewLedger(b.Storage)
	b.Nonces.Restore(floors, cancelled, executed)

	b.Currencies = registry.NewCurrencyRegistry(b.Storage)
	b.Strategies = registry.NewStrategyRegistry(b.Storage)
	for _, w := range []*registry.Whitelist{b.Currencies, b.Strategies} {
		ids, err := b.Storage.LoadWhitelist(w.Name())
		if err != nil {
			return err
		}
		w.Restore(ids)
	}

	limit, found, infos, err := b.Storage.LoadRoyalties()
	if err != nil {
		return err
	}
	b.Royalties, err = royalty.NewRegistry(b.Config.Royalty.FeeLimitBps, b.Storage)
	if err != nil {
		return err
	}
	if found {
		b.Royalties.Restore(limit, infos)
	} else if err := b.Royalties.UpdateFeeLimit(b.Config.Royalty.FeeLimitBps); err != nil {
		return err
	}

	slog.Info("State restored",
		slog.Int("signers", len(floors)),
		slog.Int("executed", len(executed)),
		slog.Int("royalties", len(infos)),
		slog.Uint64("royalty_fee_limit", b.Royalties.FeeLimit()),
	)
	return nil
}

// seed registers the configured strategy implementations and whitelists them together with
// the configured currencies. Configured entries are re-added on every boot.
func (b *Bootstrap) seed() error {
	b.Book = strategy.NewBook()
	for _, sc := range b.Config.Strategies {
		impl, err := strategy.New(sc.Kind, sc.ProtocolFeeBps, domain.SystemClock{})
		if err != nil {
			return &domain.ConfigError{Field: "strategies", Err: err}
		}
		addr := common.HexToAddress(sc.Address)
		b.Book.Register(addr, impl)
		if err := b.Strategies.Add(addr); err != nil {
			return err
		}
	}
	for _, c := range b.Config.Currencies {
		if err := b.Currencies.Add(common.HexToAddress(c)); err != nil {
			return err
		}
	}
	return nil
}

// seedPaper mints the configured paper collections and funds the configured balances.
// Paper state lives in memory and is rebuilt from config on every boot.
func (b *Bootstrap) seedPaper() error {
	for i, pc := range b.Config.Paper.Collections {
		addr := common.HexToAddress(pc.Address)
		var opts []transfer.Option
		if pc.Owner != "" {
			opts = append(opts, transfer.WithOwner(common.HexToAddress(pc.Owner)))
		}

		var (
			impl any
			mint func(to common.Address, id, amount *big.Int) error
		)
		switch pc.Standard {
		case infra.StandardERC721:
			var nft *transfer.ERC721
			if pc.RoyaltyReceiver != "" {
				r := transfer.NewRoyaltyERC721(common.HexToAddress(pc.RoyaltyReceiver), pc.RoyaltyBps, opts...)
				impl, nft = r, r.ERC721
			} else {
				nft = transfer.NewERC721(opts...)
				impl = nft
			}
			mint = func(to common.Address, id, _ *big.Int) error { return nft.Mint(to, id) }
		case infra.StandardERC1155:
			c := transfer.NewERC1155(opts...)
			impl = c
			mint = func(to common.Address, id, amount *big.Int) error {
				c.Mint(to, id, amount)
				return nil
			}
		case infra.StandardLegacy:
			c := transfer.NewLegacyERC721(opts...)
			impl = c
			mint = func(to common.Address, id, _ *big.Int) error { return c.Mint(to, id) }
			b.Assets.AddCollectionTransferManager(addr, transfer.NonCompliantERC721Manager{})
		default:
			return &domain.ConfigError{
				Field: fmt.Sprintf("paper.collections[%d].standard", i),
				Err:   fmt.Errorf("unknown standard %q", pc.Standard),
			}
		}

		for _, tok := range pc.Tokens {
			id, ok := new(big.Int).SetString(tok.ID, 10)
			if !ok {
				return &domain.ConfigError{
					Field: fmt.Sprintf("paper.collections[%d].tokens", i),
					Err:   fmt.Errorf("token id %q", tok.ID),
				}
			}
			amount := new(big.Int).SetUint64(tok.Amount)
			if tok.Amount == 0 {
				amount.SetInt64(1)
			}
			if err := mint(common.HexToAddress(tok.Holder), id, amount); err != nil {
				return &domain.ConfigError{Field: fmt.Sprintf("paper.collections[%d].tokens", i), Err: err}
			}
		}
		b.Collections.Register(addr, impl)
	}

	for i, pb := range b.Config.Paper.Balances {
		amount, err := infra.ParseEther(pb.Amount)
		if err != nil {
			return &domain.ConfigError{Field: fmt.Sprintf("paper.balances[%d].amount", i), Err: err}
		}
		b.Ledger.Deposit(common.HexToAddress(pb.Currency), common.HexToAddress(pb.Account), amount)
	}

	if len(b.Config.Paper.Collections)+len(b.Config.Paper.Balances) > 0 {
		slog.Info("Paper state seeded",
			slog.Int("collections", len(b.Config.Paper.Collections)),
			slog.Int("balances", len(b.Config.Paper.Balances)),
		)
	}
	return nil
}

// Start runs the sequencer, the market stats processor and, when enabled, the settlement
// feed until ctx is cancelled.
func (b *Bootstrap) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Sequencer.Run(ctx)
	}()
	b.Market.StartProcessor(ctx)

	if b.Feed != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.Feed.Serve(ctx, b.Config.Feed.Addr); err != nil {
				slog.Error("Feed server failed", slog.Any("error", err))
			}
		}()
	}
}

// Shutdown waits for the background loops started by Start and closes storage.
// ctx must already be cancelled, or be cancelled soon, for the loops to exit.
func (b *Bootstrap) Shutdown() error {
	b.wg.Wait()
	if b.Storage == nil {
		return nil
	}
	if err := b.Storage.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
