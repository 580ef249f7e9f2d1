package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CollectionStats aggregates the settled trades of one collection.
type CollectionStats struct {
	Collection common.Address
	Sales      uint64
	Volume     decimal.Decimal // ether
	Royalties  decimal.Decimal // ether
	LastPrice  decimal.Decimal // ether
	LastSaleAt time.Time
	LowPrice   *decimal.Decimal
	HighPrice  *decimal.Decimal
}

// MarketService manages the read-side state of all settled trades
type MarketService struct {
	mu            sync.RWMutex
	stats         map[common.Address]*CollectionStats
	cancellations map[common.Address]int
	settlementCh  chan *domain.Settlement
}

// NewMarketService creates a new MarketService instance
func NewMarketService() *MarketService {
	return &MarketService{
		stats:         make(map[common.Address]*CollectionStats),
		cancellations: make(map[common.Address]int),
		settlementCh:  make(chan *domain.Settlement, 1000), // 버스트 대응을 위한 충분한 버퍼
	}
}

// GetAllStats returns stats for every traded collection sorted by address
func (s *MarketService) GetAllStats() []CollectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]CollectionStats, 0, len(s.stats))
	for _, st := range s.stats {
		result = append(result, *st)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Collection.Cmp(result[j].Collection) < 0
	})
	return result
}

// GetStats returns stats for a specific collection
func (s *MarketService) GetStats(collection common.Address) (CollectionStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[collection]
	if !ok {
		return CollectionStats{}, false
	}
	return *st, true
}

// Cancellations returns how many cancellation events a signer has issued
func (s *MarketService) Cancellations(signer common.Address) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancellations[signer]
}

// OnSettlement implements engine.Observer. It never blocks the engine; when the buffer is
// full the settlement is dropped from the read model (the journal still has it).
func (s *MarketService) OnSettlement(st *domain.Settlement) {
	select {
	case s.settlementCh <- st:
	default:
		slog.Warn("Market stats buffer full, dropping settlement", slog.String("digest", st.Digest.Hex()))
	}
}

// OnCancellation implements engine.Observer.
func (s *MarketService) OnCancellation(c *domain.Cancellation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancellations[c.Signer]++
}

// StartProcessor starts a background goroutine to process settlements from the channel
func (s *MarketService) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-s.settlementCh:
				s.ProcessSettlements(st)
			}
		}
	}()
}

// ProcessSettlements folds settlements into the per-collection stats.
func (s *MarketService) ProcessSettlements(settlements ...*domain.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range settlements {
		data, exists := s.stats[st.Collection]
		if !exists {
			data = &CollectionStats{Collection: st.Collection}
			s.stats[st.Collection] = data
		}

		price := infra.ToEther(st.Fees.Price)
		data.Sales++
		data.Volume = data.Volume.Add(price)
		data.Royalties = data.Royalties.Add(infra.ToEther(st.Fees.Royalty))
		if !st.ExecutedAt.Before(data.LastSaleAt) {
			data.LastPrice = price
			data.LastSaleAt = st.ExecutedAt
		}
		if data.LowPrice == nil || price.LessThan(*data.LowPrice) {
			data.LowPrice = &price
		}
		if data.HighPrice == nil || price.GreaterThan(*data.HighPrice) {
			data.HighPrice = &price
		}
	}
}
