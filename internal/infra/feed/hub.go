package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Message types
const (
	TypeSettlement   = "settlement"
	TypeCancellation = "cancellation"
)

// Message is one frame pushed to subscribers.
type Message struct {
	Type         string               `json:"type"`
	Settlement   *SettlementView      `json:"settlement,omitempty"`
	Cancellation *domain.Cancellation `json:"cancellation,omitempty"`
}

// SettlementView is a settlement with amounts rendered in ether.
type SettlementView struct {
	Digest          string          `json:"digest"`
	MakerSide       string          `json:"maker_side"`
	Buyer           string          `json:"buyer"`
	Seller          string          `json:"seller"`
	Collection      string          `json:"collection"`
	TokenID         string          `json:"token_id"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Price           decimal.Decimal `json:"price"`
	ProtocolFee     decimal.Decimal `json:"protocol_fee"`
	Royalty         decimal.Decimal `json:"royalty"`
	RoyaltyReceiver string          `json:"royalty_receiver"`
	SellerProceeds  decimal.Decimal `json:"seller_proceeds"`
	ExecutedAt      time.Time       `json:"executed_at"`
}

// NewSettlementView renders s for subscribers.
func NewSettlementView(s *domain.Settlement) *SettlementView {
	return &SettlementView{
		Digest:          s.Digest.Hex(),
		MakerSide:       s.MakerSide.String(),
		Buyer:           s.Buyer.Hex(),
		Seller:          s.Seller.Hex(),
		Collection:      s.Collection.Hex(),
		TokenID:         s.TokenID.String(),
		Amount:          s.Amount.String(),
		Currency:        s.Currency.Hex(),
		Price:           infra.ToEther(s.Fees.Price),
		ProtocolFee:     infra.ToEther(s.Fees.ProtocolFee),
		Royalty:         infra.ToEther(s.Fees.Royalty),
		RoyaltyReceiver: s.RoyaltyReceiver.Hex(),
		SellerProceeds:  infra.ToEther(s.Fees.SellerProceeds),
		ExecutedAt:      s.ExecutedAt,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Read-only public feed
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts settlements and cancellations to websocket subscribers.
// It implements engine.Observer; slow subscribers are dropped instead of blocking the engine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	metrics *infra.Metrics
	wg      sync.WaitGroup
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(metrics *infra.Metrics) *Hub {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Hub{clients: make(map[*client]struct{}), metrics: metrics}
}

// OnSettlement implements engine.Observer.
func (h *Hub) OnSettlement(s *domain.Settlement) {
	h.publish(Message{Type: TypeSettlement, Settlement: NewSettlementView(s)})
}

// OnCancellation implements engine.Observer.
func (h *Hub) OnCancellation(c *domain.Cancellation) {
	h.publish(Message{Type: TypeCancellation, Cancellation: c})
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Feed marshal failed", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slog.Warn("Feed subscriber too slow, dropping", slog.String("remote", c.conn.RemoteAddr().String()))
			go h.remove(c)
		}
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.IncrementSubscribers()
	slog.Info("Feed subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	h.wg.Add(2)
	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	h.metrics.DecrementSubscribers()
	c.conn.Close()
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer h.remove(c)

	for {
		select {
		case b, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every subscriber and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

// Serve runs an HTTP server exposing the hub at /ws until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Feed listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Close()
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
