package feed

import (
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"booksrare_go/internal/domain"
	"booksrare_go/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Subscribers() == n }, 2*time.Second, 10*time.Millisecond)
}

func sampleSettlement() *domain.Settlement {
	price := new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	return &domain.Settlement{
		Digest:     common.HexToHash("0x01"),
		MakerSide:  domain.SideAsk,
		Buyer:      common.HexToAddress("0xb0"),
		Seller:     common.HexToAddress("0x5e"),
		Collection: common.HexToAddress("0xc0"),
		TokenID:    big.NewInt(10),
		Amount:     big.NewInt(1),
		Currency:   common.HexToAddress("0xee"),
		Fees:       domain.NewFeeBreakdown(price, 200, nil),
		ExecutedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestHub_BroadcastsSettlement(t *testing.T) {
	m := &infra.Metrics{}
	h := NewHub(m)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitSubscribers(t, h, 2)
	assert.Equal(t, int32(2), m.Snapshot().FeedSubscribers)

	h.OnSettlement(sampleSettlement())

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, TypeSettlement, msg.Type)
		require.NotNil(t, msg.Settlement)
		assert.Equal(t, "ASK", msg.Settlement.MakerSide)
		assert.Equal(t, "10", msg.Settlement.TokenID)
		assert.Equal(t, "2", msg.Settlement.Price.String())
		assert.Equal(t, "0.04", msg.Settlement.ProtocolFee.String())
		assert.Equal(t, "1.96", msg.Settlement.SellerProceeds.String())
	}
}

func TestHub_BroadcastsCancellation(t *testing.T) {
	h := NewHub(&infra.Metrics{})
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitSubscribers(t, h, 1)

	signer := common.HexToAddress("0xabc")
	h.OnCancellation(&domain.Cancellation{Signer: signer, Nonces: []uint64{3, 4}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeCancellation, msg.Type)
	require.NotNil(t, msg.Cancellation)
	assert.Equal(t, signer, msg.Cancellation.Signer)
	assert.Equal(t, []uint64{3, 4}, msg.Cancellation.Nonces)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	m := &infra.Metrics{}
	h := NewHub(m)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitSubscribers(t, h, 1)

	conn.Close()
	waitSubscribers(t, h, 0)
	assert.Equal(t, int32(0), m.Snapshot().FeedSubscribers)

	// Publishing with nobody connected is a no-op
	h.OnSettlement(sampleSettlement())
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h := NewHub(&infra.Metrics{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitSubscribers(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Subscribers())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
