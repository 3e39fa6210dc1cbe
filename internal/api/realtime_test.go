package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-ordersupport/internal/config"
	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/server"
	"github.com/npezzotti/go-ordersupport/internal/stats"
	"github.com/npezzotti/go-ordersupport/internal/testutil"
	"github.com/npezzotti/go-ordersupport/internal/types"
	"github.com/npezzotti/go-ordersupport/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveStack runs the whole service behind an httptest server.
type liveStack struct {
	srv   *httptest.Server
	app   *OrderSupportApp
	db    *database.Ledger
	admin database.User
	alice database.User
	bob   database.User
}

func newLiveStack(t *testing.T) *liveStack {
	logger := testutil.TestLogger(t)
	db, err := database.OpenLedger(filepath.Join(t.TempDir(), "db.json"), logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	su := stats.NewStatsUpdater(mux)
	su.Run()

	cs, err := server.NewChatServer(logger, db, su)
	require.NoError(t, err)
	go cs.Run()

	in := webhook.NewIngestor(logger, db, cs, su, testWebhookSecret, 5*time.Minute)
	app := NewOrderSupportApp(mux, logger, cs, db, in, &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	})

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
		su.Stop()
		db.Close()
	})

	ls := &liveStack{srv: srv, app: app, db: db}
	ls.admin = createTestUser(t, db, "admin@example.com")
	ls.alice = createTestUser(t, db, "alice@example.com")
	ls.bob = createTestUser(t, db, "bob@example.com")
	return ls
}

func (ls *liveStack) dial(t *testing.T, userId int) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken(t, ls.app, userId))

	url := "ws" + strings.TrimPrefix(ls.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	// the server registers the connection before it reads the first frame,
	// so any reply means the client is known to the chat server
	res := roundTrip(t, conn, map[string]any{"id": 1, "join": map[string]int{"order_id": 999999}})
	require.Equal(t, http.StatusNotFound, res.Response.ResponseCode)
	return conn
}

func (ls *liveStack) webhook(t *testing.T, session string, userId int) {
	t.Helper()
	body := []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":%q,"metadata":{"user_id":"%d"},"amount_total":2500,"currency":"usd"}}}`, session, userId))

	req, err := http.NewRequest(http.MethodPost, ls.srv.URL+"/api/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(webhook.SignatureHeader, webhook.SignatureHeaderValue(body, testWebhookSecret, time.Now().Unix()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var res WebhookResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, res.Received)
}

func (ls *liveStack) get(t *testing.T, path string, userId int, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ls.srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken(t, ls.app, userId))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func readFrame(t *testing.T, conn *websocket.Conn) server.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg server.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// roundTrip sends v and returns the response frame carrying the same id,
// skipping any broadcast that arrives first.
func roundTrip(t *testing.T, conn *websocket.Conn, v map[string]any) server.ServerMessage {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
	for {
		msg := readFrame(t, conn)
		if msg.Response != nil && msg.Id == v["id"] {
			return msg
		}
	}
}

// expectSilence asserts nothing arrives for a short while. A timed out read
// leaves a gorilla connection unusable, so this must be the last read on conn.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg server.ServerMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "expected no frame, got %+v", msg)
}

func TestRealtime_orderCreatedReachesAdminsOnly(t *testing.T) {
	ls := newLiveStack(t)
	adminConn := ls.dial(t, ls.admin.Id)
	aliceConn := ls.dial(t, ls.alice.Id)

	ls.webhook(t, "cs_live_1", ls.alice.Id)

	msg := readFrame(t, adminConn)
	require.NotNil(t, msg.Notification)
	require.NotNil(t, msg.Notification.OrderCreated)
	order := msg.Notification.OrderCreated
	assert.Equal(t, "cs_live_1", order.ExternalSessionId)
	assert.Equal(t, ls.alice.Id, *order.UserId)
	assert.Equal(t, "alice@example.com", order.UserEmail)
	assert.Equal(t, types.OrderStatusPaid, order.Status)

	// a redelivery creates nothing and announces nothing
	ls.webhook(t, "cs_live_1", ls.alice.Id)

	var orders []types.Order
	require.Equal(t, http.StatusOK, ls.get(t, "/api/orders", ls.admin.Id, &orders))
	assert.Len(t, orders, 1)

	expectSilence(t, adminConn)
	expectSilence(t, aliceConn)
}

func TestRealtime_ownerAndAdminConverse(t *testing.T) {
	ls := newLiveStack(t)
	ls.webhook(t, "cs_live_2", ls.alice.Id)

	var orders []types.Order
	require.Equal(t, http.StatusOK, ls.get(t, "/api/orders", ls.alice.Id, &orders))
	require.Len(t, orders, 1)
	orderId := orders[0].Id

	aliceConn := ls.dial(t, ls.alice.Id)
	adminConn := ls.dial(t, ls.admin.Id)

	res := roundTrip(t, aliceConn, map[string]any{"id": 2, "join": map[string]int{"order_id": orderId}})
	require.True(t, res.Response.Ok)
	assert.Empty(t, res.Response.Messages)

	res = roundTrip(t, adminConn, map[string]any{"id": 2, "join": map[string]int{"order_id": orderId}})
	require.True(t, res.Response.Ok)

	res = roundTrip(t, aliceConn, map[string]any{"id": 3, "publish": map[string]any{"order_id": orderId, "text": "  where is my parcel?  "}})
	require.True(t, res.Response.Ok)
	require.NotNil(t, res.Response.Msg)
	assert.Equal(t, "where is my parcel?", res.Response.Msg.Text)
	assert.Equal(t, types.SenderRoleUser, res.Response.Msg.SenderRole)

	// the sender receives its own broadcast as well
	for _, conn := range []*websocket.Conn{aliceConn, adminConn} {
		msg := readFrame(t, conn)
		require.NotNil(t, msg.Message)
		assert.Equal(t, "where is my parcel?", msg.Message.Text)
		assert.Equal(t, ls.alice.Id, msg.Message.SenderId)
	}

	res = roundTrip(t, adminConn, map[string]any{"id": 3, "publish": map[string]any{"order_id": orderId, "text": "shipped today"}})
	require.True(t, res.Response.Ok)
	assert.Equal(t, types.SenderRoleAdmin, res.Response.Msg.SenderRole)
	for _, conn := range []*websocket.Conn{aliceConn, adminConn} {
		msg := readFrame(t, conn)
		require.NotNil(t, msg.Message)
		assert.Equal(t, "shipped today", msg.Message.Text)
	}

	res = roundTrip(t, aliceConn, map[string]any{"id": 4, "publish": map[string]any{"order_id": orderId, "text": "   "}})
	assert.False(t, res.Response.Ok)
	assert.Equal(t, http.StatusBadRequest, res.Response.ResponseCode)
	assert.Equal(t, "message text cannot be empty", res.Response.Error)

	var history []types.Message
	require.Equal(t, http.StatusOK, ls.get(t, fmt.Sprintf("/api/orders/%d/messages", orderId), ls.alice.Id, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "where is my parcel?", history[0].Text)
	assert.Equal(t, "shipped today", history[1].Text)

	// a later join replays the same history
	lateConn := ls.dial(t, ls.admin.Id)
	res = roundTrip(t, lateConn, map[string]any{"id": 5, "join": map[string]int{"order_id": orderId}})
	require.True(t, res.Response.Ok)
	require.Len(t, res.Response.Messages, 2)
	assert.Equal(t, history[0].Id, res.Response.Messages[0].Id)
	assert.Equal(t, history[1].Id, res.Response.Messages[1].Id)

	var vars map[string]any
	require.Equal(t, http.StatusOK, ls.get(t, "/debug/vars", ls.admin.Id, &vars))
	assert.Contains(t, vars, stats.NumMessagesSent)
	assert.Contains(t, vars, stats.NumOrdersCreated)
}

func TestRealtime_nonOwnerIsDenied(t *testing.T) {
	ls := newLiveStack(t)
	ls.webhook(t, "cs_live_3", ls.alice.Id)

	var orders []types.Order
	require.Equal(t, http.StatusOK, ls.get(t, "/api/orders", ls.alice.Id, &orders))
	require.Len(t, orders, 1)
	orderId := orders[0].Id

	aliceConn := ls.dial(t, ls.alice.Id)
	bobConn := ls.dial(t, ls.bob.Id)

	res := roundTrip(t, aliceConn, map[string]any{"id": 2, "join": map[string]int{"order_id": orderId}})
	require.True(t, res.Response.Ok)

	res = roundTrip(t, bobConn, map[string]any{"id": 2, "join": map[string]int{"order_id": orderId}})
	assert.False(t, res.Response.Ok)
	assert.Equal(t, http.StatusForbidden, res.Response.ResponseCode)
	assert.Equal(t, "Not authorized", res.Response.Error)

	// the connection survives a denied join
	res = roundTrip(t, bobConn, map[string]any{"id": 3, "join": map[string]int{"order_id": 999999}})
	assert.Equal(t, http.StatusNotFound, res.Response.ResponseCode)

	res = roundTrip(t, bobConn, map[string]any{"id": 4, "publish": map[string]any{"order_id": orderId, "text": "let me in"}})
	assert.Equal(t, http.StatusForbidden, res.Response.ResponseCode)
	assert.Equal(t, "not joined to order", res.Response.Error)

	// bob is a member of his own order, which must not leak alice's traffic
	ls.webhook(t, "cs_live_3b", ls.bob.Id)
	var bobOrders []types.Order
	require.Equal(t, http.StatusOK, ls.get(t, "/api/orders", ls.bob.Id, &bobOrders))
	require.Len(t, bobOrders, 1)
	res = roundTrip(t, bobConn, map[string]any{"id": 5, "join": map[string]int{"order_id": bobOrders[0].Id}})
	require.True(t, res.Response.Ok)

	res = roundTrip(t, aliceConn, map[string]any{"id": 3, "publish": map[string]any{"order_id": orderId, "text": "private"}})
	require.True(t, res.Response.Ok)
	msg := readFrame(t, aliceConn)
	require.NotNil(t, msg.Message)

	assert.Equal(t, http.StatusForbidden, ls.get(t, fmt.Sprintf("/api/orders/%d/messages", orderId), ls.bob.Id, nil))

	expectSilence(t, bobConn)
}
