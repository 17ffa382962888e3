package http

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, stack *testStack) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(stack.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial should upgrade")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return stack.hub.ClientCount() == 1 },
		time.Second, 2*time.Millisecond, "connection should register with the hub")
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err, "expected a frame before the deadline")

	var evt wireEvent
	require.NoError(t, json.Unmarshal(payload, &evt), "frame: %s", payload)
	return evt
}

func demoBatch(addr string, price float64) []models.Event {
	tok := listedToken(addr, 1000, 500_000)
	tok.Price = price
	return []models.Event{
		models.NewEvent(models.EventBatchUpdate, models.BatchUpdate{
			Tokens:    []models.Token{tok},
			Count:     1,
			UpdatedAt: time.Now().UTC(),
		}),
		models.NewEvent(models.EventPriceAlert, models.PriceAlert{
			Address:   addr,
			Ticker:    "TKN",
			OldPrice:  1.00,
			NewPrice:  price,
			ChangePct: (price - 1.00) * 100,
			Direction: "up",
		}),
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	stack := newTestStack(t, HandlerDeps{})
	conn := dialWS(t, stack)

	stack.hub.Broadcast(demoBatch("0xaaa", 1.10))

	first := readEvent(t, conn)
	assert.Equal(t, "batch_update", first.Type, "batch_update leads the tick's frames")

	var batch models.BatchUpdate
	require.NoError(t, json.Unmarshal(first.Data, &batch))
	assert.Equal(t, 1, batch.Count)
	require.Len(t, batch.Tokens, 1)
	assert.Equal(t, "0xaaa", batch.Tokens[0].Address)

	second := readEvent(t, conn)
	assert.Equal(t, "price_alert", second.Type, "alerts go to every connection")
}

func TestWebSocketSubscribeDeliversPerTokenUpdates(t *testing.T) {
	stack := newTestStack(t, HandlerDeps{})
	conn := dialWS(t, stack)

	sub := controlMessage{Type: controlSubscribe, Tokens: []string{"0xAAA"}}
	require.NoError(t, conn.WriteJSON(sub))
	require.Eventually(t, func() bool { return stack.hub.SubscriptionCount() == 1 },
		time.Second, 2*time.Millisecond, "subscription should land in the hub")

	stack.hub.Broadcast(demoBatch("0xaaa", 1.25))

	kinds := map[string]int{}
	var update models.SubscribedTokenUpdate
	for i := 0; i < 3; i++ {
		evt := readEvent(t, conn)
		kinds[evt.Type]++
		if evt.Type == "subscribed_token_update" {
			require.NoError(t, json.Unmarshal(evt.Data, &update))
		}
	}

	assert.Equal(t, 1, kinds["batch_update"])
	assert.Equal(t, 1, kinds["price_alert"])
	require.Equal(t, 1, kinds["subscribed_token_update"], "watchers get the per-token frame")
	assert.Equal(t, "0xaaa", update.Address)
	assert.Equal(t, 1.25, update.Token.Price, "per-token frame carries the fresh record")
}

func TestWebSocketUnsubscribeStopsPerTokenUpdates(t *testing.T) {
	stack := newTestStack(t, HandlerDeps{})
	conn := dialWS(t, stack)

	require.NoError(t, conn.WriteJSON(controlMessage{Type: controlSubscribe, Tokens: []string{"0xaaa"}}))
	require.Eventually(t, func() bool { return stack.hub.SubscriptionCount() == 1 },
		time.Second, 2*time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlMessage{Type: controlUnsubscribe, Tokens: []string{"0xaaa"}}))
	require.Eventually(t, func() bool { return stack.hub.SubscriptionCount() == 0 },
		time.Second, 2*time.Millisecond)

	stack.hub.Broadcast(demoBatch("0xaaa", 1.25))

	kinds := map[string]int{}
	for i := 0; i < 2; i++ {
		evt := readEvent(t, conn)
		kinds[evt.Type]++
	}
	assert.Equal(t, 1, kinds["batch_update"])
	assert.Equal(t, 1, kinds["price_alert"])
	assert.Zero(t, kinds["subscribed_token_update"], "unsubscribed watchers get no per-token frame")
}

func TestWebSocketMalformedControlIgnored(t *testing.T) {
	stack := newTestStack(t, HandlerDeps{})
	conn := dialWS(t, stack)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mystery"}))

	// The connection survives both frames and still receives broadcasts.
	stack.hub.Broadcast(demoBatch("0xaaa", 1.10))
	evt := readEvent(t, conn)
	assert.Equal(t, "batch_update", evt.Type)
	assert.Equal(t, 1, stack.hub.ClientCount())
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	stack := newTestStack(t, HandlerDeps{})
	conn := dialWS(t, stack)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return stack.hub.ClientCount() == 0 },
		time.Second, 2*time.Millisecond, "disconnect should unregister and drop subscriptions")
}
