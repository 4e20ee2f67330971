package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"boost-service/internal/domain/promotion"
	wstypes "boost-service/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingObserver struct{ last int }

func (o *countingObserver) SetWebsocketClients(n int) { o.last = n }

func newTestClient(h *Hub, identityID int64) *Client {
	return NewClient(h, nil, &ClientAuth{IdentityID: identityID, SessionID: "s"})
}

func drain(t *testing.T, c *Client) *wstypes.WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg wstypes.WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message queued")
		return nil
	}
}

func TestRegisterSubscribesToPromotions(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	obs := &countingObserver{}
	h.SetObserver(obs)

	c := newTestClient(h, 7)
	h.registerClient(c)

	assert.True(t, c.IsSubscribed(wstypes.ChannelPromotions))
	assert.Equal(t, 1, obs.last)
	assert.Equal(t, wstypes.EventTypeConnected, drain(t, c).Type)

	h.unregisterClient(c)
	assert.Equal(t, 0, obs.last)
	assert.False(t, h.IsUserConnected(7))
}

func TestBroadcastWorkflowReachesOnlyOwner(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	owner := newTestClient(h, 7)
	other := newTestClient(h, 8)
	h.registerClient(owner)
	h.registerClient(other)
	drain(t, owner)
	drain(t, other)

	wf, err := promotion.New("wf-1", 7, "listing-1", time.Now())
	require.NoError(t, err)
	h.BroadcastWorkflow(7, wf.View())
	h.BroadcastMessage(<-h.broadcast)

	msg := drain(t, owner)
	assert.Equal(t, wstypes.EventTypePromotionState, msg.Type)
	assert.Len(t, other.send, 0)
}

func TestBroadcastWorkflowSkipsUnsubscribed(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	c := newTestClient(h, 7)
	h.registerClient(c)
	drain(t, c)
	c.Unsubscribe(wstypes.ChannelPromotions)

	wf, err := promotion.New("wf-1", 7, "listing-1", time.Now())
	require.NoError(t, err)
	h.BroadcastWorkflow(7, wf.View())
	h.BroadcastMessage(<-h.broadcast)

	assert.Len(t, c.send, 0)
}

func TestBroadcastWorkflowNeverBlocks(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	h.registerClient(newTestClient(h, 7))

	wf, err := promotion.New("wf-1", 7, "listing-1", time.Now())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(h.broadcast)+10; i++ {
			h.BroadcastWorkflow(7, wf.View())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked with a full queue")
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}

func TestSubscribeRejectsUnknownChannel(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	c := newTestClient(h, 7)
	assert.False(t, c.Subscribe("audit"))
	assert.True(t, c.Subscribe(wstypes.ChannelWallet))
	assert.Equal(t, []wstypes.ChannelType{wstypes.ChannelWallet}, c.Subscriptions())
}
