package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"clubing-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub
}

// detachedClient is a hub member without a network connection.
func detachedClient(t *testing.T, hub *Hub, member domain.MemberID) *Client {
	t.Helper()
	c := NewClient(context.Background(), hub, nil, domain.Identity{MemberID: member}, ClientOptions{})
	require.True(t, hub.Register(c))
	return c
}

func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected event: %s", data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func assertClosed(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel was not closed")
		}
	}
}

func TestHub_PublishFansOutToGroup(t *testing.T) {
	hub := startHub(t)
	a := detachedClient(t, hub, "A")
	b := detachedClient(t, hub, "B")
	outsider := detachedClient(t, hub, "C")

	hub.Subscribe(a, 42)
	hub.Subscribe(b, 42)
	hub.Subscribe(outsider, 7)
	assert.Equal(t, 2, hub.GroupSize(42))

	hub.Publish(42, &domain.Message{ID: 1, ClubID: 42, SenderID: "A", Content: "hello"})

	for _, c := range []*Client{a, b} {
		ev := receive(t, c)
		assert.Equal(t, EventMessage, ev["event"])
		msg := ev["message"].(map[string]any)
		assert.Equal(t, "hello", msg["content"])
		assert.Equal(t, "A", msg["sender"])
		assertNothingQueued(t, c)
	}
	assertNothingQueued(t, outsider)
}

func TestHub_DisconnectStopsDelivery(t *testing.T) {
	hub := startHub(t)
	a := detachedClient(t, hub, "A")
	b := detachedClient(t, hub, "B")
	hub.Subscribe(a, 42)
	hub.Subscribe(b, 42)
	hub.Subscribe(b, 43)

	hub.Disconnect(b)
	hub.Disconnect(b)
	assertClosed(t, b)

	assert.Equal(t, 1, hub.GroupSize(42))
	assert.Equal(t, 0, hub.GroupSize(43))

	hub.Publish(42, &domain.Message{ID: 2, ClubID: 42, Content: "second"})
	ev := receive(t, a)
	assert.Equal(t, "second", ev["message"].(map[string]any)["content"])
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := startHub(t)
	a := detachedClient(t, hub, "A")

	hub.Unsubscribe(a, 42)
	hub.Subscribe(a, 42)
	hub.Subscribe(a, 42)
	assert.Equal(t, 1, hub.GroupSize(42))

	hub.Unsubscribe(a, 42)
	hub.Unsubscribe(a, 42)
	assert.Equal(t, 0, hub.GroupSize(42))

	hub.Publish(42, &domain.Message{ID: 3, ClubID: 42, Content: "nobody"})
	assertNothingQueued(t, a)
}

func TestHub_SubscribeRequiresRegistration(t *testing.T) {
	hub := startHub(t)
	stray := NewClient(context.Background(), hub, nil, domain.Identity{MemberID: "X"}, ClientOptions{})

	hub.Subscribe(stray, 42)
	assert.Equal(t, 0, hub.GroupSize(42))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	slow := detachedClient(t, hub, "slow")
	fast := detachedClient(t, hub, "fast")
	hub.Subscribe(slow, 42)
	hub.Subscribe(slow, 43)
	hub.Subscribe(fast, 42)

	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte(`{}`)
	}

	hub.Publish(42, &domain.Message{ID: 1, ClubID: 42, Content: "overflow"})

	ev := receive(t, fast)
	assert.Equal(t, "overflow", ev["message"].(map[string]any)["content"])
	assert.Equal(t, 1, hub.GroupSize(42))
	assert.Equal(t, 0, hub.GroupSize(43), "dropped client leaves every group")
	assertClosed(t, slow)
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	c := NewClient(context.Background(), hub, nil, domain.Identity{MemberID: "A"}, ClientOptions{})
	require.True(t, hub.Register(c))
	hub.Subscribe(c, 42)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assertClosed(t, c)

	assert.False(t, hub.Register(c))
	assert.NotPanics(t, func() {
		hub.Subscribe(c, 42)
		hub.Publish(42, &domain.Message{ID: 1})
		hub.Disconnect(c)
	})
	assert.Equal(t, 0, hub.GroupSize(42))
}
