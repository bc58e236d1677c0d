package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CUknot/nexus_chat/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(hub *Hub, userID string) *Client {
	c := newClient(hub, nil, &models.User{ID: userID}, discardLogger())
	hub.register(c)
	return c
}

func drain(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

type stubRelay struct {
	mu        sync.Mutex
	published []Delivery
	err       error
}

func (r *stubRelay) Publish(_ context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, d)
	return nil
}

func TestHub_DeliverSkipsReplayedMessages(t *testing.T) {
	hub := NewHub(discardLogger())
	c := newTestClient(hub, "u1")
	hub.join(c, "room-1", 5)

	assert.Equal(t, 0, hub.Deliver(Delivery{RoomID: "room-1", MessageID: 4, Frame: []byte(`{}`)}))
	assert.Equal(t, 0, hub.Deliver(Delivery{RoomID: "room-1", MessageID: 5, Frame: []byte(`{}`)}))
	assert.Equal(t, 1, hub.Deliver(Delivery{RoomID: "room-1", MessageID: 6, Frame: []byte(`{"n":6}`)}))
	assert.Equal(t, 1, hub.Deliver(Delivery{RoomID: "room-1", Frame: []byte(`{"n":0}`)}))

	frames := drain(c)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"n":6}`, string(frames[0]))
}

func TestHub_DeliverOnlyToRoomMembers(t *testing.T) {
	hub := NewHub(discardLogger())
	member := newTestClient(hub, "u1")
	other := newTestClient(hub, "u2")
	hub.join(member, "room-1", 0)
	hub.join(other, "room-2", 0)

	assert.Equal(t, 1, hub.Deliver(Delivery{RoomID: "room-1", MessageID: 1, Frame: []byte(`{}`)}))
	assert.Len(t, drain(member), 1)
	assert.Empty(t, drain(other))
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := NewHub(discardLogger())
	c := newTestClient(hub, "u1")
	hub.join(c, "room-1", 0)
	hub.join(c, "room-2", 0)
	require.Equal(t, 1, hub.RoomMembers("room-1"))

	hub.leave(c, "room-1")
	assert.Equal(t, 0, hub.RoomMembers("room-1"))
	assert.Equal(t, 1, hub.RoomMembers("room-2"))

	hub.unregister(c)
	hub.unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.RoomMembers("room-2"))

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed")

	// Joining after unregister is a no-op.
	hub.join(c, "room-3", 0)
	assert.Equal(t, 0, hub.RoomMembers("room-3"))
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(discardLogger())
	slow := newTestClient(hub, "u1")
	fast := newTestClient(hub, "u2")
	hub.join(slow, "room-1", 0)
	hub.join(fast, "room-1", 0)

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, slow.trySend([]byte(`{}`)))
	}

	delivered := hub.Deliver(Delivery{RoomID: "room-1", MessageID: 1, Frame: []byte(`{}`)})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1, hub.RoomMembers("room-1"))
	assert.False(t, slow.trySend([]byte(`{}`)))
}

func TestHub_LockRoomSerializes(t *testing.T) {
	hub := NewHub(discardLogger())
	unlock := hub.lockRoom("room-1")

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := hub.lockRoom("room-1")
		acquired.Store(true)
		release()
	}()

	// A different room is independent.
	hub.lockRoom("room-2")()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load())

	unlock()
	<-done
	assert.True(t, acquired.Load())
	assert.Equal(t, 0, hub.roomLockCount())
}

func TestHub_RoomLocksReleasedAfterUse(t *testing.T) {
	hub := NewHub(discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Several goroutines contend for each room.
			unlock := hub.lockRoom(fmt.Sprintf("room-%d", i%50))
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.roomLockCount())
}

func TestHub_BroadcastThroughRelay(t *testing.T) {
	hub := NewHub(discardLogger())
	relay := &stubRelay{}
	hub.UseRelay(relay)
	c := newTestClient(hub, "u1")
	hub.join(c, "room-1", 0)

	require.NoError(t, hub.Broadcast(context.Background(), "room-1", 7, EventNewMessage, map[string]string{"content": "hi"}))

	require.Len(t, relay.published, 1)
	assert.Equal(t, uint(7), relay.published[0].MessageID)
	assert.Empty(t, drain(c), "relay is responsible for local delivery")

	var env Envelope
	require.NoError(t, json.Unmarshal(relay.published[0].Frame, &env))
	assert.Equal(t, EventNewMessage, env.Type)
}

func TestHub_BroadcastFallsBackWhenRelayFails(t *testing.T) {
	hub := NewHub(discardLogger())
	hub.UseRelay(&stubRelay{err: errors.New("connection refused")})
	c := newTestClient(hub, "u1")
	hub.join(c, "room-1", 0)

	require.NoError(t, hub.Broadcast(context.Background(), "room-1", 1, EventNewMessage, map[string]string{"content": "hi"}))
	assert.Len(t, drain(c), 1)
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(discardLogger())
	a := newTestClient(hub, "u1")
	b := newTestClient(hub, "u2")
	hub.join(a, "room-1", 0)

	hub.Shutdown()

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.RoomMembers("room-1"))
	assert.False(t, a.trySend([]byte(`{}`)))
	assert.False(t, b.trySend([]byte(`{}`)))
}

func TestDecodeRoomID(t *testing.T) {
	id, err := decodeRoomID(json.RawMessage(`"room-1"`))
	require.NoError(t, err)
	assert.Equal(t, "room-1", id)

	id, err = decodeRoomID(json.RawMessage(`{"roomId":" room-2 "}`))
	require.NoError(t, err)
	assert.Equal(t, "room-2", id)

	for _, raw := range []string{`""`, `{}`, `42`, `null`} {
		_, err := decodeRoomID(json.RawMessage(raw))
		assert.ErrorIs(t, err, errMissingRoomID, raw)
	}
	_, err = decodeRoomID(nil)
	assert.ErrorIs(t, err, errMissingRoomID)
}
