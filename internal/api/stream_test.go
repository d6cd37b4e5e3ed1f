package api

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/leadgen-assistant/internal/logger"
)

func TestStreamHubLimitHoldsUnderConcurrentRegistration(t *testing.T) {
	hub := NewStreamHub(logger.Nop())

	const attempts = 4 * MaxStreamsPerUser
	conns := make([]*websocket.Conn, attempts)
	for i := range conns {
		conns[i] = &websocket.Conn{}
	}

	var (
		admitted atomic.Int32
		wg       sync.WaitGroup
	)
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if hub.TryRegister("session-1", "user-1", conn, MaxStreamsPerUser) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(MaxStreamsPerUser), admitted.Load())
	assert.Equal(t, MaxStreamsPerUser, hub.UserConnectionCount("user-1"))
	assert.Equal(t, MaxStreamsPerUser, hub.ConnectionCount())

	// other users are unaffected
	other := &websocket.Conn{}
	require.True(t, hub.TryRegister("session-2", "user-2", other, MaxStreamsPerUser))

	for _, conn := range conns {
		hub.Unregister(conn)
	}
	hub.Unregister(other)
	assert.Zero(t, hub.ConnectionCount())
	assert.Zero(t, hub.UserConnectionCount("user-1"))

	assert.True(t, hub.TryRegister("session-1", "user-1", conns[0], 0))
}
