package connectorredis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	users []kernel.UserID
}

func (r *recorder) InvalidateUser(ctx context.Context, userID kernel.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func (r *recorder) seen() []kernel.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kernel.UserID(nil), r.users...)
}

func TestBroadcaster_PublishReachesListener(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	b := NewBroadcaster(rdb, "connectors:invalidate")
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- b.Listen(ctx, rec, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	require.NoError(t, b.Publish(context.Background(), "u1"))
	require.NoError(t, b.Publish(context.Background(), "u2"))

	assert.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []kernel.UserID{"u1", "u2"}, rec.seen())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestBroadcaster_PublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	err := NewBroadcaster(rdb, "c").Publish(context.Background(), "u1")
	assert.Error(t, err)
}
