package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed instead of signalling")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for close")
		}
	}
}

func testBroker(t *testing.T, b Broker) {
	ctx := context.Background()

	invites, cancelInvites, err := b.Subscribe(ctx, TopicInvites)
	require.NoError(t, err)
	subs, cancelSubs, err := b.Subscribe(ctx, TopicSubmissions)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, TopicInvites))
	waitSignal(t, invites)

	select {
	case <-subs:
		t.Fatal("submissions subscriber received an invites signal")
	case <-time.After(50 * time.Millisecond):
	}

	// Bursts coalesce into at least one signal without blocking the publisher.
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(ctx, TopicSubmissions))
	}
	waitSignal(t, subs)

	cancelInvites()
	waitClosed(t, invites)
	cancelInvites()

	cancelSubs()
	waitClosed(t, subs)
}

func TestLocalBroker(t *testing.T) {
	b := NewLocalBroker()
	t.Cleanup(func() { _ = b.Close() })
	testBroker(t, b)
}

func TestLocalBroker_ContextCancelClosesSubscription(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := b.Subscribe(ctx, TopicInvites)
	require.NoError(t, err)

	cancel()
	waitClosed(t, ch)
}

func TestLocalBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewLocalBroker()
	ch, cancel, err := b.Subscribe(context.Background(), TopicInvites)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	waitClosed(t, ch)
	cancel()
}

func newMiniredisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBroker(t *testing.T) {
	testBroker(t, newMiniredisBroker(t))
}

func TestRedisBroker_CrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewRedisBrokerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	b := NewRedisBrokerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ch, cancel, err := b.Subscribe(context.Background(), TopicSubmissions)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, a.Publish(context.Background(), TopicSubmissions))
	waitSignal(t, ch)
}

func TestNewRedisBroker_BadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), "not a url")
	require.Error(t, err)
}

func TestWatch_DeliversInitialAndUpdates(t *testing.T) {
	b := NewLocalBroker()
	t.Cleanup(func() { _ = b.Close() })

	var version atomic.Int32
	load := func(context.Context) ([]string, error) {
		n := version.Load()
		out := make([]string, n)
		for i := range out {
			out[i] = "photo"
		}
		return out, nil
	}

	got := make(chan []string, 8)
	stop, err := Watch(context.Background(), b, TopicSubmissions, load, func(v []string) { got <- v })
	require.NoError(t, err)

	select {
	case v := <-got:
		require.Empty(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial delivery")
	}

	version.Store(2)
	require.NoError(t, b.Publish(context.Background(), TopicSubmissions))

	select {
	case v := <-got:
		require.Len(t, v, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivery")
	}

	stop()
	require.NoError(t, b.Publish(context.Background(), TopicSubmissions))
	select {
	case <-got:
		t.Fatal("delivery after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandler_StreamsFeeds(t *testing.T) {
	b := NewLocalBroker()
	t.Cleanup(func() { _ = b.Close() })

	var count atomic.Int32
	feed := FeedOf(TopicSubmissions, "photos", func(context.Context) (int32, error) {
		return count.Load(), nil
	})

	srv := httptest.NewServer(Handler(b, "photos", feed))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	first := read()
	require.Equal(t, "photos", first.Type)
	require.EqualValues(t, 0, first.Data)

	count.Store(5)
	require.NoError(t, b.Publish(context.Background(), TopicSubmissions))

	second := read()
	require.EqualValues(t, 5, second.Data)
}
