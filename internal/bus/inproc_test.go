package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *InProc {
	return NewInProc(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInProcPublish(t *testing.T) {
	t.Run("delivers to all subscribers", func(t *testing.T) {
		b := newTestBus()

		var got []string
		b.Subscribe("task_created", func(_ context.Context, payload []byte) {
			got = append(got, "first:"+string(payload))
		})
		b.Subscribe("task_created", func(_ context.Context, payload []byte) {
			got = append(got, "second:"+string(payload))
		})

		err := b.Publish(context.Background(), "task_created", map[string]string{"id": "t-1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Contains(t, got[0], `"id":"t-1"`)
	})

	t.Run("no subscribers is not an error", func(t *testing.T) {
		b := newTestBus()
		err := b.Publish(context.Background(), "nobody_home", "payload")
		assert.NoError(t, err)
	})

	t.Run("unencodable payload is a transport failure", func(t *testing.T) {
		b := newTestBus()
		err := b.Publish(context.Background(), "topic", make(chan int))
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestInProcRequest(t *testing.T) {
	t.Run("round trips request and reply", func(t *testing.T) {
		b := newTestBus()
		b.Respond("user.rpc", func(_ context.Context, payload []byte) ([]byte, error) {
			var req map[string]string
			require.NoError(t, json.Unmarshal(payload, &req))
			return json.Marshal(map[string]string{"echo": req["id"]})
		})

		reply, err := b.Request(
			context.Background(), "user.rpc", map[string]string{"id": "u-1"}, time.Second)
		require.NoError(t, err)
		assert.JSONEq(t, `{"echo":"u-1"}`, string(reply))
	})

	t.Run("missing responder is a transport failure", func(t *testing.T) {
		b := newTestBus()
		_, err := b.Request(context.Background(), "nowhere", "ping", time.Second)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("slow responder times out", func(t *testing.T) {
		b := newTestBus()
		b.Respond("slow.rpc", func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		start := time.Now()
		_, err := b.Request(context.Background(), "slow.rpc", "ping", 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("responder error is a transport failure", func(t *testing.T) {
		b := newTestBus()
		b.Respond("bad.rpc", func(_ context.Context, _ []byte) ([]byte, error) {
			return nil, errors.New("boom")
		})

		_, err := b.Request(context.Background(), "bad.rpc", "ping", time.Second)
		assert.ErrorIs(t, err, ErrTransport)
		assert.NotErrorIs(t, err, ErrTimedOut)
	})

	t.Run("caller cancellation aborts the request", func(t *testing.T) {
		b := newTestBus()
		b.Respond("slow.rpc", func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := b.Request(ctx, "slow.rpc", "ping", time.Minute)
		assert.ErrorIs(t, err, ErrTransport)
	})
}
