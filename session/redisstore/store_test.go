package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
)

var _ core.SessionStore = (*Store)(nil)

var testKey = core.SessionKey{AppName: "mess_planner", UserID: "user1", SessionID: "session1"}

func newTestStore(t *testing.T, optFns ...func(o *Options)) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, optFns...), mr
}

func TestStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Get(ctx, testKey)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = store.Create(ctx, testKey)
	require.NoError(t, err)

	_, err = store.Create(ctx, testKey)
	assert.ErrorIs(t, err, core.ErrSessionExists)

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, testKey, sess.Key)
	assert.NotNil(t, sess.State)
}

func TestStore_AppendEventRoundTripsParts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_, err := store.Create(ctx, testKey)
	require.NoError(t, err)

	require.NoError(t, store.AppendEvent(ctx, testKey, core.NewUserMessageEvent("run-1", "Plan kar do bhai")))
	call := core.NewFunctionCallEvent("MessMealPlanner", "transfer_to_agent", `{"agent_name":"input_collector"}`)
	require.NoError(t, store.AppendEvent(ctx, testKey, call))

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "Plan kar do bhai", sess.Events[0].Text())

	calls := sess.Events[1].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "transfer_to_agent", calls[0].Name)
}

func TestStore_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_, err := store.Create(ctx, testKey)
	require.NoError(t, err)

	require.NoError(t, store.ApplyDelta(ctx, testKey, map[string]any{"people": 4, "veg": true}))

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)

	people, _ := sess.GetState("people")
	assert.Equal(t, float64(4), people) // JSON numbers decode as float64
	veg, _ := sess.GetState("veg")
	assert.Equal(t, true, veg)
}

func TestStore_UnknownSession(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.AppendEvent(context.Background(), testKey, core.NewUserMessageEvent("r", "hi"))
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, func(o *Options) { o.MaxRetries = 50 })
	_, err := store.Create(ctx, testKey)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AppendEvent(ctx, testKey, core.NewUserMessageEvent("r", "x")))
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Len(t, sess.Events, 8)
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, func(o *Options) { o.TTL = time.Minute })
	_, err := store.Create(ctx, testKey)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, testKey)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestNewFromURL_InvalidURL(t *testing.T) {
	_, err := NewFromURL(context.Background(), "not a url")
	assert.Error(t, err)
}
