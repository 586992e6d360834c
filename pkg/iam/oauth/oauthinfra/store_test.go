package oauthinfra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
)

func stores(t *testing.T) map[string]oauth.StateStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return map[string]oauth.StateStore{
		"redis":  NewRedisStateStore(client, 5*time.Minute),
		"memory": NewMemoryStateStore(5 * time.Minute),
	}
}

func pending(flowID string) *oauth.PendingAuthorization {
	return &oauth.PendingAuthorization{
		FlowID:          flowID,
		ClientID:        "client-1",
		RedirectURL:     "https://app.example.com/cb",
		Scope:           []string{"openid"},
		ResponseType:    "code",
		State:           "xyz",
		ExpiresAt:       time.Now().Add(59 * time.Second),
		LoginUserClaims: map[string]interface{}{"sub": "user-1"},
		Status:          oauth.StatusConsentPending,
		CreatedAt:       time.Now(),
	}
}

func TestStateStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))

			p := pending("flow-1")
			require.NoError(t, store.Save(ctx, p))

			got, err := store.Get(ctx, "flow-1")
			require.NoError(t, err)
			assert.Equal(t, p.ClientID, got.ClientID)
			assert.Equal(t, "user-1", got.LoginUserClaims["sub"])
			assert.Equal(t, oauth.StatusConsentPending, got.Status)

			_, err = store.FindByCode(ctx, "abc")
			assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))

			got.IssueCode("abc", time.Now().Add(5*time.Minute))
			require.NoError(t, store.Save(ctx, got))

			byCode, err := store.FindByCode(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, "flow-1", byCode.FlowID)
			assert.Equal(t, oauth.StatusCodeIssued, byCode.Status)

			ok, err := store.Consume(ctx, "flow-1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.Consume(ctx, "flow-1")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = store.FindByCode(ctx, "abc")
			assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))

			require.NoError(t, store.Save(ctx, pending("flow-2")))
			require.NoError(t, store.Delete(ctx, "flow-2"))
			_, err = store.Get(ctx, "flow-2")
			assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))
		})
	}
}

func TestConsumeHasOneWinner(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, pending("race")))

			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := store.Consume(ctx, "race"); err == nil && ok {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins)
		})
	}
}

func TestRedisTTLIncludesRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 5*time.Minute)

	require.NoError(t, store.Save(context.Background(), pending("flow-ttl")))
	ttl := mr.TTL("oauth:flow:flow-ttl")
	assert.InDelta(t, (59*time.Second + 5*time.Minute).Seconds(), ttl.Seconds(), 2)

	mr.FastForward(6 * time.Minute)
	_, err := store.Get(context.Background(), "flow-ttl")
	assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))
}

func TestMemorySweeperEvictsAfterRetention(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	p := pending("old")
	p.ExpiresAt = now.Add(-30 * time.Second)
	require.NoError(t, store.Save(context.Background(), p))

	// Expired but still retained.
	assert.Equal(t, 0, store.Sweep())
	got, err := store.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.True(t, got.IsExpired(now))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, 1, store.Sweep())
	_, err = store.Get(context.Background(), "old")
	assert.True(t, errx.IsCode(err, oauth.CodeFlowNotFound))
}
