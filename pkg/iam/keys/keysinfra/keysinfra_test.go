package keysinfra_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysinfra"
)

func TestFSXKeyStoreMissingDocument(t *testing.T) {
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)

	set, err := keysinfra.NewFSXKeyStore(fs, "keys/keys.json").Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestFSXKeyStoreRoundTrip(t *testing.T) {
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)
	store := keysinfra.NewFSXKeyStore(fs, "keys/keys.json")

	k, err := keys.GenerateSigningKey(1024, time.Now())
	require.NoError(t, err)
	set := &keys.KeySet{}
	require.NoError(t, set.Add(k))
	require.NoError(t, store.Save(context.Background(), set))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, k.KID, loaded.ActiveKID)
	_, active, err := loaded.Decode()
	require.NoError(t, err)
	assert.Equal(t, k.Private.N, active.Private.N)
}

func TestFSXKeyStoreCorruptJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keys"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keys", "keys.json"), []byte("{not json"), 0o600))

	fs, err := fsxlocal.NewLocalFileSystem(dir)
	require.NoError(t, err)

	_, err = keysinfra.NewFSXKeyStore(fs, "keys/keys.json").Load(context.Background())
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, keys.CodeStoreCorrupt))
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := keysinfra.NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "keys", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "keys", time.Minute)
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, keys.CodeLockFailed))

	require.NoError(t, release(ctx))
	release2, err := locker.Acquire(ctx, "keys", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := keysinfra.NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "keys", time.Second)
	require.NoError(t, err)

	// Lease expires and another process takes it over.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:keys", "someone-else"))

	require.NoError(t, release(ctx))
	got, err := mr.Get("lock:keys")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
