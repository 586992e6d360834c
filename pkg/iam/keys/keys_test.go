package keys_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys"
)

func TestDeriveKIDIsStableAndUnpadded(t *testing.T) {
	k, err := keys.GenerateSigningKey(1024, time.Now())
	require.NoError(t, err)

	kid := keys.DeriveKID(&k.Private.PublicKey)
	assert.Equal(t, k.KID, kid)
	assert.Len(t, kid, 43)
	assert.NotContains(t, kid, "=")
	assert.NotContains(t, kid, "+")
	assert.NotContains(t, kid, "/")
}

func TestDecodeOrdersByCreationAndFindsActive(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older, err := keys.GenerateSigningKey(1024, base)
	require.NoError(t, err)
	newer, err := keys.GenerateSigningKey(1024, base.Add(time.Hour))
	require.NoError(t, err)

	set := &keys.KeySet{}
	require.NoError(t, set.Add(older))
	require.NoError(t, set.Add(newer))

	ordered, active, err := set.Decode()
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, older.KID, ordered[0].KID)
	assert.Equal(t, newer.KID, ordered[1].KID)
	assert.Equal(t, newer.KID, active.KID)
}

func TestDecodeRejectsInconsistentDocuments(t *testing.T) {
	k, err := keys.GenerateSigningKey(1024, time.Now())
	require.NoError(t, err)
	good := &keys.KeySet{}
	require.NoError(t, good.Add(k))
	rec := good.Keys[k.KID]

	cases := map[string]*keys.KeySet{
		"empty":          {ActiveKID: "x"},
		"missing active": {ActiveKID: "other", Keys: map[string]keys.KeyRecord{k.KID: rec}},
		"bad pem":        {ActiveKID: k.KID, Keys: map[string]keys.KeyRecord{k.KID: {PrivateKey: "garbage"}}},
		"kid mismatch":   {ActiveKID: "wrong", Keys: map[string]keys.KeyRecord{"wrong": rec}},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := set.Decode()
			require.Error(t, err)
			assert.True(t, errx.IsCode(err, keys.CodeStoreCorrupt))
		})
	}
}
