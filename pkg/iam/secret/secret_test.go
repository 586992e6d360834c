package secret_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/iam/secret"
)

func TestCodeIsAlphanumericOfRequestedLength(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := secret.Code(32)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{32}$`), code)
		seen[code] = true
	}
	assert.Len(t, seen, 50)
}

func TestHashIsStableHex(t *testing.T) {
	tok, err := secret.Token(32)
	require.NoError(t, err)
	assert.Equal(t, secret.Hash(tok), secret.Hash(tok))
	assert.Len(t, secret.Hash(tok), 64)
	assert.NotEqual(t, secret.Hash(tok), secret.Hash(tok+"x"))
}
