package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

func TestMoneyConversions(t *testing.T) {
	assert.Equal(t, kernel.Money(589882), kernel.MoneyFromMajor(5898.82))
	assert.Equal(t, kernel.Money(89982), kernel.Money(499900).MulRate(0.18))
	assert.Equal(t, "5898.82", kernel.Money(589882).String())
	assert.Equal(t, "-0.05", kernel.Money(-5).String())
	assert.Equal(t, kernel.Money(5), kernel.Money(-5).Abs())
}

func TestHasScopeMatchesPatterns(t *testing.T) {
	ac := &kernel.AuthContext{Scopes: []string{"billing:*", "openid"}}

	assert.True(t, ac.HasScope("billing:read"))
	assert.True(t, ac.HasScope("openid"))
	assert.False(t, ac.HasScope("profile"))
	assert.False(t, ac.HasAllScopes("profile", "openid"))
}
