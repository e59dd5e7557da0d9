package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDealApplyField(t *testing.T) {
	t.Parallel()

	var d Deal
	assert.True(t, d.ApplyField(DealFieldDomain, "https://www.Acme-HVAC.com/about"))
	assert.True(t, d.ApplyField(DealFieldRevenue, "$12M"))
	assert.True(t, d.ApplyField(DealFieldEBITDA, 1_800_000.0))
	assert.True(t, d.ApplyField(DealFieldServiceMix, "HVAC; Plumbing"))
	assert.False(t, d.ApplyField(DealFieldDomain, "   "))
	assert.False(t, d.ApplyField("multiple", 6))

	assert.Equal(t, "acme-hvac.com", d.Domain)
	require.NotNil(t, d.Revenue)
	assert.InDelta(t, 12.0, *d.Revenue, 1e-9)
	require.NotNil(t, d.EBITDA)
	assert.InDelta(t, 1.8, *d.EBITDA, 1e-9)
	assert.Equal(t, []string{"HVAC", "Plumbing"}, d.ServiceMix)
}

func TestDealStates(t *testing.T) {
	t.Parallel()

	d := Deal{Geography: []string{"TX", "OK"}}
	assert.Equal(t, []string{"TX", "OK"}, d.States())

	d.HQState = "LA"
	assert.Equal(t, []string{"LA", "TX", "OK"}, d.States())
	assert.Equal(t, []string{"TX", "OK"}, d.Geography)
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.Acme.com/":         "acme.com",
		"http://acme.com/contact?x=1":   "acme.com",
		"acme.com":                      "acme.com",
		"WWW.ACME.COM":                  "acme.com",
		"  shop.acme.co.uk:8443/path  ": "shop.acme.co.uk",
		"":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}
