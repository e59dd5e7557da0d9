package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriteriaHints_IsEmpty(t *testing.T) {
	t.Parallel()

	var nilHints *CriteriaHints
	assert.True(t, nilHints.IsEmpty())
	assert.True(t, (&CriteriaHints{}).IsEmpty())
	assert.False(t, (&CriteriaHints{GeographyStrictness: StrictnessStrict}).IsEmpty())
	assert.False(t, (&CriteriaHints{SizeHardGate: true}).IsEmpty())
	assert.False(t, (&CriteriaHints{MaxEBITDA: Float(4)}).IsEmpty())
	assert.False(t, (&CriteriaHints{TargetGeographies: []string{"TX"}}).IsEmpty())
}

func TestCriteriaHints_Validate(t *testing.T) {
	t.Parallel()

	var nilHints *CriteriaHints
	assert.NoError(t, nilHints.Validate())

	ok := &CriteriaHints{
		GeographyStrictness: StrictnessModerate,
		SizeImportance:      ImportanceLow,
		MinRevenue:          Float(5),
		MaxRevenue:          Float(50),
		BuyerTypeProfiles:   []BuyerTypeProfile{{Name: "Large MSO", MinLocations: Int(10)}},
	}
	assert.NoError(t, ok.Validate())

	bad := &CriteriaHints{
		GeographyStrictness: "loose",
		SizeImportance:      "critical",
		MinEBITDA:           Float(5),
		MaxEBITDA:           Float(1),
		BuyerTypeProfiles: []BuyerTypeProfile{
			{Name: ""},
			{Name: "Tiny", MinRevenuePerLocation: Float(3), MaxRevenuePerLocation: Float(1)},
		},
	}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geography_strictness")
	assert.Contains(t, err.Error(), "size_importance")
	assert.Contains(t, err.Error(), "min_ebitda must be <= max_ebitda")
	assert.Contains(t, err.Error(), "need a name")
	assert.Contains(t, err.Error(), "profile Tiny")
}

func TestTracker_HasCriteriaText(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Tracker{Name: "HVAC", BuyerTypesCriteria: "platforms"}).HasCriteriaText())
	assert.False(t, (&Tracker{SizeCriteria: "   "}).HasCriteriaText())
	assert.True(t, (&Tracker{GeographyCriteria: "Southeast"}).HasCriteriaText())
}

func TestBuyerDealScore_Rankable(t *testing.T) {
	t.Parallel()

	c := 72
	assert.True(t, (&BuyerDealScore{Status: StatusScored, Composite: &c}).Rankable())
	zero := 0
	assert.False(t, (&BuyerDealScore{Status: StatusDisqualified, Composite: &zero}).Rankable())
	assert.False(t, (&BuyerDealScore{Status: StatusInsufficientData}).Rankable())
	assert.True(t, BuyerDealScore{Status: StatusScored, Composite: &c}.Rankable())
}

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, Cost: 0.5}
	u.Add(TokenUsage{InputTokens: 5, OutputTokens: 3, CacheReadTokens: 2, Cost: 0.25})
	assert.Equal(t, TokenUsage{InputTokens: 15, OutputTokens: 3, CacheReadTokens: 2, Cost: 0.75}, u)
}
