package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintChannelAllowList(t *testing.T) {
	c := &AllocationConstraint{
		AllowedChannels: []string{"en_primeur", "private_club"},
	}

	assert.True(t, c.IsChannelAllowed("en_primeur"))
	assert.True(t, c.IsChannelAllowed("private_club"))
	assert.False(t, c.IsChannelAllowed("retail"))
	assert.False(t, c.IsChannelAllowed(""))
}

func TestConstraintUnsetListsAllowEverything(t *testing.T) {
	c := &AllocationConstraint{}

	assert.True(t, c.IsChannelAllowed("retail"))
	assert.True(t, c.IsGeographyAllowed("JP"))
	assert.True(t, c.IsCustomerTypeAllowed("collector"))

	// Empty slice behaves like nil.
	c.AllowedGeographies = []string{}
	assert.True(t, c.IsGeographyAllowed("FR"))
}

func TestConstraintGeographyAndCustomerType(t *testing.T) {
	c := &AllocationConstraint{
		AllowedGeographies:   []string{"FR", "UK"},
		AllowedCustomerTypes: []string{"trade"},
	}

	assert.True(t, c.IsGeographyAllowed("FR"))
	assert.False(t, c.IsGeographyAllowed("US"))
	assert.True(t, c.IsCustomerTypeAllowed("trade"))
	assert.False(t, c.IsCustomerTypeAllowed("collector"))

	// Channel list is unset, so every channel passes.
	assert.True(t, c.IsChannelAllowed("anything"))
}

func TestLiquidConstraintAllowLists(t *testing.T) {
	c := &LiquidAllocationConstraint{
		AllowedBottlingFormats: []string{"750ml", "1500ml"},
		AllowedCaseConfigs:     []string{"6x750ml"},
	}

	assert.True(t, c.IsBottlingFormatAllowed("750ml"))
	assert.False(t, c.IsBottlingFormatAllowed("375ml"))
	assert.True(t, c.IsCaseConfigAllowed("6x750ml"))
	assert.False(t, c.IsCaseConfigAllowed("12x750ml"))
}
