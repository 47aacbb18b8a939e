package models

import (
	"time"

	"github.com/lib/pq"
)

// AllocationConstraint attaches commercial restrictions to an allocation.
// Each allow-list is open when nil or empty: an absent list means every value
// is allowed. This deliberately applies the same convention to geographies as
// to channels and customer types.
type AllocationConstraint struct {
	AllocationID         string         `db:"allocation_id" json:"allocation_id"`
	AllowedChannels      pq.StringArray `db:"allowed_channels" json:"allowed_channels"`
	AllowedGeographies   pq.StringArray `db:"allowed_geographies" json:"allowed_geographies"`
	AllowedCustomerTypes pq.StringArray `db:"allowed_customer_types" json:"allowed_customer_types"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// IsChannelAllowed reports whether a sales channel may sell this allocation.
func (c *AllocationConstraint) IsChannelAllowed(channel string) bool {
	return listAllows(c.AllowedChannels, channel)
}

// IsGeographyAllowed reports whether the allocation may be sold into a
// geography.
func (c *AllocationConstraint) IsGeographyAllowed(geography string) bool {
	return listAllows(c.AllowedGeographies, geography)
}

// IsCustomerTypeAllowed reports whether a customer type may buy this
// allocation.
func (c *AllocationConstraint) IsCustomerTypeAllowed(customerType string) bool {
	return listAllows(c.AllowedCustomerTypes, customerType)
}

// LiquidAllocationConstraint carries the extra bottling rules for liquid
// allocations. It only exists for allocations with supply form liquid.
type LiquidAllocationConstraint struct {
	AllocationID           string         `db:"allocation_id" json:"allocation_id"`
	AllowedBottlingFormats pq.StringArray `db:"allowed_bottling_formats" json:"allowed_bottling_formats"`
	AllowedCaseConfigs     pq.StringArray `db:"allowed_case_configs" json:"allowed_case_configs"`
	BottlingDeadline       *time.Time     `db:"bottling_deadline" json:"bottling_deadline,omitempty"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// IsBottlingFormatAllowed reports whether the liquid may be bottled into the
// given format.
func (c *LiquidAllocationConstraint) IsBottlingFormatAllowed(format string) bool {
	return listAllows(c.AllowedBottlingFormats, format)
}

// IsCaseConfigAllowed reports whether the liquid may be cased in the given
// configuration.
func (c *LiquidAllocationConstraint) IsCaseConfigAllowed(config string) bool {
	return listAllows(c.AllowedCaseConfigs, config)
}

func listAllows(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
