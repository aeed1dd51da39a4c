package config

import (
	"fmt"
	"time"

	"github.com/mtkallio/spotcharge/infra/entsoe"
)

// MarketConfig selects the bidding zone and market day to plan for.
type MarketConfig struct {
	// Zone is the bidding zone code, e.g. "FI".
	Zone string `json:"zone"`
	// Timezone is the IANA name of the zone's local time, used for day
	// boundaries and daylight-saving day lengths.
	Timezone string `json:"timezone"`
	// Date selects the market day as YYYY-MM-DD. Empty means the next
	// full market day.
	Date   string        `json:"date"`
	Entsoe entsoe.Config `json:"entsoe"`
}

// SetDefaults applies sane defaults.
func (c *MarketConfig) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Helsinki"
	}
	c.Entsoe.SetDefaults()
}

// Validate checks mandatory fields.
func (c MarketConfig) Validate() error {
	if c.Zone == "" {
		return fmt.Errorf("zone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.Date != "" {
		if _, err := time.Parse("2006-01-02", c.Date); err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}
	return c.Entsoe.Validate()
}

// Location resolves the configured timezone.
func (c MarketConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Day resolves the market day to plan for as local midnight. With no explicit
// date, the next full market day relative to now is used.
func (c MarketConfig) Day(now time.Time, loc *time.Location) (time.Time, error) {
	if c.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", c.Date, loc)
		if err != nil {
			return time.Time{}, err
		}
		return d, nil
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc), nil
}
