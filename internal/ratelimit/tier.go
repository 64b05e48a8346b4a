// Package ratelimit bounds the request rate per client for a small set of
// independently configured tiers.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Tier selects which quota applies to a request.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierAuth      Tier = "auth"
	TierSensitive Tier = "sensitive"
)

// TierConfig is the quota for a tier: Points requests per Window. When Block
// is positive, exhausting the quota blocks the key for Block.
type TierConfig struct {
	Points int
	Window time.Duration
	Block  time.Duration
}

// Validate reports an impossible tier configuration.
func (c TierConfig) Validate() error {
	if c.Points <= 0 {
		return fmt.Errorf("points must be > 0, got %d", c.Points)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s", c.Window)
	}
	if c.Block < 0 {
		return fmt.Errorf("block must be >= 0, got %s", c.Block)
	}
	return nil
}

// TTL is how long state for this tier must be retained.
func (c TierConfig) TTL() time.Duration {
	if c.Block > c.Window {
		return c.Block
	}
	return c.Window
}

// DefaultTiers returns the standard, auth and sensitive quotas.
func DefaultTiers() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierStandard:  {Points: 20, Window: 60 * time.Second},
		TierAuth:      {Points: 5, Window: 60 * time.Second, Block: 120 * time.Second},
		TierSensitive: {Points: 3, Window: 60 * time.Second, Block: 300 * time.Second},
	}
}

// ValidateTiers checks every tier and that none of the known tiers is missing.
func ValidateTiers(tiers map[Tier]TierConfig) error {
	var errs []error
	for _, tier := range []Tier{TierStandard, TierAuth, TierSensitive} {
		cfg, ok := tiers[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("tier %s: not configured", tier))
			continue
		}
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tier %s: %w", tier, err))
		}
	}
	return errors.Join(errs...)
}
