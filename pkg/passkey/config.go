// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"fmt"
	"time"
)

const (
	// DefaultChallengeTTL is how long an issued challenge remains
	// consumable.
	DefaultChallengeTTL = 120 * time.Second

	// DefaultChallengeSize is the number of random bytes per challenge.
	DefaultChallengeSize = 32

	// MinChallengeSize is the minimum entropy the protocol allows.
	MinChallengeSize = 16
)

// Config configures the ceremony engine for a single relying party.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// RPOrigins are the origins accepted in client data.
	// Example: []string{"https://example.com"}
	RPOrigins []string `yaml:"origins" json:"origins"`

	// ChallengeTTL is how long an issued challenge remains consumable.
	// Default: 120 seconds.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl"`

	// ChallengeSize is the number of random bytes per challenge.
	// Default: 32, minimum: 16.
	ChallengeSize int `yaml:"challenge_size" json:"challenge_size"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	if c.ChallengeSize != 0 && c.ChallengeSize < MinChallengeSize {
		return fmt.Errorf("challenge size %d below minimum %d", c.ChallengeSize, MinChallengeSize)
	}
	if c.ChallengeTTL < 0 {
		return fmt.Errorf("challenge TTL must be positive")
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = DefaultChallengeTTL
	}
	if c.ChallengeSize == 0 {
		c.ChallengeSize = DefaultChallengeSize
	}
}

// OriginAllowed reports whether the claimed origin is in the configured
// allowed-origin set.
func (c *Config) OriginAllowed(origin string) bool {
	for _, allowed := range c.RPOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
