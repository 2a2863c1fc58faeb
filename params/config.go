// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

// Package params holds the process-wide Config (§3) and the gas price
// model (§4.5), in the struct-of-uint64 idiom the teacher's
// params/protocol_params.go and params/gas_table.go use for fee schedules.
package params

import (
	"time"

	"github.com/naoina/toml"
)

// GasPriceRatio is a non-zero numerator/denominator pair used twice over in
// the two-stage fixed-point multiplication of §4.5.
type GasPriceRatio struct {
	Numerator   uint64 `toml:"numerator"`
	Denominator uint64 `toml:"denominator"`
}

// Config is the process-wide, owner-mutable tunable set (§3).
type Config struct {
	Owner      string `toml:"owner"`
	PauseAdmin string `toml:"pause_admin"`
	Treasury   string `toml:"treasury"` // defaults to Owner when empty

	NativeDenom string `toml:"native_denom"`

	GasPrice                 GasPriceRatio `toml:"gas_price"`
	GasPriceAdjustment       GasPriceRatio `toml:"gas_price_adjustment"`
	GasBase                  uint64        `toml:"gas_base"`
	GasAction                uint64        `toml:"gas_action"`
	GasQuery                 uint64        `toml:"gas_query"`
	GasContractQuery         uint64        `toml:"gas_contract_query"`
	GasLimit                 uint64        `toml:"gas_limit"`

	SlotGranularityTime uint64 `toml:"slot_granularity_time_ns"`

	AgentFeeBps    uint64 `toml:"agent_fee_bps"`
	TreasuryFeeBps uint64 `toml:"treasury_fee_bps"`

	MinTasksPerAgent        uint64 `toml:"min_tasks_per_agent"`
	NominationBlockDuration uint64 `toml:"nomination_block_duration"`
	AgentEvictionThreshold  uint64 `toml:"agent_eviction_threshold_slots"`
	MinActiveReserve        int    `toml:"min_active_reserve"`

	SecondaryTokenWhitelist []string `toml:"secondary_token_whitelist"`

	version uint64
}

// Default returns a Config with the sane, teacher-inspired defaults used by
// the seed test scenarios in §8 (gas price 0.04, total fee 5%).
func Default(owner string) *Config {
	return &Config{
		Owner:                   owner,
		PauseAdmin:              owner,
		Treasury:                owner,
		NativeDenom:             "unative",
		GasPrice:                GasPriceRatio{Numerator: 4, Denominator: 100},
		GasPriceAdjustment:      GasPriceRatio{Numerator: 1, Denominator: 1},
		GasBase:                 20_000,
		GasAction:               10_000,
		GasQuery:                5_000,
		GasContractQuery:        7_500,
		GasLimit:                500_000,
		SlotGranularityTime:     10_000_000_000, // 10s
		AgentFeeBps:             400,
		TreasuryFeeBps:          100,
		MinTasksPerAgent:        3,
		NominationBlockDuration: 600,
		AgentEvictionThreshold:  600,
		MinActiveReserve:        1,
	}
}

// Validate enforces §3's Config invariant.
func (c *Config) Validate() error {
	if c.GasPrice.Denominator == 0 || c.GasPriceAdjustment.Denominator == 0 {
		return New(InvalidGasPrice, "gas price denominators must be non-zero")
	}
	if c.GasLimit < c.GasBase+c.GasAction+c.GasQuery {
		return New(InvalidGas, "gas_limit must be >= gas_base+gas_action+gas_query")
	}
	if c.AgentFeeBps+c.TreasuryFeeBps > 10_000 {
		return New(InvalidGasPrice, "agent_fee_bps + treasury_fee_bps must not exceed 10000")
	}
	if c.Owner == "" {
		return New(Unauthorized, "owner must be set")
	}
	if c.MinActiveReserve < 0 {
		return New(InvalidGas, "min_active_reserve must be >= 0")
	}
	return nil
}

// Version returns the monotonically increasing update counter; Task.Version
// snapshots this at creation time so later gas-price changes never
// retroactively affect an already-created task's cost (Design Notes).
func (c *Config) Version() uint64 { return c.version }

// SlotGranularityDuration converts SlotGranularityTime (stored in
// nanoseconds, per the toml tag) into a time.Duration for interval.Next.
func (c *Config) SlotGranularityDuration() time.Duration {
	return time.Duration(c.SlotGranularityTime)
}

// TreasuryAddr returns Treasury, falling back to Owner when unset.
func (c *Config) TreasuryAddr() string {
	if c.Treasury == "" {
		return c.Owner
	}
	return c.Treasury
}

// Patch carries a partial update for UpdateConfig; nil fields are left
// untouched. Mirrors the §6 "update_config(patch)" surface.
type Patch struct {
	Treasury                *string
	PauseAdmin              *string
	GasPrice                *GasPriceRatio
	GasPriceAdjustment      *GasPriceRatio
	GasBase                 *uint64
	GasAction                *uint64
	GasQuery                 *uint64
	GasContractQuery         *uint64
	GasLimit                 *uint64
	SlotGranularityTime      *uint64
	AgentFeeBps              *uint64
	TreasuryFeeBps           *uint64
	MinTasksPerAgent         *uint64
	NominationBlockDuration  *uint64
	AgentEvictionThreshold   *uint64
	MinActiveReserve         *int
	SecondaryTokenWhitelist  []string
}

// Apply merges patch onto a copy of c, validates it, and only then commits,
// bumping Version(). Returns the merged config on success.
func (c *Config) Apply(patch Patch) (*Config, error) {
	merged := *c
	if patch.Treasury != nil {
		merged.Treasury = *patch.Treasury
	}
	if patch.PauseAdmin != nil {
		merged.PauseAdmin = *patch.PauseAdmin
	}
	if patch.GasPrice != nil {
		merged.GasPrice = *patch.GasPrice
	}
	if patch.GasPriceAdjustment != nil {
		merged.GasPriceAdjustment = *patch.GasPriceAdjustment
	}
	if patch.GasBase != nil {
		merged.GasBase = *patch.GasBase
	}
	if patch.GasAction != nil {
		merged.GasAction = *patch.GasAction
	}
	if patch.GasQuery != nil {
		merged.GasQuery = *patch.GasQuery
	}
	if patch.GasContractQuery != nil {
		merged.GasContractQuery = *patch.GasContractQuery
	}
	if patch.GasLimit != nil {
		merged.GasLimit = *patch.GasLimit
	}
	if patch.SlotGranularityTime != nil {
		merged.SlotGranularityTime = *patch.SlotGranularityTime
	}
	if patch.AgentFeeBps != nil {
		merged.AgentFeeBps = *patch.AgentFeeBps
	}
	if patch.TreasuryFeeBps != nil {
		merged.TreasuryFeeBps = *patch.TreasuryFeeBps
	}
	if patch.MinTasksPerAgent != nil {
		merged.MinTasksPerAgent = *patch.MinTasksPerAgent
	}
	if patch.NominationBlockDuration != nil {
		merged.NominationBlockDuration = *patch.NominationBlockDuration
	}
	if patch.AgentEvictionThreshold != nil {
		merged.AgentEvictionThreshold = *patch.AgentEvictionThreshold
	}
	if patch.MinActiveReserve != nil {
		merged.MinActiveReserve = *patch.MinActiveReserve
	}
	if patch.SecondaryTokenWhitelist != nil {
		merged.SecondaryTokenWhitelist = patch.SecondaryTokenWhitelist
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.version = c.version + 1
	return &merged, nil
}

// Marshal serializes c with naoina/toml, matching the teacher's node config
// file format.
func Marshal(c *Config) ([]byte, error) {
	return toml.Marshal(c)
}

// Unmarshal parses a TOML-encoded Config.
func Unmarshal(data []byte) (*Config, error) {
	c := &Config{}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
