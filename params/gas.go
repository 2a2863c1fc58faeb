// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package params

// Price implements §4.5's two-stage fixed-point gas price model:
//
//	price(gas_units) = gas_units * adjustment_num/denom * num/denom
//
// Each stage truncates, matching the spec's "two-stage fixed-point
// multiplication, truncating" wording exactly rather than collapsing the
// two ratios into one combined fraction first.
func (c *Config) Price(gasUnits uint64) uint64 {
	stage1 := gasUnits * c.GasPriceAdjustment.Numerator / c.GasPriceAdjustment.Denominator
	stage2 := stage1 * c.GasPrice.Numerator / c.GasPrice.Denominator
	return stage2
}
