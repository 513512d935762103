// Package arbitrage computes fee-adjusted price gaps between two venues.
package arbitrage

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// FeeModel charges amount*Rate + Fixed.
type FeeModel struct {
	Rate  float64
	Fixed float64
}

// Fee returns the fee for a trade of size amount (quote currency).
func (m FeeModel) Fee(amount float64) (float64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("arbitrage: fee: %w: amount %v", domain.ErrInvalidInput, amount)
	}
	return amount*m.Rate + m.Fixed, nil
}

// Fees holds one model per leg.
type Fees struct {
	VenueA FeeModel
	VenueB FeeModel
}

// DefaultFees is 0.1% on the CEX leg and 0.3% plus 0.00001 on the DEX leg.
func DefaultFees() Fees {
	return Fees{
		VenueA: FeeModel{Rate: 0.001},
		VenueB: FeeModel{Rate: 0.003, Fixed: 0.00001},
	}
}
