package arbitrage

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// Detect compares the price on venue A with the price on venue B. The
// result is profitable when B - A exceeds the fees of both legs. Venue
// names and the ID are left for the caller to fill in.
func Detect(symbol string, venueAPrice, venueBPrice float64, fees Fees, now time.Time) (domain.ArbitrageResult, error) {
	if !validPrice(venueAPrice) || !validPrice(venueBPrice) {
		return domain.ArbitrageResult{}, fmt.Errorf("arbitrage: detect %s: %w: prices %v / %v",
			symbol, domain.ErrInvalidInput, venueAPrice, venueBPrice)
	}

	feeA, err := fees.VenueA.Fee(venueAPrice)
	if err != nil {
		return domain.ArbitrageResult{}, err
	}
	feeB, err := fees.VenueB.Fee(venueBPrice)
	if err != nil {
		return domain.ArbitrageResult{}, err
	}

	diff := venueBPrice - venueAPrice
	total := feeA + feeB
	net := diff - total

	return domain.ArbitrageResult{
		Symbol:          symbol,
		VenueAPrice:     venueAPrice,
		VenueBPrice:     venueBPrice,
		Fees:            total,
		PriceDifference: diff,
		NetProfit:       net,
		IsProfitable:    net > 0,
		Timestamp:       now.UTC(),
	}, nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
