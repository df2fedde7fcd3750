package connectors

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

var oneSol = decimal.NewFromInt(1)

// PriceTracker derives a price sample for a token from a 1-SOL Jupiter
// quote. Prices are expressed as token units per SOL; entry prices for
// conditional orders are captured in the same units, so percentage change
// between the two is well defined.
type PriceTracker struct {
	jupiter *JupiterClient
}

func NewPriceTracker(jupiter *JupiterClient) *PriceTracker {
	return &PriceTracker{jupiter: jupiter}
}

// GetPrice returns the current price sample for a token.
func (p *PriceTracker) GetPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	quote, err := p.jupiter.GetQuote(ctx, SolMint, token, oneSol)
	if err != nil {
		return decimal.Zero, err
	}

	price, err := quote.OutAmountUnits()
	if err != nil {
		return decimal.Zero, gatewayErrf("price", "malformed out amount %q: %v", quote.OutAmount, err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "PriceTracker",
		"op":        "GetPrice",
		"token":     token,
		"price":     price.String(),
	}).Debug("Price sampled")

	return price, nil
}
