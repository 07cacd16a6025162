package activity

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoPrices = errors.New("no price source configured")

// RecordPrices stores the current price of every configured coin at height.
func (c *Context) RecordPrices(ctx context.Context, height uint64) error {
	if c.Prices == nil {
		return ErrNoPrices
	}
	currency := c.Currency
	if currency == "" {
		currency = "usd"
	}
	var errs []error
	for _, coin := range c.Coins {
		if err := c.Prices.RecordCurrent(ctx, coin, currency, height); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", coin, err))
		}
	}
	return errors.Join(errs...)
}
