// README: Order pricing: line totals, delivery fee, tax.
package order

import (
	"math"

	"dishpatch/internal/types"
)

// PricingConfig carries the fee and tax knobs. Defaults match the historical
// hard-coded values; see config.Load for the env overrides.
type PricingConfig struct {
	TaxRate            float64 // fraction of subtotal
	BaseDeliveryFee    int64   // cents
	PerKmFeeBeyondFree int64   // cents per km past FreeDeliveryKm
	FreeDeliveryKm     float64
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TaxRate:            0.10,
		BaseDeliveryFee:    500,
		PerKmFeeBeyondFree: 50,
		FreeDeliveryKm:     5.0,
	}
}

// lineTotal is unit price plus customization deltas, times quantity.
func lineTotal(li LineItem) types.Money {
	unit := li.UnitPrice
	for _, c := range li.Customizations {
		unit = unit.Add(c.PriceDelta)
	}
	return unit.MulQty(li.Quantity)
}

func subtotalOf(items []LineItem) types.Money {
	var cents int64
	for _, li := range items {
		cents += li.LineTotal.Amount
	}
	return types.USD(cents)
}

// deliveryFee is the base fee plus a per-km charge for distance beyond the
// free radius, rounded to the cent.
func deliveryFee(distanceKm float64, cfg PricingConfig) types.Money {
	fee := cfg.BaseDeliveryFee
	if distanceKm > cfg.FreeDeliveryKm {
		extra := distanceKm - cfg.FreeDeliveryKm
		fee += int64(math.Round(extra * float64(cfg.PerKmFeeBeyondFree)))
	}
	return types.USD(fee)
}

func taxOn(subtotal types.Money, cfg PricingConfig) types.Money {
	return types.USD(int64(math.Round(float64(subtotal.Amount) * cfg.TaxRate)))
}

// applyTotals recomputes every derived monetary field on the order from its
// line items and the restaurant distance, preserving the total invariant.
func applyTotals(o *Order, distanceKm float64, cfg PricingConfig) {
	for i := range o.Items {
		o.Items[i].LineTotal = lineTotal(o.Items[i])
	}
	o.Subtotal = subtotalOf(o.Items)
	o.Tax = taxOn(o.Subtotal, cfg)
	o.DeliveryFee = deliveryFee(distanceKm, cfg)
	o.Total = o.Subtotal.Add(o.Tax).Add(o.DeliveryFee)
}
