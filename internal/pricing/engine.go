package pricing

import (
	"zentoso/backend/internal/catalog"
	"zentoso/backend/internal/domain"
)

type Engine struct {
	catalog *catalog.Catalog
}

func NewEngine(c *catalog.Catalog) *Engine {
	if c == nil {
		c = catalog.Default()
	}
	return &Engine{catalog: c}
}

func (e *Engine) Total(sel domain.Selection) int64 {
	return e.Quote(sel).Total
}

// Quote itemizes a selection. Without a vehicle there is nothing to price:
// the base is 0 and options produce no lines, since size-dependent prices
// cannot be resolved yet.
func (e *Engine) Quote(sel domain.Selection) domain.Quote {
	quote := domain.Quote{Lines: []domain.QuoteLine{}}

	vehicle, ok := e.catalog.Vehicle(sel.VehicleID)
	if !ok {
		return quote
	}
	quote.VehicleID = vehicle.ID
	quote.VehicleName = vehicle.Name

	if finish, ok := e.catalog.Finish(sel.FinishID); ok {
		quote.FinishID = finish.ID
		quote.FinishName = finish.Name
		quote.BasePrice = vehicle.Prices[finish.ID]
	} else {
		quote.BasePrice = vehicle.Prices[domain.FinishSolid]
		quote.Provisional = true
	}
	quote.Total = quote.BasePrice

	// Walk the catalog rather than the map so line order is stable. Entries
	// for ids the catalog no longer knows are never visited.
	for _, option := range e.catalog.Options() {
		picked, ok := sel.Options[option.ID]
		if !ok {
			continue
		}
		line, ok := lineFor(option, picked, vehicle.Size)
		if !ok {
			continue
		}
		quote.Lines = append(quote.Lines, line)
		quote.Total += line.LineTotal
	}

	return quote
}

// UnitPrice resolves an option against an optional vehicle. It is safe to call
// before a vehicle is chosen; size-dependent prices then resolve to 0.
func (e *Engine) UnitPrice(optionID string, vehicleID string) int64 {
	option, ok := e.catalog.Option(optionID)
	if !ok {
		return 0
	}
	vehicle, _ := e.catalog.Vehicle(vehicleID)
	return option.Price.For(vehicle.Size)
}

func lineFor(option domain.OptionItem, picked domain.OptionSelection, size domain.VehicleSize) (domain.QuoteLine, bool) {
	if !picked.Selected {
		return domain.QuoteLine{}, false
	}

	quantity := uint(1)
	if option.Price.Mode == domain.PricingPerUnit {
		quantity = picked.Quantity
		if quantity == 0 {
			return domain.QuoteLine{}, false
		}
	}

	unit := option.Price.For(size)
	return domain.QuoteLine{
		OptionID:  option.ID,
		Name:      option.Name,
		Mode:      option.Price.Mode,
		UnitPrice: unit,
		Quantity:  quantity,
		LineTotal: unit * int64(quantity),
	}, true
}
