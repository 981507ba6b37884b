// Package catalog holds the shop's static reference data: vehicle classes,
// paint finishes and optional services.
package catalog

import "zentoso/backend/internal/domain"

type Catalog struct {
	vehicles    []domain.VehicleClass
	finishes    []domain.PaintFinish
	options     []domain.OptionItem
	vehicleByID map[string]int
	finishByID  map[domain.FinishID]int
	optionByID  map[string]int
}

// New indexes the given reference data. Order of each slice is preserved for
// listing and for the order of quote lines.
func New(vehicles []domain.VehicleClass, finishes []domain.PaintFinish, options []domain.OptionItem) *Catalog {
	c := &Catalog{
		vehicles:    vehicles,
		finishes:    finishes,
		options:     options,
		vehicleByID: make(map[string]int, len(vehicles)),
		finishByID:  make(map[domain.FinishID]int, len(finishes)),
		optionByID:  make(map[string]int, len(options)),
	}
	for i, v := range vehicles {
		c.vehicleByID[v.ID] = i
	}
	for i, f := range finishes {
		c.finishByID[f.ID] = i
	}
	for i, o := range options {
		c.optionByID[o.ID] = i
	}
	return c
}

func Default() *Catalog {
	return New(defaultVehicles(), defaultFinishes(), defaultOptions())
}

func (c *Catalog) Vehicle(id string) (domain.VehicleClass, bool) {
	idx, ok := c.vehicleByID[id]
	if !ok {
		return domain.VehicleClass{}, false
	}
	return c.vehicles[idx], true
}

func (c *Catalog) Finish(id domain.FinishID) (domain.PaintFinish, bool) {
	idx, ok := c.finishByID[id]
	if !ok {
		return domain.PaintFinish{}, false
	}
	return c.finishes[idx], true
}

func (c *Catalog) Option(id string) (domain.OptionItem, bool) {
	idx, ok := c.optionByID[id]
	if !ok {
		return domain.OptionItem{}, false
	}
	return c.options[idx], true
}

func (c *Catalog) Vehicles() []domain.VehicleClass {
	return append([]domain.VehicleClass(nil), c.vehicles...)
}

func (c *Catalog) Finishes() []domain.PaintFinish {
	return append([]domain.PaintFinish(nil), c.finishes...)
}

func (c *Catalog) Options() []domain.OptionItem {
	return append([]domain.OptionItem(nil), c.options...)
}

var categoryOrder = []domain.OptionCategory{
	domain.CategoryPrep,
	domain.CategoryParts,
	domain.CategorySpecial,
	domain.CategoryCoating,
}

var categoryTitles = map[domain.OptionCategory]string{
	domain.CategoryPrep:    "下地処理・補修",
	domain.CategoryParts:   "部品脱着",
	domain.CategorySpecial: "塗装・仕上げオプション",
	domain.CategoryCoating: "コーティング・その他",
}

// Response groups options by category in display order, skipping empty
// categories.
func (c *Catalog) Response() domain.CatalogResponse {
	resp := domain.CatalogResponse{
		Vehicles:   c.Vehicles(),
		Finishes:   c.Finishes(),
		Categories: make([]domain.CatalogCategory, 0, len(categoryOrder)),
	}
	for _, category := range categoryOrder {
		group := domain.CatalogCategory{ID: category, Title: categoryTitles[category]}
		for _, option := range c.options {
			if option.Category == category {
				group.Options = append(group.Options, option)
			}
		}
		if len(group.Options) == 0 {
			continue
		}
		resp.Categories = append(resp.Categories, group)
	}
	return resp
}
