package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/fincast-dev/fincast/internal/model"
)

// itemGrowth holds the compounding rates derived for one item.
// perTick covers one recurrence interval, monthly one calendar
// month; for assets the two are the same.
type itemGrowth struct {
	perTick float64
	monthly float64
}

// growthTable maps item name to its derived growth rates. Built once
// per run and never mutated afterwards.
type growthTable map[string]itemGrowth

// buildGrowthTable derives every item's growth rates from its annual
// nominal growth (a number or a setting name) plus CPI for items
// that are not CPI-immune.
func buildGrowthTable(m *model.Model, store *Store, cpi float64) growthTable {
	table := make(growthTable)

	annual := func(name, growth string, cpiImmune bool) float64 {
		rate := 0.0
		if growth != "" {
			v, ok, err := store.ResolveString(growth)
			if err != nil || !ok {
				slog.Warn("growth rate does not resolve, assuming zero",
					"item", name, "growth", growth)
			} else {
				rate = v.InexactFloat64()
			}
		}
		if !cpiImmune {
			rate += cpi
		}
		return rate
	}

	for i := range m.Assets {
		a := &m.Assets[i]
		r := annual(a.Name, a.Growth, a.CPIImmune)
		table[a.Name] = itemGrowth{perTick: compound(r, 1), monthly: compound(r, 1)}
	}
	for i := range m.Incomes {
		in := &m.Incomes[i]
		months, _ := model.ParseRecurrence(in.Recurrence)
		r := annual(in.Name, in.Growth, in.CPIImmune)
		table[in.Name] = itemGrowth{perTick: compound(r, months), monthly: compound(r, 1)}
	}
	for i := range m.Expenses {
		e := &m.Expenses[i]
		months, _ := model.ParseRecurrence(e.Recurrence)
		r := annual(e.Name, e.Growth, e.CPIImmune)
		table[e.Name] = itemGrowth{perTick: compound(r, months), monthly: compound(r, 1)}
	}
	return table
}

// compound converts an annual rate to the equivalent rate over a
// number of months, compounding rather than dividing linearly.
func compound(annual float64, months int) float64 {
	if months <= 0 {
		months = 1
	}
	return math.Pow(1+annual, float64(months)/12) - 1
}

// monthsBetween counts whole calendar months from a to b. Negative
// when b precedes a.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// cpiFactor is the CPI compounding factor between two dates, at
// monthly resolution.
func cpiFactor(cpi float64, from, to time.Time) float64 {
	return math.Pow(1+cpi, float64(monthsBetween(from, to))/12)
}
