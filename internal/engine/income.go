package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/model"
)

// liabilityTotals accumulates taxable amounts per tax kind and
// person across one tax year.
type liabilityTotals map[model.TaxKind]map[string]decimal.Decimal

func (l liabilityTotals) add(kind model.TaxKind, person string, amount decimal.Decimal) {
	if l[kind] == nil {
		l[kind] = make(map[string]decimal.Decimal)
	}
	l[kind][person] = l[kind][person].Add(amount)
}

func (l liabilityTotals) reset(kind model.TaxKind, person string) {
	if l[kind] != nil {
		l[kind][person] = decimal.Zero
	}
}

// persons returns the people with an accumulator for a tax kind, in
// a deterministic order.
func (l liabilityTotals) persons(kind model.TaxKind) []string {
	names := make([]string, 0, len(l[kind]))
	for name := range l[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// routeIncome distributes a firing income amount: pension
// contributions divert part of it, the remainder lands in cash, and
// the item's liabilities accumulate the taxable parts.
func routeIncome(ctx *simContext, name string, amount decimal.Decimal, liabilities []model.Liability, date time.Time, source string) error {
	cash := amount
	taxable := amount
	niable := amount

	for i := range ctx.model.Transactions {
		t := &ctx.model.Transactions[i]
		if !t.Kind.IsPensionContribution() || t.From != name {
			continue
		}
		txDate, err := ctx.model.ResolveDate(t.Date)
		if err != nil {
			return fmt.Errorf("pension contribution %q: %w", t.Name, err)
		}
		if txDate.After(date) {
			continue
		}
		if t.StopDate != "" {
			stop, err := ctx.model.ResolveDate(t.StopDate)
			if err != nil {
				return fmt.Errorf("pension contribution %q: %w", t.Name, err)
			}
			if !stop.After(date) {
				continue
			}
		}

		contribution := decimal.Zero
		v, ok, err := ctx.store.ResolveString(t.FromValue)
		if err != nil {
			return fmt.Errorf("pension contribution %q: %w", t.Name, err)
		}
		if !ok {
			slog.Warn("pension contribution value does not resolve, treating as zero",
				"transaction", t.Name, "value", t.FromValue)
		} else if t.FromAbsolute {
			contribution = v
		} else {
			if v.GreaterThan(decimal.NewFromInt(1)) {
				slog.Warn("proportional pension contribution above 1",
					"transaction", t.Name, "value", t.FromValue)
			}
			contribution = amount.Mul(v)
		}
		if contribution.IsZero() {
			continue
		}

		cash = cash.Sub(contribution)
		if t.Kind != model.KindPensionDefinedBenefit {
			taxable = taxable.Sub(contribution)
		}
		if t.Kind == model.KindPensionSalarySacrifice {
			niable = niable.Sub(contribution)
		}

		pot, ok, err := ctx.store.Resolve(t.To)
		if err != nil {
			return fmt.Errorf("pension contribution %q: %w", t.Name, err)
		}
		if !ok {
			return fmt.Errorf("pension contribution %q credits undefined pension %q", t.Name, t.To)
		}
		if err := ctx.store.SetNumber(t.To, pot.Add(contribution), date, t.Name); err != nil {
			return err
		}
	}

	if cash.IsPositive() {
		if err := creditCash(ctx, cash, date, source); err != nil {
			return err
		}
	}

	for _, li := range liabilities {
		switch li.Kind {
		case model.IncomeTax:
			ctx.liabilities.add(model.IncomeTax, li.Person, taxable)
		case model.NationalInsurance:
			ctx.liabilities.add(model.NationalInsurance, li.Person, niable)
		}
	}
	return nil
}

// routeAssetGrowth accrues the taxable part of an asset's growth.
// The growth itself stays in the asset, so no cash moves here.
// Crystallized pensions are taxed on drawdown, not as they grow.
func routeAssetGrowth(ctx *simContext, a *model.Asset, growth decimal.Decimal, date time.Time) error {
	if !growth.IsPositive() || model.IsCrystallizedPension(a.Name) {
		return nil
	}
	for _, li := range a.Liabilities {
		switch li.Kind {
		case model.IncomeTax:
			ctx.liabilities.add(model.IncomeTax, li.Person, growth)
		case model.NationalInsurance:
			// Rejected by validation; reaching here is an engine bug.
			return fmt.Errorf("asset %q carries a national insurance liability", a.Name)
		}
	}
	return nil
}

// creditCash adds to the cash asset, which must already hold a
// value.
func creditCash(ctx *simContext, amount decimal.Decimal, date time.Time, source string) error {
	pre, ok, err := ctx.store.Resolve(model.CashName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cash is not valued at %s (source %s)", date.Format("2006-01-02"), source)
	}
	return ctx.store.SetNumber(model.CashName, pre.Add(amount), date, source)
}

// debitCash subtracts from the cash asset.
func debitCash(ctx *simContext, amount decimal.Decimal, date time.Time, source string) error {
	return creditCash(ctx, amount.Neg(), date, source)
}
