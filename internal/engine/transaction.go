package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/model"
)

var one = decimal.NewFromInt(1)

// processTransaction applies one scheduled transaction at its
// occurrence date.
func processTransaction(ctx *simContext, t *model.Transaction, date time.Time) error {
	if t.Kind.IsRevaluation() {
		return processRevaluation(ctx, t, date)
	}
	if t.From == "" {
		if t.To == "" {
			return nil
		}
		return processDirectCredit(ctx, t, date)
	}
	for _, word := range splitFromWords(t.From) {
		if err := processTransfer(ctx, t, word, date); err != nil {
			return err
		}
	}
	return nil
}

// processTransfer moves value out of one source word of a
// transaction and applies the paired delta to the destination.
func processTransfer(ctx *simContext, t *model.Transaction, from string, date time.Time) error {
	fromUnit, ok, err := ctx.store.Resolve(from)
	if err != nil {
		return fmt.Errorf("transaction %q: %w", t.Name, err)
	}
	if !ok {
		return fmt.Errorf("transaction %q reads undefined quantity %q", t.Name, from)
	}
	qty, held := ctx.store.quantities[from]
	fromScaled := fromUnit
	if held {
		fromScaled = fromUnit.Mul(qty)
	}

	conditional := t.Kind.IsConditional()
	var toPre decimal.Decimal
	toDefined := false
	if t.To != "" {
		toPre, toDefined, err = ctx.store.ScaledValue(t.To)
		if err != nil {
			return fmt.Errorf("transaction %q: %w", t.Name, err)
		}
	}
	if conditional {
		if !toDefined {
			return fmt.Errorf("conditional transaction %q targets undefined quantity %q", t.Name, t.To)
		}
		if !toPre.IsNegative() {
			// Target already healthy; nothing to maintain.
			return nil
		}
	}

	rawVal, ok, err := ctx.store.ResolveString(t.FromValue)
	if err != nil {
		return fmt.Errorf("transaction %q: %w", t.Name, err)
	}
	if !ok {
		return fmt.Errorf("transaction %q has unresolvable value %q", t.Name, t.FromValue)
	}
	if t.Kind.IsBond() && t.FromAbsolute {
		rawVal = rawVal.Mul(ctx.cpiIndex(date))
	}

	var toProp decimal.Decimal
	if t.To != "" && !t.ToAbsolute {
		toProp, ok, err = ctx.store.ResolveString(t.ToValue)
		if err != nil {
			return fmt.Errorf("transaction %q: %w", t.Name, err)
		}
		if !ok {
			return fmt.Errorf("transaction %q has unresolvable value %q", t.Name, t.ToValue)
		}
	}

	// Amount leaving the source, in currency terms. Absolute amounts
	// on unit-held assets count units; conditional proportional
	// destinations derive the amount from the target's shortfall.
	var fromChange decimal.Decimal
	switch {
	case conditional && !t.ToAbsolute:
		if !toProp.IsPositive() {
			return fmt.Errorf("conditional transaction %q has non-positive to_value", t.Name)
		}
		fromChange = toPre.Neg().Div(toProp)
		if t.FromAbsolute {
			abs := rawVal
			if held {
				abs = rawVal.Mul(fromUnit)
			}
			if abs.LessThan(fromChange) {
				fromChange = abs
			}
		}
	case t.FromAbsolute:
		fromChange = rawVal
		if held {
			fromChange = rawVal.Mul(fromUnit)
		}
	default:
		if rawVal.GreaterThan(one) {
			slog.Warn("proportional transfer value above 1",
				"transaction", t.Name, "value", t.FromValue)
		}
		fromChange = fromScaled.Mul(rawVal)
	}

	src := ctx.model.Asset(from)
	canBeNegative := src != nil && src.CanBeNegative
	if !canBeNegative && fromChange.GreaterThan(fromScaled) {
		if !conditional {
			slog.Warn("transfer would drive source negative, skipped",
				"transaction", t.Name, "source", from)
			return nil
		}
		fromChange = fromScaled
	}
	if !fromChange.IsPositive() {
		return nil
	}

	// Realized gain on the fraction sold, against the recorded
	// purchase price. Losses accumulate too, offsetting gains
	// realized in the same tax year.
	if pp, tracked := ctx.store.purchasePrices[from]; tracked && src != nil && fromScaled.IsPositive() {
		frac := fromChange.Div(fromScaled)
		gain := fromChange.Sub(pp.Mul(frac))
		taxed := false
		for _, li := range src.Liabilities {
			if li.Kind == model.CapitalGains {
				taxed = true
				ctx.liabilities.add(model.CapitalGains, li.Person, gain)
			}
		}
		if taxed {
			ctx.store.setPurchasePrice(from, pp.Mul(one.Sub(frac)), date, t.Name)
		}
	}

	if held {
		if fromUnit.IsZero() {
			return fmt.Errorf("transaction %q draws on %q at zero unit price", t.Name, from)
		}
		unitsSold := fromChange.Div(fromUnit)
		if err := ctx.store.setQuantity(from, qty.Sub(unitsSold), date, t.Name); err != nil {
			return fmt.Errorf("transaction %q: %w", t.Name, err)
		}
	} else {
		if err := ctx.store.SetNumber(from, fromUnit.Sub(fromChange), date, t.Name); err != nil {
			return fmt.Errorf("transaction %q: %w", t.Name, err)
		}
	}

	if t.To == "" {
		return nil
	}

	var toChange decimal.Decimal
	if t.ToAbsolute {
		toChange, ok, err = ctx.store.ResolveString(t.ToValue)
		if err != nil {
			return fmt.Errorf("transaction %q: %w", t.Name, err)
		}
		if !ok {
			return fmt.Errorf("transaction %q has unresolvable value %q", t.Name, t.ToValue)
		}
		if t.Kind.IsBond() {
			toChange = toChange.Mul(ctx.cpiIndex(date))
		}
	} else {
		toChange = fromChange.Mul(toProp)
	}

	// Drawing a crystallized pension down into cash is taxable
	// income, not a plain transfer.
	if model.IsCrystallizedPension(from) && t.To == model.CashName && src != nil {
		return routeIncome(ctx, from, toChange, src.Liabilities, date, t.Name)
	}

	if !toDefined {
		return fmt.Errorf("transaction %q credits undefined quantity %q", t.Name, t.To)
	}
	return creditQuantity(ctx, t.To, toChange, date, t.Name)
}

// creditQuantity adds a currency delta to a named quantity. On a
// unit-held destination the delta converts to units at the current
// unit price, so the holding value moves by exactly the amount
// credited.
func creditQuantity(ctx *simContext, name string, amount decimal.Decimal, date time.Time, source string) error {
	unit, ok, err := ctx.store.Resolve(name)
	if err != nil {
		return fmt.Errorf("transaction %q: %w", source, err)
	}
	if !ok {
		return fmt.Errorf("transaction %q credits undefined quantity %q", source, name)
	}
	if q, held := ctx.store.quantities[name]; held {
		if unit.IsZero() {
			return fmt.Errorf("transaction %q credits %q at zero unit price", source, name)
		}
		return ctx.store.setQuantity(name, q.Add(amount.Div(unit)), date, source)
	}
	return ctx.store.SetNumber(name, unit.Add(amount), date, source)
}

// processDirectCredit handles a transaction with a destination but
// no source: a fixed or proportional credit.
func processDirectCredit(ctx *simContext, t *model.Transaction, date time.Time) error {
	toPre, defined, err := ctx.store.ScaledValue(t.To)
	if err != nil {
		return fmt.Errorf("transaction %q: %w", t.Name, err)
	}
	if !defined {
		return fmt.Errorf("transaction %q credits undefined quantity %q", t.Name, t.To)
	}
	v, ok, err := ctx.store.ResolveString(t.ToValue)
	if err != nil {
		return fmt.Errorf("transaction %q: %w", t.Name, err)
	}
	if !ok {
		return fmt.Errorf("transaction %q has unresolvable value %q", t.Name, t.ToValue)
	}
	var toChange decimal.Decimal
	if t.ToAbsolute {
		toChange = v
		if t.Kind.IsBond() {
			toChange = toChange.Mul(ctx.cpiIndex(date))
		}
	} else {
		toChange = toPre.Mul(v)
	}
	return creditQuantity(ctx, t.To, toChange, date, t.Name)
}

// processRevaluation overwrites each target quantity directly, and
// books the positive delta on an income-taxed asset as taxable gain.
func processRevaluation(ctx *simContext, t *model.Transaction, date time.Time) error {
	for _, target := range splitFromWords(t.To) {
		pre, preDefined, err := ctx.store.ScaledValue(target)
		if err != nil {
			return fmt.Errorf("revaluation %q: %w", t.Name, err)
		}

		if t.ToAbsolute {
			if err := ctx.store.Set(target, ParseValue(t.ToValue), date, t.Name); err != nil {
				return fmt.Errorf("revaluation %q: %w", t.Name, err)
			}
		} else {
			if !preDefined {
				return fmt.Errorf("revaluation %q scales undefined quantity %q", t.Name, target)
			}
			preUnit, _, err := ctx.store.Resolve(target)
			if err != nil {
				return fmt.Errorf("revaluation %q: %w", t.Name, err)
			}
			prop, ok, err := ctx.store.ResolveString(t.ToValue)
			if err != nil {
				return fmt.Errorf("revaluation %q: %w", t.Name, err)
			}
			if !ok {
				return fmt.Errorf("revaluation %q has unresolvable value %q", t.Name, t.ToValue)
			}
			if err := ctx.store.SetNumber(target, preUnit.Mul(prop), date, t.Name); err != nil {
				return fmt.Errorf("revaluation %q: %w", t.Name, err)
			}
		}

		if a := ctx.model.Asset(target); a != nil && preDefined {
			post, _, err := ctx.store.ScaledValue(target)
			if err != nil {
				return fmt.Errorf("revaluation %q: %w", t.Name, err)
			}
			if gain := post.Sub(pre); gain.IsPositive() {
				for _, li := range a.Liabilities {
					if li.Kind == model.IncomeTax {
						ctx.liabilities.add(model.IncomeTax, li.Person, gain)
					}
				}
			}
		}
	}
	return nil
}

func splitFromWords(s string) []string {
	var words []string
	for _, w := range strings.Split(s, model.WordSeparator) {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
