// Package engine evaluates a financial model across a date range,
// producing a chronological log of every value change plus a
// snapshot of present-day asset values. A run is a pure function of
// (model, options): no state survives between runs and identical
// inputs produce identical logs.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/model"
)

// Options configures one evaluation run.
type Options struct {
	// Today anchors the present-day snapshot and defaults to the
	// current date. Fix it for reproducible runs.
	Today time.Time
	// OptimizeAllowanceUse spends unused income-tax allowance from
	// crystallized pensions at each settlement.
	OptimizeAllowanceUse bool
}

// DefaultOptions returns the options a plain run uses.
func DefaultOptions() Options {
	return Options{OptimizeAllowanceUse: true}
}

// Result is the complete output of a run.
type Result struct {
	Evaluations  []Evaluation
	TodaysValues map[string]decimal.Decimal
}

// InvalidModelError reports that the model failed structural
// validation and was not evaluated.
type InvalidModelError struct {
	Violations []model.ValidationError
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("model failed validation with %d violation(s)", len(e.Violations))
}

// simContext is the state of one run, passed explicitly through
// every component.
type simContext struct {
	model        *model.Model
	store        *Store
	growth       growthTable
	liabilities  liabilityTotals
	opts         Options
	horizonStart time.Time
	horizonEnd   time.Time
	cpi          float64
}

// cpiIndex is the CPI compounding factor from the horizon start to a
// date, used to index bond transaction amounts.
func (ctx *simContext) cpiIndex(date time.Time) decimal.Decimal {
	return decimal.NewFromFloat(cpiFactor(ctx.cpi, ctx.horizonStart, date))
}

// Run evaluates the model across its configured horizon. A model
// that fails validation returns an empty result and an
// *InvalidModelError without running.
func Run(m *model.Model, opts Options) (Result, error) {
	if verrs := model.Validate(m); len(verrs) > 0 {
		return Result{TodaysValues: map[string]decimal.Decimal{}}, &InvalidModelError{Violations: verrs}
	}
	if opts.Today.IsZero() {
		now := time.Now().UTC()
		opts.Today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	store := newStore()
	for i := range m.Settings {
		store.seed(m.Settings[i].Name, ParseValue(m.Settings[i].Value))
	}

	startRaw, _ := m.SettingValue(model.SettingViewStart)
	endRaw, _ := m.SettingValue(model.SettingViewEnd)
	horizonStart, err := m.ResolveDate(startRaw)
	if err != nil {
		return Result{}, err
	}
	horizonEnd, err := m.ResolveDate(endRaw)
	if err != nil {
		return Result{}, err
	}

	cpi := 0.0
	if raw, ok := m.SettingValue(model.SettingCPI); ok {
		v, resolved, err := store.ResolveString(raw)
		if err != nil {
			return Result{}, err
		}
		if !resolved {
			slog.Warn("cpi setting does not resolve, assuming zero", "value", raw)
		} else {
			cpi = v.InexactFloat64()
		}
	}

	ctx := &simContext{
		model:        m,
		store:        store,
		growth:       buildGrowthTable(m, store, cpi),
		liabilities:  make(liabilityTotals),
		opts:         opts,
		horizonStart: horizonStart,
		horizonEnd:   horizonEnd,
		cpi:          cpi,
	}

	moments, err := generateMoments(m, store, ctx.growth, horizonEnd, opts.Today)
	if err != nil {
		return Result{}, err
	}
	if err := sortMoments(moments); err != nil {
		return Result{}, err
	}

	snapshot := make(map[string]decimal.Decimal)
	if len(moments) == 0 {
		return Result{Evaluations: nil, TodaysValues: snapshot}, nil
	}

	// Moments are stored latest-first; consume from the tail so
	// dates advance strictly forward.
	taxYear := taxYearStart(moments[len(moments)-1].date)
	for i := len(moments) - 1; i >= 0; i-- {
		mo := moments[i]
		for taxYearStart(mo.date).After(taxYear) {
			if err := settleTaxYear(ctx, taxYear.AddDate(1, 0, -1)); err != nil {
				return Result{}, err
			}
			taxYear = taxYear.AddDate(1, 0, 0)
		}
		if err := processMoment(ctx, mo, snapshot); err != nil {
			return Result{}, err
		}
	}
	if err := settleTaxYear(ctx, taxYear.AddDate(1, 0, -1)); err != nil {
		return Result{}, err
	}

	return Result{Evaluations: store.Evaluations(), TodaysValues: snapshot}, nil
}

func processMoment(ctx *simContext, mo moment, snapshot map[string]decimal.Decimal) error {
	switch mo.kind {
	case momentEvaluateAssets:
		for i := range ctx.model.Assets {
			name := ctx.model.Assets[i].Name
			v, ok, err := ctx.store.ScaledValue(name)
			if err != nil {
				return err
			}
			if ok {
				snapshot[name] = v
			}
		}
		return nil

	case momentAssetStart:
		a := ctx.model.Asset(mo.name)
		if a.Quantity > 0 {
			ctx.store.quantities[a.Name] = decimal.NewFromInt(a.Quantity)
		}
		if a.PurchasePrice != "" {
			pp, ok, err := ctx.store.ResolveString(a.PurchasePrice)
			if err != nil {
				return fmt.Errorf("asset %q: %w", a.Name, err)
			}
			if !ok {
				return fmt.Errorf("asset %q: purchase price %q does not resolve", a.Name, a.PurchasePrice)
			}
			ctx.store.setPurchasePrice(a.Name, pp, mo.date, a.Name)
		}
		return ctx.store.Set(mo.name, mo.start, mo.date, mo.name)

	case momentIncomeStart:
		in := ctx.model.Income(mo.name)
		if err := ctx.store.Set(mo.name, mo.start, mo.date, mo.name); err != nil {
			return err
		}
		return routeIncome(ctx, mo.name, mo.start.num, in.Liabilities, mo.date, mo.name)

	case momentExpenseStart:
		if err := ctx.store.Set(mo.name, mo.start, mo.date, mo.name); err != nil {
			return err
		}
		return debitCash(ctx, mo.start.num, mo.date, mo.name)

	case momentAsset:
		a := ctx.model.Asset(mo.name)
		unit, ok, err := ctx.store.Resolve(mo.name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("asset %q unvalued at growth tick %s", mo.name, mo.date.Format("2006-01-02"))
		}
		factor := decimal.NewFromFloat(1 + ctx.growth[mo.name].perTick)
		newUnit := unit.Mul(factor)
		if err := ctx.store.SetNumber(mo.name, newUnit, mo.date, mo.name); err != nil {
			return err
		}
		growth := newUnit.Sub(unit)
		if q, held := ctx.store.quantities[mo.name]; held {
			growth = growth.Mul(q)
		}
		return routeAssetGrowth(ctx, a, growth, mo.date)

	case momentIncome:
		in := ctx.model.Income(mo.name)
		v, ok, err := ctx.store.Resolve(mo.name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("income %q unvalued at %s", mo.name, mo.date.Format("2006-01-02"))
		}
		newV := v.Mul(decimal.NewFromFloat(1 + ctx.growth[mo.name].perTick))
		if err := ctx.store.SetNumber(mo.name, newV, mo.date, mo.name); err != nil {
			return err
		}
		return routeIncome(ctx, mo.name, newV, in.Liabilities, mo.date, mo.name)

	case momentExpense:
		v, ok, err := ctx.store.Resolve(mo.name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("expense %q unvalued at %s", mo.name, mo.date.Format("2006-01-02"))
		}
		newV := v.Mul(decimal.NewFromFloat(1 + ctx.growth[mo.name].perTick))
		if err := ctx.store.SetNumber(mo.name, newV, mo.date, mo.name); err != nil {
			return err
		}
		return debitCash(ctx, newV, mo.date, mo.name)

	case momentTransaction:
		return processTransaction(ctx, mo.tx, mo.date)
	}
	return fmt.Errorf("unhandled moment kind %s", mo.kind)
}

// taxYearStart returns the 6 April starting the UK tax year a date
// falls in.
func taxYearStart(d time.Time) time.Time {
	apr6 := time.Date(d.Year(), time.April, 6, 0, 0, 0, 0, time.UTC)
	if d.Before(apr6) {
		return apr6.AddDate(-1, 0, 0)
	}
	return apr6
}
