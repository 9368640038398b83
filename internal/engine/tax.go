package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/model"
)

// Base-year (2019/20) thresholds. Every band is indexed forward by
// CPI from bandsBaseDate before use.
var (
	basePersonalAllowance   = decimal.NewFromInt(12500)
	baseHigherThreshold     = decimal.NewFromInt(50000)
	baseAdditionalThreshold = decimal.NewFromInt(150000)
	baseNILowerThreshold    = decimal.NewFromInt(8628)
	baseNIUpperThreshold    = decimal.NewFromInt(50004)
	baseCGTExemption        = decimal.NewFromInt(12000)

	basicRate      = decimal.NewFromFloat(0.20)
	higherRate     = decimal.NewFromFloat(0.40)
	additionalRate = decimal.NewFromFloat(0.45)
	niMainRate     = decimal.NewFromFloat(0.12)
	niUpperRate    = decimal.NewFromFloat(0.02)
	cgtRate        = decimal.NewFromFloat(0.20)
)

var bandsBaseDate = time.Date(2019, time.April, 6, 0, 0, 0, 0, time.UTC)

// taxBand is one slice of a banded computation. An open band has no
// upper bound.
type taxBand struct {
	lower decimal.Decimal
	upper decimal.Decimal
	open  bool
	rate  decimal.Decimal
}

func indexFactor(cpi float64, date time.Time) decimal.Decimal {
	return decimal.NewFromFloat(cpiFactor(cpi, bandsBaseDate, date))
}

func personalAllowance(cpi float64, date time.Time) decimal.Decimal {
	return basePersonalAllowance.Mul(indexFactor(cpi, date))
}

func incomeTaxBands(cpi float64, date time.Time) []taxBand {
	f := indexFactor(cpi, date)
	allowance := basePersonalAllowance.Mul(f)
	higher := baseHigherThreshold.Mul(f)
	additional := baseAdditionalThreshold.Mul(f)
	return []taxBand{
		{lower: decimal.Zero, upper: allowance, rate: decimal.Zero},
		{lower: allowance, upper: higher, rate: basicRate},
		{lower: higher, upper: additional, rate: higherRate},
		{lower: additional, open: true, rate: additionalRate},
	}
}

func niBands(cpi float64, date time.Time) []taxBand {
	f := indexFactor(cpi, date)
	lower := baseNILowerThreshold.Mul(f)
	upper := baseNIUpperThreshold.Mul(f)
	return []taxBand{
		{lower: decimal.Zero, upper: lower, rate: decimal.Zero},
		{lower: lower, upper: upper, rate: niMainRate},
		{lower: upper, open: true, rate: niUpperRate},
	}
}

func cgtExemption(cpi float64, date time.Time) decimal.Decimal {
	return baseCGTExemption.Mul(indexFactor(cpi, date))
}

// taxDue walks the bands and sums the tax owed on an amount.
func taxDue(amount decimal.Decimal, bands []taxBand) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, b := range bands {
		if amount.LessThanOrEqual(b.lower) {
			break
		}
		top := amount
		if !b.open && top.GreaterThan(b.upper) {
			top = b.upper
		}
		if slice := top.Sub(b.lower); slice.IsPositive() {
			total = total.Add(slice.Mul(b.rate))
		}
	}
	return total
}

// settleTaxYear pays income tax, national insurance and CGT for the
// tax year ending on settleDate (5 April), then zeroes the
// accumulators. Runs the allowance-optimization step first so unused
// allowance is spent on crystallized pension funds before tax is
// computed.
func settleTaxYear(ctx *simContext, settleDate time.Time) error {
	if ctx.opts.OptimizeAllowanceUse {
		if err := useUnusedAllowance(ctx, settleDate); err != nil {
			return err
		}
	}

	bands := incomeTaxBands(ctx.cpi, settleDate)
	for _, person := range ctx.liabilities.persons(model.IncomeTax) {
		amount := ctx.liabilities[model.IncomeTax][person]
		if tax := taxDue(amount, bands); tax.IsPositive() {
			if err := payTax(ctx, tax, settleDate, person+" income tax"); err != nil {
				return err
			}
		}
		ctx.liabilities.reset(model.IncomeTax, person)
	}

	bands = niBands(ctx.cpi, settleDate)
	for _, person := range ctx.liabilities.persons(model.NationalInsurance) {
		amount := ctx.liabilities[model.NationalInsurance][person]
		if tax := taxDue(amount, bands); tax.IsPositive() {
			if err := payTax(ctx, tax, settleDate, person+" national insurance"); err != nil {
				return err
			}
		}
		ctx.liabilities.reset(model.NationalInsurance, person)
	}

	exemption := cgtExemption(ctx.cpi, settleDate)
	for _, person := range ctx.liabilities.persons(model.CapitalGains) {
		gains := ctx.liabilities[model.CapitalGains][person]
		if taxable := gains.Sub(exemption); taxable.IsPositive() {
			if tax := taxable.Mul(cgtRate); tax.IsPositive() {
				if err := payTax(ctx, tax, settleDate, person+" capital gains tax"); err != nil {
					return err
				}
			}
		}
		ctx.liabilities.reset(model.CapitalGains, person)
	}

	return nil
}

// useUnusedAllowance transfers otherwise-wasted income-tax allowance
// out of crystallized pensions into cash, booking it as taxable
// income. Without this the no-tax band of anyone living off savings
// expires worthless every April.
func useUnusedAllowance(ctx *simContext, settleDate time.Time) error {
	allowance := personalAllowance(ctx.cpi, settleDate)
	for _, person := range pensionHolders(ctx.model) {
		unused := allowance.Sub(ctx.liabilities[model.IncomeTax][person])
		if !unused.IsPositive() {
			continue
		}
		for i := range ctx.model.Assets {
			a := &ctx.model.Assets[i]
			if !model.IsCrystallizedPension(a.Name) || !hasLiability(a.Liabilities, model.IncomeTax, person) {
				continue
			}
			pot, ok, err := ctx.store.Resolve(a.Name)
			if err != nil {
				return err
			}
			if !ok || !pot.IsPositive() {
				continue
			}
			take := unused
			if pot.LessThan(take) {
				take = pot
			}
			source := person + " allowance use"
			if err := ctx.store.SetNumber(a.Name, pot.Sub(take), settleDate, source); err != nil {
				return err
			}
			if err := creditCash(ctx, take, settleDate, source); err != nil {
				return err
			}
			ctx.liabilities.add(model.IncomeTax, person, take)
			unused = unused.Sub(take)
			if !unused.IsPositive() {
				break
			}
		}
	}
	return nil
}

// pensionHolders returns everyone with an income-tax liability on a
// crystallized pension, in a deterministic order.
func pensionHolders(m *model.Model) []string {
	seen := make(map[string]bool)
	var names []string
	for i := range m.Assets {
		a := &m.Assets[i]
		if !model.IsCrystallizedPension(a.Name) {
			continue
		}
		for _, li := range a.Liabilities {
			if li.Kind == model.IncomeTax && !seen[li.Person] {
				seen[li.Person] = true
				names = append(names, li.Person)
			}
		}
	}
	sort.Strings(names)
	return names
}

// payTax debits cash and credits the shared tax pot.
func payTax(ctx *simContext, amount decimal.Decimal, date time.Time, source string) error {
	if err := debitCash(ctx, amount, date, source); err != nil {
		return err
	}
	pot, ok, err := ctx.store.Resolve(model.TaxPotName)
	if err != nil {
		return err
	}
	if !ok {
		pot = decimal.Zero
	}
	return ctx.store.SetNumber(model.TaxPotName, pot.Add(amount), date, source)
}

func hasLiability(ls []model.Liability, kind model.TaxKind, person string) bool {
	for _, li := range ls {
		if li.Kind == kind && li.Person == person {
			return true
		}
	}
	return false
}
