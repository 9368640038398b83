package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast-dev/fincast/internal/model"
)

func newTestContext(m *model.Model) *simContext {
	return &simContext{
		model:        m,
		store:        newStore(),
		growth:       make(growthTable),
		liabilities:  make(liabilityTotals),
		opts:         DefaultOptions(),
		horizonStart: date(2024, time.January, 1),
		horizonEnd:   date(2030, time.January, 1),
	}
}

func scaled(t *testing.T, ctx *simContext, name string) decimal.Decimal {
	t.Helper()
	v, ok, err := ctx.store.ScaledValue(name)
	require.NoError(t, err)
	require.True(t, ok, "%s is unvalued", name)
	return v
}

func setValue(t *testing.T, ctx *simContext, name, value string) {
	t.Helper()
	require.NoError(t, ctx.store.SetNumber(name, dec(value), ctx.horizonStart, name))
}

func TestTransferAbsolute(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Savings"},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "1000")
	setValue(t, ctx, "Savings", "0")

	tx := &model.Transaction{
		Name: "save", Kind: model.KindCustom,
		From: "Cash", FromValue: "200", FromAbsolute: true,
		To: "Savings", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("800")))
	assert.True(t, scaled(t, ctx, "Savings").Equal(dec("200")))
}

func TestTransferProportional(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Savings"},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "1000")
	setValue(t, ctx, "Savings", "0")

	tx := &model.Transaction{
		Name: "save", Kind: model.KindCustom,
		From: "Cash", FromValue: "0.25",
		To: "Savings", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("750")))
	assert.True(t, scaled(t, ctx, "Savings").Equal(dec("250")))
}

func TestTransferSkipsWhenSourceWouldGoNegative(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash"},
		{Name: "Savings"},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "100")
	setValue(t, ctx, "Savings", "0")
	before := len(ctx.store.Evaluations())

	tx := &model.Transaction{
		Name: "save", Kind: model.KindCustom,
		From: "Cash", FromValue: "200", FromAbsolute: true,
		To: "Savings", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("100")))
	assert.True(t, scaled(t, ctx, "Savings").Equal(dec("0")))
	assert.Len(t, ctx.store.Evaluations(), before, "a skipped transfer logs nothing")
}

func payoffModel() *model.Model {
	return &model.Model{Assets: []model.Asset{
		{Name: "Cash"},
		{Name: "Mortgage", Debt: true, CanBeNegative: true},
	}}
}

func payoffTx() *model.Transaction {
	return &model.Transaction{
		Name: "pay off mortgage", Kind: model.KindPayoff,
		From: "Cash", FromValue: "700", FromAbsolute: true,
		To: "Mortgage", ToValue: "1",
	}
}

func TestPayoffDerivesAmountFromShortfall(t *testing.T) {
	ctx := newTestContext(payoffModel())
	setValue(t, ctx, "Cash", "1000")
	setValue(t, ctx, "Mortgage", "-500")

	require.NoError(t, processTransaction(ctx, payoffTx(), date(2024, time.June, 1)))

	// Only the 500 shortfall moves, not the full 700 budget.
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("500")))
	assert.True(t, scaled(t, ctx, "Mortgage").Equal(dec("0")))
}

func TestPayoffSkipsHealthyTarget(t *testing.T) {
	ctx := newTestContext(payoffModel())
	setValue(t, ctx, "Cash", "1000")
	setValue(t, ctx, "Mortgage", "0")
	before := len(ctx.store.Evaluations())

	require.NoError(t, processTransaction(ctx, payoffTx(), date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("1000")))
	assert.Len(t, ctx.store.Evaluations(), before)
}

func TestPayoffCapsAtSourceBalance(t *testing.T) {
	ctx := newTestContext(payoffModel())
	setValue(t, ctx, "Cash", "300")
	setValue(t, ctx, "Mortgage", "-500")

	require.NoError(t, processTransaction(ctx, payoffTx(), date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("0")))
	assert.True(t, scaled(t, ctx, "Mortgage").Equal(dec("-200")))
}

func TestQuantitySaleWithCapitalGains(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Shares", Liabilities: []model.Liability{{Kind: model.CapitalGains, Person: "joe"}}},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "0")
	setValue(t, ctx, "Shares", "10")
	ctx.store.quantities["Shares"] = dec("100")
	ctx.store.purchasePrices["Shares"] = dec("400")

	// An absolute amount on a unit-held asset counts units: 30 units
	// at 10 each.
	tx := &model.Transaction{
		Name: "sell shares", Kind: model.KindCustom,
		From: "Shares", FromValue: "30", FromAbsolute: true,
		To: "Cash", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("300")))
	assert.True(t, ctx.store.quantities["Shares"].Equal(dec("70")))
	assert.True(t, scaled(t, ctx, "Shares").Equal(dec("700")))

	// 30% of the holding sold: gain is proceeds minus 30% of the base
	// cost, and the base cost shrinks by the fraction realized.
	assert.True(t, ctx.liabilities[model.CapitalGains]["joe"].Equal(dec("180")),
		"gain %s", ctx.liabilities[model.CapitalGains]["joe"])
	assert.True(t, ctx.store.purchasePrices["Shares"].Equal(dec("280")))
}

func TestTransferIntoQuantityHeldDestination(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Shares"},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "1000")
	setValue(t, ctx, "Shares", "5")
	ctx.store.quantities["Shares"] = dec("10")

	tx := &model.Transaction{
		Name: "buy shares", Kind: model.KindCustom,
		From: "Cash", FromValue: "100", FromAbsolute: true,
		To: "Shares", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	// 100 of cash buys 20 units at 5 each: the holding grows by the
	// currency moved, not by unit-count multiples of it.
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("900")))
	assert.True(t, ctx.store.quantities["Shares"].Equal(dec("30")))
	assert.True(t, scaled(t, ctx, "Shares").Equal(dec("150")))

	unit, ok, err := ctx.store.Resolve("Shares")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, unit.Equal(dec("5")), "buying units leaves the unit price alone")
}

func TestDirectCreditIntoQuantityHeldDestination(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{{Name: "Shares"}}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Shares", "5")
	ctx.store.quantities["Shares"] = dec("10")

	abs := &model.Transaction{
		Name: "award", Kind: model.KindCustom,
		To: "Shares", ToValue: "50", ToAbsolute: true,
	}
	require.NoError(t, processTransaction(ctx, abs, date(2024, time.June, 1)))
	assert.True(t, ctx.store.quantities["Shares"].Equal(dec("20")))
	assert.True(t, scaled(t, ctx, "Shares").Equal(dec("100")))

	prop := &model.Transaction{
		Name: "match", Kind: model.KindCustom,
		To: "Shares", ToValue: "0.1",
	}
	require.NoError(t, processTransaction(ctx, prop, date(2024, time.July, 1)))
	assert.True(t, ctx.store.quantities["Shares"].Equal(dec("22")), "proportional credit scales the holding value")
	assert.True(t, scaled(t, ctx, "Shares").Equal(dec("110")))
}

func TestSaleAtALossOffsetsGains(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Shares", Liabilities: []model.Liability{{Kind: model.CapitalGains, Person: "joe"}}},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "0")
	setValue(t, ctx, "Shares", "1000")
	ctx.store.purchasePrices["Shares"] = dec("1500")

	tx := &model.Transaction{
		Name: "sell at a loss", Kind: model.KindCustom,
		From: "Shares", FromValue: "0.5",
		To: "Cash", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	// Half the holding sold for 500 against 750 of base cost: the
	// 250 loss accumulates and offsets later gains in the year.
	assert.True(t, ctx.liabilities[model.CapitalGains]["joe"].Equal(dec("-250")),
		"accumulated gain %s", ctx.liabilities[model.CapitalGains]["joe"])
	assert.True(t, ctx.store.purchasePrices["Shares"].Equal(dec("750")))
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("500")))
	assert.True(t, scaled(t, ctx, "Shares").Equal(dec("500")))
}

func TestConditionalDrawAtZeroUnitPriceFails(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Units", CanBeNegative: true},
		{Name: "Mortgage", Debt: true, CanBeNegative: true},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Units", "0")
	ctx.store.quantities["Units"] = dec("10")
	setValue(t, ctx, "Mortgage", "-100")

	tx := &model.Transaction{
		Name: "drain units", Kind: model.KindPayoff,
		From: "Units", FromValue: "1",
		To: "Mortgage", ToValue: "1",
	}
	err := processTransaction(ctx, tx, date(2024, time.June, 1))
	require.Error(t, err, "a worthless holding cannot cover the shortfall")
	assert.Contains(t, err.Error(), "zero unit price")
}

func TestCrystallizedPensionDrawdownIsTaxable(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "CrystallizedPensionJoe", Liabilities: []model.Liability{{Kind: model.IncomeTax, Person: "joe"}}},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "0")
	setValue(t, ctx, "CrystallizedPensionJoe", "10000")

	tx := &model.Transaction{
		Name: "drawdown", Kind: model.KindCustom,
		From: "CrystallizedPensionJoe", FromValue: "500", FromAbsolute: true,
		To: "Cash", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "CrystallizedPensionJoe").Equal(dec("9500")))
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("500")))
	assert.True(t, ctx.liabilities[model.IncomeTax]["joe"].Equal(dec("500")))
}

func TestDirectCredit(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{{Name: "Cash", CanBeNegative: true}}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "1000")

	abs := &model.Transaction{
		Name: "gift", Kind: model.KindCustom,
		To: "Cash", ToValue: "250", ToAbsolute: true,
	}
	require.NoError(t, processTransaction(ctx, abs, date(2024, time.June, 1)))
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("1250")))

	prop := &model.Transaction{
		Name: "bonus", Kind: model.KindCustom,
		To: "Cash", ToValue: "0.1",
	}
	require.NoError(t, processTransaction(ctx, prop, date(2024, time.July, 1)))
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("1375")))
}

func TestRevaluation(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "House", Liabilities: []model.Liability{{Kind: model.IncomeTax, Person: "joe"}}},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "House", "200000")

	abs := &model.Transaction{
		Name: "remark house", Kind: model.KindRevalueAsset,
		To: "House", ToValue: "250000", ToAbsolute: true,
	}
	require.NoError(t, processTransaction(ctx, abs, date(2024, time.June, 1)))
	assert.True(t, scaled(t, ctx, "House").Equal(dec("250000")))
	assert.True(t, ctx.liabilities[model.IncomeTax]["joe"].Equal(dec("50000")),
		"positive revaluation of an income-taxed asset accrues as gain")

	prop := &model.Transaction{
		Name: "boom", Kind: model.KindRevalueAsset,
		To: "House", ToValue: "1.1",
	}
	require.NoError(t, processTransaction(ctx, prop, date(2024, time.July, 1)))
	assert.True(t, scaled(t, ctx, "House").Equal(dec("275000")))
}

func TestBondLegsAreCPIIndexed(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "Bond", CanBeNegative: true},
	}}
	ctx := newTestContext(m)
	ctx.cpi = 0.02
	setValue(t, ctx, "Cash", "0")
	setValue(t, ctx, "Bond", "0")

	invest := &model.Transaction{
		Name: "buy bond", Kind: model.KindBondInvest,
		From: "Cash", FromValue: "1000", FromAbsolute: true,
		To: "Bond", ToValue: "1000", ToAbsolute: true,
	}
	// One year after the horizon start, so both legs index by 1.02.
	require.NoError(t, processTransaction(ctx, invest, date(2025, time.January, 1)))

	assert.InDelta(t, -1020, scaled(t, ctx, "Cash").InexactFloat64(), 1e-9)
	assert.InDelta(t, 1020, scaled(t, ctx, "Bond").InexactFloat64(), 1e-9)
}

func TestMultiWordSource(t *testing.T) {
	m := &model.Model{Assets: []model.Asset{
		{Name: "Cash", CanBeNegative: true},
		{Name: "ISA"},
		{Name: "Savings"},
	}}
	ctx := newTestContext(m)
	setValue(t, ctx, "Cash", "0")
	setValue(t, ctx, "ISA", "100")
	setValue(t, ctx, "Savings", "200")

	tx := &model.Transaction{
		Name: "drain", Kind: model.KindCustom,
		From: "ISA" + model.WordSeparator + "Savings", FromValue: "0.5",
		To: "Cash", ToValue: "1",
	}
	require.NoError(t, processTransaction(ctx, tx, date(2024, time.June, 1)))

	assert.True(t, scaled(t, ctx, "ISA").Equal(dec("50")))
	assert.True(t, scaled(t, ctx, "Savings").Equal(dec("100")))
	assert.True(t, scaled(t, ctx, "Cash").Equal(dec("150")))
}
