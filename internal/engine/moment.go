package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/model"
)

type momentKind int

const (
	momentAsset momentKind = iota
	momentAssetStart
	momentIncome
	momentIncomeStart
	momentExpense
	momentExpenseStart
	momentTransaction
	momentEvaluateAssets
)

func (k momentKind) String() string {
	switch k {
	case momentAsset:
		return "asset"
	case momentAssetStart:
		return "asset-start"
	case momentIncome:
		return "income"
	case momentIncomeStart:
		return "income-start"
	case momentExpense:
		return "expense"
	case momentExpenseStart:
		return "expense-start"
	case momentTransaction:
		return "transaction"
	case momentEvaluateAssets:
		return "evaluate-assets"
	}
	return "unknown"
}

// moment is one dated, typed scheduled event consumed by the driver
// loop.
type moment struct {
	date  time.Time
	name  string
	kind  momentKind
	start Value // starting value, set on *Start moments only
	tx    *model.Transaction
}

// generateMoments expands every item and transaction in the model
// into dated moments across the horizon.
func generateMoments(m *model.Model, store *Store, growth growthTable, horizonEnd, today time.Time) ([]moment, error) {
	var ms []moment

	for i := range m.Incomes {
		in := &m.Incomes[i]
		start, err := m.ResolveDate(in.Start)
		if err != nil {
			return nil, fmt.Errorf("income %q: %w", in.Name, err)
		}
		end, err := m.ResolveDate(in.End)
		if err != nil {
			return nil, fmt.Errorf("income %q: %w", in.Name, err)
		}
		startValue, err := startingValue(m, store, growth, in.Name, in.Value, in.ValueSet, start)
		if err != nil {
			return nil, fmt.Errorf("income %q: %w", in.Name, err)
		}
		ticks, err := recurrenceDates(start, end, horizonEnd, in.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("income %q: %w", in.Name, err)
		}
		for j, d := range ticks {
			mo := moment{date: d, name: in.Name, kind: momentIncome}
			if j == 0 {
				mo.kind = momentIncomeStart
				mo.start = startValue
			}
			ms = append(ms, mo)
		}
	}

	for i := range m.Expenses {
		e := &m.Expenses[i]
		start, err := m.ResolveDate(e.Start)
		if err != nil {
			return nil, fmt.Errorf("expense %q: %w", e.Name, err)
		}
		end, err := m.ResolveDate(e.End)
		if err != nil {
			return nil, fmt.Errorf("expense %q: %w", e.Name, err)
		}
		startValue, err := startingValue(m, store, growth, e.Name, e.Value, e.ValueSet, start)
		if err != nil {
			return nil, fmt.Errorf("expense %q: %w", e.Name, err)
		}
		ticks, err := recurrenceDates(start, end, horizonEnd, e.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("expense %q: %w", e.Name, err)
		}
		for j, d := range ticks {
			mo := moment{date: d, name: e.Name, kind: momentExpense}
			if j == 0 {
				mo.kind = momentExpenseStart
				mo.start = startValue
			}
			ms = append(ms, mo)
		}
	}

	for i := range m.Assets {
		a := &m.Assets[i]
		start, err := m.ResolveDate(a.Start)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Name, err)
		}
		for k := 0; ; k++ {
			d := start.AddDate(0, k, 0)
			if d.After(horizonEnd) {
				break
			}
			mo := moment{date: d, name: a.Name, kind: momentAsset}
			if k == 0 {
				mo.kind = momentAssetStart
				mo.start = ParseValue(a.Value)
			}
			ms = append(ms, mo)
		}
	}

	for i := range m.Transactions {
		t := &m.Transactions[i]
		if t.Kind.IsPensionContribution() {
			// Fires with its source income, never on its own.
			continue
		}
		date, err := m.ResolveDate(t.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %q: %w", t.Name, err)
		}
		if t.Recurrence == "" {
			if date.Before(horizonEnd) {
				ms = append(ms, moment{date: date, name: t.Name, kind: momentTransaction, tx: t})
			}
			continue
		}
		months, err := model.ParseRecurrence(t.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("transaction %q: %w", t.Name, err)
		}
		stop := horizonEnd
		if t.StopDate != "" {
			sd, err := m.ResolveDate(t.StopDate)
			if err != nil {
				return nil, fmt.Errorf("transaction %q: %w", t.Name, err)
			}
			if sd.Before(stop) {
				stop = sd
			}
		}
		for k := 0; ; k++ {
			d := date.AddDate(0, k*months, 0)
			if d.After(stop) || d.After(horizonEnd) {
				break
			}
			ms = append(ms, moment{date: d, name: t.Name, kind: momentTransaction, tx: t})
		}
	}

	// Snapshot present-day asset values when the horizon extends
	// beyond today.
	if horizonEnd.After(today) {
		ms = append(ms, moment{date: today, kind: momentEvaluateAssets})
	}

	return ms, nil
}

// startingValue resolves an income or expense starting value,
// advanced by its growth for any gap between the date the value was
// quoted and its effective start.
func startingValue(m *model.Model, store *Store, growth growthTable, name, raw, valueSet string, start time.Time) (Value, error) {
	v, ok, err := store.ResolveString(raw)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, fmt.Errorf("starting value %q does not resolve", raw)
	}
	if valueSet == "" {
		return NumberValue(v), nil
	}
	setDate, err := m.ResolveDate(valueSet)
	if err != nil {
		return Value{}, err
	}
	gap := monthsBetween(setDate, start)
	if gap == 0 {
		return NumberValue(v), nil
	}
	factor := math.Pow(1+growth[name].monthly, float64(gap))
	return NumberValue(v.Mul(decimal.NewFromFloat(factor))), nil
}

// recurrenceDates expands a schedule from start to the lesser of end
// and the horizon.
func recurrenceDates(start, end, horizonEnd time.Time, recurrence string) ([]time.Time, error) {
	months, err := model.ParseRecurrence(recurrence)
	if err != nil {
		return nil, err
	}
	limit := end
	if horizonEnd.Before(limit) {
		limit = horizonEnd
	}
	var dates []time.Time
	for k := 0; ; k++ {
		d := start.AddDate(0, k*months, 0)
		if d.After(limit) {
			break
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// cmpMoment imposes the total order moments are stored in: latest
// date first, so that consuming from the tail advances
// chronologically. At equal dates the tie-breaks decide which moment
// sits nearer the tail (and is therefore processed first).
func cmpMoment(a, b moment) int {
	if !a.date.Equal(b.date) {
		if a.date.After(b.date) {
			return -1
		}
		return 1
	}
	// Cash sorts first, so its own growth is applied after the
	// day's flows have landed.
	if c := cmpFlag(a.name == model.CashName, b.name == model.CashName); c != 0 {
		return c
	}
	// Starts sort last: values exist before anything references
	// them.
	if c := cmpFlag(b.kind == momentAssetStart, a.kind == momentAssetStart); c != 0 {
		return c
	}
	// Asset growth precedes same-day incomes and transactions.
	if c := cmpFlag(b.kind == momentAsset, a.kind == momentAsset); c != 0 {
		return c
	}
	// Crystallized pension moves are deferred past everything else.
	if c := cmpFlag(model.IsCrystallizedPension(a.name), model.IsCrystallizedPension(b.name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.name, b.name); c != 0 {
		return c
	}
	return int(a.kind) - int(b.kind)
}

func cmpFlag(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	}
	return 1
}

// sortMoments orders the work list and rejects ties the comparator
// cannot discriminate, which would make processing order undefined.
func sortMoments(ms []moment) error {
	sort.Slice(ms, func(i, j int) bool { return cmpMoment(ms[i], ms[j]) < 0 })
	for i := 1; i < len(ms); i++ {
		if cmpMoment(ms[i-1], ms[i]) == 0 {
			return fmt.Errorf("indistinguishable moments %q (%s) at %s",
				ms[i].name, ms[i].kind, ms[i].date.Format("2006-01-02"))
		}
	}
	return nil
}
