package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError describes a single structural violation.
type ValidationError struct {
	Invariant   int
	Item        string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [%s]: %s", e.Invariant, e.Item, e.Description)
}

// Validate enforces the structural invariants a model must satisfy
// before it can be evaluated. A model that fails any of them is
// rejected without running.
func Validate(m *Model) []ValidationError {
	var errs []ValidationError
	add := func(invariant int, item, format string, args ...any) {
		errs = append(errs, ValidationError{
			Invariant:   invariant,
			Item:        item,
			Description: fmt.Sprintf(format, args...),
		})
	}

	// Invariant 1: the view horizon is configured and well ordered.
	start, startOK := m.SettingValue(SettingViewStart)
	end, endOK := m.SettingValue(SettingViewEnd)
	if !startOK || !endOK {
		add(1, "settings", "both %s and %s must be set", SettingViewStart, SettingViewEnd)
	} else {
		sd, sErr := m.ResolveDate(start)
		ed, eErr := m.ResolveDate(end)
		if sErr != nil {
			add(1, SettingViewStart, "%v", sErr)
		}
		if eErr != nil {
			add(1, SettingViewEnd, "%v", eErr)
		}
		if sErr == nil && eErr == nil && !sd.Before(ed) {
			add(1, "settings", "%s must precede %s", SettingViewStart, SettingViewEnd)
		}
	}

	// Invariant 2: a Cash asset exists.
	if m.Asset(CashName) == nil {
		add(2, CashName, "model must define a %s asset", CashName)
	}

	// Invariant 3: every date field resolves, and the dates the
	// engine schedules from are present.
	checkDate := func(item, field, value string, required bool) {
		if value == "" {
			if required {
				add(3, item, "%s is required", field)
			}
			return
		}
		if _, err := m.ResolveDate(value); err != nil {
			add(3, item, "%s: %v", field, err)
		}
	}
	for i := range m.Triggers {
		t := &m.Triggers[i]
		if _, err := parseDate(t.Date); err != nil {
			add(3, t.Name, "%v", err)
		}
	}
	for i := range m.Assets {
		checkDate(m.Assets[i].Name, "start", m.Assets[i].Start, true)
	}
	for i := range m.Incomes {
		in := &m.Incomes[i]
		checkDate(in.Name, "start", in.Start, true)
		checkDate(in.Name, "end", in.End, true)
		checkDate(in.Name, "value_set", in.ValueSet, false)
	}
	for i := range m.Expenses {
		e := &m.Expenses[i]
		checkDate(e.Name, "start", e.Start, true)
		checkDate(e.Name, "end", e.End, true)
		checkDate(e.Name, "value_set", e.ValueSet, false)
	}
	for i := range m.Transactions {
		t := &m.Transactions[i]
		checkDate(t.Name, "date", t.Date, true)
		checkDate(t.Name, "stop_date", t.StopDate, false)
	}

	// Invariant 4: recurrences parse.
	checkRecurrence := func(item, value string) {
		if _, err := ParseRecurrence(value); err != nil {
			add(4, item, "%v", err)
		}
	}
	for i := range m.Incomes {
		checkRecurrence(m.Incomes[i].Name, m.Incomes[i].Recurrence)
	}
	for i := range m.Expenses {
		checkRecurrence(m.Expenses[i].Name, m.Expenses[i].Recurrence)
	}
	for i := range m.Transactions {
		if m.Transactions[i].Recurrence != "" {
			checkRecurrence(m.Transactions[i].Name, m.Transactions[i].Recurrence)
		}
	}

	// Invariant 5: names are unique across every category. Duplicate
	// transaction names would also make same-day processing order
	// undefined.
	seen := make(map[string]string)
	checkName := func(name, category string) {
		if name == "" {
			add(5, category, "unnamed %s", category)
			return
		}
		if prev, dup := seen[name]; dup {
			add(5, name, "duplicate name (already a %s)", prev)
			return
		}
		seen[name] = category
	}
	for i := range m.Triggers {
		checkName(m.Triggers[i].Name, "trigger")
	}
	for i := range m.Assets {
		checkName(m.Assets[i].Name, "asset")
	}
	for i := range m.Incomes {
		checkName(m.Incomes[i].Name, "income")
	}
	for i := range m.Expenses {
		checkName(m.Expenses[i].Name, "expense")
	}
	for i := range m.Settings {
		checkName(m.Settings[i].Name, "setting")
	}
	for i := range m.Transactions {
		checkName(m.Transactions[i].Name, "transaction")
	}

	// Invariants 6-8: transaction shapes.
	for i := range m.Transactions {
		t := &m.Transactions[i]
		if !t.Kind.Known() {
			add(6, t.Name, "unknown transaction kind %q", t.Kind)
			continue
		}
		if t.From != "" && t.FromValue == "" {
			add(6, t.Name, "from_value required when from is set")
		}
		if t.To != "" && t.ToValue == "" {
			add(6, t.Name, "to_value required when to is set")
		}

		switch {
		case t.Kind.IsRevaluation():
			if t.From != "" {
				add(7, t.Name, "revaluations have no source")
			}
			if t.To == "" {
				add(7, t.Name, "revaluation needs a target")
			}
			for _, target := range splitWords(t.To) {
				if !revalueTargetKnown(m, t.Kind, target) {
					add(7, t.Name, "revaluation target %q is not a known %s", target, revalueCategory(t.Kind))
				}
			}
		case t.Kind.IsPensionContribution():
			if m.Income(t.From) == nil {
				add(8, t.Name, "pension contribution source %q is not an income", t.From)
			}
			if m.Asset(t.To) == nil {
				add(8, t.Name, "pension contribution destination %q is not an asset", t.To)
			}
		default:
			for _, word := range splitWords(t.From) {
				if m.Asset(word) == nil {
					add(7, t.Name, "source %q is not a known asset", word)
				}
			}
			if t.To != "" && m.Asset(t.To) == nil {
				add(7, t.Name, "destination %q is not a known asset", t.To)
			}
			if t.Kind.IsConditional() && t.To == "" {
				add(8, t.Name, "conditional transaction needs a destination")
			}
		}

		// Invariant 9: proportional from-values stay in (0, 1].
		if t.From != "" && !t.FromAbsolute && t.FromValue != "" {
			if v, err := decimal.NewFromString(t.FromValue); err == nil {
				if !v.IsPositive() || v.GreaterThan(decimal.NewFromInt(1)) {
					add(9, t.Name, "proportional from_value %s outside (0, 1]", v)
				}
			}
		}
	}

	// Invariant 10: liabilities are legal for their category.
	knownKind := func(k TaxKind) bool {
		return k == IncomeTax || k == NationalInsurance || k == CapitalGains
	}
	for i := range m.Assets {
		a := &m.Assets[i]
		for _, li := range a.Liabilities {
			if !knownKind(li.Kind) {
				add(10, a.Name, "unknown liability kind %q", li.Kind)
			}
			if li.Kind == NationalInsurance {
				add(10, a.Name, "national insurance is not a valid asset liability")
			}
			if li.Person == "" {
				add(10, a.Name, "liability needs a person")
			}
		}
	}
	for i := range m.Incomes {
		in := &m.Incomes[i]
		for _, li := range in.Liabilities {
			if !knownKind(li.Kind) {
				add(10, in.Name, "unknown liability kind %q", li.Kind)
			}
			if li.Kind == CapitalGains {
				add(10, in.Name, "capital gains is not a valid income liability")
			}
			if li.Person == "" {
				add(10, in.Name, "liability needs a person")
			}
		}
	}

	return errs
}

func splitWords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, WordSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func revalueTargetKnown(m *Model, k TransactionKind, target string) bool {
	switch k {
	case KindRevalueAsset, KindRevalueDebt:
		return m.Asset(target) != nil
	case KindRevalueIncome:
		return m.Income(target) != nil
	case KindRevalueExpense:
		return m.Expense(target) != nil
	case KindRevalueSetting:
		_, ok := m.SettingValue(target)
		return ok
	}
	return false
}

func revalueCategory(k TransactionKind) string {
	switch k {
	case KindRevalueAsset:
		return "asset"
	case KindRevalueDebt:
		return "debt"
	case KindRevalueIncome:
		return "income"
	case KindRevalueExpense:
		return "expense"
	case KindRevalueSetting:
		return "setting"
	}
	return "quantity"
}
