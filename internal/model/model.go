package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CashName is the reserved asset that receives routed income and
// pays expenses and tax.
const CashName = "Cash"

// TaxPotName accumulates every tax payment made over a forecast.
const TaxPotName = "TaxPot"

// CrystallizedPensionPrefix marks drawdown-eligible pension assets.
// A transfer out of one of these into Cash is taxable income, not a
// plain transfer.
const CrystallizedPensionPrefix = "CrystallizedPension"

// WordSeparator splits multi-part from/to fields on transactions.
const WordSeparator = "/"

// Names of the settings the evaluation engine reads directly.
const (
	SettingViewStart = "view-start"
	SettingViewEnd   = "view-end"
	SettingCPI       = "cpi"
)

// IsCrystallizedPension reports whether a quantity name denotes a
// crystallized (drawdown-eligible) pension pot.
func IsCrystallizedPension(name string) bool {
	return strings.HasPrefix(name, CrystallizedPensionPrefix)
}

// TaxKind identifies which tax a liability routes into.
type TaxKind string

const (
	IncomeTax         TaxKind = "income-tax"
	NationalInsurance TaxKind = "national-insurance"
	CapitalGains      TaxKind = "capital-gains"
)

// Liability routes taxable amounts to a person's accumulator for one
// kind of tax.
type Liability struct {
	Kind   TaxKind `yaml:"kind"`
	Person string  `yaml:"person"`
}

// TransactionKind is the explicit variant of a transaction. The kind
// is fixed at construction; the engine never re-derives it from the
// transaction's shape or name.
type TransactionKind string

const (
	KindCustom                 TransactionKind = "custom"
	KindLiquidate              TransactionKind = "liquidate"
	KindPayoff                 TransactionKind = "payoff"
	KindRevalueAsset           TransactionKind = "revalue-asset"
	KindRevalueDebt            TransactionKind = "revalue-debt"
	KindRevalueIncome          TransactionKind = "revalue-income"
	KindRevalueExpense         TransactionKind = "revalue-expense"
	KindRevalueSetting         TransactionKind = "revalue-setting"
	KindPensionContribution    TransactionKind = "pension-contribution"
	KindPensionSalarySacrifice TransactionKind = "pension-salary-sacrifice"
	KindPensionDefinedBenefit  TransactionKind = "pension-defined-benefit"
	KindBondInvest             TransactionKind = "bond-invest"
	KindBondMature             TransactionKind = "bond-mature"
)

// IsConditional reports whether the transaction only fires while its
// destination is below zero (maintain/payoff semantics).
func (k TransactionKind) IsConditional() bool {
	return k == KindLiquidate || k == KindPayoff
}

// IsRevaluation reports whether the transaction overwrites its
// destination directly instead of transferring between quantities.
func (k TransactionKind) IsRevaluation() bool {
	switch k {
	case KindRevalueAsset, KindRevalueDebt, KindRevalueIncome,
		KindRevalueExpense, KindRevalueSetting:
		return true
	}
	return false
}

// IsPensionContribution reports whether the transaction diverts part
// of an income into a pension. These never generate moments of their
// own; they fire whenever their source income does.
func (k TransactionKind) IsPensionContribution() bool {
	switch k {
	case KindPensionContribution, KindPensionSalarySacrifice, KindPensionDefinedBenefit:
		return true
	}
	return false
}

// IsBond reports whether the transaction's amounts are CPI-indexed
// bond legs.
func (k TransactionKind) IsBond() bool {
	return k == KindBondInvest || k == KindBondMature
}

// Known reports whether the kind is one of the defined variants.
func (k TransactionKind) Known() bool {
	switch k {
	case KindCustom, KindLiquidate, KindPayoff,
		KindRevalueAsset, KindRevalueDebt, KindRevalueIncome,
		KindRevalueExpense, KindRevalueSetting,
		KindPensionContribution, KindPensionSalarySacrifice,
		KindPensionDefinedBenefit, KindBondInvest, KindBondMature:
		return true
	}
	return false
}

// Asset is an asset or debt. Value is the unit price when Quantity
// is set, otherwise the whole holding's value; either may be a
// symbolic reference to another quantity.
type Asset struct {
	Name          string      `yaml:"name"`
	Value         string      `yaml:"value"`
	Quantity      int64       `yaml:"quantity,omitempty"`
	PurchasePrice string      `yaml:"purchase_price,omitempty"`
	Start         string      `yaml:"start"`
	Growth        string      `yaml:"growth,omitempty"`
	CPIImmune     bool        `yaml:"cpi_immune,omitempty"`
	CanBeNegative bool        `yaml:"can_be_negative,omitempty"`
	Debt          bool        `yaml:"debt,omitempty"`
	Liabilities   []Liability `yaml:"liabilities,omitempty"`
}

// Income is a recurring credit routed through the liability router.
type Income struct {
	Name        string      `yaml:"name"`
	Value       string      `yaml:"value"`
	ValueSet    string      `yaml:"value_set,omitempty"`
	Start       string      `yaml:"start"`
	End         string      `yaml:"end"`
	Recurrence  string      `yaml:"recurrence,omitempty"`
	Growth      string      `yaml:"growth,omitempty"`
	CPIImmune   bool        `yaml:"cpi_immune,omitempty"`
	Liabilities []Liability `yaml:"liabilities,omitempty"`
}

// Expense is a recurring cash debit.
type Expense struct {
	Name       string `yaml:"name"`
	Value      string `yaml:"value"`
	ValueSet   string `yaml:"value_set,omitempty"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	Recurrence string `yaml:"recurrence,omitempty"`
	Growth     string `yaml:"growth,omitempty"`
	CPIImmune  bool   `yaml:"cpi_immune,omitempty"`
}

// Transaction is a scheduled transfer, credit or revaluation.
type Transaction struct {
	Name         string          `yaml:"name"`
	Kind         TransactionKind `yaml:"kind"`
	From         string          `yaml:"from,omitempty"`
	FromValue    string          `yaml:"from_value,omitempty"`
	FromAbsolute bool            `yaml:"from_absolute,omitempty"`
	To           string          `yaml:"to,omitempty"`
	ToValue      string          `yaml:"to_value,omitempty"`
	ToAbsolute   bool            `yaml:"to_absolute,omitempty"`
	Date         string          `yaml:"date"`
	StopDate     string          `yaml:"stop_date,omitempty"`
	Recurrence   string          `yaml:"recurrence,omitempty"`
}

// Trigger names a date so the rest of the model can refer to it.
type Trigger struct {
	Name string `yaml:"name"`
	Date string `yaml:"date"`
}

// Setting is a named model-wide value.
type Setting struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Model is a complete declarative financial model.
type Model struct {
	Name         string        `yaml:"name"`
	Triggers     []Trigger     `yaml:"triggers,omitempty"`
	Settings     []Setting     `yaml:"settings,omitempty"`
	Assets       []Asset       `yaml:"assets,omitempty"`
	Incomes      []Income      `yaml:"incomes,omitempty"`
	Expenses     []Expense     `yaml:"expenses,omitempty"`
	Transactions []Transaction `yaml:"transactions,omitempty"`
}

// Asset returns the named asset, or nil.
func (m *Model) Asset(name string) *Asset {
	for i := range m.Assets {
		if m.Assets[i].Name == name {
			return &m.Assets[i]
		}
	}
	return nil
}

// Income returns the named income, or nil.
func (m *Model) Income(name string) *Income {
	for i := range m.Incomes {
		if m.Incomes[i].Name == name {
			return &m.Incomes[i]
		}
	}
	return nil
}

// Expense returns the named expense, or nil.
func (m *Model) Expense(name string) *Expense {
	for i := range m.Expenses {
		if m.Expenses[i].Name == name {
			return &m.Expenses[i]
		}
	}
	return nil
}

// SettingValue returns the value of the named setting.
func (m *Model) SettingValue(name string) (string, bool) {
	for i := range m.Settings {
		if m.Settings[i].Name == name {
			return m.Settings[i].Value, true
		}
	}
	return "", false
}

var dateLayouts = []string{"2006-01-02", "2 Jan 2006", "2 January 2006"}

// ResolveDate parses a date field, which is either a trigger name or
// a literal date in one of the accepted layouts.
func (m *Model) ResolveDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for i := range m.Triggers {
		if m.Triggers[i].Name == s {
			return parseDate(m.Triggers[i].Date)
		}
	}
	return parseDate(s)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ParseRecurrence converts a cadence like "1m" or "2y" to a number
// of months. An empty cadence defaults to monthly.
func ParseRecurrence(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("unparseable recurrence %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unparseable recurrence %q", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return n, nil
	case 'y':
		return n * 12, nil
	}
	return 0, fmt.Errorf("unparseable recurrence %q: unit must be m or y", s)
}
