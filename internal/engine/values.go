package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchasePricePrefix names the shadow quantity that carries an
// asset's CGT base cost in the evaluation log.
const PurchasePricePrefix = "PurchasePrice"

// Evaluation is one immutable output record: a quantity took a value
// on a date because of a source.
type Evaluation struct {
	Name   string
	Date   time.Time
	Value  decimal.Decimal
	Source string
}

// Value is a stored quantity value: either a number or a symbolic
// expression of the form "[multiplier] name" referencing another
// quantity.
type Value struct {
	num     decimal.Decimal
	expr    string
	numeric bool
}

// NumberValue wraps a numeric value.
func NumberValue(d decimal.Decimal) Value {
	return Value{num: d, numeric: true}
}

// ParseValue interprets a model value string: a plain number becomes
// numeric, anything else is kept as a symbolic expression.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if d, err := decimal.NewFromString(s); err == nil {
		return NumberValue(d)
	}
	return Value{expr: s}
}

// String returns the raw form of the value.
func (v Value) String() string {
	if v.numeric {
		return v.num.String()
	}
	return v.expr
}

// Store is the mutable state of one simulation run: current values
// for every named quantity, the unit-count and purchase-price
// shadows for discretely held assets, and the append-only
// evaluation log.
type Store struct {
	values         map[string]Value
	quantities     map[string]decimal.Decimal
	purchasePrices map[string]decimal.Decimal
	evaluations    []Evaluation
}

func newStore() *Store {
	return &Store{
		values:         make(map[string]Value),
		quantities:     make(map[string]decimal.Decimal),
		purchasePrices: make(map[string]decimal.Decimal),
	}
}

// Evaluations returns the log accumulated so far.
func (s *Store) Evaluations() []Evaluation {
	return s.evaluations
}

// seed stores a raw value without resolving or logging it. Used for
// settings loaded before the simulation starts.
func (s *Store) seed(name string, v Value) {
	s.values[name] = v
}

// Resolve returns the numeric unit value of a named quantity,
// following symbolic references. ok is false when resolution bottoms
// out at an unknown name; a cyclic reference is an error.
func (s *Store) Resolve(name string) (decimal.Decimal, bool, error) {
	return s.resolve(name, make(map[string]bool))
}

func (s *Store) resolve(name string, seen map[string]bool) (decimal.Decimal, bool, error) {
	if seen[name] {
		return decimal.Zero, false, fmt.Errorf("cyclic value reference through %q", name)
	}
	v, ok := s.values[name]
	if !ok {
		return decimal.Zero, false, nil
	}
	if v.numeric {
		return v.num, true, nil
	}
	seen[name] = true
	mult, word := splitNumberWord(v.expr)
	inner, ok, err := s.resolve(word, seen)
	if err != nil || !ok {
		return decimal.Zero, ok, err
	}
	return inner.Mul(mult), true, nil
}

// ResolveString resolves a free-standing value string the same way a
// stored symbolic value is resolved.
func (s *Store) ResolveString(raw string) (decimal.Decimal, bool, error) {
	raw = strings.TrimSpace(raw)
	if d, err := decimal.NewFromString(raw); err == nil {
		return d, true, nil
	}
	mult, word := splitNumberWord(raw)
	inner, ok, err := s.resolve(word, make(map[string]bool))
	if err != nil || !ok {
		return decimal.Zero, ok, err
	}
	return inner.Mul(mult), true, nil
}

// ScaledValue resolves a quantity to currency terms: unit value
// times the unit count for discretely held assets.
func (s *Store) ScaledValue(name string) (decimal.Decimal, bool, error) {
	unit, ok, err := s.Resolve(name)
	if err != nil || !ok {
		return decimal.Zero, ok, err
	}
	if q, held := s.quantities[name]; held {
		return unit.Mul(q), true, nil
	}
	return unit, true, nil
}

// Set assigns a value to a quantity and appends one evaluation
// record for its new currency value. The assignment must resolve
// immediately; an unresolvable value is a modeling defect and fails
// the run.
func (s *Store) Set(name string, v Value, date time.Time, source string) error {
	var unit decimal.Decimal
	if v.numeric {
		unit = v.num
	} else {
		resolved, ok, err := s.ResolveString(v.expr)
		if err != nil {
			return fmt.Errorf("setting %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("setting %q: value %q does not resolve", name, v.expr)
		}
		unit = resolved
	}
	s.values[name] = v
	scaled := unit
	if q, held := s.quantities[name]; held {
		scaled = unit.Mul(q)
	}
	s.evaluations = append(s.evaluations, Evaluation{Name: name, Date: date, Value: scaled, Source: source})
	return nil
}

// SetNumber is Set for a plain numeric value.
func (s *Store) SetNumber(name string, d decimal.Decimal, date time.Time, source string) error {
	return s.Set(name, NumberValue(d), date, source)
}

// setQuantity updates an asset's unit count and logs the holding's
// new currency value. The unit price itself is unchanged.
func (s *Store) setQuantity(name string, q decimal.Decimal, date time.Time, source string) error {
	unit, ok, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("quantity change on unvalued %q", name)
	}
	s.quantities[name] = q
	s.evaluations = append(s.evaluations, Evaluation{Name: name, Date: date, Value: unit.Mul(q), Source: source})
	return nil
}

// setPurchasePrice records an asset's CGT base cost as a shadow
// quantity in the log.
func (s *Store) setPurchasePrice(name string, d decimal.Decimal, date time.Time, source string) {
	s.purchasePrices[name] = d
	s.evaluations = append(s.evaluations, Evaluation{
		Name:   PurchasePricePrefix + name,
		Date:   date,
		Value:  d,
		Source: source,
	})
}

// splitNumberWord splits "2.5 Shares" into its leading multiplier
// and the referenced name. A bare name has multiplier 1.
func splitNumberWord(s string) (decimal.Decimal, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		if mult, err := decimal.NewFromString(s[:i]); err == nil {
			return mult, strings.TrimSpace(s[i+1:])
		}
	}
	return decimal.NewFromInt(1), s
}
