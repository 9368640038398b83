// Package report renders evaluation logs and snapshots.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fincast-dev/fincast/internal/engine"
)

// Header is the CSV header for an evaluation log.
const Header = "name,date,value,source"

const dateFormat = "2006-01-02"

// WriteEvaluations writes the evaluation log as CSV, one row per
// record, in processing order.
func WriteEvaluations(w io.Writer, evals []engine.Evaluation) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range evals {
		row := []string{
			e.Name,
			e.Date.Format(dateFormat),
			e.Value.StringFixed(2),
			e.Source,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// WriteSnapshot prints today's resolved asset values, sorted by
// name.
func WriteSnapshot(w io.Writer, values map[string]decimal.Decimal) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s: %s\n", name, values[name].StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}
