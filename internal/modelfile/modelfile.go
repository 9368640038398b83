// Package modelfile reads and writes financial models as YAML.
package modelfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fincast-dev/fincast/internal/model"
)

// Load reads a model file from disk.
func Load(path string) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	var m model.Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return &m, nil
}

// Save writes a model to a YAML file.
func Save(path string, m *model.Model) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	return nil
}

// Example returns a small worked model: a salary with a
// salary-sacrifice pension, living costs, a share holding with CGT
// tracking, a conditional mortgage payoff, and a pension that is
// crystallized and drawn down at retirement.
func Example() *model.Model {
	return &model.Model{
		Name: "example",
		Triggers: []model.Trigger{
			{Name: "retirement", Date: "2040-04-06"},
		},
		Settings: []model.Setting{
			{Name: model.SettingViewStart, Value: "2024-01-01"},
			{Name: model.SettingViewEnd, Value: "2050-01-01"},
			{Name: model.SettingCPI, Value: "0.025"},
			{Name: "stock-growth", Value: "0.05"},
		},
		Assets: []model.Asset{
			{
				Name:          model.CashName,
				Value:         "5000",
				Start:         "2024-01-01",
				CanBeNegative: true,
			},
			{
				Name:          "Shares",
				Value:         "3.5",
				Quantity:      1000,
				PurchasePrice: "2000",
				Start:         "2024-01-01",
				Growth:        "stock-growth",
				Liabilities:   []model.Liability{{Kind: model.CapitalGains, Person: "joe"}},
			},
			{
				Name:          "Mortgage",
				Value:         "-150000",
				Start:         "2024-01-01",
				CanBeNegative: true,
				Debt:          true,
			},
			{
				Name:   "PensionJoe",
				Value:  "40000",
				Start:  "2024-01-01",
				Growth: "stock-growth",
			},
			{
				Name:        "CrystallizedPensionJoe",
				Value:       "0",
				Start:       "2024-01-01",
				Growth:      "stock-growth",
				Liabilities: []model.Liability{{Kind: model.IncomeTax, Person: "joe"}},
			},
		},
		Incomes: []model.Income{
			{
				Name:       "Salary",
				Value:      "2800",
				Start:      "2024-01-01",
				End:        "retirement",
				Recurrence: "1m",
				Liabilities: []model.Liability{
					{Kind: model.IncomeTax, Person: "joe"},
					{Kind: model.NationalInsurance, Person: "joe"},
				},
			},
		},
		Expenses: []model.Expense{
			{
				Name:       "Living costs",
				Value:      "1500",
				Start:      "2024-01-01",
				End:        "2050-01-01",
				Recurrence: "1m",
			},
		},
		Transactions: []model.Transaction{
			{
				Name:      "SIPP contribution",
				Kind:      model.KindPensionSalarySacrifice,
				From:      "Salary",
				FromValue: "0.05",
				To:        "PensionJoe",
				ToValue:   "1",
				Date:      "2024-01-01",
			},
			{
				Name:         "Pay off mortgage",
				Kind:         model.KindPayoff,
				From:         model.CashName,
				FromValue:    "700",
				FromAbsolute: true,
				To:           "Mortgage",
				ToValue:      "1",
				Date:         "2024-02-01",
				Recurrence:   "1m",
			},
			{
				Name:      "Crystallize pension",
				Kind:      model.KindCustom,
				From:      "PensionJoe",
				FromValue: "1",
				To:        "CrystallizedPensionJoe",
				ToValue:   "1",
				Date:      "retirement",
			},
			{
				Name:         "Pension drawdown",
				Kind:         model.KindCustom,
				From:         "CrystallizedPensionJoe",
				FromValue:    "1200",
				FromAbsolute: true,
				To:           model.CashName,
				ToValue:      "1",
				Date:         "retirement",
				Recurrence:   "1m",
			},
		},
	}
}
