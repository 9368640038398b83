package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fincast-dev/fincast/internal/engine"
	"github.com/fincast-dev/fincast/internal/model"
	"github.com/fincast-dev/fincast/internal/modelfile"
	"github.com/fincast-dev/fincast/internal/report"
)

func newRunCommand() *cobra.Command {
	var modelPath string
	var outPath string
	var today string
	var optimizeAllowance bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a model and write its evaluation log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(modelPath, outPath, today, optimizeAllowance)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "model.yaml", "model file to evaluate")
	cmd.Flags().StringVar(&outPath, "out", "evaluations.csv", "evaluation log output path")
	cmd.Flags().StringVar(&today, "today", "", "override today's date (YYYY-MM-DD) for reproducible runs")
	cmd.Flags().BoolVar(&optimizeAllowance, "optimize-allowance", true, "spend unused income-tax allowance from crystallized pensions")

	return cmd
}

func runForecast(modelPath, outPath, today string, optimizeAllowance bool) error {
	m, err := modelfile.Load(modelPath)
	if err != nil {
		return err
	}

	opts := engine.DefaultOptions()
	opts.OptimizeAllowanceUse = optimizeAllowance
	if today != "" {
		t, err := time.Parse("2006-01-02", today)
		if err != nil {
			return fmt.Errorf("parsing --today: %w", err)
		}
		opts.Today = t
	}

	log := slog.With("run", uuid.NewString(), "model", m.Name)
	log.Info("evaluating model", "path", modelPath)

	result, err := engine.Run(m, opts)
	if err != nil {
		if verr, ok := err.(*engine.InvalidModelError); ok {
			for _, v := range verr.Violations {
				fmt.Fprintln(os.Stderr, v.Error())
			}
		}
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()
	if err := report.WriteEvaluations(f, result.Evaluations); err != nil {
		return err
	}
	log.Info("evaluation log written", "path", outPath, "records", len(result.Evaluations))

	if len(result.TodaysValues) > 0 {
		fmt.Println("Today's asset values:")
		if err := report.WriteSnapshot(os.Stdout, result.TodaysValues); err != nil {
			return err
		}
	}
	return nil
}

func newCheckCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a model without evaluating it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := modelfile.Load(modelPath)
			if err != nil {
				return err
			}
			verrs := model.Validate(m)
			for _, v := range verrs {
				fmt.Fprintln(os.Stderr, v.Error())
			}
			if len(verrs) > 0 {
				return fmt.Errorf("%d violation(s)", len(verrs))
			}
			fmt.Println("model is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "model.yaml", "model file to check")

	return cmd
}
