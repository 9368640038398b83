package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast-dev/fincast/internal/engine"
)

func TestWriteEvaluations(t *testing.T) {
	evals := []engine.Evaluation{
		{
			Name:   "Cash",
			Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Value:  decimal.NewFromInt(5000),
			Source: "Cash",
		},
		{
			Name:   "Cash",
			Date:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Value:  decimal.RequireFromString("4123.456"),
			Source: "Living costs",
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteEvaluations(&sb, evals))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, Header, lines[0])
	assert.Equal(t, "Cash,2024-03-01,5000.00,Cash", lines[1])
	assert.Equal(t, "Cash,2024-04-01,4123.46,Living costs", lines[2])
}

func TestWriteEvaluationsEmpty(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteEvaluations(&sb, nil))
	assert.Equal(t, Header+"\n", sb.String())
}

func TestWriteSnapshotSorted(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteSnapshot(&sb, map[string]decimal.Decimal{
		"Shares": decimal.NewFromInt(3500),
		"Cash":   decimal.RequireFromString("5000.5"),
	}))
	assert.Equal(t, "Cash: 5000.50\nShares: 3500.00\n", sb.String())
}
