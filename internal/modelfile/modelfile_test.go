package modelfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincast-dev/fincast/internal/model"
)

func TestExampleIsValid(t *testing.T) {
	assert.Empty(t, model.Validate(Example()))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, Save(path, Example()))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Example(), got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: {not: [a, model"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadParsesHandWrittenModel(t *testing.T) {
	raw := `
name: small
settings:
  - name: view-start
    value: "2024-01-01"
  - name: view-end
    value: "2030-01-01"
assets:
  - name: Cash
    value: "0"
    start: "2024-01-01"
    can_be_negative: true
transactions:
  - name: top up
    kind: custom
    to: Cash
    to_value: "100"
    to_absolute: true
    date: "2024-06-01"
`
	path := filepath.Join(t.TempDir(), "small.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "small", m.Name)
	require.Len(t, m.Assets, 1)
	assert.True(t, m.Assets[0].CanBeNegative)
	require.Len(t, m.Transactions, 1)
	assert.Equal(t, model.KindCustom, m.Transactions[0].Kind)
	assert.True(t, m.Transactions[0].ToAbsolute)
	assert.Empty(t, model.Validate(m))
}
