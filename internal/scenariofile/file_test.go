package scenariofile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff-receipt/internal/tariff"
	"github.com/Veraticus/tariff-receipt/internal/testutil"
)

const steel = `
name: steel
mode: original-current
pass_through: 80
world_rate: 10
edits:
  - country: can
    section: "16"
    value: 25
  - country: MEX
    section: "16"
    chapter: "84"
    hs4: "8471"
    value: 5
  - country: CHN
    level: chapter
    section: "1"
    chapter: "01"
    kind: original
    value: 3
receipt: [can, MEX]
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(steel))
	require.NoError(t, err)

	assert.Equal(t, "steel", f.Name)
	require.Len(t, f.Edits, 3)
	assert.Equal(t, "CAN", f.Edits[0].Country)
	assert.Equal(t, "section", f.Edits[0].Level)
	assert.Equal(t, "current", f.Edits[0].Kind)
	assert.Equal(t, "hs4", f.Edits[1].Level)
	assert.Equal(t, "chapter", f.Edits[2].Level)
	assert.Equal(t, "original", f.Edits[2].Kind)
	assert.Equal(t, []string{"CAN", "MEX"}, f.Receipt)

	assert.InDelta(t, 0.8, f.PassThroughRate(1), 1e-12)

	snap := f.Snapshot(1)
	assert.Equal(t, tariff.ModeOriginalCurrent, snap.Mode)
	require.NotNil(t, snap.WorldRate)
	assert.Equal(t, 10.0, *snap.WorldRate)
	require.Len(t, snap.Edits, 3)
	for _, e := range snap.Edits {
		assert.Equal(t, "original-current", e.Mode)
		assert.InDelta(t, 0.8, e.PassThrough, 1e-12)
	}
	assert.Equal(t, "8471", snap.Edits[1].HS4)
}

func TestParse_Defaults(t *testing.T) {
	f, err := Parse(strings.NewReader("edits:\n  - {country: CAN, section: \"1\", value: 10}\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.6, f.PassThroughRate(0.6))
	snap := f.Snapshot(0.6)
	assert.Equal(t, tariff.ModeTariffChange, snap.Mode)
	assert.Nil(t, snap.WorldRate)
	assert.Empty(t, snap.Receipt)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty document"},
		{name: "unknown key", doc: "nmae: x\n", want: "nmae"},
		{name: "bad mode", doc: "mode: sideways\n", want: "propagation mode"},
		{name: "pass-through above 100", doc: "pass_through: 150\n", want: "pass_through"},
		{name: "negative world rate", doc: "world_rate: -1\n", want: "world_rate"},
		{name: "world rate not a number", doc: "world_rate: .nan\n", want: "world_rate"},
		{name: "pass-through not a number", doc: "pass_through: .nan\n", want: "pass_through"},
		{name: "edit value not a number", doc: "edits:\n  - {country: CAN, section: \"1\", value: .nan}\n", want: "not a number"},
		{name: "edit value infinite", doc: "edits:\n  - {country: CAN, section: \"1\", value: .inf}\n", want: "not a number"},
		{name: "edit without country", doc: "edits:\n  - {section: \"1\", value: 1}\n", want: "missing country"},
		{name: "edit for world", doc: "edits:\n  - {country: WLD, section: \"1\", value: 1}\n", want: "world aggregate"},
		{name: "edit without section", doc: "edits:\n  - {country: CAN, value: 1}\n", want: "missing section"},
		{name: "hs4 without chapter", doc: "edits:\n  - {country: CAN, section: \"1\", hs4: \"0101\", value: 1}\n", want: "without chapter"},
		{name: "level mismatch", doc: "edits:\n  - {country: CAN, level: hs4, section: \"1\", value: 1}\n", want: "does not match"},
		{name: "bad kind", doc: "edits:\n  - {country: CAN, section: \"1\", kind: future, value: 1}\n", want: "invalid"},
		{name: "duplicate receipt", doc: "receipt: [CAN, can]\n", want: "twice"},
		{name: "world on receipt", doc: "receipt: [WRLD]\n", want: "world aggregate"},
		{name: "empty receipt entry", doc: "receipt: [\"\"]\n", want: "empty"},
		{name: "two documents", doc: "name: a\n---\nname: b\n", want: "multiple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, ErrInvalidFile)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckHierarchy(t *testing.T) {
	sections := testutil.BasicSections()

	f, err := Parse(strings.NewReader(steel))
	require.NoError(t, err)
	require.NoError(t, f.CheckHierarchy(sections))

	bad, err := Parse(strings.NewReader(`
edits:
  - {country: CAN, section: "1", chapter: "07", value: 1}
  - {country: CAN, section: "99", value: 1}
  - {country: CAN, section: "2", value: 1}
`))
	require.NoError(t, err)

	err = bad.CheckHierarchy(sections)
	require.ErrorIs(t, err, ErrInvalidFile)
	require.ErrorIs(t, err, tariff.ErrUnknownPath)
	assert.Contains(t, err.Error(), "edit 1")
	assert.Contains(t, err.Error(), "edit 2")
	assert.NotContains(t, err.Error(), "edit 3")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(steel), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "steel", f.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
