package consumption

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadProfileFromCSV_ParsesRowsIntoProvider(t *testing.T) {
	path := writeCSV(t, "month,weekday,hour,energy_wh\n1,3,14,500\n1,3,15,600\n")

	provider, err := LoadProfileFromCSV(path, time.UTC)
	require.NoError(t, err)

	assert.InDelta(t, 500, provider.Profile[profileKey{Month: time.January, Weekday: time.Wednesday, Hour: 14}], 1e-9)
	assert.InDelta(t, 550, provider.Fallback, 1e-9)
}

func TestLoadProfileFromCSV_RejectsWrongHeader(t *testing.T) {
	path := writeCSV(t, "foo,bar,baz,qux\n1,3,14,500\n")
	_, err := LoadProfileFromCSV(path, time.UTC)
	assert.Error(t, err)
}

func TestLoadProfileFromCSV_RejectsMissingFile(t *testing.T) {
	_, err := LoadProfileFromCSV(filepath.Join(t.TempDir(), "missing.csv"), time.UTC)
	assert.Error(t, err)
}

func TestLoadProfileFromCSV_RejectsEmptyFile(t *testing.T) {
	path := writeCSV(t, "month,weekday,hour,energy_wh\n")
	_, err := LoadProfileFromCSV(path, time.UTC)
	assert.Error(t, err)
}
