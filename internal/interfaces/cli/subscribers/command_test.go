package subscribers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/shared/errors"
)

const table = `subscribers:
  - imsi: "001010000000001"
    algorithm: comp128
    key: "465B5CE8B199B49FAA5F0A2EE238A6BC"
    number: "5551001"
  - imsi: "001010000000002"
    algorithm: milenage
    key: "465B5CE8B199B49FAA5F0A2EE238A6BC"
    op: "CDC202D5123E20F62B6D676AC72CB318"
    active: false
`

func writeTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscribers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o600))
	return path
}

func TestCheckTable(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, Check(&out, writeTable(t), "", nil))

	assert.Contains(t, out.String(), "policy:      table")
	assert.Contains(t, out.String(), "subscribers: 2 (1 inactive)")
	assert.Contains(t, out.String(), "comp128:")
	assert.Contains(t, out.String(), "milenage:")
}

func TestCheckRejectsAmbiguousPolicy(t *testing.T) {
	err := Check(&bytes.Buffer{}, writeTable(t), "", []string{"^00101"})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCheckPatternOnly(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, Check(&out, filepath.Join(t.TempDir(), "missing.yaml"), "", []string{"^00101"}))

	assert.Contains(t, out.String(), "policy:      pattern")
	assert.Contains(t, out.String(), "subscribers: 0 (0 inactive)")
}
