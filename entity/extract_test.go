package entity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const motorIOC = `ioc_name: bl01t-mo-ioc-01
entities:
  - type: pmac.GeoBrick
    name: BRICK1
    P: BL01T-MO-BRICK-01
  - type: pmac.autohome
    P: BL01T-MO-MOTOR-01
  - type: pmac.dls_pmac_asyn_motor
    P: BL01T-MO-MOTOR-01
    M: ":X"
  - type: pmac.dls_pmac_asyn_motor
    P: BL01T-MO-MOTOR-01
    M: A
  - type: epics.EpicsEnvSet
    name: EPICS_CA_MAX_ARRAY_BYTES
`

func writeService(t *testing.T, servicesDir, name, content string) {
	t.Helper()
	dir := filepath.Join(servicesDir, name, "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ioc.yaml"), []byte(content), 0o600))
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	writeService(t, dir, "bl01t-mo-ioc-01", motorIOC)

	table := NewTable()
	n, err := ExtractFile(filepath.Join(dir, "bl01t-mo-ioc-01", ServiceConfigPath), table)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.Equal(t, []string{"BL01T-MO-BRICK-01", "BL01T-MO-MOTOR-01"}, table.Prefixes())
	require.Equal(t, []Entity{{Type: "pmac.GeoBrick", P: "BL01T-MO-BRICK-01"}}, table.Get("BL01T-MO-BRICK-01"))

	motor := table.Get("BL01T-MO-MOTOR-01")
	require.Len(t, motor, 3)
	require.Equal(t, Entity{Type: "pmac.autohome", P: "BL01T-MO-MOTOR-01"}, motor[0])
	require.Equal(t, "X", motor[1].M)
	require.Equal(t, "A", motor[2].M)
	require.Empty(t, motor[2].R)
}

func TestExtractFileMalformedAddsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ioc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities: [\n  - type: x\n"), 0o600))

	table := NewTable()
	_, err := ExtractFile(path, table)
	require.Error(t, err)
	require.Zero(t, table.Len())
}

func TestExtractServicesSkipsMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	writeService(t, dir, "bl01t-mo-ioc-01", motorIOC)
	writeService(t, dir, "bl01t-di-ioc-01", `entities:
  - type: ADAravis.aravisCamera
    P: BL01T-DI-DCAM-01
    R: ":CAM:"
`)
	writeService(t, dir, "bl01t-ea-ioc-01", "entities: {{{")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bl01t-ea-ioc-02"), 0o755))
	// Not a service of this beamline.
	writeService(t, dir, "bl02t-mo-ioc-01", motorIOC)

	var logs bytes.Buffer
	table, results, err := ExtractServices(dir, "bl01t", zerolog.New(&logs))
	require.NoError(t, err)

	require.Len(t, results, 4)
	require.Equal(t, "bl01t-di-ioc-01", results[0].Name)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.False(t, results[1].Missing())
	require.True(t, results[2].Missing())
	require.Equal(t, 4, results[3].Entities)

	require.Equal(t, []string{"BL01T-DI-DCAM-01", "BL01T-MO-BRICK-01", "BL01T-MO-MOTOR-01"}, table.Prefixes())
	require.Equal(t, "CAM:", table.Get("BL01T-DI-DCAM-01")[0].R)
	require.Equal(t, 5, table.Count())
	require.Contains(t, logs.String(), "No ioc.yaml file for service: bl01t-ea-ioc-02. Does it exist?")
}

func TestTableOrderAndCopies(t *testing.T) {
	table := NewTable()
	table.Add(New("b", "", "Z-P-01", "", ""))
	table.Add(New("a", "", "A-P-01", "", ""))
	table.Add(New("c", "", "Z-P-01", "", ""))

	require.Equal(t, []string{"Z-P-01", "A-P-01"}, table.Prefixes())
	require.Equal(t, []string{"A-P-01", "Z-P-01"}, table.SortedPrefixes())
	require.True(t, table.Has("A-P-01"))
	require.False(t, table.Has("B-P-01"))
	require.Nil(t, table.Get("B-P-01"))

	bucket := table.Get("Z-P-01")
	bucket[0].Type = "mutated"
	require.Equal(t, "b", table.Get("Z-P-01")[0].Type)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "X", New("t", "", "P", ":X", "R").DisplayName())
	require.Equal(t, "R1", New("t", "", "P", "", ":R1").DisplayName())
	require.Equal(t, "t", New("t", "", "P", "", "").DisplayName())
}
