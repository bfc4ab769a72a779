package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const techuiYAML = `beamline:
  dom: t01
  desc: Test Beamline
components:
  FSHTR:
    prefix: BL01T-EA-FSHTR-01
    desc: Fast Shutter
  D1:
    prefix: BL01T-DI-PHDGN-01
    desc: Diode 1
    file: test.bob
  MOTOR:
    prefix: BL01T-MO-MAP-01:STAGE
    desc: Motor Stage
    extras:
      - BL01T-MO-BRICK-01
    file: motor.bob
    macros:
      AXIS: X
      SPEED: 5
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadComponents(t *testing.T) {
	cfg, err := Load(writeConfig(t, "techui.yaml", techuiYAML))
	require.NoError(t, err)

	require.Equal(t, "bl01t", cfg.Beamline.LongDom)
	require.Equal(t, "t01", cfg.Beamline.ShortDom)
	require.Equal(t, "Test Beamline", cfg.Beamline.Desc)

	require.Len(t, cfg.Components, 3)
	keys := []string{cfg.Components[0].Key, cfg.Components[1].Key, cfg.Components[2].Key}
	require.Equal(t, []string{"FSHTR", "D1", "MOTOR"}, keys)

	fshtr := cfg.Components[0]
	require.Equal(t, "BL01T-EA-FSHTR-01", fshtr.P)
	require.Empty(t, fshtr.R)
	require.Equal(t, "FSHTR.bob", fshtr.File)

	require.Equal(t, "test.bob", cfg.Components[1].File)

	motor, ok := cfg.Component("MOTOR")
	require.True(t, ok)
	require.Equal(t, "BL01T-MO-MAP-01", motor.P)
	require.Equal(t, "STAGE", motor.R)
	require.Equal(t, []string{"BL01T-MO-BRICK-01"}, motor.Extras)
	require.Equal(t, Macros{{Name: "AXIS", Value: "X"}, {Name: "SPEED", Value: "5"}}, motor.Macros)
}

func TestLoadLegacyDomPair(t *testing.T) {
	content := `beamline:
  short_dom: t01
  long_dom: bl01t
  desc: Test Beamline
components: {}
`
	cfg, err := Load(writeConfig(t, "techui.yaml", content))
	require.NoError(t, err)
	require.Equal(t, "bl01t", cfg.Beamline.Dom)
	require.Empty(t, cfg.Components)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"bad dom": `beamline:
  dom: blah
  desc: x
components: {}
`,
		"mismatched legacy dom": `beamline:
  short_dom: b02
  long_dom: bl01t
  desc: x
components: {}
`,
		"lowercase key": `beamline:
  dom: bl01t
  desc: x
components:
  motor:
    prefix: BL01T-MO-MOTOR-01
`,
		"bad prefix": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T--MOTOR-01
`,
		"too few segments": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO
`,
		"duplicate extras": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    extras: [BL01T-MO-MOTOR-02, BL01T-MO-MOTOR-02]
`,
		"macros without file": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    macros:
      A: B
`,
		"duplicate keys": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
  MOTOR:
    prefix: BL01T-MO-MOTOR-02
`,
		"unknown field": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    colour: red
`,
		"file outside output": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    file: ../../motor.bob
`,
		"absolute file": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    file: /tmp/motor.bob
`,
		"bad filter": `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    filter: 'Type +'
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "techui.yaml", content))
			require.Error(t, err)
		})
	}
}

func TestLoadKeepsExtrasThatAreNotPrefixes(t *testing.T) {
	content := `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MAP-01:STAGE
    extras: [BAD-PV, BL01T-MO-BRICK-01]
    file: screens/motor.bob
`
	cfg, err := Load(writeConfig(t, "techui.yaml", content))
	require.NoError(t, err)
	require.Equal(t, []string{"BAD-PV", "BL01T-MO-BRICK-01"}, cfg.Components[0].Extras)
	require.Equal(t, "screens/motor.bob", cfg.Components[0].File)
}

func TestSchemaErrorsListEveryViolation(t *testing.T) {
	content := `beamline:
  desc: 3
components:
  MOTOR:
    desc: missing prefix
`
	_, err := Load(writeConfig(t, "techui.yaml", content))
	require.Error(t, err)

	var schemaErr *SchemaErrors
	require.True(t, errors.As(err, &schemaErr))
	require.GreaterOrEqual(t, len(schemaErr.Errors), 2)
}

func TestComponentFilter(t *testing.T) {
	content := `beamline:
  dom: bl01t
  desc: x
components:
  MOTOR:
    prefix: BL01T-MO-MOTOR-01
    filter: 'Type != "pmac.autohome" && M != "Z"'
`
	cfg, err := Load(writeConfig(t, "techui.yaml", content))
	require.NoError(t, err)
	comp := cfg.Components[0]

	ok, err := comp.Accept(map[string]interface{}{"Type": "pmac.autohome", "P": "p", "M": "", "R": "", "Desc": ""})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = comp.Accept(map[string]interface{}{"Type": "pmac.dls_pmac_asyn_motor", "P": "p", "M": "X", "R": "", "Desc": ""})
	require.NoError(t, err)
	require.True(t, ok)

	var none *Component
	ok, err = none.Accept(nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadCUE(t *testing.T) {
	content := `beamline: {
	dom:  "bl01t"
	desc: "Test Beamline"
}
components: {
	MOTOR: {
		prefix: "BL01T-MO-MOTOR-01"
		extras: ["BL01T-MO-BRICK-*"]
	}
}
`
	cfg, err := Load(writeConfig(t, "techui.cue", content))
	require.NoError(t, err)
	require.Len(t, cfg.Components, 1)
	require.Equal(t, "MOTOR", cfg.Components[0].Key)
	require.Equal(t, []string{"BL01T-MO-BRICK-*"}, cfg.Components[0].Extras)
}

func TestLoadCUERejectsUnknownFields(t *testing.T) {
	content := `beamline: {
	dom:  "bl01t"
	desc: "Test Beamline"
}
components: MOTOR: {
	prefix: "BL01T-MO-MOTOR-01"
	colour: "red"
}
`
	_, err := Load(writeConfig(t, "techui.cue", content))
	require.Error(t, err)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/techui.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(techuiYAML))
	}))
	defer srv.Close()

	cfg, err := Fetch(context.Background(), srv.URL+"/techui.yaml", srv.Client())
	require.NoError(t, err)
	require.Len(t, cfg.Components, 3)
	require.Equal(t, srv.URL+"/techui.yaml", cfg.Source)

	_, err = Fetch(context.Background(), srv.URL+"/missing.yaml", srv.Client())
	require.Error(t, err)
	require.True(t, IsRemote(srv.URL))
	require.False(t, IsRemote("techui.yaml"))
}

func TestFetchRejectsOversizedDocument(t *testing.T) {
	padding := "# " + strings.Repeat("x", maxRemoteDocument) + "\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(techuiYAML + padding))
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.URL+"/techui.yaml", srv.Client())
	require.Error(t, err)
	require.Contains(t, err.Error(), "document too large")
}
