package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const techuiYAML = `beamline:
  dom: bl01t
  desc: Test Beamline
components:
  FSHTR:
    prefix: BL01T-EA-FSHTR-01
    desc: Fast Shutter
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTree(t *testing.T) (root, techui string) {
	t.Helper()
	root = t.TempDir()
	techui = filepath.Join(root, "synoptic", "techui.yaml")
	writeFile(t, techui, techuiYAML)
	writeFile(t, filepath.Join(root, "services", "bl01t-ea-ioc-01", "config", "ioc.yaml"), `entities:
  - type: dlsPLC.fastVacuumChannel
    P: BL01T-EA-FSHTR-01
`)
	writeFile(t, filepath.Join(root, "techui-support", "gui_map.yaml"), `dlsPLC.fastVacuumChannel:
  type: related
  file: dlsPLC/fast_shutter.bob
`)
	return root, techui
}

func TestRunGeneratesScreens(t *testing.T) {
	root, techui := newTree(t)
	metrics := filepath.Join(root, "metrics", "techui.prom")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--log-format", "json", "--metrics-file", metrics, techui}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	_, err := os.Stat(filepath.Join(root, "synoptic", "opis", "FSHTR.bob"))
	require.NoError(t, err)
	require.Contains(t, stderr.String(), `"message":"FSHTR.bob has been created successfully"`)

	raw, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(raw), `techui_builder_screens_total{outcome="written"} 1`)
}

func TestRunCustomOutput(t *testing.T) {
	root, techui := newTree(t)
	out := filepath.Join(root, "elsewhere")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--output", out, "--log-level", "error", techui}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	_, err := os.Stat(filepath.Join(out, "FSHTR.bob"))
	require.NoError(t, err)
	require.Empty(t, stderr.String())
}

func TestRunExitCodes(t *testing.T) {
	root, techui := newTree(t)

	cases := map[string]struct {
		args []string
		code int
	}{
		"no arguments":       {args: nil, code: 2},
		"too many":           {args: []string{techui, techui}, code: 2},
		"unknown flag":       {args: []string{"--colour", techui}, code: 2},
		"missing config":     {args: []string{filepath.Join(root, "missing.yaml")}, code: 1},
		"bad log level":      {args: []string{"--log-level", "loud", techui}, code: 1},
		"missing services":   {args: []string{"--services", filepath.Join(root, "nowhere"), techui}, code: 1},
		"no entities":        {args: []string{"--services", t.TempDir(), techui}, code: 1},
		"bad watch interval": {args: []string{"--watch", "--watch-interval", "0s", techui}, code: 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, tc.code, run(context.Background(), tc.args, &stdout, &stderr), stderr.String())
		})
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"--version"}, &stdout, &stderr))
	require.Equal(t, "techui-builder "+version+"\n", stdout.String())
}

func TestRunWatchRegeneratesUntilCancelled(t *testing.T) {
	root, techui := newTree(t)
	screen := filepath.Join(root, "synoptic", "opis", "FSHTR.bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan int, 1)
	var stdout bytes.Buffer
	stderr := &lockedBuffer{}
	go func() {
		done <- run(ctx, []string{"--watch", "--watch-interval", "10ms", "--log-format", "json", techui}, &stdout, stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "watching for changes")
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, os.Remove(screen))

	updated := strings.Replace(techuiYAML, "Fast Shutter", "Fast Shutter A", 1)
	require.NoError(t, os.WriteFile(techui, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		_, err := os.Stat(screen)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.Equal(t, 0, <-done)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
