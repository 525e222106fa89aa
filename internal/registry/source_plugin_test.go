//go:build plugintest

package registry

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pluginMain = `package main

var Exports = map[string]any{
	"Version": "1.0.0",
	"Build":   func() string { return "built" },
}

func main() {}
`

// Run with: go test -tags plugintest ./internal/registry/
func TestPluginSource_LoadsBuiltPlugin(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a Go plugin")
	}
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "go.mod"), []byte("module demo\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.go"), []byte(pluginMain), 0o644))

	out := t.TempDir()
	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", filepath.Join(out, "demo.strats.so"), ".")
	cmd.Dir = src
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("plugin build unavailable: %v\n%s", err, b)
	}

	s := NewPluginSource(out)
	assert.Equal(t, []string{"demo.strats"}, s.Modules())

	ex, ok, err := s.Lookup("demo.strats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", ex["Version"])

	again, ok, err := s.Lookup("demo.strats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ex["Version"], again["Version"])
}
