package tunnel

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeExec(calls *[][]string, fail map[string]error) func(string, ...string) (string, error) {
	return func(name string, args ...string) (string, error) {
		call := append([]string{name}, args...)
		*calls = append(*calls, call)
		if fail != nil {
			if err, ok := fail[name+" "+args[0]]; ok {
				return "", err
			}
		}
		return "", nil
	}
}

func TestControllerUpWritesConfigAndApplies(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	c := &Controller{Iface: "wg0", ConfDir: dir, execf: fakeExec(&calls, nil)}

	require.NoError(t, c.Up("[Interface]\nAddress = 10.10.10.2/32\n"))

	path := filepath.Join(dir, "wg0.conf")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Address = 10.10.10.2/32")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	// Defensive down precedes up.
	require.Equal(t, [][]string{
		{"wg-quick", "down", path},
		{"wg-quick", "up", path},
	}, calls)
}

func TestControllerUpTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	c := &Controller{Iface: "wg0", ConfDir: dir, execf: fakeExec(&calls, nil)}

	require.NoError(t, c.Up("conf-a"))
	require.NoError(t, c.Up("conf-a"))
	// Each up is preceded by its own teardown; no error on the second pass.
	require.Len(t, calls, 4)
}

func TestControllerDownSwallowsErrors(t *testing.T) {
	var calls [][]string
	c := &Controller{Iface: "wg0", ConfDir: t.TempDir(), execf: fakeExec(&calls, map[string]error{
		"wg-quick down": errors.New("interface not found"),
	})}
	c.Down() // must not panic or propagate
	require.Len(t, calls, 1)
}

func TestControllerReapplyRequiresPriorUp(t *testing.T) {
	var calls [][]string
	c := &Controller{Iface: "wg0", ConfDir: t.TempDir(), execf: fakeExec(&calls, nil)}
	require.Error(t, c.Reapply())

	require.NoError(t, c.Up("conf"))
	require.NoError(t, c.Reapply())
}

func TestControllerIsUpForMissingInterface(t *testing.T) {
	c := NewController("wg-redirect-test-does-not-exist", t.TempDir())
	require.False(t, c.IsUp())
}
