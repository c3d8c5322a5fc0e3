package remote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"plain":          "'plain'",
		"with space":     "'with space'",
		"it's":           `'it'"'"'s'`,
		"$HOME `id` \\n": "'$HOME `id` \\n'",
		"":               "''",
	}
	for in, want := range cases {
		require.Equal(t, want, ShellQuote(in))
	}
}

func TestExecErrorMessage(t *testing.T) {
	err := &ExecError{ExitCode: 3, Output: "boom"}
	require.Contains(t, err.Error(), "exited 3")
	require.Contains(t, err.Error(), "boom")
}

func TestTransferErrorUnwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := &TransferError{Path: "/tmp/x", Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "/tmp/x")
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	require.Equal(t, "/home/tester/.ssh/id_ed25519", expandHome("~/.ssh/id_ed25519"))
	require.Equal(t, "/abs/path", expandHome("/abs/path"))
}
