package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"wg-redirect/pkg/model"
)

func TestDeploy(t *testing.T) {
	r := &fakeRunner{}
	d := &Deployer{Runner: r, ScriptPath: "/usr/local/bin/wg-redirect-server", UnitName: "wg-redirect-server.service"}

	err := d.Deploy(context.Background(), model.ScriptArtifact{Content: "#!/bin/sh\n", Fingerprint: "fp"})
	require.NoError(t, err)
	require.Len(t, r.scripts, 2)

	require.Equal(t, "push:/usr/local/bin/wg-redirect-server.tmp", r.scripts[0])

	install := r.scripts[1]
	require.Contains(t, install, "mv '/usr/local/bin/wg-redirect-server.tmp' '/usr/local/bin/wg-redirect-server'")
	require.Contains(t, install, "chmod 0755")
	// Unit is only written when missing; restart is unconditional.
	require.Contains(t, install, "if ! systemctl list-unit-files 'wg-redirect-server.service'")
	require.Contains(t, install, "ExecStart=/usr/local/bin/wg-redirect-server")
	require.Contains(t, install, "Restart=always")
	require.Contains(t, install, "systemctl restart 'wg-redirect-server.service'")
}

func TestDeployTransferFailureIsFatal(t *testing.T) {
	r := &fakeRunner{err: errors.New("broken pipe")}
	d := &Deployer{Runner: r, ScriptPath: "/p", UnitName: "u"}
	err := d.Deploy(context.Background(), model.ScriptArtifact{Content: "x"})
	require.ErrorContains(t, err, "deploy")
	require.ErrorContains(t, err, "broken pipe")
}

func TestEnsureRunning(t *testing.T) {
	r := &fakeRunner{}
	d := &Deployer{Runner: r, ScriptPath: "/p", UnitName: "u.service"}
	require.NoError(t, d.EnsureRunning(context.Background()))
	require.Len(t, r.scripts, 1)
	require.Contains(t, r.scripts[0], "systemctl is-active --quiet 'u.service'")
	require.Contains(t, r.scripts[0], "systemctl start 'u.service'")
}
