package provision

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"wg-redirect/pkg/model"
	"wg-redirect/pkg/remote"
)

// Deployer installs the synthesized control script on the server and keeps
// its supervised unit running. There is no rollback: a failure here surfaces
// to the operator with the failing step named.
type Deployer struct {
	Runner     Runner
	ScriptPath string
	UnitName   string
}

// Deploy pushes the script to a temporary path, moves it into place, marks
// it executable, installs the systemd unit only when absent (re-running must
// never clobber an existing unit) and restarts the service unconditionally so
// the fresh script takes effect.
func (d *Deployer) Deploy(ctx context.Context, artifact model.ScriptArtifact) error {
	tmpPath := d.ScriptPath + ".tmp"
	if err := d.Runner.Push(ctx, []byte(artifact.Content), tmpPath); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	unit := fmt.Sprintf(`[Unit]
Description=wg-redirect server tunnel supervisor
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=%s
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, d.ScriptPath)

	script := fmt.Sprintf(`set -eu
mv %[1]s %[2]s
chmod 0755 %[2]s
if ! systemctl list-unit-files %[3]s --no-legend 2>/dev/null | grep -q .; then
	cat > %[4]s <<'UNIT'
%[5]sUNIT
	systemctl daemon-reload
fi
systemctl enable %[3]s >/dev/null 2>&1
systemctl restart %[3]s
`, remote.ShellQuote(tmpPath), remote.ShellQuote(d.ScriptPath), remote.ShellQuote(d.UnitName), remote.ShellQuote("/etc/systemd/system/"+d.UnitName), unit)

	if _, err := d.Runner.Run(ctx, script); err != nil {
		return fmt.Errorf("deploy: install script and unit: %w", err)
	}
	log.WithFields(log.Fields{"script": d.ScriptPath, "unit": d.UnitName, "fingerprint": artifact.Fingerprint}).Info("server script deployed")
	return nil
}

// EnsureRunning starts the unit only when it is not already active. Used on
// the no-update path so a converged remote stays untouched.
func (d *Deployer) EnsureRunning(ctx context.Context) error {
	script := fmt.Sprintf("systemctl is-active --quiet %[1]s 2>/dev/null || systemctl start %[1]s\n", remote.ShellQuote(d.UnitName))
	if _, err := d.Runner.Run(ctx, script); err != nil {
		return fmt.Errorf("ensure unit running: %w", err)
	}
	return nil
}
