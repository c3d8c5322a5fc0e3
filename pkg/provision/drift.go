package provision

import (
	"context"
	"fmt"
	"strings"

	"wg-redirect/pkg/model"
	"wg-redirect/pkg/remote"
)

// Runner is the remote execution and transfer channel the engine drives.
type Runner interface {
	Run(ctx context.Context, script string) (string, error)
	Push(ctx context.Context, content []byte, remotePath string) error
}

// NeedsUpdate decides whether the server must be redeployed. Any fingerprint
// divergence forces an update; a matching script with no installed unit is
// equally "not yet provisioned".
func NeedsUpdate(local model.ScriptArtifact, state model.RemoteState) bool {
	if state.Fingerprint == "" || state.Fingerprint != local.Fingerprint {
		return true
	}
	return !state.UnitInstalled
}

// QueryRemoteState reads the authoritative deployment state from the server
// in a single round trip: deployed script fingerprint, unit presence and unit
// activity. The activity check degrades in-script to "inactive" rather than
// failing; a channel failure is returned to the caller.
func QueryRemoteState(ctx context.Context, r Runner, scriptPath, unitName string) (model.RemoteState, error) {
	script := fmt.Sprintf(`if [ -f %[1]s ]; then sha256sum %[1]s | awk '{print $1}'; else echo -; fi
if systemctl list-unit-files %[2]s --no-legend 2>/dev/null | grep -q .; then echo installed; else echo absent; fi
systemctl is-active --quiet %[2]s 2>/dev/null && echo active || echo inactive
`, remote.ShellQuote(scriptPath), remote.ShellQuote(unitName))

	out, err := r.Run(ctx, script)
	if err != nil {
		return model.RemoteState{}, fmt.Errorf("query remote state: %w", err)
	}

	// A login shell may prepend noise; the three answers are the last lines.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		return model.RemoteState{}, fmt.Errorf("query remote state: unexpected output %q", out)
	}
	fp := strings.TrimSpace(lines[len(lines)-3])
	installed := strings.TrimSpace(lines[len(lines)-2])
	active := strings.TrimSpace(lines[len(lines)-1])

	st := model.RemoteState{
		UnitInstalled: installed == "installed",
		UnitActive:    active == "active",
	}
	if fp != "-" {
		st.Fingerprint = fp
	}
	return st, nil
}
