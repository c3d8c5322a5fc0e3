// Package provision holds the state-convergence engine: it synthesizes the
// server control script, compares it against what is deployed, pushes updates
// over the remote channel and verifies the tunnel end to end.
package provision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"text/template"

	"wg-redirect/pkg/model"
	"wg-redirect/pkg/remote"
	"wg-redirect/pkg/wireguard"
)

// RenderError means synthesis failed on inputs that passed configuration
// validation; it indicates a programming defect, not an operator mistake.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "script synthesis failed: " + e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }

// serverScriptTpl is the self-contained control script deployed to the
// server: it replaces any prior instance of itself, resolves the private key
// locally, installs the tunnel config, brings the interface up (the config's
// PostUp rules apply the redirect NAT), probes the client, prints a status
// summary and then supervises the interface forever. The trap tears the
// interface down on termination, which reverses the NAT rules via PostDown.
const serverScriptTpl = `#!/bin/sh
# Managed by wg-redirect; edits are overwritten on redeploy.
set -u

IFACE={{.Iface}}
CONF={{.ConfPath}}
KEY_PATH={{.KeyPath}}
PING_TARGET={{.PingTarget}}

teardown() {
	wg-quick down "$CONF" >/dev/null 2>&1 || true
	exit 0
}
trap teardown INT TERM

# Replace any prior instance of this tunnel.
wg-quick down "$CONF" >/dev/null 2>&1 || true

WG_PRIVATE_KEY="$(cat "$KEY_PATH")"
umask 077
cat > "$CONF" <<EOF
{{.Config}}EOF

wg-quick up "$CONF"

if ping -c 1 -W 2 "$PING_TARGET" >/dev/null 2>&1; then
	echo "wg-redirect: peer $PING_TARGET reachable"
else
	echo "wg-redirect: peer $PING_TARGET not reachable yet"
fi
wg show "$IFACE" || true

while true; do
	sleep {{.Period}}
	if ! ip link show "$IFACE" >/dev/null 2>&1; then
		echo "wg-redirect: interface $IFACE missing, re-applying"
		wg-quick up "$CONF" || true
	fi
done
`

// Synthesize renders the server control script for params, with the server
// private key read from serverKeyPath on the server at run time. The result
// is deterministic: identical params and key path produce an identical
// fingerprint, which is what makes the drift decision meaningful.
func Synthesize(p model.ProvisioningParams, serverKeyPath string) (model.ScriptArtifact, error) {
	if err := validateParams(p, serverKeyPath); err != nil {
		return model.ScriptArtifact{}, err
	}

	// The private key never crosses the channel: the config embeds a shell
	// variable the script resolves on the server.
	conf, err := wireguard.RenderConfig(wireguard.RoleServer, p, "${WG_PRIVATE_KEY}")
	if err != nil {
		return model.ScriptArtifact{}, &RenderError{Err: err}
	}

	data := map[string]any{
		"Iface":      remote.ShellQuote(p.Interface),
		"ConfPath":   remote.ShellQuote("/etc/wireguard/" + p.Interface + ".conf"),
		"KeyPath":    remote.ShellQuote(serverKeyPath),
		"PingTarget": remote.ShellQuote(p.ClientTunnelIP),
		"Config":     conf,
		"Period":     60,
	}

	t, err := template.New("server-script").Option("missingkey=error").Parse(serverScriptTpl)
	if err != nil {
		return model.ScriptArtifact{}, &RenderError{Err: err}
	}
	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return model.ScriptArtifact{}, &RenderError{Err: err}
	}

	content := out.String()
	sum := sha256.Sum256([]byte(content))
	return model.ScriptArtifact{Content: content, Fingerprint: hex.EncodeToString(sum[:])}, nil
}

// validateParams rejects values that would corrupt the generated script.
// Everything spliced into the script goes through shell quoting as well, but
// the config body sits inside an expanding heredoc, so metacharacters are a
// correctness problem before they are a security one.
func validateParams(p model.ProvisioningParams, serverKeyPath string) error {
	fields := []struct {
		name       string
		value      string
		allowSpace bool
	}{
		{"interface", p.Interface, false},
		{"serverEndpoint", p.ServerEndpoint, false},
		{"serverTunnelIp", p.ServerTunnelIP, false},
		{"clientTunnelIp", p.ClientTunnelIP, false},
		{"additionalAddr", p.AdditionalAddr, false},
		{"serverPublicKey", p.ServerPublicKey, false},
		{"clientPublicKey", p.ClientPublicKey, false},
		{"allowedRange", p.AllowedRange, true},
		{"serverKeyPath", serverKeyPath, false},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &RenderError{Err: fmt.Errorf("parameter %s is empty", f.name)}
		}
		if strings.ContainsAny(f.value, "$`\\'\";<>|&\n\t") {
			return &RenderError{Err: fmt.Errorf("parameter %s contains shell metacharacters: %q", f.name, f.value)}
		}
		if !f.allowSpace && strings.Contains(f.value, " ") {
			return &RenderError{Err: fmt.Errorf("parameter %s contains whitespace: %q", f.name, f.value)}
		}
	}
	if p.ListenPort <= 0 || p.ListenPort > 65535 {
		return &RenderError{Err: fmt.Errorf("listen port out of range: %d", p.ListenPort)}
	}
	return nil
}
