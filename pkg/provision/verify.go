package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wg-redirect/pkg/remote"
)

// Verifier probes reachability across the tunnel and gathers diagnostics
// when the probe fails. It never fails the run; a broken probe is reported
// and the pipeline continues into supervision.
type Verifier struct {
	Runner   Runner
	Iface    string
	Attempts int
	Timeout  time.Duration

	execf func(name string, args ...string) (string, error)
}

// NewVerifier returns a verifier with the given probe budget.
func NewVerifier(r Runner, iface string, attempts int, timeout time.Duration) *Verifier {
	return &Verifier{Runner: r, Iface: iface, Attempts: attempts, Timeout: timeout, execf: execCommand}
}

// Probe pings target through the tunnel; success if any attempt succeeds.
func (v *Verifier) Probe(ctx context.Context, target string) bool {
	attempts := v.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	secs := int(v.Timeout / time.Second)
	if secs <= 0 {
		secs = 1
	}
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		if out, err := v.execf("ping", "-c", "1", "-W", strconv.Itoa(secs), target); err == nil {
			fields := log.Fields{"target": target, "attempt": i + 1}
			if ms := parsePingLatency(out); ms > 0 {
				fields["latencyMs"] = ms
			}
			log.WithFields(fields).Info("tunnel probe succeeded")
			return true
		}
	}
	log.WithFields(log.Fields{"target": target, "attempts": attempts}).Warn("tunnel probe failed")
	return false
}

// ProbeRemote pings target from the server side of the tunnel, so the
// reverse path (server to client) is exercised too. Same budget as Probe.
func (v *Verifier) ProbeRemote(ctx context.Context, target string) bool {
	if v.Runner == nil {
		return false
	}
	attempts := v.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	secs := int(v.Timeout / time.Second)
	if secs <= 0 {
		secs = 1
	}
	script := fmt.Sprintf("ping -c 1 -W %d %s", secs, remote.ShellQuote(target))
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		if out, err := v.Runner.Run(ctx, script); err == nil {
			fields := log.Fields{"target": target, "attempt": i + 1, "direction": "reverse"}
			if ms := parsePingLatency(out); ms > 0 {
				fields["latencyMs"] = ms
			}
			log.WithFields(fields).Info("tunnel probe succeeded")
			return true
		}
	}
	log.WithFields(log.Fields{"target": target, "attempts": attempts, "direction": "reverse"}).Warn("tunnel probe failed")
	return false
}

// Diagnose collects interface status from both ends, best effort. The result
// is informational text for the operator, never an error.
func (v *Verifier) Diagnose(ctx context.Context) string {
	var parts []string
	add := func(label, out string, err error) {
		out = strings.TrimSpace(out)
		if err != nil && out == "" {
			parts = append(parts, fmt.Sprintf("%s: (error: %v)", label, err))
			return
		}
		if out == "" {
			out = "(empty)"
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", label, out))
	}

	out, err := v.execf("wg", "show", v.Iface)
	add("local wg show", out, err)
	out, err = v.execf("wg", "show", v.Iface, "latest-handshakes")
	add("local latest-handshakes", out, err)

	if v.Runner != nil {
		q := remote.ShellQuote(v.Iface)
		rout, rerr := v.Runner.Run(ctx, fmt.Sprintf("wg show %[1]s; wg show %[1]s latest-handshakes", q))
		add("remote wg show", rout, rerr)
	}
	return strings.Join(parts, "\n\n")
}

var pingRttRe = regexp.MustCompile(`= ([0-9.]+)/`)

func parsePingLatency(s string) float64 {
	m := pingRttRe.FindStringSubmatch(s)
	if len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	return 0
}

func execCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	if err != nil {
		if out == "" {
			return "", err
		}
		return out, fmt.Errorf("%w (%s)", err, out)
	}
	return out, nil
}
