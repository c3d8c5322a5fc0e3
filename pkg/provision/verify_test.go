package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const pingOutput = `PING 10.10.10.1 (10.10.10.1) 56(84) bytes of data.
64 bytes from 10.10.10.1: icmp_seq=1 ttl=64 time=12.3 ms

--- 10.10.10.1 ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms
rtt min/avg/max/mdev = 12.341/12.341/12.341/0.000 ms`

func TestParsePingLatency(t *testing.T) {
	require.InDelta(t, 12.341, parsePingLatency(pingOutput), 0.001)
	require.Zero(t, parsePingLatency("garbage"))
}

func TestProbeSucceedsOnAnyAttempt(t *testing.T) {
	attempts := 0
	v := &Verifier{Attempts: 3, Timeout: time.Second, execf: func(string, ...string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("100% packet loss")
		}
		return pingOutput, nil
	}}
	require.True(t, v.Probe(context.Background(), "10.10.10.1"))
	require.Equal(t, 3, attempts)
}

func TestProbeFailsAfterBudget(t *testing.T) {
	attempts := 0
	v := &Verifier{Attempts: 2, Timeout: time.Second, execf: func(string, ...string) (string, error) {
		attempts++
		return "", errors.New("unreachable")
	}}
	require.False(t, v.Probe(context.Background(), "10.10.10.1"))
	require.Equal(t, 2, attempts)
}

func TestProbeRemoteQuotesTarget(t *testing.T) {
	r := &fakeRunner{out: pingOutput}
	v := &Verifier{Runner: r, Attempts: 2, Timeout: time.Second}
	require.True(t, v.ProbeRemote(context.Background(), "10.10.10.2"))
	require.Len(t, r.scripts, 1)
	require.Contains(t, r.scripts[0], "ping -c 1 -W 1 '10.10.10.2'")
}

func TestProbeRemoteFailsAfterBudget(t *testing.T) {
	r := &fakeRunner{err: errors.New("unreachable")}
	v := &Verifier{Runner: r, Attempts: 2, Timeout: time.Second}
	require.False(t, v.ProbeRemote(context.Background(), "10.10.10.2"))
	require.Len(t, r.scripts, 2)
}

func TestDiagnoseCollectsBothEnds(t *testing.T) {
	r := &fakeRunner{out: "peer: abc\n  latest handshake: 5 seconds ago"}
	v := &Verifier{Runner: r, Iface: "wg0", execf: func(name string, args ...string) (string, error) {
		return "interface: wg0", nil
	}}
	diag := v.Diagnose(context.Background())
	require.Contains(t, diag, "local wg show")
	require.Contains(t, diag, "interface: wg0")
	require.Contains(t, diag, "remote wg show")
	require.Contains(t, diag, "latest handshake")
}
