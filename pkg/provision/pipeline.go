package provision

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"wg-redirect/pkg/config"
	"wg-redirect/pkg/journal"
	"wg-redirect/pkg/model"
	"wg-redirect/pkg/wireguard"
)

// Tunnel is the local controller surface the pipeline drives.
type Tunnel interface {
	Up(config string) error
	Down()
}

// Prober verifies reachability and gathers diagnostics on failure.
type Prober interface {
	Probe(ctx context.Context, target string) bool
	ProbeRemote(ctx context.Context, target string) bool
	Diagnose(ctx context.Context) string
}

// Supervisor runs the local liveness loop until ctx is cancelled.
type Supervisor interface {
	Run(ctx context.Context)
}

// Pipeline is one sequential provisioning run: keys, render, local bring-up,
// synthesis, drift reconciliation, conditional deploy, verification, then
// supervision. Every remote call blocks; each step depends on the previous
// one, so there is no parallelism to manage. Local teardown is registered
// before the first mutation and runs exactly once on any exit path.
type Pipeline struct {
	Cfg        config.Config
	Runner     Runner
	Tunnel     Tunnel
	Prober     Prober
	Supervisor Supervisor
	Journal    *journal.Journal
}

// Run executes the full pipeline. It returns ctx.Err() when cancelled, which
// callers treat as a graceful exit; provisioning failures are fatal and
// surfaced as-is. Verification failure is reported but never aborts.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.Tunnel.Down()

	serverPub, err := wireguard.EnsureRemoteKeyPair(ctx, p.Runner, p.Cfg.ServerKeyPath, p.Cfg.ServerPubPath)
	if err != nil {
		p.Journal.Record("keys", "error", err.Error())
		return err
	}
	clientPub, err := wireguard.EnsureLocalKeyPair(p.Cfg.ClientKeyPath, p.Cfg.ClientPubPath)
	if err != nil {
		p.Journal.Record("keys", "error", err.Error())
		return err
	}
	clientPriv, err := wireguard.ReadPrivateKey(p.Cfg.ClientKeyPath)
	if err != nil {
		return err
	}

	params := model.ProvisioningParams{
		Interface:        p.Cfg.Interface,
		ListenPort:       p.Cfg.ListenPort,
		ServerEndpoint:   p.Cfg.SSHHost,
		ServerTunnelIP:   p.Cfg.ServerTunnelIP,
		ClientTunnelIP:   p.Cfg.ClientTunnelIP,
		AdditionalAddr:   p.Cfg.AdditionalAddr,
		ServerPublicKey:  serverPub,
		ClientPublicKey:  clientPub,
		AllowedRange:     p.Cfg.EffectiveAllowedRange(),
		KeepaliveSeconds: p.Cfg.KeepaliveSeconds,
	}

	clientConf, err := wireguard.RenderConfig(wireguard.RoleClient, params, clientPriv)
	if err != nil {
		return fmt.Errorf("render client config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Tunnel.Up(clientConf); err != nil {
		p.Journal.Record("tunnel", "error", err.Error())
		return err
	}
	p.Journal.Record("tunnel", "up", params.Interface)

	artifact, err := Synthesize(params, p.Cfg.ServerKeyPath)
	if err != nil {
		return err
	}
	state, err := QueryRemoteState(ctx, p.Runner, p.Cfg.RemoteScriptPath, p.Cfg.RemoteUnitName)
	if err != nil {
		p.Journal.Record("drift", "error", err.Error())
		return err
	}

	deployer := &Deployer{Runner: p.Runner, ScriptPath: p.Cfg.RemoteScriptPath, UnitName: p.Cfg.RemoteUnitName}
	if NeedsUpdate(artifact, state) {
		log.WithFields(log.Fields{
			"local":     artifact.Fingerprint,
			"remote":    state.Fingerprint,
			"installed": state.UnitInstalled,
		}).Info("remote state drifted, deploying")
		if err := deployer.Deploy(ctx, artifact); err != nil {
			p.Journal.Record("deploy", "error", err.Error())
			return err
		}
		p.Journal.Record("deploy", "updated", artifact.Fingerprint)
	} else {
		log.WithFields(log.Fields{
			"fingerprint": artifact.Fingerprint,
			"active":      state.UnitActive,
		}).Info("remote state converged")
		if !state.UnitActive {
			if err := deployer.EnsureRunning(ctx); err != nil {
				p.Journal.Record("deploy", "error", err.Error())
				return err
			}
		}
		p.Journal.Record("deploy", "converged", artifact.Fingerprint)
	}

	if p.Prober != nil {
		forward := p.Prober.Probe(ctx, params.ServerTunnelIP)
		reverse := p.Prober.ProbeRemote(ctx, params.ClientTunnelIP)
		if forward && reverse {
			p.Journal.Record("verify", "ok", params.ServerTunnelIP)
		} else {
			diag := p.Prober.Diagnose(ctx)
			log.WithFields(log.Fields{
				"forward": forward,
				"reverse": reverse,
			}).Warnf("tunnel verification failed, continuing\n%s", diag)
			p.Journal.Record("verify", "failed", params.ServerTunnelIP)
		}
	}

	p.Journal.Record("run", "provisioned", artifact.Fingerprint)
	if p.Supervisor != nil {
		p.Supervisor.Run(ctx)
	}
	return ctx.Err()
}
