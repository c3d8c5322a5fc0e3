// Package tunnel owns the local WireGuard interface: bring-up, teardown,
// liveness checks and the supervision loop that self-heals the link.
package tunnel

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl"

	"wg-redirect/pkg/model"
)

// Controller brings the local tunnel interface up and down with wg-quick and
// reads live state through wgctrl. It exclusively owns the interface; nothing
// else on this host mutates it.
type Controller struct {
	Iface   string
	ConfDir string

	lastConfig string
	execf      func(name string, args ...string) (string, error)
}

// NewController returns a controller for iface with configs under confDir.
func NewController(iface, confDir string) *Controller {
	return &Controller{Iface: iface, ConfDir: confDir, execf: execLocal}
}

func (c *Controller) confPath() string {
	return filepath.Join(c.ConfDir, c.Iface+".conf")
}

// Up writes the rendered config and applies it. It tears down first so a
// second Up with the interface already present neither errors nor duplicates
// routes. The config is remembered for Reapply.
func (c *Controller) Up(config string) error {
	c.Down()

	if err := os.MkdirAll(c.ConfDir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", c.ConfDir, err)
	}
	path := c.confPath()
	if err := os.WriteFile(path, []byte(config), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if out, err := c.execf("wg-quick", "up", path); err != nil {
		return fmt.Errorf("wg-quick up: %w (%s)", err, out)
	}
	c.lastConfig = config
	log.WithFields(log.Fields{"iface": c.Iface, "conf": path}).Info("tunnel interface up")
	return nil
}

// Down tears the interface down. It never fails the run: it is routinely
// called from cancellation paths where the interface may already be gone, so
// errors are logged and swallowed.
func (c *Controller) Down() {
	if out, err := c.execf("wg-quick", "down", c.confPath()); err != nil {
		log.WithError(err).WithField("output", out).Debug("wg-quick down (ignored)")
		return
	}
	log.WithField("iface", c.Iface).Info("tunnel interface down")
}

// Reapply re-runs Up with the last applied config. Used by the supervisor
// when the interface disappears.
func (c *Controller) Reapply() error {
	if c.lastConfig == "" {
		return fmt.Errorf("no config applied yet for %s", c.Iface)
	}
	return c.Up(c.lastConfig)
}

// IsUp reports whether the tunnel interface currently exists.
func (c *Controller) IsUp() bool {
	_, err := net.InterfaceByName(c.Iface)
	return err == nil
}

// State returns a point-in-time view of the interface, degrading the
// handshake age to unknown when it cannot be read.
func (c *Controller) State() model.TunnelState {
	st := model.TunnelState{Up: c.IsUp()}
	if !st.Up {
		return st
	}
	wg, err := wgctrl.New()
	if err != nil {
		return st
	}
	defer wg.Close()
	dev, err := wg.Device(c.Iface)
	if err != nil || len(dev.Peers) == 0 {
		return st
	}
	hs := dev.Peers[0].LastHandshakeTime
	if hs.IsZero() {
		return st
	}
	st.LastHandshake = time.Since(hs)
	st.HandshakeKnown = true
	return st
}

func execLocal(name string, args ...string) (string, error) {
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
