package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full configuration surface. Required values have no default
// and are reported together by Validate; everything else carries a sane one.
type Config struct {
	SSHHost    string        `envconfig:"SSH_HOST"`
	SSHPort    int           `envconfig:"SSH_PORT" default:"22"`
	SSHUser    string        `envconfig:"SSH_USER" default:"root"`
	SSHKeyPath string        `envconfig:"SSH_KEY_PATH" default:"~/.ssh/id_ed25519"`
	SSHTimeout time.Duration `envconfig:"SSH_TIMEOUT" default:"10s"`
	SSHSudo    bool          `envconfig:"SSH_SUDO" default:"false"`

	Interface        string `envconfig:"WG_INTERFACE" default:"wg0"`
	ListenPort       int    `envconfig:"WG_PORT" default:"51820"`
	ServerTunnelIP   string `envconfig:"SERVER_TUNNEL_IP"`
	ClientTunnelIP   string `envconfig:"CLIENT_TUNNEL_IP"`
	AdditionalAddr   string `envconfig:"ADDITIONAL_ADDR"`
	AllowedRange     string `envconfig:"WG_ALLOWED_RANGE" default:""`
	KeepaliveSeconds int    `envconfig:"WG_KEEPALIVE_SECONDS" default:"25"`

	ServerKeyPath    string `envconfig:"SERVER_KEY_PATH" default:"/etc/wireguard/server.key"`
	ServerPubPath    string `envconfig:"SERVER_PUB_PATH" default:"/etc/wireguard/server.pub"`
	RemoteScriptPath string `envconfig:"REMOTE_SCRIPT_PATH" default:"/usr/local/bin/wg-redirect-server"`
	RemoteUnitName   string `envconfig:"REMOTE_UNIT_NAME" default:"wg-redirect-server.service"`

	LocalConfDir    string        `envconfig:"LOCAL_CONF_DIR" default:"/etc/wireguard"`
	ClientKeyPath   string        `envconfig:"CLIENT_KEY_PATH" default:"/etc/wireguard/client.key"`
	ClientPubPath   string        `envconfig:"CLIENT_PUB_PATH" default:"/etc/wireguard/client.pub"`
	JournalPath     string        `envconfig:"JOURNAL_PATH" default:"/var/lib/wg-redirect/journal.db"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	SupervisePeriod time.Duration `envconfig:"SUPERVISE_PERIOD" default:"60s"`
	ProbeAttempts   int           `envconfig:"PROBE_ATTEMPTS" default:"3"`
	ProbeTimeout    time.Duration `envconfig:"PROBE_TIMEOUT" default:"2s"`
}

// PreconditionError reports every missing or malformed required value at
// once so the operator fixes the environment in a single pass.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return "missing or invalid required configuration: " + strings.Join(e.Missing, ", ")
}

// Load reads an optional .env file, populates Config from the environment and
// validates it. A missing .env file is not an error; missing required keys are.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("WGR", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)

// Validate checks the required keys and value sanity. The tunnel and
// redirect addresses must parse as IP addresses here, so anything that
// reaches rendering is already well formed. All missing or malformed keys
// are collected before returning.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "WGR_"+name)
		}
	}
	addr := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "WGR_"+name)
			return
		}
		if _, err := netip.ParseAddr(value); err != nil {
			missing = append(missing, fmt.Sprintf("WGR_%s (not an IP address: %q)", name, value))
		}
	}
	host := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "WGR_"+name)
			return
		}
		if _, err := netip.ParseAddr(value); err == nil {
			return
		}
		if !hostnameRe.MatchString(value) {
			missing = append(missing, fmt.Sprintf("WGR_%s (not a host name or address: %q)", name, value))
		}
	}
	host("SSH_HOST", c.SSHHost)
	addr("SERVER_TUNNEL_IP", c.ServerTunnelIP)
	addr("CLIENT_TUNNEL_IP", c.ClientTunnelIP)
	addr("ADDITIONAL_ADDR", c.AdditionalAddr)
	require("SERVER_KEY_PATH", c.ServerKeyPath)
	require("SERVER_PUB_PATH", c.ServerPubPath)
	require("REMOTE_SCRIPT_PATH", c.RemoteScriptPath)
	require("REMOTE_UNIT_NAME", c.RemoteUnitName)
	if len(missing) > 0 {
		return &PreconditionError{Missing: missing}
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("WGR_WG_PORT out of range: %d", c.ListenPort)
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return fmt.Errorf("WGR_SSH_PORT out of range: %d", c.SSHPort)
	}
	if c.SupervisePeriod <= 0 {
		return fmt.Errorf("WGR_SUPERVISE_PERIOD must be positive")
	}
	return nil
}

// EffectiveAllowedRange defaults the client's routed range to the server
// tunnel address plus the redirected additional address.
func (c *Config) EffectiveAllowedRange() string {
	if c.AllowedRange != "" {
		return c.AllowedRange
	}
	return c.ServerTunnelIP + "/32, " + c.AdditionalAddr + "/32"
}
