package wireguard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wg-redirect/pkg/remote"
)

// Runner is the slice of the remote channel key management needs.
type Runner interface {
	Run(ctx context.Context, script string) (string, error)
}

// KeyRetrievalError means a host's public key could not be obtained. Tunnel
// parameters cannot be computed without it, so this is always fatal.
type KeyRetrievalError struct {
	Host string
	Path string
	Err  error
}

func (e *KeyRetrievalError) Error() string {
	return fmt.Sprintf("cannot retrieve public key for %s (%s): %v", e.Host, e.Path, e.Err)
}

func (e *KeyRetrievalError) Unwrap() error { return e.Err }

// EnsureLocalKeyPair generates a keypair at privPath/pubPath only if the
// private key file is absent, and returns the public key. Calling it again
// with existing files performs no generation and returns the same key.
func EnsureLocalKeyPair(privPath, pubPath string) (string, error) {
	if raw, err := os.ReadFile(privPath); err == nil {
		priv, err := wgtypes.ParseKey(strings.TrimSpace(string(raw)))
		if err != nil {
			return "", &KeyRetrievalError{Host: "local", Path: privPath, Err: err}
		}
		pub := priv.PublicKey().String()
		// Re-create a missing public key file from the private key.
		if _, err := os.Stat(pubPath); err != nil {
			if err := os.WriteFile(pubPath, []byte(pub+"\n"), 0o644); err != nil {
				return "", &KeyRetrievalError{Host: "local", Path: pubPath, Err: err}
			}
		}
		return pub, nil
	}

	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", &KeyRetrievalError{Host: "local", Path: privPath, Err: err}
	}
	pub := priv.PublicKey().String()

	if err := os.MkdirAll(filepath.Dir(privPath), 0o700); err != nil {
		return "", &KeyRetrievalError{Host: "local", Path: privPath, Err: err}
	}
	if err := os.WriteFile(privPath, []byte(priv.String()+"\n"), 0o600); err != nil {
		return "", &KeyRetrievalError{Host: "local", Path: privPath, Err: err}
	}
	if err := os.WriteFile(pubPath, []byte(pub+"\n"), 0o644); err != nil {
		return "", &KeyRetrievalError{Host: "local", Path: pubPath, Err: err}
	}
	log.WithFields(log.Fields{"priv": privPath, "pub": pubPath}).Info("generated local wireguard keypair")
	return pub, nil
}

// ReadPrivateKey returns the private key stored at privPath.
func ReadPrivateKey(privPath string) (string, error) {
	raw, err := os.ReadFile(privPath)
	if err != nil {
		return "", fmt.Errorf("read private key %s: %w", privPath, err)
	}
	key, err := wgtypes.ParseKey(strings.TrimSpace(string(raw)))
	if err != nil {
		return "", fmt.Errorf("parse private key %s: %w", privPath, err)
	}
	return key.String(), nil
}

// EnsureRemoteKeyPair runs a check-then-generate sequence on the remote host
// and returns the content of pubPath. The private key is generated with the
// wg CLI on the server and never crosses the channel.
func EnsureRemoteKeyPair(ctx context.Context, r Runner, privPath, pubPath string) (string, error) {
	script := fmt.Sprintf(`set -eu
umask 077
if [ ! -f %[1]s ]; then
	mkdir -p "$(dirname %[1]s)"
	wg genkey > %[1]s
	chmod 600 %[1]s
fi
if [ ! -f %[2]s ]; then
	wg pubkey < %[1]s > %[2]s
	chmod 644 %[2]s
fi
cat %[2]s
`, remote.ShellQuote(privPath), remote.ShellQuote(pubPath))

	out, err := r.Run(ctx, script)
	if err != nil {
		return "", &KeyRetrievalError{Host: "remote", Path: pubPath, Err: err}
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	pub := strings.TrimSpace(lines[len(lines)-1])
	if pub == "" {
		return "", &KeyRetrievalError{Host: "remote", Path: pubPath, Err: fmt.Errorf("empty public key")}
	}
	if _, err := wgtypes.ParseKey(pub); err != nil {
		return "", &KeyRetrievalError{Host: "remote", Path: pubPath, Err: err}
	}
	return pub, nil
}
