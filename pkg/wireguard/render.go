package wireguard

import (
	"fmt"
	"strings"

	"wg-redirect/pkg/model"
)

// Role selects which side of the tunnel a config is rendered for.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// RenderConfig produces a wg-quick compatible config string for one side of
// the tunnel. It is a pure function: identical inputs yield byte-identical
// output, which the drift fingerprint relies on.
//
// privateKey is spliced in verbatim; the server side passes a shell variable
// reference so the key is resolved on the host that owns it.
//
// The server variant carries the redirect rules: PREROUTING DNAT sends
// traffic for the additional address to the client tunnel address, and
// POSTROUTING masquerade rewrites the source so replies come back through the
// tunnel. Both are reversed on interface down.
func RenderConfig(role Role, p model.ProvisioningParams, privateKey string) (string, error) {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	switch role {
	case RoleClient:
		fmt.Fprintf(&b, "Address = %s/32\n", p.ClientTunnelIP)
		if privateKey != "" {
			fmt.Fprintf(&b, "PrivateKey = %s\n", privateKey)
		}
		b.WriteString("\n")
		b.WriteString("[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", p.ServerPublicKey)
		fmt.Fprintf(&b, "Endpoint = %s:%d\n", p.ServerEndpoint, p.ListenPort)
		fmt.Fprintf(&b, "AllowedIPs = %s\n", p.AllowedRange)
		if p.KeepaliveSeconds > 0 {
			fmt.Fprintf(&b, "PersistentKeepalive = %d\n", p.KeepaliveSeconds)
		}
	case RoleServer:
		fmt.Fprintf(&b, "Address = %s/32\n", p.ServerTunnelIP)
		fmt.Fprintf(&b, "ListenPort = %d\n", p.ListenPort)
		if privateKey != "" {
			fmt.Fprintf(&b, "PrivateKey = %s\n", privateKey)
		}
		b.WriteString("PostUp = sysctl -w net.ipv4.ip_forward=1\n")
		fmt.Fprintf(&b, "PostUp = iptables -t nat -A PREROUTING -d %s -j DNAT --to-destination %s\n", p.AdditionalAddr, p.ClientTunnelIP)
		b.WriteString("PostUp = iptables -t nat -A POSTROUTING -o %i -j MASQUERADE\n")
		b.WriteString("PostDown = iptables -t nat -D POSTROUTING -o %i -j MASQUERADE\n")
		fmt.Fprintf(&b, "PostDown = iptables -t nat -D PREROUTING -d %s -j DNAT --to-destination %s\n", p.AdditionalAddr, p.ClientTunnelIP)
		b.WriteString("\n")
		b.WriteString("[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", p.ClientPublicKey)
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", p.ClientTunnelIP)
	default:
		return "", fmt.Errorf("unknown render role %q", role)
	}
	b.WriteString("\n")
	return b.String(), nil
}
