package wireguard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wg-redirect/pkg/model"
)

func testParams() model.ProvisioningParams {
	return model.ProvisioningParams{
		Interface:        "wg0",
		ListenPort:       51820,
		ServerEndpoint:   "vpn.example.com",
		ServerTunnelIP:   "10.10.10.1",
		ClientTunnelIP:   "10.10.10.2",
		AdditionalAddr:   "203.0.113.5",
		ServerPublicKey:  "SERVERPUBKEY=",
		ClientPublicKey:  "CLIENTPUBKEY=",
		AllowedRange:     "10.10.10.1/32, 203.0.113.5/32",
		KeepaliveSeconds: 25,
	}
}

func TestRenderClientConfig(t *testing.T) {
	conf, err := RenderConfig(RoleClient, testParams(), "PRIVKEY=")
	require.NoError(t, err)
	require.Contains(t, conf, "[Interface]")
	require.Contains(t, conf, "Address = 10.10.10.2/32")
	require.Contains(t, conf, "PrivateKey = PRIVKEY=")
	require.Contains(t, conf, "[Peer]")
	require.Contains(t, conf, "PublicKey = SERVERPUBKEY=")
	require.Contains(t, conf, "Endpoint = vpn.example.com:51820")
	require.Contains(t, conf, "AllowedIPs = 10.10.10.1/32, 203.0.113.5/32")
	require.Contains(t, conf, "PersistentKeepalive = 25")
	require.NotContains(t, conf, "PostUp")
}

func TestRenderServerConfig(t *testing.T) {
	conf, err := RenderConfig(RoleServer, testParams(), "${WG_PRIVATE_KEY}")
	require.NoError(t, err)
	require.Contains(t, conf, "Address = 10.10.10.1/32")
	require.Contains(t, conf, "ListenPort = 51820")
	require.Contains(t, conf, "PrivateKey = ${WG_PRIVATE_KEY}")
	require.Contains(t, conf, "PostUp = iptables -t nat -A PREROUTING -d 203.0.113.5 -j DNAT --to-destination 10.10.10.2")
	require.Contains(t, conf, "PostUp = iptables -t nat -A POSTROUTING -o %i -j MASQUERADE")
	require.Contains(t, conf, "PostDown = iptables -t nat -D PREROUTING -d 203.0.113.5 -j DNAT --to-destination 10.10.10.2")
	require.Contains(t, conf, "PublicKey = CLIENTPUBKEY=")
	require.Contains(t, conf, "AllowedIPs = 10.10.10.2/32")
	require.NotContains(t, conf, "Endpoint =")
}

func TestRenderDeterministic(t *testing.T) {
	a, err := RenderConfig(RoleServer, testParams(), "${WG_PRIVATE_KEY}")
	require.NoError(t, err)
	b, err := RenderConfig(RoleServer, testParams(), "${WG_PRIVATE_KEY}")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRenderUnknownRole(t *testing.T) {
	_, err := RenderConfig(Role("bogus"), testParams(), "")
	require.Error(t, err)
}
