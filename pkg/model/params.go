package model

import "time"

// ProvisioningParams fully determines both the client and server tunnel
// configurations for one run. Constructed once after key material is known and
// never mutated; any change must flow through re-rendering.
type ProvisioningParams struct {
	Interface        string `json:"interface"`
	ListenPort       int    `json:"listenPort"`
	ServerEndpoint   string `json:"serverEndpoint"` // host the client dials, without port
	ServerTunnelIP   string `json:"serverTunnelIp"`
	ClientTunnelIP   string `json:"clientTunnelIp"`
	AdditionalAddr   string `json:"additionalAddr"` // server-owned address redirected to the client
	ServerPublicKey  string `json:"serverPublicKey"`
	ClientPublicKey  string `json:"clientPublicKey"`
	AllowedRange     string `json:"allowedRange"`
	KeepaliveSeconds int    `json:"keepaliveSeconds"`
}

// ScriptArtifact is the synthesized server control script plus the content
// hash used for drift comparison. The fingerprint is not a security measure.
type ScriptArtifact struct {
	Content     string `json:"-"`
	Fingerprint string `json:"fingerprint"`
}

// RemoteState is the observed deployment state on the server, queried fresh
// on every reconciliation pass. An empty Fingerprint means no script is
// deployed at the expected path.
type RemoteState struct {
	Fingerprint   string `json:"fingerprint"`
	UnitInstalled bool   `json:"unitInstalled"`
	UnitActive    bool   `json:"unitActive"`
}

// TunnelState is a point-in-time view of the local tunnel interface.
// HandshakeKnown is false when the handshake age could not be determined.
type TunnelState struct {
	Up             bool          `json:"up"`
	LastHandshake  time.Duration `json:"lastHandshake"`
	HandshakeKnown bool          `json:"handshakeKnown"`
}
