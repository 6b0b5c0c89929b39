// Package model defines domain entities used by services and repositories.
package model

import (
	"net/netip"
	"time"
)

// DeviceKind distinguishes user-owned devices from network infrastructure devices.
type DeviceKind string

const (
	// DeviceKindUser is a device enrolled by and bound to a user account.
	DeviceKindUser DeviceKind = "user"
	// DeviceKindNetwork is an infrastructure device bound to a single network.
	DeviceKindNetwork DeviceKind = "network"
)

// MFAMethod selects the second factor required to finish authorization.
type MFAMethod string

const (
	MFAMethodNone     MFAMethod = "none"
	MFAMethodTOTP     MFAMethod = "totp"
	MFAMethodEmail    MFAMethod = "email"
	MFAMethodWebAuthn MFAMethod = "webauthn"
)

// User is a minimal account record: device ownership plus MFA gating.
// Full identity lives in the external identity provider.
type User struct {
	ID         int64
	Username   string // unique
	Email      string // unique, matched against provider identity
	MFAMethod  MFAMethod
	TOTPSecret []byte // raw shared secret, empty unless MFAMethod == totp
	IsActive   bool
	CreatedAt  time.Time
}

// Device is a WireGuard peer identity. The public key is unique across all devices.
type Device struct {
	ID          int64
	Name        string
	PublicKey   string // base64, 32 bytes decoded
	UserID      *int64 // nil only for network-kind devices
	Kind        DeviceKind
	Description string
	Configured  bool // unconfigured devices are never pushed to gateways
	CreatedAt   time.Time
}

// Network is a WireGuard location managed by this control plane.
// Timeouts are stored as whole seconds and surfaced as durations.
type Network struct {
	ID                   int64
	Name                 string
	Address              []netip.Prefix // network CIDRs, one assigned IP per prefix
	Port                 int32
	PublicKey            string
	PrivateKey           string
	Endpoint             string
	DNS                  string
	AllowedIPs           []netip.Prefix
	KeepaliveInterval    int32 // seconds, pushed to peers
	AuthorizationTimeout time.Duration
	HandshakeTimeout     time.Duration
	MFAEnabled           bool
	CreatedAt            time.Time
}

// Membership links a device to a network with its routing data and
// authorization state. Invariant: AuthorizedAt is non-nil exactly when
// IsAuthorized is true.
type Membership struct {
	ID           int64
	NetworkID    int64
	DeviceID     int64
	Addresses    []netip.Addr // assigned WireGuard IPs
	PresharedKey string       // empty = none
	IsAuthorized bool
	AuthorizedAt *time.Time
}

// PeerStatSample is one raw telemetry observation reported by a gateway.
// Samples are append-only; duplicates and out-of-order arrivals are kept as-is.
type PeerStatSample struct {
	ID              int64
	DeviceID        int64
	NetworkID       int64
	CollectedAt     time.Time
	Upload          int64     // cumulative transferred bytes
	Download        int64     // cumulative transferred bytes
	LatestHandshake time.Time // zero = no handshake observed
	Endpoint        string
}

// GatewayPeer is the denormalized peer entry pushed to gateways:
// an authorized, configured device joined with its membership routing data.
type GatewayPeer struct {
	DeviceID          int64
	PublicKey         string
	AllowedIPs        []string // host prefixes derived from assigned IPs
	PresharedKey      string
	KeepaliveInterval int32
}

// DeviceSummary is an aggregated transfer report for one device over a window.
// Deltas of cumulative counters are clamped at zero on counter regression.
type DeviceSummary struct {
	DeviceID int64
	Upload   int64
	Download int64
	From     time.Time
	To       time.Time
}

// UserSummary sums the device summaries of one user's devices.
type UserSummary struct {
	UserID   int64
	Devices  int
	Upload   int64
	Download int64
	From     time.Time
	To       time.Time
}

// NetworkActivity reports how many devices and distinct users produced a
// handshake recently enough to count as connected.
type NetworkActivity struct {
	NetworkID     int64
	ActiveDevices int
	ActiveUsers   int
}
