package httpserver

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/gateway"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/pending"
)

// networkRequest is the write shape of a network. Timeouts are whole seconds.
type networkRequest struct {
	Name                 string   `json:"name"`
	Address              []string `json:"address"`
	Port                 int32    `json:"port"`
	Endpoint             string   `json:"endpoint"`
	DNS                  string   `json:"dns"`
	AllowedIPs           []string `json:"allowed_ips"`
	KeepaliveInterval    int32    `json:"keepalive_interval"`
	AuthorizationTimeout int64    `json:"authorization_timeout"`
	HandshakeTimeout     int64    `json:"handshake_timeout"`
	MFAEnabled           bool     `json:"mfa_enabled"`
}

func (r *networkRequest) toModel() (*model.Network, error) {
	addr, err := parsePrefixes(r.Address)
	if err != nil {
		return nil, err
	}
	allowed, err := parsePrefixes(r.AllowedIPs)
	if err != nil {
		return nil, err
	}
	return &model.Network{
		Name:                 r.Name,
		Address:              addr,
		Port:                 r.Port,
		Endpoint:             r.Endpoint,
		DNS:                  r.DNS,
		AllowedIPs:           allowed,
		KeepaliveInterval:    r.KeepaliveInterval,
		AuthorizationTimeout: time.Duration(r.AuthorizationTimeout) * time.Second,
		HandshakeTimeout:     time.Duration(r.HandshakeTimeout) * time.Second,
		MFAEnabled:           r.MFAEnabled,
	}, nil
}

// networkResponse is the read shape of a network plus its live gateway
// connections. The private key never leaves the server.
type networkResponse struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	Address              []string         `json:"address"`
	Port                 int32            `json:"port"`
	PublicKey            string           `json:"public_key"`
	Endpoint             string           `json:"endpoint,omitempty"`
	DNS                  string           `json:"dns,omitempty"`
	AllowedIPs           []string         `json:"allowed_ips,omitempty"`
	KeepaliveInterval    int32            `json:"keepalive_interval"`
	AuthorizationTimeout int64            `json:"authorization_timeout"`
	HandshakeTimeout     int64            `json:"handshake_timeout"`
	MFAEnabled           bool             `json:"mfa_enabled"`
	Connected            bool             `json:"connected"`
	Gateways             []gateway.Status `json:"gateways,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

func toNetworkResponse(n *model.Network, connected bool, gws []gateway.Status) networkResponse {
	return networkResponse{
		ID:                   n.ID,
		Name:                 n.Name,
		Address:              formatPrefixes(n.Address),
		Port:                 n.Port,
		PublicKey:            n.PublicKey,
		Endpoint:             n.Endpoint,
		DNS:                  n.DNS,
		AllowedIPs:           formatPrefixes(n.AllowedIPs),
		KeepaliveInterval:    n.KeepaliveInterval,
		AuthorizationTimeout: int64(n.AuthorizationTimeout / time.Second),
		HandshakeTimeout:     int64(n.HandshakeTimeout / time.Second),
		MFAEnabled:           n.MFAEnabled,
		Connected:            connected,
		Gateways:             gws,
		CreatedAt:            n.CreatedAt,
	}
}

// deviceRequest is the write shape of a device. A device registered with its
// public key counts as configured unless the request says otherwise.
type deviceRequest struct {
	Name        string `json:"name"`
	PublicKey   string `json:"public_key"`
	UserID      *int64 `json:"user_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Configured  *bool  `json:"configured"`
}

func (r *deviceRequest) toModel() (*model.Device, error) {
	kind := model.DeviceKind(r.Kind)
	switch kind {
	case "", model.DeviceKindUser, model.DeviceKindNetwork:
	default:
		return nil, fmt.Errorf("%w: unknown device kind %q", errs.ErrValidation, r.Kind)
	}
	configured := true
	if r.Configured != nil {
		configured = *r.Configured
	}
	return &model.Device{
		Name:        r.Name,
		PublicKey:   r.PublicKey,
		UserID:      r.UserID,
		Kind:        kind,
		Description: r.Description,
		Configured:  configured,
	}, nil
}

type deviceResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	PublicKey   string           `json:"public_key"`
	UserID      *int64           `json:"user_id,omitempty"`
	Kind        model.DeviceKind `json:"kind"`
	Description string           `json:"description,omitempty"`
	Configured  bool             `json:"configured"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toDeviceResponse(d *model.Device) deviceResponse {
	return deviceResponse{
		ID:          d.ID,
		Name:        d.Name,
		PublicKey:   d.PublicKey,
		UserID:      d.UserID,
		Kind:        d.Kind,
		Description: d.Description,
		Configured:  d.Configured,
		CreatedAt:   d.CreatedAt,
	}
}

type enrollRequest struct {
	NetworkID int64 `json:"network_id"`
	DeviceID  int64 `json:"device_id"`
}

// membershipResponse carries the routing material the enrolling client needs
// for its tunnel file.
type membershipResponse struct {
	ID           int64      `json:"id"`
	NetworkID    int64      `json:"network_id"`
	DeviceID     int64      `json:"device_id"`
	Addresses    []string   `json:"addresses"`
	PresharedKey string     `json:"preshared_key,omitempty"`
	IsAuthorized bool       `json:"is_authorized"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
}

func toMembershipResponse(m *model.Membership) membershipResponse {
	return membershipResponse{
		ID:           m.ID,
		NetworkID:    m.NetworkID,
		DeviceID:     m.DeviceID,
		Addresses:    formatAddrs(m.Addresses),
		PresharedKey: m.PresharedKey,
		IsAuthorized: m.IsAuthorized,
		AuthorizedAt: m.AuthorizedAt,
	}
}

// networkDeviceResponse joins a membership with its device for network
// listings.
type networkDeviceResponse struct {
	MembershipID int64      `json:"membership_id"`
	DeviceID     int64      `json:"device_id"`
	Name         string     `json:"name"`
	PublicKey    string     `json:"public_key"`
	Addresses    []string   `json:"addresses"`
	IsAuthorized bool       `json:"is_authorized"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
}

func toNetworkDeviceResponse(m *model.Membership, d *model.Device) networkDeviceResponse {
	return networkDeviceResponse{
		MembershipID: m.ID,
		DeviceID:     d.ID,
		Name:         d.Name,
		PublicKey:    d.PublicKey,
		Addresses:    formatAddrs(m.Addresses),
		IsAuthorized: m.IsAuthorized,
		AuthorizedAt: m.AuthorizedAt,
	}
}

type authorizeRequest struct {
	MembershipID int64  `json:"membership_id"`
	ClientID     string `json:"client_id"`
	Scope        string `json:"scope"`
	ResponseType string `json:"response_type"`
	RedirectURI  string `json:"redirect_uri"`
	State        string `json:"state"`
}

type authorizeResponse struct {
	Token        string `json:"token"`
	AuthorizeURL string `json:"authorize_url"`
}

type mfaRequest struct {
	Assertion string `json:"assertion"`
}

// sessionResponse reports where an attempt stands and, once finished, the
// session token.
type sessionResponse struct {
	Token        string          `json:"token,omitempty"`
	Status       pending.Status  `json:"status"`
	MFAMethod    model.MFAMethod `json:"mfa_method,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	RedirectURI  string          `json:"redirect_uri,omitempty"`
	State        string          `json:"state,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type activityResponse struct {
	NetworkID     int64 `json:"network_id"`
	ActiveDevices int   `json:"active_devices"`
	ActiveUsers   int   `json:"active_users"`
}

type deviceSummaryResponse struct {
	DeviceID int64     `json:"device_id"`
	Upload   int64     `json:"upload"`
	Download int64     `json:"download"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

type userSummaryResponse struct {
	UserID   int64     `json:"user_id"`
	Devices  int       `json:"devices"`
	Upload   int64     `json:"upload"`
	Download int64     `json:"download"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

func parsePrefixes(in []string) ([]netip.Prefix, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]netip.Prefix, 0, len(in))
	for _, s := range in {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bad prefix %q", errs.ErrValidation, s)
		}
		out = append(out, p)
	}
	return out, nil
}

func formatPrefixes(in []netip.Prefix) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = p.String()
	}
	return out
}

func formatAddrs(in []netip.Addr) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}
