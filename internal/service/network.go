package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/model"
	"github.com/dwongdev/defguard/internal/repository"
	"github.com/dwongdev/defguard/internal/wireguard"
)

// Defaults applied to newly created networks.
const (
	DefaultKeepaliveInterval    = 25
	DefaultAuthorizationTimeout = 600 * time.Second
	DefaultHandshakeTimeout     = 300 * time.Second
)

// GatewayTokenRole is the role claim value of gateway connection tokens.
const GatewayTokenRole = "gateway"

// NetworkService defines operations over WireGuard networks and their
// gateway-facing artifacts.
type NetworkService interface {
	// Create inserts a network, generating a server keypair when absent.
	Create(ctx context.Context, n *model.Network) error
	// Get loads one network.
	Get(ctx context.Context, id int64) (*model.Network, error)
	// List returns all networks.
	List(ctx context.Context) ([]model.Network, error)
	// Update rewrites network settings and pushes a full configuration.
	Update(ctx context.Context, n *model.Network) error
	// Delete removes the network, its infrastructure devices and sessions.
	Delete(ctx context.Context, id int64) error
	// Peers returns the authoritative gateway peer set of a network.
	Peers(ctx context.Context, networkID int64) ([]model.GatewayPeer, error)
	// IssueGatewayToken signs a connection token gateways of the network
	// present when opening their session.
	IssueGatewayToken(ctx context.Context, networkID int64) (string, error)
}

type NetworkServiceImpl struct {
	networks    repository.NetworkRepository
	memberships repository.MembershipRepository
	notifier    GatewayNotifier
	signKey     []byte
	tokenTTL    time.Duration
	log         *zap.Logger
}

// NewNetworkService constructs NetworkService. signKey signs gateway tokens;
// tokenTTL bounds their validity.
func NewNetworkService(networks repository.NetworkRepository, memberships repository.MembershipRepository, notifier GatewayNotifier, signKey []byte, tokenTTL time.Duration, log *zap.Logger) *NetworkServiceImpl {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &NetworkServiceImpl{networks: networks, memberships: memberships, notifier: notifier, signKey: signKey, tokenTTL: tokenTTL, log: log}
}

// Create validates and inserts the network. A missing keypair is generated
// server-side so gateways can come up without manual key handling.
func (s *NetworkServiceImpl) Create(ctx context.Context, n *model.Network) error {
	if err := validateNetwork(n); err != nil {
		return err
	}
	applyNetworkDefaults(n)
	if n.PrivateKey == "" {
		kp, err := wireguard.GenerateKeypair()
		if err != nil {
			return err
		}
		n.PrivateKey, n.PublicKey = kp.Private, kp.Public
	}
	return s.networks.Create(ctx, n)
}

// Get fetches a single network by id.
func (s *NetworkServiceImpl) Get(ctx context.Context, id int64) (*model.Network, error) {
	return s.networks.GetByID(ctx, id)
}

// List returns all networks.
func (s *NetworkServiceImpl) List(ctx context.Context) ([]model.Network, error) {
	return s.networks.List(ctx)
}

// Update rewrites network settings. Connected gateways receive a fresh full
// configuration because interface-level fields may have changed.
func (s *NetworkServiceImpl) Update(ctx context.Context, n *model.Network) error {
	if err := validateNetwork(n); err != nil {
		return err
	}
	applyNetworkDefaults(n)
	if err := s.networks.Update(ctx, n); err != nil {
		return err
	}
	peers, err := s.memberships.ListPeers(ctx, n.ID)
	if err != nil {
		s.log.Warn("configuration push skipped", zap.Int64("network_id", n.ID), zap.Error(err))
		return nil
	}
	s.notifier.NetworkChanged(n, peers)
	return nil
}

// Delete removes the network and tells its gateways to tear down.
func (s *NetworkServiceImpl) Delete(ctx context.Context, id int64) error {
	n, err := s.networks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.networks.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.NetworkRemoved(id, n.Name)
	return nil
}

// Peers returns the gateway peer set derived from store state alone.
func (s *NetworkServiceImpl) Peers(ctx context.Context, networkID int64) ([]model.GatewayPeer, error) {
	return s.memberships.ListPeers(ctx, networkID)
}

// IssueGatewayToken signs an HS256 token with the network id as subject and
// a gateway role claim, distinguishing it from interactive sessions.
func (s *NetworkServiceImpl) IssueGatewayToken(ctx context.Context, networkID int64) (string, error) {
	if _, err := s.networks.GetByID(ctx, networkID); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(networkID, 10),
		"role": GatewayTokenRole,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.signKey)
}

func validateNetwork(n *model.Network) error {
	if n == nil || n.Name == "" {
		return fmt.Errorf("%w: empty network name", errs.ErrValidation)
	}
	if len(n.Address) == 0 {
		return fmt.Errorf("%w: network needs at least one address range", errs.ErrValidation)
	}
	if n.Port <= 0 || n.Port > 65535 {
		return fmt.Errorf("%w: port out of range", errs.ErrValidation)
	}
	return nil
}

func applyNetworkDefaults(n *model.Network) {
	if n.KeepaliveInterval <= 0 {
		n.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if n.AuthorizationTimeout <= 0 {
		n.AuthorizationTimeout = DefaultAuthorizationTimeout
	}
	if n.HandshakeTimeout <= 0 {
		n.HandshakeTimeout = DefaultHandshakeTimeout
	}
}
