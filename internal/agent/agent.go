// Package agent implements the gateway-side client of the sync protocol:
// one long-lived session against the control plane, a local peer table
// mirroring pushed updates, and periodic stat reports derived from it.
package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	pb "github.com/dwongdev/defguard/gen/go/gateway/v1"
)

// sessionStream is the slice of the bidirectional stream the loops use.
type sessionStream interface {
	Send(*pb.StatsUpdate) error
	Recv() (*pb.Update, error)
}

// Agent mirrors control-plane peer updates into its table and reports the
// table's transfer counters upward over one long-lived session.
type Agent struct {
	cfg   Config
	table *Table
	log   *zap.Logger

	reportEvery time.Duration
}

func New(cfg Config, table *Table, log *zap.Logger) *Agent {
	return &Agent{cfg: cfg, table: table, log: log, reportEvery: cfg.ReportInterval()}
}

// Run keeps one session open until the context ends. Broken sessions are
// redialed with capped exponential backoff; a session that outlives the cap
// resets it. Every reconnect starts from the full peer set the control
// plane pushes first.
func (a *Agent) Run(ctx context.Context) error {
	backoff := a.newBackoff()
	for {
		start := time.Now()
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) >= a.cfg.MaxBackoff() {
			backoff = a.newBackoff()
		}
		wait, _ := backoff.Next()
		a.log.Warn("session ended, reconnecting",
			zap.Error(err), zap.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (a *Agent) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(a.cfg.MaxBackoff(), retry.NewExponential(time.Second))
}

func (a *Agent) session(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cc, err := a.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.Controller, err)
	}
	defer cc.Close()

	md := metadata.Pairs(
		"authorization", "Bearer "+a.cfg.Token,
		"hostname", a.cfg.Hostname,
	)
	stream, err := pb.NewGatewayServiceClient(cc).Session(metadata.NewOutgoingContext(ctx, md))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	a.log.Info("session open", zap.String("controller", a.cfg.Controller))
	return a.serve(ctx, stream)
}

func (a *Agent) dial(ctx context.Context) (*grpc.ClientConn, error) {
	creds, err := a.transportCreds()
	if err != nil {
		return nil, err
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, a.cfg.Controller, grpc.WithTransportCredentials(creds))
}

func (a *Agent) transportCreds() (credentials.TransportCredentials, error) {
	if a.cfg.Insecure {
		return insecure.NewCredentials(), nil
	}
	if a.cfg.CACert == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(a.cfg.CACert)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// serve pumps the stream both ways until it breaks: inbound peer updates
// into the table, outbound stat reports each interval.
func (a *Agent) serve(ctx context.Context, stream sessionStream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reportErr := make(chan error, 1)
	go func() { reportErr <- a.report(ctx, stream) }()

	for {
		up, err := stream.Recv()
		if err != nil {
			cancel()
			<-reportErr
			return err
		}
		a.apply(up)
	}
}

func (a *Agent) apply(up *pb.Update) {
	a.table.Apply(up)
	switch up.GetKind() {
	case pb.UpdateKind_UPDATE_KIND_FULL:
		a.log.Info("full configuration applied",
			zap.Int64("network_id", up.GetConfig().GetNetworkId()),
			zap.Int("peers", len(up.GetConfig().GetPeers())))
	case pb.UpdateKind_UPDATE_KIND_PEER_UPSERT:
		a.log.Info("peer upserted", zap.String("public_key", up.GetPeer().GetPublicKey()))
	case pb.UpdateKind_UPDATE_KIND_PEER_DELETE:
		a.log.Info("peer removed", zap.String("public_key", up.GetPeer().GetPublicKey()))
	case pb.UpdateKind_UPDATE_KIND_NETWORK_DELETE:
		a.log.Warn("network removed upstream, peer table cleared")
	}
}

func (a *Agent) report(ctx context.Context, stream sessionStream) error {
	ticker := time.NewTicker(a.reportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.reportOnce(stream); err != nil {
				return err
			}
		}
	}
}

// reportOnce sends one sample per configured peer. Peers that never
// completed a handshake are skipped. The network id is left unset; the
// control plane takes it from the connection token.
func (a *Agent) reportOnce(stream sessionStream) error {
	now := time.Now().UTC()
	for _, p := range a.table.Snapshot() {
		if p.LatestHandshake.IsZero() {
			continue
		}
		if err := stream.Send(&pb.StatsUpdate{
			DeviceId:        p.DeviceID,
			PublicKey:       p.PublicKey,
			CollectedAt:     now.Unix(),
			Upload:          p.Upload,
			Download:        p.Download,
			LatestHandshake: p.LatestHandshake.Unix(),
			Endpoint:        p.Endpoint,
		}); err != nil {
			return fmt.Errorf("send stats: %w", err)
		}
	}
	return nil
}
